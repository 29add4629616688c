// crc.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package tello

// The Tello protects its packets with a reflected CRC-8 over the 3 header
// bytes and a reflected CRC-16 over everything but the trailing checksum.
// Both use non-standard seeds.
const (
	crc8Seed  = 0x77
	crc8Poly  = 0x8c
	crc16Seed = 0x3692
	crc16Poly = 0x8408
)

var (
	crc8Table  = makeCRC8Table()
	crc16Table = makeCRC16Table()
)

func makeCRC8Table() (t [256]byte) {
	for i := range t {
		c := byte(i)
		for b := 0; b < 8; b++ {
			if c&1 == 1 {
				c = (c >> 1) ^ crc8Poly
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

func makeCRC16Table() (t [256]uint16) {
	for i := range t {
		c := uint16(i)
		for b := 0; b < 8; b++ {
			if c&1 == 1 {
				c = (c >> 1) ^ crc16Poly
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

func calculateCRC8(buf []byte) byte {
	crc := byte(crc8Seed)
	for _, b := range buf {
		crc = crc8Table[crc^b]
	}
	return crc
}

func calculateCRC16(buf []byte) uint16 {
	crc := uint16(crc16Seed)
	for _, b := range buf {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc
}
