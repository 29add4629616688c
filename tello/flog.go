// flog.go - handle the flight logs from the drone

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

import "math"

const (
	mvoVelocityOffset = 12
	imuQuatOffset     = 10 + 48
	imuTempOffset     = imuQuatOffset + 16 + 48
)

func (tello *Tello) ackLogHeader(id []byte) {
	pkt := newPacket(ptData1, msgLogHeader, 0, 3)
	pkt.payload[1] = id[0]
	pkt.payload[2] = id[1]
	if err := tello.sendPacket(pkt, true); err != nil {
		tello.log.Debug().Err(err).Msg("Failed to acknowledge log header")
	}
}

// parseLogPacket decodes the obfuscated records of a log data message into the flight data.
func (tello *Tello) parseLogPacket(data []byte) {
	pos := 1
	if len(data) < 2 {
		return
	}
	for pos < len(data)-6 {
		if data[pos] != logRecordSeparator {
			tello.log.Trace().Int("pos", pos).Msg("Error parsing log record (bad separator)")
			break
		}
		recLen := int(data[pos+1])
		if data[pos+2] != 0 || recLen == 0 {
			tello.log.Trace().Int("pos", pos).Msg("Error parsing log record (bad length)")
			break
		}
		if pos+recLen > len(data) {
			break
		}
		logRecType := uint16(data[pos+3]) + uint16(data[pos+4])<<8
		xorVal := data[pos+6]
		rec := make([]byte, recLen)
		for i := range rec {
			rec[i] = data[pos+i] ^ xorVal
		}
		switch logRecType {
		case logRecNewMVO:
			tello.decodeMVO(rec)
		case logRecIMU:
			tello.decodeIMU(rec)
		}
		pos += recLen
	}
}

func (tello *Tello) decodeMVO(rec []byte) {
	offset := mvoVelocityOffset
	if len(rec) < offset+18 {
		return
	}
	var mvo MVOData
	mvo.VelocityX = int16(uint16(rec[offset]) | uint16(rec[offset+1])<<8)
	offset += 2
	mvo.VelocityY = int16(uint16(rec[offset]) | uint16(rec[offset+1])<<8)
	offset += 2
	mvo.VelocityZ = int16(uint16(rec[offset]) | uint16(rec[offset+1])<<8)
	offset += 2
	mvo.PositionX = bytesToFloat32(rec[offset : offset+4])
	offset += 4
	mvo.PositionY = bytesToFloat32(rec[offset : offset+4])
	offset += 4
	mvo.PositionZ = bytesToFloat32(rec[offset : offset+4])

	tello.fdMu.Lock()
	tello.fd.MVO = mvo
	tello.fdMu.Unlock()
}

func (tello *Tello) decodeIMU(rec []byte) {
	if len(rec) < imuQuatOffset+16 {
		return
	}
	var imu IMUData
	offset := imuQuatOffset
	imu.QuaternionW = bytesToFloat32(rec[offset : offset+4])
	offset += 4
	imu.QuaternionX = bytesToFloat32(rec[offset : offset+4])
	offset += 4
	imu.QuaternionY = bytesToFloat32(rec[offset : offset+4])
	offset += 4
	imu.QuaternionZ = bytesToFloat32(rec[offset : offset+4])
	if len(rec) >= imuTempOffset+2 {
		imu.Temperature = int16(uint16(rec[imuTempOffset])|uint16(rec[imuTempOffset+1])<<8) / 100
	}
	imu.Yaw = quatToYawDeg(imu.QuaternionX, imu.QuaternionY, imu.QuaternionZ, imu.QuaternionW)

	tello.fdMu.Lock()
	tello.fd.IMU = imu
	tello.fdMu.Unlock()
}

// quatToYawDeg returns the heading, in whole degrees, encoded by a unit quaternion.
func quatToYawDeg(qX, qY, qZ, qW float32) int16 {
	x, y, z, w := float64(qX), float64(qY), float64(qZ), float64(qW)
	yaw := math.Atan2(2.0*(w*z+x*y), 1.0-2.0*(y*y+z*z))
	return int16(math.Round(yaw * 180.0 / math.Pi))
}
