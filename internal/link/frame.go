// frame.go

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

package link

import (
	"fmt"
	"image"
	"time"
)

// ChannelOrder is the byte order of a frame's colour channels.
type ChannelOrder int

const (
	RGB ChannelOrder = iota
	BGR
)

func (o ChannelOrder) String() string {
	if o == BGR {
		return "BGR"
	}
	return "RGB"
}

// Frame is one decoded video picture. Image must not be modified once the
// frame has been published.
type Frame struct {
	Image      *image.RGBA
	Order      ChannelOrder
	Seq        uint64
	CapturedAt time.Time
}

// FrameFromRGB builds a frame from packed 24-bit pixels, as produced by a
// video/x-raw,format=RGB pipeline.
func FrameFromRGB(data []byte, width, height int, order ChannelOrder, seq uint64, at time.Time) (Frame, error) {
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(data) < width*height*3 {
		return Frame{}, fmt.Errorf("frame data too short: %d bytes for %dx%d", len(data), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
		img.Pix[j] = data[i]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+2]
		img.Pix[j+3] = 0xff
	}
	return Frame{Image: img, Order: order, Seq: seq, CapturedAt: at}, nil
}

// ToRGB returns a copy of the picture with its channels in RGB order.
func (f Frame) ToRGB() *image.RGBA {
	if f.Image == nil {
		return nil
	}
	out := image.NewRGBA(f.Image.Rect)
	copy(out.Pix, f.Image.Pix)
	if f.Order == BGR {
		for i := 0; i+2 < len(out.Pix); i += 4 {
			out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
		}
	}
	return out
}
