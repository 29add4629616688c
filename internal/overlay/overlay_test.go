// overlay_test.go

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

package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMerrony/tellopilot/internal/link"
)

type stubSource struct {
	frame   link.Frame
	ok      bool
	battery int
}

func (s *stubSource) Frame() (link.Frame, bool) { return s.frame, s.ok }
func (s *stubSource) Battery() int              { return s.battery }

type recorder struct {
	shown []*image.RGBA
}

func (r *recorder) Present(img *image.RGBA) { r.shown = append(r.shown, img) }

func blankFrame(w, h int, seq uint64) link.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return link.Frame{Image: img, Order: link.BGR, Seq: seq}
}

func TestRenderOnlyNewFrames(t *testing.T) {
	src := &stubSource{battery: 80}
	out := &recorder{}
	r, err := New(zerolog.Nop(), src, out, Options{})
	require.NoError(t, err)

	assert.False(t, r.Render(), "nothing published yet")

	src.frame, src.ok = blankFrame(120, 40, 1), true
	assert.True(t, r.Render())
	assert.False(t, r.Render())
	assert.Len(t, out.shown, 1)

	src.frame = blankFrame(120, 40, 2)
	assert.True(t, r.Render())
	assert.Len(t, out.shown, 2)
}

func TestShownIsTheFramePresented(t *testing.T) {
	src := &stubSource{battery: 80}
	r, err := New(zerolog.Nop(), src, &recorder{}, Options{})
	require.NoError(t, err)

	_, ok := r.Shown()
	assert.False(t, ok)

	src.frame, src.ok = blankFrame(8, 8, 7), true
	require.True(t, r.Render())

	// a newer frame arriving after the draw does not change what was shown
	src.frame = blankFrame(8, 8, 8)
	seq, ok := r.Shown()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), seq)
}

func TestRenderDrawsBatteryBottomLeft(t *testing.T) {
	src := &stubSource{frame: blankFrame(160, 60, 1), ok: true, battery: 57}
	out := &recorder{}
	r, err := New(zerolog.Nop(), src, out, Options{})
	require.NoError(t, err)
	require.True(t, r.Render())

	img := out.shown[0]
	red := color.RGBA{R: 0xff, A: 0xff}
	var found bool
	var minX, maxY = 1 << 30, 0
	for y := 0; y < 60; y++ {
		for x := 0; x < 160; x++ {
			if img.RGBAAt(x, y) == red {
				found = true
				minX = min(minX, x)
				maxY = max(maxY, y)
			}
		}
	}
	require.True(t, found, "text drawn")
	assert.GreaterOrEqual(t, minX, TextMargin)
	assert.Less(t, maxY, 60-TextMargin+4, "text sits on the baseline, descenders aside")
	assert.Greater(t, maxY, 40, "text is near the bottom")

	// the source frame is left as it was
	assert.Equal(t, color.RGBA{A: 0xff}, src.frame.Image.RGBAAt(10, 50))
}

func TestBatteryText(t *testing.T) {
	assert.Equal(t, "Battery: 87%", BatteryText(87))
}

func TestOrient(t *testing.T) {
	// 2x1: red then green
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	src.SetRGBA(0, 0, red)
	src.SetRGBA(1, 0, green)

	assert.Same(t, src, Orient(src, 0, false))

	r90 := Orient(src, 90, false)
	assert.Equal(t, image.Rect(0, 0, 1, 2), r90.Bounds())
	assert.Equal(t, red, r90.RGBAAt(0, 0))
	assert.Equal(t, green, r90.RGBAAt(0, 1))

	r180 := Orient(src, 180, false)
	assert.Equal(t, green, r180.RGBAAt(0, 0))

	r270 := Orient(src, 270, false)
	assert.Equal(t, green, r270.RGBAAt(0, 0))
	assert.Equal(t, red, r270.RGBAAt(0, 1))

	flipped := Orient(r90, 0, true)
	assert.Equal(t, green, flipped.RGBAAt(0, 0))
	assert.Equal(t, red, flipped.RGBAAt(0, 1))
}

func TestNewRejectsOddRotation(t *testing.T) {
	_, err := New(zerolog.Nop(), &stubSource{}, &recorder{}, Options{Rotate: 45})
	assert.Error(t, err)
}
