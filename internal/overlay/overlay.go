// overlay.go

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

// Package overlay composes the pilot's view: the newest frame, upright, with
// the battery level written in the bottom-left corner.
package overlay

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/SMerrony/tellopilot/internal/link"
)

const instrumentationName = "github.com/SMerrony/tellopilot/internal/overlay"

// TextMargin is the distance of the battery text from the left and bottom edges.
const TextMargin = 5

// Source supplies frames and the battery level without blocking.
type Source interface {
	Frame() (link.Frame, bool)
	Battery() int
}

// Presenter shows a composed picture. It takes ownership of img.
type Presenter interface {
	Present(img *image.RGBA)
}

// Options control orientation and text colour.
type Options struct {
	Rotate       int // clockwise degrees: 0, 90, 180 or 270
	FlipVertical bool
	TextColor    color.Color
}

// Renderer draws each new frame once.
type Renderer struct {
	log     zerolog.Logger
	src     Source
	out     Presenter
	opts    Options
	lastSeq uint64
	shown   bool

	rendered metric.Int64Counter
}

// New returns a Renderer. Text defaults to red.
func New(log zerolog.Logger, src Source, out Presenter, opts Options) (*Renderer, error) {
	switch opts.Rotate {
	case 0, 90, 180, 270:
	default:
		return nil, fmt.Errorf("overlay: rotation must be a multiple of 90, got %d", opts.Rotate)
	}
	if opts.TextColor == nil {
		opts.TextColor = color.RGBA{R: 0xff, A: 0xff}
	}
	r := &Renderer{
		log:  log.With().Str("component", "overlay").Logger(),
		src:  src,
		out:  out,
		opts: opts,
	}
	var err error
	r.rendered, err = otel.Meter(instrumentationName).Int64Counter(
		"overlay.frames.rendered",
		metric.WithDescription("Frames composed and presented"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rendered counter: %w", err)
	}
	return r, nil
}

// Render presents the newest frame if it has not been presented yet, and
// reports whether it did.
func (r *Renderer) Render() bool {
	frame, ok := r.src.Frame()
	if !ok || frame.Image == nil {
		return false
	}
	if r.shown && frame.Seq == r.lastSeq {
		return false
	}
	r.lastSeq, r.shown = frame.Seq, true

	img := Orient(frame.ToRGB(), r.opts.Rotate, r.opts.FlipVertical)
	DrawBattery(img, r.src.Battery(), r.opts.TextColor)
	r.out.Present(img)
	r.rendered.Add(context.Background(), 1)
	return true
}

// Shown returns the sequence number of the last frame presented.
func (r *Renderer) Shown() (uint64, bool) {
	return r.lastSeq, r.shown
}

// BatteryText formats a battery percentage for display.
func BatteryText(pct int) string {
	return fmt.Sprintf("Battery: %d%%", pct)
}

// DrawBattery writes the battery text with its baseline TextMargin pixels
// above the bottom edge.
func DrawBattery(img *image.RGBA, pct int, c color.Color) {
	b := img.Bounds()
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(b.Min.X+TextMargin, b.Max.Y-TextMargin),
	}
	d.DrawString(BatteryText(pct))
}

// Orient rotates src clockwise by deg (a multiple of 90) and then optionally
// flips it top to bottom. src is returned unchanged when nothing is to be done.
func Orient(src *image.RGBA, deg int, flip bool) *image.RGBA {
	dst := src
	switch deg {
	case 90, 180, 270:
		dst = rotate(src, deg)
	}
	if flip {
		dst = flipVertical(dst)
	}
	return dst
}

func rotate(src *image.RGBA, deg int) *image.RGBA {
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	var dst *image.RGBA
	if deg == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.RGBAAt(sb.Min.X+x, sb.Min.Y+y)
			switch deg {
			case 90:
				dst.SetRGBA(h-1-y, x, c)
			case 180:
				dst.SetRGBA(w-1-x, h-1-y, c)
			case 270:
				dst.SetRGBA(y, w-1-x, c)
			}
		}
	}
	return dst
}

func flipVertical(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		from := src.PixOffset(b.Min.X, b.Min.Y+y)
		to := dst.PixOffset(0, b.Dy()-1-y)
		copy(dst.Pix[to:to+rowLen], src.Pix[from:from+rowLen])
	}
	return dst
}
