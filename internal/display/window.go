// window.go

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

// Package display shows the annotated video in a desktop window and turns
// its keyboard into control key events.
package display

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/control"
	"github.com/SMerrony/tellopilot/internal/latest"
	"github.com/SMerrony/tellopilot/internal/queue"
)

// eventLimit bounds key events waiting for the control loop.
const eventLimit = 256

var keyNames = map[ebiten.Key]control.Key{
	ebiten.KeyArrowUp:    control.KeyUp,
	ebiten.KeyArrowDown:  control.KeyDown,
	ebiten.KeyArrowLeft:  control.KeyLeft,
	ebiten.KeyArrowRight: control.KeyRight,
	ebiten.KeyW:          control.KeyW,
	ebiten.KeyS:          control.KeyS,
	ebiten.KeyA:          control.KeyA,
	ebiten.KeyD:          control.KeyD,
	ebiten.KeyT:          control.KeyT,
	ebiten.KeyL:          control.KeyL,
	ebiten.KeyP:          control.KeyP,
	ebiten.KeyEscape:     control.KeyEscape,
}

// KeyName maps a window key to a control key.
func KeyName(k ebiten.Key) (control.Key, bool) {
	name, ok := keyNames[k]
	return name, ok
}

// Options size and title the window.
type Options struct {
	Title         string
	Width, Height int // initial size before the first frame arrives
}

// Window is both the session's Input and its overlay Presenter. Run must be
// called from the main goroutine.
type Window struct {
	log    zerolog.Logger
	opts   Options
	events *queue.Queue[control.KeyEvent]
	frames latest.Cell[*image.RGBA]

	// owned by the ebiten goroutine
	canvas  *ebiten.Image
	shown   uint64
	pressed []ebiten.Key
	dropped uint64

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a window; nothing is shown until Run.
func New(log zerolog.Logger, opts Options) *Window {
	if opts.Title == "" {
		opts.Title = "tellopilot"
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 960, 720
	}
	return &Window{
		log:    log.With().Str("component", "display").Logger(),
		opts:   opts,
		events: queue.New[control.KeyEvent](eventLimit),
		done:   make(chan struct{}),
	}
}

// Events returns the key events since the last call.
func (w *Window) Events() []control.KeyEvent {
	return w.events.Drain()
}

// Present hands a finished frame to the window without waiting for it to be
// drawn.
func (w *Window) Present(img *image.RGBA) {
	w.frames.Publish(img)
}

// Close makes Run return at the next window update.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// Run opens the window and blocks until it is closed, either by Close or by
// the user. Closing the window from the desktop sends Escape.
func (w *Window) Run() error {
	ebiten.SetWindowTitle(w.opts.Title)
	ebiten.SetWindowSize(w.opts.Width, w.opts.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowClosingHandled(true)
	ebiten.SetTPS(60)
	return ebiten.RunGame(w)
}

// Update implements ebiten.Game.
func (w *Window) Update() error {
	select {
	case <-w.done:
		return ebiten.Termination
	default:
	}
	if ebiten.IsWindowBeingClosed() {
		w.events.Push(control.KeyEvent{Key: control.KeyEscape, Down: true})
		w.Close()
		return ebiten.Termination
	}

	w.pressed = inpututil.AppendJustPressedKeys(w.pressed[:0])
	for _, k := range w.pressed {
		if name, ok := KeyName(k); ok {
			w.events.Push(control.KeyEvent{Key: name, Down: true})
		}
	}
	w.pressed = inpututil.AppendJustReleasedKeys(w.pressed[:0])
	for _, k := range w.pressed {
		if name, ok := KeyName(k); ok {
			w.events.Push(control.KeyEvent{Key: name, Down: false})
		}
	}
	if n := w.events.Dropped(); n != w.dropped {
		w.log.Warn().Uint64("dropped", n).Msg("Key events overflowed")
		w.dropped = n
	}
	return nil
}

// Draw implements ebiten.Game.
func (w *Window) Draw(screen *ebiten.Image) {
	if seq := w.frames.Seq(); seq != w.shown {
		img, seq, _ := w.frames.Load()
		b := img.Bounds()
		if w.canvas == nil || w.canvas.Bounds().Dx() != b.Dx() || w.canvas.Bounds().Dy() != b.Dy() {
			if w.canvas != nil {
				w.canvas.Deallocate()
			}
			w.canvas = ebiten.NewImage(b.Dx(), b.Dy())
		}
		w.canvas.WritePixels(packed(img))
		w.shown = seq
	}
	if w.canvas == nil {
		ebitenutil.DebugPrint(screen, "Waiting for video...")
		return
	}
	screen.DrawImage(w.canvas, nil)
}

// Layout implements ebiten.Game. The screen matches the video.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	if w.canvas != nil {
		b := w.canvas.Bounds()
		return b.Dx(), b.Dy()
	}
	return w.opts.Width, w.opts.Height
}

// packed returns the pixels of img without row padding.
func packed(img *image.RGBA) []byte {
	b := img.Bounds()
	row := 4 * b.Dx()
	if img.Stride == row && len(img.Pix) == row*b.Dy() {
		return img.Pix
	}
	pix := make([]byte, 0, row*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		pix = append(pix, img.Pix[off:off+row]...)
	}
	return pix
}
