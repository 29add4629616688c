// snapshot.go

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

// Package snapshot writes the newest video frame to numbered PNG files.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/SMerrony/tellopilot/internal/link"
)

const instrumentationName = "github.com/SMerrony/tellopilot/internal/snapshot"

// maxSkip bounds the search for an unused file name.
const maxSkip = 10000

// FrameSource hands out the newest frame without waiting.
type FrameSource interface {
	Frame() (link.Frame, bool)
}

// Image describes a written snapshot.
type Image struct {
	Dir        string    `json:"dir"`
	Name       string    `json:"name"`
	Index      int       `json:"index"`
	Path       string    `json:"path"`
	FrameSeq   uint64    `json:"frameSeq"`
	CapturedAt time.Time `json:"capturedAt"`
}

// CaptureError is returned when a snapshot could not be taken. It unwraps
// to link.ErrCapture.
type CaptureError struct {
	Path string // empty if no frame was available
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Path == "" {
		return "snapshot: " + e.Err.Error()
	}
	return "snapshot " + e.Path + ": " + e.Err.Error()
}

func (e *CaptureError) Unwrap() []error {
	return []error{link.ErrCapture, e.Err}
}

// Options locate the snapshots.
type Options struct {
	Dir    string
	Prefix string
	Start  int // first index to try
}

// Capturer writes {Dir}/{Prefix}{index}.png. Indices only increase and a
// failed capture does not use one up. Existing files are never overwritten.
type Capturer struct {
	log    zerolog.Logger
	fs     afero.Fs
	src    FrameSource
	dir    string
	prefix string

	mu    sync.Mutex
	next  int
	hooks []func(Image)

	captures metric.Int64Counter
	failures metric.Int64Counter
}

// New returns a Capturer reading frames from src. The output directory is
// created if needed.
func New(log zerolog.Logger, fs afero.Fs, src FrameSource, opts Options) (*Capturer, error) {
	if opts.Prefix == "" {
		return nil, errors.New("snapshot: empty file prefix")
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if ok, _ := afero.DirExists(fs, dir); !ok {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("snapshot: creating %s: %w", dir, err)
		}
	}

	c := &Capturer{
		log:    log.With().Str("component", "snapshot").Logger(),
		fs:     fs,
		src:    src,
		dir:    dir,
		prefix: opts.Prefix,
		next:   opts.Start,
	}
	m := otel.Meter(instrumentationName)
	var err error
	if c.captures, err = m.Int64Counter("snapshot.captures", metric.WithDescription("Snapshots written")); err != nil {
		return nil, fmt.Errorf("creating captures counter: %w", err)
	}
	if c.failures, err = m.Int64Counter("snapshot.failures", metric.WithDescription("Snapshots that could not be taken")); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	return c, nil
}

// OnCapture registers fn to be called after every successful capture.
func (c *Capturer) OnCapture(fn func(Image)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Next returns the index the next capture will try first.
func (c *Capturer) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Path returns the file name used for index.
func (c *Capturer) Path(index int) string {
	return filepath.Join(c.dir, c.prefix+strconv.Itoa(index)+".png")
}

// Capture writes the newest frame.
func (c *Capturer) Capture() (Image, error) {
	img, err := c.capture()
	if err != nil {
		c.failures.Add(context.Background(), 1)
		c.log.Warn().Err(err).Msg("Snapshot failed")
		return Image{}, err
	}
	c.captures.Add(context.Background(), 1)
	c.log.Info().Str("path", img.Path).Int("index", img.Index).Msg("Snapshot saved")

	c.mu.Lock()
	hooks := append([]func(Image){}, c.hooks...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(img)
	}
	return img, nil
}

func (c *Capturer) capture() (Image, error) {
	frame, ok := c.src.Frame()
	if !ok || frame.Image == nil {
		return Image{}, &CaptureError{Err: errors.New("no frame available")}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.ToRGB()); err != nil {
		return Image{}, &CaptureError{Err: fmt.Errorf("encoding: %w", err)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for index := c.next; index < c.next+maxSkip; index++ {
		path := c.Path(index)
		f, err := c.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			c.log.Debug().Str("path", path).Msg("Snapshot exists, skipping index")
			continue
		}
		if err != nil {
			return Image{}, &CaptureError{Path: path, Err: err}
		}
		if err := c.write(f, buf.Bytes()); err != nil {
			if rmErr := c.fs.Remove(path); rmErr != nil {
				c.log.Error().Err(rmErr).Str("path", path).Msg("Could not remove partial snapshot")
			}
			return Image{}, &CaptureError{Path: path, Err: err}
		}
		c.next = index + 1
		return Image{
			Dir:        c.dir,
			Name:       filepath.Base(path),
			Index:      index,
			Path:       path,
			FrameSeq:   frame.Seq,
			CapturedAt: time.Now(),
		}, nil
	}
	return Image{}, &CaptureError{Path: c.Path(c.next), Err: fmt.Errorf("no free file name in %d tries", maxSkip)}
}

func (c *Capturer) write(f afero.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
