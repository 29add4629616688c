// decoder.go

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

// Package video decodes the drone's H.264 byte stream into RGB pictures with
// GStreamer.
//
//	appsrc -> h264parse -> avdec_h264 -> videoconvert -> videoscale -> capsfilter(RGB) -> appsink
package video

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// FrameFunc receives one decoded picture as packed RGB bytes. data is owned
// by the callee.
type FrameFunc func(data []byte, width, height int)

// Config describes the pictures wanted from the decoder.
type Config struct {
	Width, Height int
}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("video: decoder closed")

var initOnce sync.Once

// Decoder owns one GStreamer pipeline.
type Decoder struct {
	log      zerolog.Logger
	cfg      Config
	pipeline *gst.Pipeline
	src      *app.Source
	sink     *app.Sink
	onFrame  FrameFunc

	closed  atomic.Bool
	frames  atomic.Uint64
	written atomic.Uint64
	stop    chan struct{}
	done    chan struct{}
}

func rgbCaps(cfg Config) string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", cfg.Width, cfg.Height)
}

const h264Caps = "video/x-h264,stream-format=byte-stream"

// NewDecoder builds and starts a pipeline. onFrame is called from a
// GStreamer thread for every decoded picture.
func NewDecoder(log zerolog.Logger, cfg Config, onFrame FrameFunc) (*Decoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("video: invalid picture size %dx%d", cfg.Width, cfg.Height)
	}
	initOnce.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(h264Caps))
	src.SetProperty("is-live", true)
	src.SetDoTimestamp(true)

	var elems []*gst.Element
	for _, name := range []string{"h264parse", "avdec_h264", "videoconvert", "videoscale"} {
		e, err := gst.NewElement(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		elems = append(elems, e)
	}
	elems[1].SetProperty("max-threads", 0)
	elems[1].SetProperty("output-corrupt", false)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(rgbCaps(cfg)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	chain := append([]*gst.Element{src.Element}, elems...)
	chain = append(chain, capsfilter, sink.Element)
	if err := pipeline.AddMany(chain...); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(chain...); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	d := &Decoder{
		log:      log.With().Str("component", "video").Logger(),
		cfg:      cfg,
		pipeline: pipeline,
		src:      src,
		sink:     sink,
		onFrame:  onFrame,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	go d.monitor()
	d.log.Info().Int("width", cfg.Width).Int("height", cfg.Height).Msg("Video decoder started")
	return d, nil
}

func (d *Decoder) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	// GStreamer reuses the buffer
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	d.frames.Add(1)
	if d.onFrame != nil {
		d.onFrame(pix, d.cfg.Width, d.cfg.Height)
	}
	return gst.FlowOK
}

// Write feeds a chunk of the H.264 byte stream into the pipeline.
func (d *Decoder) Write(chunk []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	buf := gst.NewBufferFromBytes(chunk)
	if ret := d.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("video: push buffer: %v", ret)
	}
	d.written.Add(uint64(len(chunk)))
	return nil
}

// monitor logs pipeline errors until Close.
func (d *Decoder) monitor() {
	defer close(d.done)
	bus := d.pipeline.GetPipelineBus()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			d.log.Debug().Msg("Video end of stream")
		case gst.MessageError:
			gerr := msg.ParseError()
			d.log.Error().Str("debug", gerr.DebugString()).Msg(gerr.Error())
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			d.log.Warn().Msg(gerr.Error())
		}
	}
}

// Close stops the pipeline. It is safe to call more than once.
func (d *Decoder) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.src.EndStream()
	close(d.stop)
	<-d.done
	err := d.pipeline.SetState(gst.StateNull)
	d.log.Info().
		Uint64("frames", d.frames.Load()).
		Uint64("bytes", d.written.Load()).
		Msg("Video decoder stopped")
	return err
}
