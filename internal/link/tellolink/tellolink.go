// tellolink.go

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

// Package tellolink adapts the tello driver to link.Vehicle.
package tellolink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/latest"
	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/tello"
)

// Decoder turns H.264 chunks into pictures.
type Decoder interface {
	Write(chunk []byte) error
	Close() error
}

// DecoderFactory starts a decoder that calls onFrame with packed RGB pixels.
type DecoderFactory func(onFrame func(data []byte, width, height int)) (Decoder, error)

// Options configure a Link.
type Options struct {
	Drone       tello.Options
	Bitrate     tello.VBR
	Wide        bool
	Sports      bool // fast flight mode for stick commands
	NewDecoder  DecoderFactory
	SPSInterval time.Duration // how often to ask for SPS/PPS while streaming
	MinMoveCM   int
	MaxMoveCM   int
}

// DefaultOptions returns settings for a stock Tello; NewDecoder must still be set.
func DefaultOptions() Options {
	return Options{
		Drone:       tello.DefaultOptions(),
		Bitrate:     tello.VbrAuto,
		SPSInterval: time.Second,
		MinMoveCM:   20,
		MaxMoveCM:   500,
	}
}

// Link drives a real Tello.
type Link struct {
	log   zerolog.Logger
	drone *tello.Tello
	opts  Options

	frames   latest.Cell[link.Frame]
	frameSeq atomic.Uint64

	mu       sync.Mutex
	dec      Decoder
	stopping chan struct{}
	wg       sync.WaitGroup
}

var (
	_ link.Vehicle         = (*Link)(nil)
	_ link.TelemetrySource = (*Link)(nil)
)

// New returns an unconnected Link.
func New(log zerolog.Logger, opts Options) *Link {
	if opts.SPSInterval <= 0 {
		opts.SPSInterval = time.Second
	}
	return &Link{
		log:   log.With().Str("component", "tellolink").Logger(),
		drone: tello.New(log),
		opts:  opts,
	}
}

// classify translates driver errors into link errors.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tello.ErrNotConnected), errors.Is(err, tello.ErrConnectTimeout):
		return fmt.Errorf("%s: %w: %w", op, link.ErrConnection, err)
	case errors.Is(err, tello.ErrRejected), errors.Is(err, tello.ErrAutopilotBusy):
		return fmt.Errorf("%s: %w: %w", op, link.ErrCommandRejected, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return link.WrapContext(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (l *Link) Connect(ctx context.Context) error {
	if err := l.drone.Connect(ctx, l.opts.Drone); err != nil {
		if errors.Is(err, tello.ErrAlreadyConnected) {
			return nil
		}
		return fmt.Errorf("connect %s: %w: %w", l.opts.Drone.Addr, link.ErrConnection, err)
	}
	l.drone.SetSportsMode(l.opts.Sports)
	return nil
}

// SetSpeed sets the autopilot throttle, as a percentage of full stick.
func (l *Link) SetSpeed(ctx context.Context, limit int) error {
	if !l.drone.ControlConnected() {
		return classify("set speed", tello.ErrNotConnected)
	}
	if limit < 1 || limit > 100 {
		return fmt.Errorf("set speed %d: %w", limit, link.ErrCommandRejected)
	}
	l.drone.SetAutopilotThrottle(limit)
	return nil
}

func (l *Link) StreamOn(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping != nil {
		return nil
	}
	if l.opts.NewDecoder == nil {
		return errors.New("streamon: no video decoder configured")
	}
	if err := l.drone.SetVideoBitrate(l.opts.Bitrate); err != nil {
		return classify("streamon", err)
	}
	mode := l.drone.SetVideoNormal
	if l.opts.Wide {
		mode = l.drone.SetVideoWide
	}
	if err := mode(); err != nil {
		return classify("streamon", err)
	}

	dec, err := l.opts.NewDecoder(l.publish)
	if err != nil {
		return fmt.Errorf("streamon: %w", err)
	}
	chunks, err := l.drone.VideoConnect(l.opts.Drone.VideoPort)
	if err != nil {
		dec.Close()
		return fmt.Errorf("streamon: %w", err)
	}
	if err := l.drone.StartVideo(); err != nil {
		l.drone.VideoDisconnect()
		dec.Close()
		return classify("streamon", err)
	}

	l.dec = dec
	l.stopping = make(chan struct{})
	l.wg.Add(2)
	go l.pump(chunks, dec)
	go l.requestKeyFrames(l.stopping)
	return nil
}

// pump feeds the decoder until the driver closes chunks.
func (l *Link) pump(chunks <-chan []byte, dec Decoder) {
	defer l.wg.Done()
	var failed int
	for chunk := range chunks {
		if err := dec.Write(chunk); err != nil {
			failed++
			if failed == 1 || failed%100 == 0 {
				l.log.Warn().Err(err).Int("failures", failed).Msg("Video decoder rejected data")
			}
		}
	}
}

func (l *Link) requestKeyFrames(stop chan struct{}) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.opts.SPSInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.drone.StartVideo(); err != nil {
				l.log.Debug().Err(err).Msg("SPS/PPS request failed")
			}
		}
	}
}

// publish is the decoder callback.
func (l *Link) publish(data []byte, width, height int) {
	f, err := link.FrameFromRGB(data, width, height, link.RGB, l.frameSeq.Add(1), time.Now())
	if err != nil {
		l.log.Warn().Err(err).Msg("Discarding decoded picture")
		return
	}
	l.frames.Publish(f)
}

func (l *Link) StreamOff(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping == nil {
		return nil
	}
	close(l.stopping)
	l.drone.VideoDisconnect()
	l.wg.Wait()
	err := l.dec.Close()
	l.stopping, l.dec = nil, nil
	if err != nil {
		return fmt.Errorf("streamoff: %w", err)
	}
	return nil
}

func (l *Link) Frame() (link.Frame, bool) {
	f, _, ok := l.frames.Load()
	return f, ok
}

func (l *Link) Battery() int {
	return int(l.drone.GetFlightData().BatteryPercentage)
}

func (l *Link) Telemetry() link.Telemetry {
	fd := l.drone.GetFlightData()
	return link.Telemetry{
		Battery:  int(fd.BatteryPercentage),
		HeightCM: int(fd.Height) * 10,
		Yaw:      int(fd.IMU.Yaw),
		Flying:   fd.Flying,
	}
}

func (l *Link) Takeoff(ctx context.Context) error {
	return classify("takeoff", l.drone.TakeOff(ctx))
}

func (l *Link) Land(ctx context.Context) error {
	return classify("land", l.drone.Land(ctx))
}

func (l *Link) SendVelocity(v link.Velocity) error {
	if err := l.drone.SetVelocity(v.LeftRight, v.ForwardBack, v.UpDown, v.Yaw); err != nil {
		return fmt.Errorf("velocity: %w: %w", link.ErrTransientSend, err)
	}
	return nil
}

func (l *Link) checkMove(op string, cm int) error {
	if cm < l.opts.MinMoveCM || (l.opts.MaxMoveCM > 0 && cm > l.opts.MaxMoveCM) {
		return fmt.Errorf("%s %dcm: %w: outside %d..%d", op, cm, link.ErrCommandRejected, l.opts.MinMoveCM, l.opts.MaxMoveCM)
	}
	return nil
}

// MoveUp climbs cm centimetres, to the nearest decimetre.
func (l *Link) MoveUp(ctx context.Context, cm int) error {
	if err := l.checkMove("move up", cm); err != nil {
		return err
	}
	target := targetHeight(l.drone.GetFlightData().Height, cm)
	return classify("move up", l.drone.FlyToHeight(ctx, target))
}

// MoveDown descends cm centimetres, stopping at ground level.
func (l *Link) MoveDown(ctx context.Context, cm int) error {
	if err := l.checkMove("move down", cm); err != nil {
		return err
	}
	target := targetHeight(l.drone.GetFlightData().Height, -cm)
	return classify("move down", l.drone.FlyToHeight(ctx, target))
}

func targetHeight(currentDM int16, deltaCM int) int16 {
	target := int(currentDM) + (deltaCM+sign(deltaCM)*5)/10
	if target < 0 {
		target = 0
	}
	return int16(target)
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	return 1
}

func (l *Link) RotateClockwise(ctx context.Context, deg int) error {
	if deg < 1 || deg > 360 {
		return fmt.Errorf("rotate %d: %w", deg, link.ErrCommandRejected)
	}
	return classify("rotate", l.drone.TurnBy(ctx, deg))
}

// Disconnect stops the video stream and the control connection.
func (l *Link) Disconnect() error {
	err := l.StreamOff(context.Background())
	l.drone.ControlDisconnect()
	return err
}
