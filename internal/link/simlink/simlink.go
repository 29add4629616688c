// simlink.go

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

// Package simlink is a simulated vehicle. It flies instantly (or at a
// configured pace), streams synthetic pictures and can be told to fail.
package simlink

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/latest"
	"github.com/SMerrony/tellopilot/internal/link"
)

// Operation names used by Fail and recorded by Calls.
const (
	OpConnect    = "connect"
	OpSetSpeed   = "set_speed"
	OpStreamOn   = "streamon"
	OpStreamOff  = "streamoff"
	OpTakeoff    = "takeoff"
	OpLand       = "land"
	OpVelocity   = "velocity"
	OpMoveUp     = "move_up"
	OpMoveDown   = "move_down"
	OpRotate     = "rotate_cw"
	OpDisconnect = "disconnect"
)

// Options tune the simulation.
type Options struct {
	Width, Height int
	Order         link.ChannelOrder
	FrameInterval time.Duration
	// StepDelay is how long each blocking primitive takes.
	StepDelay time.Duration
	Battery   int
}

// DefaultOptions returns a 960x720 BGR stream at 30 fps with instant primitives.
func DefaultOptions() Options {
	return Options{
		Width:         960,
		Height:        720,
		Order:         link.BGR,
		FrameInterval: time.Second / 30,
		Battery:       87,
	}
}

type fault struct {
	err error
	nth int // fail only the nth call, 0 for every call
}

// Vehicle implements link.Vehicle.
type Vehicle struct {
	log  zerolog.Logger
	opts Options

	mu         sync.Mutex
	connected  bool
	flying     bool
	speed      int
	heightCM   int
	yaw        int
	battery    int
	calls      []string
	counts     map[string]int
	faults     map[string]fault
	velocities []link.Velocity
	stream     chan struct{}

	frames latest.Cell[link.Frame]
	wg     sync.WaitGroup
}

var _ link.Vehicle = (*Vehicle)(nil)

// New returns a disconnected simulated vehicle.
func New(log zerolog.Logger, opts Options) *Vehicle {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 960, 720
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = time.Second / 30
	}
	return &Vehicle{
		log:     log.With().Str("component", "simlink").Logger(),
		opts:    opts,
		battery: opts.Battery,
		counts:  make(map[string]int),
		faults:  make(map[string]fault),
	}
}

// Fail makes every later call of op return err, until Clear is called.
func (v *Vehicle) Fail(op string, err error) {
	v.mu.Lock()
	v.faults[op] = fault{err: err}
	v.mu.Unlock()
}

// FailNth makes only the nth call (counting from 1, including calls already
// made) of op return err.
func (v *Vehicle) FailNth(op string, n int, err error) {
	v.mu.Lock()
	v.faults[op] = fault{err: err, nth: n}
	v.mu.Unlock()
}

// Clear removes any fault set for op.
func (v *Vehicle) Clear(op string) {
	v.mu.Lock()
	delete(v.faults, op)
	v.mu.Unlock()
}

// Calls returns the primitives invoked so far, in order. Velocity commands
// are not included, see Velocities.
func (v *Vehicle) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// Velocities returns every velocity command accepted so far.
func (v *Vehicle) Velocities() []link.Velocity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]link.Velocity(nil), v.velocities...)
}

// Count returns how many times op has been called, including failed calls.
func (v *Vehicle) Count(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[op]
}

// enter records a call to op and returns its injected fault, if any.
// v.mu must be held.
func (v *Vehicle) enter(op, detail string) error {
	v.counts[op]++
	if detail != "" {
		v.calls = append(v.calls, op+" "+detail)
	} else {
		v.calls = append(v.calls, op)
	}
	f, ok := v.faults[op]
	if !ok || (f.nth != 0 && f.nth != v.counts[op]) {
		return nil
	}
	return f.err
}

// begin is enter for primitives that need a connection.
func (v *Vehicle) begin(op, detail string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.enter(op, detail); err != nil {
		return err
	}
	if !v.connected {
		return fmt.Errorf("%s: %w: not connected", op, link.ErrConnection)
	}
	return nil
}

func (v *Vehicle) pace(ctx context.Context, op string) error {
	if v.opts.StepDelay <= 0 {
		if err := ctx.Err(); err != nil {
			return link.WrapContext(op, err)
		}
		return nil
	}
	t := time.NewTimer(v.opts.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return link.WrapContext(op, ctx.Err())
	case <-t.C:
		return nil
	}
}

func (v *Vehicle) Connect(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.enter(OpConnect, ""); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("connect: %w: %w", link.ErrConnection, err)
	}
	v.connected = true
	v.log.Info().Msg("Simulated vehicle connected")
	return nil
}

func (v *Vehicle) SetSpeed(ctx context.Context, limit int) error {
	if err := v.begin(OpSetSpeed, fmt.Sprint(limit)); err != nil {
		return err
	}
	if limit < 1 || limit > 100 {
		return fmt.Errorf("speed %d: %w", limit, link.ErrCommandRejected)
	}
	v.mu.Lock()
	v.speed = limit
	v.mu.Unlock()
	return nil
}

func (v *Vehicle) StreamOn(ctx context.Context) error {
	if err := v.begin(OpStreamOn, ""); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream != nil {
		return nil
	}
	v.stream = make(chan struct{})
	v.wg.Add(1)
	go v.generate(v.stream)
	return nil
}

func (v *Vehicle) StreamOff(ctx context.Context) error {
	if err := v.begin(OpStreamOff, ""); err != nil {
		return err
	}
	v.stopStream()
	return nil
}

func (v *Vehicle) stopStream() {
	v.mu.Lock()
	stream := v.stream
	v.stream = nil
	v.mu.Unlock()
	if stream != nil {
		close(stream)
		v.wg.Wait()
	}
}

// generate publishes a picture every FrameInterval until stop is closed.
func (v *Vehicle) generate(stop chan struct{}) {
	defer v.wg.Done()
	ticker := time.NewTicker(v.opts.FrameInterval)
	defer ticker.Stop()
	var seq uint64
	for {
		seq++
		v.frames.Publish(v.render(seq))
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// render draws a gradient whose hue follows the simulated heading.
func (v *Vehicle) render(seq uint64) link.Frame {
	v.mu.Lock()
	yaw, height := v.yaw, v.heightCM
	v.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, v.opts.Width, v.opts.Height))
	shade := uint8((yaw + 180) * 255 / 360)
	for y := 0; y < v.opts.Height; y++ {
		g := uint8(y * 255 / v.opts.Height)
		for x := 0; x < v.opts.Width; x++ {
			c := color.RGBA{R: shade, G: g, B: uint8(height), A: 0xff}
			if v.opts.Order == link.BGR {
				c.R, c.B = c.B, c.R
			}
			img.SetRGBA(x, y, c)
		}
	}
	return link.Frame{Image: img, Order: v.opts.Order, Seq: seq, CapturedAt: time.Now()}
}

// Frame returns the newest synthetic picture.
func (v *Vehicle) Frame() (link.Frame, bool) {
	f, _, ok := v.frames.Load()
	return f, ok
}

func (v *Vehicle) Battery() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.battery
}

// Telemetry implements link.TelemetrySource.
func (v *Vehicle) Telemetry() link.Telemetry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return link.Telemetry{Battery: v.battery, HeightCM: v.heightCM, Yaw: v.yaw, Flying: v.flying}
}

func (v *Vehicle) Takeoff(ctx context.Context) error {
	if err := v.begin(OpTakeoff, ""); err != nil {
		return err
	}
	if err := v.pace(ctx, OpTakeoff); err != nil {
		return err
	}
	v.mu.Lock()
	v.flying = true
	v.heightCM = 80
	v.drain()
	v.mu.Unlock()
	return nil
}

func (v *Vehicle) Land(ctx context.Context) error {
	if err := v.begin(OpLand, ""); err != nil {
		return err
	}
	if err := v.pace(ctx, OpLand); err != nil {
		return err
	}
	v.mu.Lock()
	v.flying = false
	v.heightCM = 0
	v.mu.Unlock()
	return nil
}

func (v *Vehicle) SendVelocity(cmd link.Velocity) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[OpVelocity]++
	if f, ok := v.faults[OpVelocity]; ok && (f.nth == 0 || f.nth == v.counts[OpVelocity]) {
		return f.err
	}
	if !v.connected {
		return fmt.Errorf("velocity: %w: not connected", link.ErrTransientSend)
	}
	v.velocities = append(v.velocities, cmd)
	return nil
}

func (v *Vehicle) MoveUp(ctx context.Context, cm int) error {
	return v.move(ctx, OpMoveUp, cm, func() { v.heightCM += cm })
}

func (v *Vehicle) MoveDown(ctx context.Context, cm int) error {
	return v.move(ctx, OpMoveDown, cm, func() {
		v.heightCM -= cm
		if v.heightCM < 0 {
			v.heightCM = 0
		}
	})
}

func (v *Vehicle) RotateClockwise(ctx context.Context, deg int) error {
	return v.move(ctx, OpRotate, deg, func() {
		v.yaw = ((v.yaw+deg)%360+540)%360 - 180
	})
}

func (v *Vehicle) move(ctx context.Context, op string, amount int, apply func()) error {
	if err := v.begin(op, fmt.Sprint(amount)); err != nil {
		return err
	}
	v.mu.Lock()
	flying := v.flying
	v.mu.Unlock()
	if !flying {
		return fmt.Errorf("%s: %w: not flying", op, link.ErrCommandRejected)
	}
	if amount <= 0 {
		return fmt.Errorf("%s %d: %w", op, amount, link.ErrCommandRejected)
	}
	if err := v.pace(ctx, op); err != nil {
		return err
	}
	v.mu.Lock()
	apply()
	v.drain()
	v.mu.Unlock()
	return nil
}

// drain uses one percent of battery per primitive. v.mu must be held.
func (v *Vehicle) drain() {
	if v.battery > 0 {
		v.battery--
	}
}

func (v *Vehicle) Disconnect() error {
	v.mu.Lock()
	err := v.enter(OpDisconnect, "")
	v.connected = false
	v.mu.Unlock()
	v.stopStream()
	return err
}
