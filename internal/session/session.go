// session.go

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

// Package session runs manual flight: one cooperative loop reading key
// events, sending stick commands at a fixed rate and showing annotated video.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/SMerrony/tellopilot/internal/control"
	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/internal/logging"
	"github.com/SMerrony/tellopilot/internal/overlay"
	"github.com/SMerrony/tellopilot/internal/snapshot"
	"github.com/SMerrony/tellopilot/internal/status"
)

// Input hands over the key events received since the last call, without waiting.
type Input interface {
	Events() []control.KeyEvent
}

// Options configure a manual session.
type Options struct {
	SessionID       string
	Dir             string
	Prefix          string
	TickHz          int
	Speed           int // stick deflection per key, percent
	LinkSpeed       int // passed to SetSpeed at start
	MaxSendFailures int
	Keymap          control.Keymap
	Overlay         overlay.Options
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration // takeoff, which runs off the loop
	LandTimeout     time.Duration
}

// DefaultOptions: 30 Hz, 30% sticks, link speed 10.
func DefaultOptions() Options {
	return Options{
		Dir:             ".",
		Prefix:          "img",
		TickHz:          30,
		Speed:           30,
		LinkSpeed:       10,
		MaxSendFailures: control.DefaultMaxSendFailures,
		ConnectTimeout:  5 * time.Second,
		CommandTimeout:  15 * time.Second,
		LandTimeout:     15 * time.Second,
	}
}

// Deps are the session's collaborators.
type Deps struct {
	Vehicle   link.Vehicle
	Presenter overlay.Presenter
	Fs        afero.Fs      // defaults to the OS filesystem
	Board     *status.Board // optional
	OnCapture func(snapshot.Image)
}

// Session owns the control state of one manual flight.
type Session struct {
	log     zerolog.Logger
	opts    Options
	vehicle link.Vehicle
	board   *status.Board

	state      *control.State
	translator *control.Translator
	dispatcher *control.Dispatcher
	renderer   *overlay.Renderer
	capturer   *snapshot.Capturer

	period    time.Duration
	lastTick  time.Time
	takenOff  bool // a takeoff was attempted and not followed by a successful land
	snapshots int
	lastImage string
	lastErr   error
	frameSeq  uint64

	// takeoff runs off the loop; its result is collected by a later Step
	takeoffDone    chan takeoffResult
	takeoffPending bool
	lands          int // land attempts so far, to spot a land racing a takeoff

	closeOnce sync.Once
	closeErr  error
}

type takeoffResult struct {
	err   error
	lands int // lands when the takeoff was sent
}

// New wires a session together. Nothing is sent to the vehicle until Start.
func New(log zerolog.Logger, deps Deps, opts Options) (*Session, error) {
	if deps.Vehicle == nil || deps.Presenter == nil {
		return nil, errors.New("session: vehicle and presenter are required")
	}
	if opts.TickHz <= 0 {
		return nil, fmt.Errorf("session: tick rate must be positive, got %d", opts.TickHz)
	}
	if opts.Speed < 1 || opts.Speed > 100 {
		return nil, fmt.Errorf("session: speed must be 1..100, got %d", opts.Speed)
	}
	fs := deps.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	board := deps.Board
	if board == nil {
		board = status.NewBoard()
	}

	s := &Session{
		log:     log.With().Str("component", "session").Logger(),
		opts:    opts,
		vehicle: deps.Vehicle,
		board:   board,
		state:   control.NewState(opts.Speed),
		period:  time.Second / time.Duration(opts.TickHz),

		takeoffDone: make(chan takeoffResult, 1),
	}

	var err error
	if s.capturer, err = snapshot.New(log, fs, deps.Vehicle, snapshot.Options{Dir: opts.Dir, Prefix: opts.Prefix}); err != nil {
		return nil, err
	}
	if deps.OnCapture != nil {
		s.capturer.OnCapture(deps.OnCapture)
	}
	s.translator = control.NewTranslator(log, s.state, opts.Keymap, s.snapshot)
	if s.dispatcher, err = control.NewDispatcher(logging.Sampled(log), deps.Vehicle, opts.MaxSendFailures); err != nil {
		return nil, err
	}
	if s.renderer, err = overlay.New(log, deps.Vehicle, deps.Presenter, opts.Overlay); err != nil {
		return nil, err
	}
	return s, nil
}

// Board returns the board status snapshots are published on.
func (s *Session) Board() *status.Board {
	return s.board
}

// Start connects, sets the link speed and restarts the video stream.
// A connection failure is returned; the rest is only logged.
func (s *Session) Start(ctx context.Context) error {
	cctx, cancel := withTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	if err := s.vehicle.Connect(cctx); err != nil {
		s.lastErr = err
		s.publish()
		return fmt.Errorf("session: %w", err)
	}
	if s.opts.LinkSpeed > 0 {
		if err := s.vehicle.SetSpeed(cctx, s.opts.LinkSpeed); err != nil {
			s.log.Warn().Err(err).Int("speed", s.opts.LinkSpeed).Msg("Could not set link speed")
		}
	}
	if err := s.vehicle.StreamOff(cctx); err != nil {
		s.log.Debug().Err(err).Msg("Stream off before start failed")
	}
	if err := s.vehicle.StreamOn(cctx); err != nil {
		s.log.Warn().Err(err).Msg("Video stream not started")
	}
	s.log.Info().Int("battery", s.vehicle.Battery()).Msg("Manual session started")
	s.publish()
	return nil
}

// Step runs one loop iteration at time now and reports whether the session
// should end.
func (s *Session) Step(ctx context.Context, now time.Time, events []control.KeyEvent) bool {
	for _, ev := range events {
		s.translator.Handle(ev)
	}
	select {
	case r := <-s.takeoffDone:
		s.finishTakeoff(r)
	default:
	}
	s.handleRequests(ctx)

	if now.Sub(s.lastTick) >= s.period {
		s.lastTick = now
		if err := s.dispatcher.Tick(ctx, s.state); err != nil {
			s.log.Error().Err(err).Msg("Link degraded, landing")
			s.lastErr = err
			s.state.Armed = false
			s.state.Velocity = link.Velocity{}
			s.land(ctx)
		}
	}

	if s.renderer.Render() {
		s.frameSeq, _ = s.renderer.Shown()
	}
	s.publish()
	return s.state.Terminate || ctx.Err() != nil
}

func (s *Session) handleRequests(ctx context.Context) {
	if s.state.TakeoffRequested {
		s.state.TakeoffRequested = false
		if s.takeoffPending {
			s.log.Debug().Msg("Takeoff already in progress")
		} else {
			s.takeoffPending = true
			s.takenOff = true
			lands := s.lands
			go func() {
				tctx, cancel := withTimeout(ctx, s.opts.CommandTimeout)
				defer cancel()
				s.takeoffDone <- takeoffResult{err: s.vehicle.Takeoff(tctx), lands: lands}
			}()
		}
	}
	if s.state.LandRequested {
		s.state.LandRequested = false
		s.land(ctx)
	}
}

// finishTakeoff arms on an acknowledged takeoff, unless a land was asked for
// while it was in flight.
func (s *Session) finishTakeoff(r takeoffResult) {
	s.takeoffPending = false
	switch {
	case r.err != nil:
		s.lastErr = r.err
		s.log.Error().Err(r.err).Str("kind", link.Classify(r.err).String()).Msg("Takeoff failed")
	case r.lands != s.lands || s.state.LandRequested:
		s.log.Warn().Msg("Takeoff acknowledged after a land request, staying disarmed")
	default:
		s.state.Armed = true
		s.log.Info().Msg("Airborne, sticks live")
	}
}

// land lands with its own deadline, even if ctx has ended.
func (s *Session) land(ctx context.Context) error {
	s.lands++
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.LandTimeout)
	defer cancel()
	err := s.vehicle.Land(lctx)
	if err != nil {
		s.lastErr = err
		s.log.Error().Err(err).Str("kind", link.Classify(err).String()).Msg("Land failed")
		return err
	}
	s.takenOff = false
	s.log.Info().Msg("Landed")
	return nil
}

func (s *Session) snapshot() {
	img, err := s.capturer.Capture()
	if err != nil {
		s.lastErr = err
		return
	}
	s.snapshots++
	s.lastImage = img.Path
}

func (s *Session) publish() {
	snap := status.Snapshot{
		Session:      s.opts.SessionID,
		Mode:         status.ModeManual,
		State:        "grounded",
		Armed:        s.state.Armed,
		Speed:        s.state.Speed,
		Velocity:     s.state.Velocity,
		Telemetry:    link.ReadTelemetry(s.vehicle),
		Snapshots:    s.snapshots,
		LastSnapshot: s.lastImage,
		FrameSeq:     s.frameSeq,
	}
	if s.state.Armed {
		snap.State = "flying"
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	s.board.Publish(snap)
}

// Run steps the session once per tick until terminated or ctx ends, then
// closes it. Close also runs if a step panics.
func (s *Session) Run(ctx context.Context, in Input) (err error) {
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Session cancelled")
			return nil
		case now := <-ticker.C:
			if s.Step(ctx, now, in.Events()) {
				s.log.Info().Msg("Session terminated by pilot")
				return nil
			}
		}
	}
}

// Close lands if needed, stops the stream and disconnects. Only the first
// call does anything.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.takeoffPending {
			s.finishTakeoff(<-s.takeoffDone)
		}
		s.state.Armed = false
		if s.takenOff {
			s.log.Warn().Msg("Landing before disconnect")
			if err := s.land(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.vehicle.StreamOff(ctx); err != nil {
			s.log.Debug().Err(err).Msg("Stream off failed")
		}
		if err := s.vehicle.Disconnect(); err != nil {
			errs = append(errs, err)
		}
		s.publish()
		s.closeErr = errors.Join(errs...)
		s.log.Info().Int("snapshots", s.snapshots).Msg("Manual session closed")
	})
	return s.closeErr
}

// RunManual starts a session and runs it until the pilot quits or ctx ends.
func RunManual(ctx context.Context, log zerolog.Logger, deps Deps, opts Options, in Input) error {
	s, err := New(log, deps, opts)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return errors.Join(err, s.Close())
	}
	return s.Run(ctx, in)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
