// sequencer.go

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

package mission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/internal/snapshot"
)

const instrumentationName = "github.com/SMerrony/tellopilot/internal/mission"

// Capturer takes one snapshot.
type Capturer interface {
	Capture() (snapshot.Image, error)
}

// Config holds timing and retry settings.
type Config struct {
	PrimitiveTimeout  time.Duration
	LandingTimeout    time.Duration // takeoff, land and the emergency land
	ConnectTimeout    time.Duration
	FirstFrameTimeout time.Duration
	CaptureRetries    int
	CaptureRetryDelay time.Duration
	Speed             int // passed to SetSpeed when positive
}

// DefaultConfig returns the timeouts used by the command line tool.
func DefaultConfig() Config {
	return Config{
		PrimitiveTimeout:  20 * time.Second,
		LandingTimeout:    15 * time.Second,
		ConnectTimeout:    5 * time.Second,
		FirstFrameTimeout: 5 * time.Second,
		CaptureRetries:    3,
		CaptureRetryDelay: 250 * time.Millisecond,
	}
}

// StepError reports the step that ended a flight.
type StepError struct {
	Index   int
	Step    Step
	Kind    link.Kind
	Err     error
	LandErr error // from the emergency land, if that failed too
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("mission step %d (%s) failed [%s]: %v", e.Index, e.Step, e.Kind, e.Err)
	if e.LandErr != nil {
		msg += fmt.Sprintf("; emergency land failed: %v", e.LandErr)
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// Report summarises a flight.
type Report struct {
	State     State
	Completed int // steps finished successfully; skipped captures are not counted
	Images    []snapshot.Image
	Skipped   []int // capture indices given up on
	Landed    bool  // an emergency land was acknowledged
	Started   time.Time
	Finished  time.Time
}

// Sequencer runs a Plan against a vehicle. It is single use.
type Sequencer struct {
	log      zerolog.Logger
	vehicle  link.Vehicle
	capturer Capturer
	plan     Plan
	cfg      Config

	mu          sync.Mutex
	state       State
	transitions []func(from, to State)
	ran         bool

	steps metric.Int64Counter
}

// NewSequencer returns an idle Sequencer.
func NewSequencer(log zerolog.Logger, v link.Vehicle, c Capturer, plan Plan, cfg Config) (*Sequencer, error) {
	if plan.Len() == 0 {
		return nil, fmt.Errorf("mission: empty plan")
	}
	s := &Sequencer{
		log:      log.With().Str("component", "mission").Logger(),
		vehicle:  v,
		capturer: c,
		plan:     plan,
		cfg:      cfg,
	}
	var err error
	s.steps, err = otel.Meter(instrumentationName).Int64Counter(
		"mission.steps",
		metric.WithDescription("Mission steps run, by kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}
	return s, nil
}

// OnTransition registers fn to be called on every state change, from the
// goroutine running Fly.
func (s *Sequencer) OnTransition(fn func(from, to State)) {
	s.mu.Lock()
	s.transitions = append(s.transitions, fn)
	s.mu.Unlock()
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) setState(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	fns := append([]func(from, to State){}, s.transitions...)
	s.mu.Unlock()

	s.log.Info().Stringer("from", from).Stringer("to", to).Msg("Mission state changed")
	for _, fn := range fns {
		fn(from, to)
	}
}

// Fly connects, runs every step in order and disconnects. If a flight step
// fails the sequencer lands once and returns a *StepError; the failed step is
// never retried. Failed captures are retried and then skipped.
func (s *Sequencer) Fly(ctx context.Context) (Report, error) {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return Report{}, fmt.Errorf("mission: sequencer already used")
	}
	s.ran = true
	s.mu.Unlock()

	rep := Report{Started: time.Now()}
	defer s.shutdown()

	if err := s.connect(ctx); err != nil {
		s.setState(Aborted)
		rep.State, rep.Finished = Aborted, time.Now()
		return rep, err
	}
	s.setState(Connected)
	s.startVideo(ctx)

	for i := 0; i < s.plan.Len(); i++ {
		step := s.plan.Step(i)
		s.setState(entering(s.State(), step.Kind))

		if !step.flies() {
			img, err := s.captureWithRetry(ctx, step)
			if err == nil {
				rep.Images = append(rep.Images, img)
				rep.Completed++
				continue
			}
			if ctx.Err() == nil {
				rep.Skipped = append(rep.Skipped, step.Arg)
				continue
			}
			// cancelled while capturing: treat like a failed flight step
			return s.abort(rep, i, step, link.WrapContext(step.String(), ctx.Err()))
		}

		if err := s.run(ctx, step); err != nil {
			s.count(step, link.Classify(err).String())
			return s.abort(rep, i, step, err)
		}
		s.count(step, "ok")
		rep.Completed++
		s.setState(completed(s.State(), step.Kind))
	}

	rep.State, rep.Finished = s.State(), time.Now()
	s.log.Info().
		Int("images", len(rep.Images)).
		Ints("skipped", rep.Skipped).
		Dur("took", rep.Finished.Sub(rep.Started)).
		Msg("Mission complete")
	return rep, nil
}

func (s *Sequencer) connect(ctx context.Context) error {
	cctx, cancel := withTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := s.vehicle.Connect(cctx); err != nil {
		s.log.Error().Err(err).Msg("Could not connect, mission not started")
		return fmt.Errorf("mission: %w", err)
	}
	if s.cfg.Speed > 0 {
		if err := s.vehicle.SetSpeed(cctx, s.cfg.Speed); err != nil {
			s.log.Warn().Err(err).Int("speed", s.cfg.Speed).Msg("Could not set speed")
		}
	}
	return nil
}

// startVideo turns the stream on and waits, within reason, for a first frame.
func (s *Sequencer) startVideo(ctx context.Context) {
	cctx, cancel := withTimeout(ctx, s.cfg.PrimitiveTimeout)
	defer cancel()
	if err := s.vehicle.StreamOn(cctx); err != nil {
		s.log.Warn().Err(err).Msg("Video stream not started, captures will fail")
		return
	}
	if s.cfg.FirstFrameTimeout <= 0 {
		return
	}
	deadline := time.NewTimer(s.cfg.FirstFrameTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()
	for {
		if _, ok := s.vehicle.Frame(); ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			s.log.Warn().Dur("waited", s.cfg.FirstFrameTimeout).Msg("No video frame yet")
			return
		case <-poll.C:
		}
	}
}

func (s *Sequencer) run(ctx context.Context, step Step) error {
	timeout := s.cfg.PrimitiveTimeout
	if step.Kind == StepTakeoff || step.Kind == StepLand {
		timeout = s.cfg.LandingTimeout
	}
	sctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var err error
	switch step.Kind {
	case StepTakeoff:
		err = s.vehicle.Takeoff(sctx)
	case StepLand:
		err = s.vehicle.Land(sctx)
	case StepMoveUp:
		err = s.vehicle.MoveUp(sctx, step.Arg)
	case StepMoveDown:
		err = s.vehicle.MoveDown(sctx, step.Arg)
	case StepRotate:
		err = s.vehicle.RotateClockwise(sctx, step.Arg)
	default:
		err = fmt.Errorf("unknown step %s", step)
	}
	s.log.Debug().Stringer("step", step).Dur("took", time.Since(start)).Err(err).Msg("Step finished")
	return err
}

func (s *Sequencer) captureWithRetry(ctx context.Context, step Step) (snapshot.Image, error) {
	var err error
	for attempt := 0; attempt <= s.cfg.CaptureRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(s.cfg.CaptureRetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return snapshot.Image{}, ctx.Err()
			case <-t.C:
			}
		}
		var img snapshot.Image
		img, err = s.capturer.Capture()
		if err == nil {
			s.count(step, "ok")
			return img, nil
		}
	}
	s.count(step, "skipped")
	s.log.Error().Err(err).Int("index", step.Arg).Int("attempts", s.cfg.CaptureRetries+1).Msg("Capture skipped")
	return snapshot.Image{}, err
}

// abort lands once, unless the failed step was the land itself.
func (s *Sequencer) abort(rep Report, index int, step Step, err error) (Report, error) {
	s.setState(Aborted)
	se := &StepError{Index: index, Step: step, Kind: link.Classify(err), Err: err}
	s.log.Error().Err(err).Int("index", index).Stringer("step", step).Str("kind", se.Kind.String()).Msg("Mission aborted")

	if step.Kind != StepLand {
		lctx, cancel := context.WithTimeout(context.Background(), s.cfg.LandingTimeout)
		defer cancel()
		if lerr := s.vehicle.Land(lctx); lerr != nil {
			se.LandErr = lerr
			s.log.Error().Err(lerr).Msg("Emergency land failed")
		} else {
			rep.Landed = true
			s.log.Warn().Msg("Emergency land complete")
		}
	}
	rep.State, rep.Finished = Aborted, time.Now()
	return rep, se
}

// shutdown stops the stream and disconnects, whatever happened.
func (s *Sequencer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.vehicle.StreamOff(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Stream off failed")
	}
	if err := s.vehicle.Disconnect(); err != nil {
		s.log.Warn().Err(err).Msg("Disconnect failed")
	}
}

func (s *Sequencer) count(step Step, outcome string) {
	s.steps.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("step", step.Kind.String()),
		attribute.String("outcome", outcome),
	))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
