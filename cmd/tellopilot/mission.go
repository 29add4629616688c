// mission.go

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

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/SMerrony/tellopilot/internal/config"
	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/internal/mission"
	"github.com/SMerrony/tellopilot/internal/snapshot"
	"github.com/SMerrony/tellopilot/internal/status"
)

// missionStatus mirrors sequencer progress onto the status board.
type missionStatus struct {
	session string
	vehicle link.Vehicle
	board   *status.Board

	mu        sync.Mutex
	state     mission.State
	snapshots int
	last      string
	lastErr   string
}

func (m *missionStatus) transition(from, to mission.State) {
	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
	m.publish()
}

func (m *missionStatus) captured(img snapshot.Image) {
	m.mu.Lock()
	m.snapshots++
	m.last = img.Path
	m.mu.Unlock()
	m.publish()
}

func (m *missionStatus) failed(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.publish()
}

func (m *missionStatus) publish() {
	m.mu.Lock()
	snap := status.Snapshot{
		Session:      m.session,
		Mode:         status.ModeMission,
		State:        m.state.String(),
		Armed:        m.state == mission.Airborne || m.state == mission.Capturing || m.state == mission.Descending,
		Telemetry:    link.ReadTelemetry(m.vehicle),
		Snapshots:    m.snapshots,
		LastSnapshot: m.last,
		LastError:    m.lastErr,
	}
	m.mu.Unlock()
	m.board.Publish(snap)
}

func missionOptions(cfg *config.Config, v link.Vehicle) mission.Options {
	mcfg := mission.DefaultConfig()
	mcfg.PrimitiveTimeout = cfg.Mission.PrimitiveTimeout
	mcfg.LandingTimeout = cfg.Mission.LandingTimeout
	mcfg.ConnectTimeout = cfg.Link.ConnectTimeout
	mcfg.FirstFrameTimeout = cfg.Mission.FirstFrameTimeout
	mcfg.CaptureRetries = cfg.Mission.CaptureRetries
	mcfg.CaptureRetryDelay = cfg.Mission.CaptureRetryDelay
	mcfg.Speed = cfg.Control.LinkSpeed
	return mission.Options{
		Dir:    cfg.Output.Dir,
		Prefix: cfg.Output.Prefix,
		Params: mission.Params{
			Height: cfg.Mission.Height,
			Angle:  cfg.Mission.Angle,
			Repeat: cfg.Mission.Repeat,
		},
		Config:  mcfg,
		Vehicle: v,
	}
}

func missionCommand(c *cli.Context) error {
	cfg, err := loadConfig(c.GlobalString("config"), c, c.GlobalString("log-level"))
	if err != nil {
		return err
	}
	sessionID := uuid.New().String()
	logs, err := setupLogging(cfg, sessionID, status.ModeMission, time.Now())
	if err != nil {
		return err
	}
	defer logs.Close()
	log := logs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := newVehicle(log, cfg)
	opts := missionOptions(cfg, v)
	svc := startServices(ctx, log, cfg, sessionInfo{
		ID:      sessionID,
		Mode:    status.ModeMission,
		Vehicle: cfg.Link.Kind,
		Dir:     cfg.Output.Dir,
		Prefix:  cfg.Output.Prefix,
		Params:  opts.Params,
	})

	rep, runErr := flyMission(ctx, log, opts, svc, sessionID)
	outcome := rep.State.String()
	if runErr != nil && !rep.State.Terminal() {
		outcome = "failed"
	}
	return errors.Join(runErr, svc.close(outcome, runErr))
}

// flyMission runs the mission with its progress wired to the services.
func flyMission(ctx context.Context, log zerolog.Logger, opts mission.Options, svc *services, sessionID string) (mission.Report, error) {
	ms := &missionStatus{session: sessionID, vehicle: opts.Vehicle, board: svc.board}
	opts.OnTransition = func(from, to mission.State) {
		svc.recordTransition(from.String(), to.String())
		ms.transition(from, to)
	}
	opts.OnCapture = func(img snapshot.Image) {
		svc.recordCapture(img, opts.Vehicle.Battery())
		ms.captured(img)
	}

	rep, err := mission.Run(ctx, log, opts)
	if err != nil {
		ms.failed(err)
		var stepErr *mission.StepError
		if errors.As(err, &stepErr) {
			log.Error().Err(err).Str("step", stepErr.Step.String()).Str("kind", stepErr.Kind.String()).
				Bool("landed", rep.Landed).Msg("Mission aborted")
		} else {
			log.Error().Err(err).Msg("Mission failed")
		}
		return rep, err
	}
	log.Info().Int("images", len(rep.Images)).Ints("skipped", rep.Skipped).
		Dur("duration", rep.Finished.Sub(rep.Started)).Msg("Mission complete")
	return rep, nil
}
