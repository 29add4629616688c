// manual.go

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
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/SMerrony/tellopilot/internal/display"
	"github.com/SMerrony/tellopilot/internal/overlay"
	"github.com/SMerrony/tellopilot/internal/session"
	"github.com/SMerrony/tellopilot/internal/snapshot"
	"github.com/SMerrony/tellopilot/internal/status"
)

func manualCommand(c *cli.Context) error {
	cfg, err := loadConfig(c.GlobalString("config"), c, c.GlobalString("log-level"))
	if err != nil {
		return err
	}
	start := time.Now()
	sessionID := uuid.New().String()
	logs, err := setupLogging(cfg, sessionID, status.ModeManual, start)
	if err != nil {
		return err
	}
	defer logs.Close()
	log := logs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := newVehicle(log, cfg)
	svc := startServices(ctx, log, cfg, sessionInfo{
		ID:      sessionID,
		Mode:    status.ModeManual,
		Vehicle: cfg.Link.Kind,
		Dir:     cfg.Output.Dir,
		Prefix:  cfg.Output.Prefix,
		Params:  cfg.Control,
	})

	opts := session.DefaultOptions()
	opts.SessionID = sessionID
	opts.Dir = cfg.Output.Dir
	opts.Prefix = cfg.Output.Prefix
	opts.TickHz = cfg.Control.TickHz
	opts.Speed = cfg.Control.Speed
	opts.LinkSpeed = cfg.Control.LinkSpeed
	opts.MaxSendFailures = cfg.Control.MaxSendFailures
	opts.ConnectTimeout = cfg.Link.ConnectTimeout
	opts.Overlay = overlay.Options{Rotate: cfg.Overlay.Rotate, FlipVertical: cfg.Overlay.FlipVertical}

	w, h := cfg.Video.Width, cfg.Video.Height
	if cfg.Overlay.Rotate == 90 || cfg.Overlay.Rotate == 270 {
		w, h = h, w
	}
	win := display.New(log, display.Options{Title: "tellopilot " + sessionID[:8], Width: w, Height: h})

	deps := session.Deps{
		Vehicle:   v,
		Presenter: win,
		Board:     svc.board,
		OnCapture: func(img snapshot.Image) { svc.recordCapture(img, v.Battery()) },
	}

	// the window must own the main goroutine
	done := make(chan error, 1)
	go func() {
		err := session.RunManual(ctx, log, deps, opts, win)
		win.Close()
		done <- err
	}()

	winErr := win.Run()
	if winErr != nil {
		log.Error().Err(winErr).Msg("Display failed, ending session")
	}
	stop()
	runErr := errors.Join(<-done, winErr)

	outcome := "completed"
	if runErr != nil {
		outcome = "failed"
	}
	return errors.Join(runErr, svc.close(outcome, runErr))
}
