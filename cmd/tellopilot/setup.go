// setup.go

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
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/config"
	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/internal/link/simlink"
	"github.com/SMerrony/tellopilot/internal/link/tellolink"
	"github.com/SMerrony/tellopilot/internal/logging"
	"github.com/SMerrony/tellopilot/internal/video"
	"github.com/SMerrony/tellopilot/tello"
)

// flagSource is the part of *cli.Context used to override config values.
type flagSource interface {
	IsSet(name string) bool
	String(name string) string
	Int(name string) int
	Bool(name string) bool
}

// applyFlags copies the command line flags that were given over cfg.
func applyFlags(cfg *config.Config, fs flagSource, logLevel string) error {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if fs.IsSet("dir") {
		dir, err := homedir.Expand(fs.String("dir"))
		if err != nil {
			return fmt.Errorf("invalid --dir: %w", err)
		}
		cfg.Output.Dir = dir
	}
	if fs.IsSet("prefix") {
		cfg.Output.Prefix = fs.String("prefix")
	}
	if fs.Bool("sim") {
		cfg.Link.Kind = "sim"
	}
	ints := []struct {
		flag string
		dst  *int
	}{
		{"tick-hz", &cfg.Control.TickHz},
		{"speed", &cfg.Control.Speed},
		{"rotate", &cfg.Overlay.Rotate},
		{"height", &cfg.Mission.Height},
		{"angle", &cfg.Mission.Angle},
		{"repeat", &cfg.Mission.Repeat},
	}
	for _, i := range ints {
		if fs.IsSet(i.flag) {
			*i.dst = fs.Int(i.flag)
		}
	}
	return cfg.Validate()
}

// loadConfig reads the config directory given on the command line and
// applies the command's flags.
func loadConfig(dir string, fs flagSource, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, fs, logLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, sessionID, mode string, start time.Time) (*logging.Logs, error) {
	opts := logging.Options{
		Level:   cfg.LogLevel,
		LogsDir: cfg.LogsDir,
		Session: sessionID,
		Mode:    mode,
		Start:   start,
	}
	if cfg.Graylog.Enabled {
		opts.GraylogAddress = cfg.Graylog.Address
	}
	return logging.Setup(opts)
}

// vehicle is a link.Vehicle that also reports telemetry.
type vehicle interface {
	link.Vehicle
	link.TelemetrySource
}

func newVehicle(log zerolog.Logger, cfg *config.Config) vehicle {
	if cfg.Link.Kind == "sim" {
		opts := simlink.DefaultOptions()
		opts.Width, opts.Height = cfg.Video.Width, cfg.Video.Height
		log.Info().Msg("Using simulated vehicle")
		return simlink.New(log, opts)
	}

	opts := tellolink.DefaultOptions()
	opts.Drone = tello.Options{
		Addr:           cfg.Link.Address,
		ControlPort:    cfg.Link.ControlPort,
		LocalPort:      cfg.Link.LocalPort,
		VideoPort:      cfg.Link.VideoPort,
		ConnectTimeout: cfg.Link.ConnectTimeout,
	}
	opts.Bitrate = tello.VBR(cfg.Video.Bitrate)
	opts.Wide = cfg.Video.Wide
	opts.Sports = cfg.Link.Sports
	vcfg := video.Config{Width: cfg.Video.Width, Height: cfg.Video.Height}
	opts.NewDecoder = func(onFrame func(data []byte, width, height int)) (tellolink.Decoder, error) {
		dec, err := video.NewDecoder(log, vcfg, onFrame)
		if err != nil {
			return nil, err
		}
		return dec, nil
	}
	return tellolink.New(log, opts)
}
