// services.go

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
	"sync"

	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/api"
	"github.com/SMerrony/tellopilot/internal/catalog"
	"github.com/SMerrony/tellopilot/internal/config"
	"github.com/SMerrony/tellopilot/internal/emitter"
	"github.com/SMerrony/tellopilot/internal/influx"
	"github.com/SMerrony/tellopilot/internal/snapshot"
	"github.com/SMerrony/tellopilot/internal/status"
)

// sessionInfo is recorded with the catalog session row.
type sessionInfo struct {
	ID      string
	Mode    string
	Vehicle string
	Dir     string
	Prefix  string
	Params  interface{}
}

// services are the optional observers of a flight. Each one that fails to
// start is logged and left out; the flight goes ahead regardless.
type services struct {
	log     zerolog.Logger
	board   *status.Board
	catalog *catalog.Catalog
	influx  *influx.Exporter
	mqtt    *emitter.MQTTEmitter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startServices(ctx context.Context, log zerolog.Logger, cfg *config.Config, info sessionInfo) *services {
	ctx, cancel := context.WithCancel(ctx)
	s := &services{
		log:    log,
		board:  status.NewBoard(),
		cancel: cancel,
	}

	if cfg.Catalog.Enabled {
		cat, err := catalog.Open(log, catalog.Config{
			Driver: cfg.Catalog.Driver,
			Path:   cfg.Catalog.Path,
			DSN:    cfg.Catalog.DSN,
		})
		if err == nil {
			if _, err = cat.Begin(info.ID, info.Mode, info.Vehicle, info.Dir, info.Prefix, info.Params); err != nil {
				cat.Close()
			}
		}
		if err != nil {
			log.Warn().Err(err).Msg("Capture catalog disabled")
		} else {
			s.catalog = cat
			s.goRun(func() { cat.Run(ctx) })
		}
	}

	if cfg.Influx.Enabled {
		exp := influx.New(log, influx.Config{
			URL:          cfg.Influx.URL,
			Token:        cfg.Influx.Token,
			Org:          cfg.Influx.Org,
			Bucket:       cfg.Influx.Bucket,
			Interval:     cfg.Influx.Interval,
			BackupPath:   cfg.Influx.BackupPath,
			CreateBucket: true,
		}, s.board)
		if err := exp.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("Telemetry export disabled")
		} else {
			s.influx = exp
			s.goRun(func() { exp.Run(ctx) })
		}
	}

	if cfg.MQTT.Enabled {
		em := emitter.NewMQTTEmitter(log, emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: "tellopilot-" + info.ID,
			Topic:    cfg.MQTT.Topic,
			Interval: cfg.MQTT.Interval,
		}, s.board)
		if err := em.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("Status publishing disabled")
		} else {
			s.mqtt = em
			s.goRun(func() { em.Run(ctx) })
		}
	}

	if cfg.API.Enabled {
		var lister api.CaptureLister
		if s.catalog != nil {
			lister = s.catalog
		}
		srv := api.New(log, s.board, lister)
		s.goRun(func() {
			if err := srv.ListenAndServe(ctx, cfg.API.Listen); err != nil {
				log.Error().Err(err).Msg("Status API stopped")
			}
		})
	}
	return s
}

func (s *services) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// recordCapture catalogues a snapshot with the battery level at the time.
func (s *services) recordCapture(img snapshot.Image, battery int) {
	if s.catalog != nil {
		s.catalog.RecordCapture(img, battery)
	}
}

func (s *services) recordTransition(from, to string) {
	if s.catalog != nil {
		s.catalog.RecordTransition(from, to)
	}
}

// close stops the observers after a last sample and stamps the session with
// its outcome.
func (s *services) close(outcome string, cause error) error {
	s.cancel()
	s.wg.Wait()

	var errs []error
	if s.catalog != nil {
		errs = append(errs, s.catalog.End(outcome, cause), s.catalog.Close())
	}
	if s.influx != nil {
		errs = append(errs, s.influx.Close())
	}
	if s.mqtt != nil {
		errs = append(errs, s.mqtt.Disconnect())
	}
	return errors.Join(errs...)
}
