// influx.go

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

// Package influx exports flight status as InfluxDB points, falling back to a
// gzipped line-protocol file when the server cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/status"
)

// Measurement is the name of the status points.
const Measurement = "tello_status"

// retention applies to buckets created by the exporter.
const retention = 60 * 60 * 24 * 90 // 90 days

// Config addresses the server.
type Config struct {
	URL          string
	Token        string
	Org          string
	Bucket       string
	Interval     time.Duration
	BackupPath   string
	CreateBucket bool // create Org and Bucket when missing
}

// Exporter samples a status board and writes a point whenever it changed.
type Exporter struct {
	log   zerolog.Logger
	cfg   Config
	board *status.Board

	mu           sync.Mutex
	client       influxdb2.Client
	writer       influxdb2_api.WriteAPI
	backupFile   *os.File
	backupWriter *gzip.Writer
	lastVersion  uint64
	written      int
}

// New returns an Exporter; nothing is contacted until Connect.
func New(log zerolog.Logger, cfg Config, board *status.Board) *Exporter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Exporter{
		log:   log.With().Str("component", "influx").Logger(),
		cfg:   cfg,
		board: board,
	}
}

// Connect pings the server. If it does not answer, points go to the backup
// file instead, which is only an error if that cannot be opened either.
func (e *Exporter) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	client := influxdb2.NewClientWithOptions(
		e.cfg.URL,
		e.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(uint(e.cfg.Interval.Milliseconds())),
	)

	// validate client connection health
	running, err := client.Ping(ctx)
	if err != nil || !running {
		client.Close()
		e.log.Info().Err(err).Str("backupPath", e.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return e.openBackup()
	}

	if e.cfg.CreateBucket {
		if err := e.setupOrganizationAndBucket(ctx, client); err != nil {
			client.Close()
			return err
		}
	}

	e.client = client
	e.writer = client.WriteAPI(e.cfg.Org, e.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			e.log.Error().Err(writeErr).Str("bucket", e.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(e.writer.Errors())
	e.log.Info().Str("url", e.cfg.URL).Str("bucket", e.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (e *Exporter) openBackup() error {
	if e.backupWriter != nil {
		return nil
	}
	if e.cfg.BackupPath == "" {
		return errors.New("influx: server unreachable and no backup path configured")
	}
	file, err := os.OpenFile(e.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("influx: error creating backup file: %w", err)
	}
	e.backupFile = file
	e.backupWriter = gzip.NewWriter(file)
	return nil
}

func (e *Exporter) setupOrganizationAndBucket(ctx context.Context, client influxdb2.Client) error {
	org, err := client.OrganizationsAPI().FindOrganizationByName(ctx, e.cfg.Org)
	if err != nil {
		e.log.Info().Str("org", e.cfg.Org).Msg("Organization not found, creating")
		if org, err = client.OrganizationsAPI().CreateOrganizationWithName(ctx, e.cfg.Org); err != nil {
			return fmt.Errorf("influx: creating organization %s: %w", e.cfg.Org, err)
		}
	}
	if _, err := client.BucketsAPI().FindBucketByName(ctx, e.cfg.Bucket); err != nil {
		e.log.Info().Str("bucket", e.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = client.BucketsAPI().CreateBucketWithName(ctx, org, e.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retention,
		})
		if err != nil {
			return fmt.Errorf("influx: creating bucket %s: %w", e.cfg.Bucket, err)
		}
	}
	return nil
}

// StatusPoint converts a snapshot into a point.
func StatusPoint(s status.Snapshot) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("session", s.Session).
		AddTag("mode", s.Mode).
		AddField("battery", s.Telemetry.Battery).
		AddField("height_cm", s.Telemetry.HeightCM).
		AddField("yaw", s.Telemetry.Yaw).
		AddField("flying", s.Telemetry.Flying).
		AddField("armed", s.Armed).
		AddField("speed", s.Speed).
		AddField("fb", s.Velocity.ForwardBack).
		AddField("lr", s.Velocity.LeftRight).
		AddField("ud", s.Velocity.UpDown).
		AddField("yaw_rate", s.Velocity.Yaw).
		AddField("snapshots", s.Snapshots).
		AddField("frame_seq", s.FrameSeq).
		SetTime(s.UpdatedAt)
	if s.State != "" {
		p.AddTag("state", s.State)
	}
	return p.SortTags().SortFields()
}

// WritePoint queues a point for the server or appends it to the backup file.
func (e *Exporter) WritePoint(point *influxdb2_write.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.writer != nil:
		e.writer.WritePoint(point)
	case e.backupWriter != nil:
		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
		if _, err := e.backupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
			return fmt.Errorf("influx: error writing to backup file: %w", err)
		}
	default:
		return errors.New("influx: not connected")
	}
	e.written++
	return nil
}

// Sample writes the board's snapshot if it changed since the last sample.
func (e *Exporter) Sample() error {
	v := e.board.Version()
	e.mu.Lock()
	unchanged := v == e.lastVersion
	e.mu.Unlock()
	if unchanged {
		return nil
	}
	s, ok := e.board.Latest()
	if !ok {
		return nil
	}
	if err := e.WritePoint(StatusPoint(s)); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastVersion = v
	e.mu.Unlock()
	return nil
}

// Written counts the points handed to the server or the backup file.
func (e *Exporter) Written() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

// Run samples every Interval until ctx is done.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := e.Sample(); err != nil {
				e.log.Warn().Err(err).Msg("Final status sample failed")
			}
			return
		case <-ticker.C:
			if err := e.Sample(); err != nil {
				e.log.Warn().Err(err).Msg("Status sample failed")
			}
		}
	}
}

// Close flushes pending points and releases the client and backup file.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer != nil {
		e.writer.Flush()
		e.writer = nil
	}
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	var errs []error
	if e.backupWriter != nil {
		errs = append(errs, e.backupWriter.Close())
		e.backupWriter = nil
	}
	if e.backupFile != nil {
		errs = append(errs, e.backupFile.Close())
		e.backupFile = nil
	}
	return errors.Join(errs...)
}
