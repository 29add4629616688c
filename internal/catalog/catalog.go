// catalog.go

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

// Package catalog records sessions, snapshots and mission state changes in a
// database so downstream tools can find the pictures of a flight.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SMerrony/tellopilot/internal/queue"
	"github.com/SMerrony/tellopilot/internal/snapshot"
)

// pendingLimit bounds the rows waiting to be written.
const pendingLimit = 10000

// writeAttempts is how many flushes a row gets before it is given up.
const writeAttempts = 3

// ErrNoSession is returned when rows are written before Begin.
var ErrNoSession = errors.New("catalog: no session started")

// Config selects the database.
type Config struct {
	Driver        string // "sqlite" or "postgres"
	Path          string // sqlite file; empty for an in-memory database
	DSN           string // postgres
	FlushInterval time.Duration
	QueueLimit    int // rows waiting to be written; 0 means pendingLimit
}

// Catalog buffers rows from the control loop and writes them in batches.
// Record methods never touch the database.
type Catalog struct {
	log zerolog.Logger
	db  *gorm.DB
	cfg Config

	pending *queue.Queue[any]

	flushMu  sync.Mutex // serialises Flush; guards the fields below
	reported uint64     // overflow already logged
	failures int        // consecutive failed flushes
	lost     uint64     // rows given up after writeAttempts

	mu      sync.Mutex
	session *Session
}

// Open connects to the database and migrates the schema.
func Open(log zerolog.Logger, cfg Config) (*Catalog, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = pendingLimit
	}
	gcfg := &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "file::memory:?cache=shared"
		}
		db, err = gorm.Open(sqlite.Open(path), gcfg)
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), gcfg)
	default:
		return nil, fmt.Errorf("catalog: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open %s: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("catalog: failed to migrate schema: %w", err)
	}
	log = log.With().Str("component", "catalog").Logger()
	log.Info().Str("driver", db.Dialector.Name()).Msg("Catalog ready")
	return &Catalog{
		log:     log,
		db:      db,
		cfg:     cfg,
		pending: queue.New[any](cfg.QueueLimit),
	}, nil
}

// Begin creates the session row that later records belong to.
func (c *Catalog) Begin(uuid, mode, vehicle, dir, prefix string, params any) (*Session, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("catalog: encoding params: %w", err)
	}
	s := &Session{
		UUID:      uuid,
		Mode:      mode,
		Vehicle:   vehicle,
		Dir:       dir,
		Prefix:    prefix,
		Params:    datatypes.JSON(raw),
		StartedAt: time.Now().UTC(),
	}
	if err := c.db.Create(s).Error; err != nil {
		return nil, fmt.Errorf("catalog: creating session: %w", err)
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

func (c *Catalog) sessionID() (uint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, false
	}
	return c.session.ID, true
}

// RecordCapture queues a snapshot row. battery is the charge at capture time.
func (c *Catalog) RecordCapture(img snapshot.Image, battery int) {
	id, ok := c.sessionID()
	if !ok {
		c.log.Warn().Err(ErrNoSession).Str("path", img.Path).Msg("Capture not catalogued")
		return
	}
	c.pending.Push(&Capture{
		SessionID:  id,
		Index:      img.Index,
		Path:       img.Path,
		FrameSeq:   img.FrameSeq,
		Battery:    battery,
		CapturedAt: img.CapturedAt.UTC(),
	})
}

// RecordTransition queues a mission state change.
func (c *Catalog) RecordTransition(from, to string) {
	id, ok := c.sessionID()
	if !ok {
		c.log.Warn().Err(ErrNoSession).Str("to", to).Msg("Transition not catalogued")
		return
	}
	c.pending.Push(&MissionEvent{
		SessionID: id,
		From:      from,
		To:        to,
		At:        time.Now().UTC(),
	})
}

// Flush writes everything queued so far.
// Rows that fail to write are queued again, up to writeAttempts flushes in a
// row, then counted as lost.
func (c *Catalog) Flush() error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	if dropped := c.pending.Dropped(); dropped != c.reported {
		c.log.Warn().Uint64("dropped", dropped-c.reported).Uint64("total", dropped).Msg("Catalog queue overflowed")
		c.reported = dropped
	}
	rows := c.pending.Drain()
	if len(rows) == 0 {
		return nil
	}
	var (
		captures []*Capture
		events   []*MissionEvent
	)
	for _, r := range rows {
		switch v := r.(type) {
		case *Capture:
			captures = append(captures, v)
		case *MissionEvent:
			events = append(events, v)
		}
	}
	var (
		errs   []error
		failed []any
	)
	if len(captures) > 0 {
		if err := c.db.Create(&captures).Error; err != nil {
			errs = append(errs, fmt.Errorf("catalog: writing %d captures: %w", len(captures), err))
			for _, r := range captures {
				r.ID = 0
				failed = append(failed, r)
			}
		}
	}
	if len(events) > 0 {
		if err := c.db.Create(&events).Error; err != nil {
			errs = append(errs, fmt.Errorf("catalog: writing %d events: %w", len(events), err))
			for _, r := range events {
				r.ID = 0
				failed = append(failed, r)
			}
		}
	}
	if len(failed) == 0 {
		c.failures = 0
		return nil
	}

	c.failures++
	if c.failures < writeAttempts {
		c.pending.PushFront(failed...)
	} else {
		c.lost += uint64(len(failed))
		c.failures = 0
		c.log.Error().Int("rows", len(failed)).Uint64("lost", c.lost).Msg("Catalog rows discarded")
	}
	return errors.Join(errs...)
}

// Lost returns how many rows were given up after repeated write failures.
func (c *Catalog) Lost() uint64 {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.lost
}

// Run flushes periodically until ctx is done, then flushes once more.
func (c *Catalog) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(); err != nil {
				c.log.Error().Err(err).Msg("Final catalog flush failed")
			}
			return
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				c.log.Error().Err(err).Msg("Catalog flush failed")
			}
		}
	}
}

// End flushes and stamps the session with its outcome.
func (c *Catalog) End(outcome string, cause error) error {
	flushErr := c.Flush()
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return errors.Join(flushErr, ErrNoSession)
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{"ended_at": now, "outcome": outcome}
	if cause != nil {
		updates["failure"] = cause.Error()
	}
	err := c.db.Model(s).Updates(updates).Error
	return errors.Join(flushErr, err)
}

// Captures returns the snapshots of a session in index order.
func (c *Catalog) Captures(uuid string) ([]Capture, error) {
	var s Session
	err := c.db.Preload("Captures", func(db *gorm.DB) *gorm.DB {
		return db.Order("image_index asc")
	}).Where("uuid = ?", uuid).First(&s).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: session %s: %w", uuid, err)
	}
	return s.Captures, nil
}

// Events returns the mission state changes of a session in order.
func (c *Catalog) Events(uuid string) ([]MissionEvent, error) {
	var s Session
	err := c.db.Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	}).Where("uuid = ?", uuid).First(&s).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: session %s: %w", uuid, err)
	}
	return s.Events, nil
}

// Session looks a session up by its UUID.
func (c *Catalog) Session(uuid string) (*Session, error) {
	var s Session
	if err := c.db.Where("uuid = ?", uuid).First(&s).Error; err != nil {
		return nil, fmt.Errorf("catalog: session %s: %w", uuid, err)
	}
	return &s, nil
}

// Close releases the database connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
