// dispatcher.go

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

package control

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/SMerrony/tellopilot/internal/link"
)

// ErrLinkDegraded is returned by Tick once too many velocity commands in a
// row have failed. The caller should disarm and land.
var ErrLinkDegraded = errors.New("control: velocity link degraded")

// DefaultMaxSendFailures is half a second of failures at 30 Hz.
const DefaultMaxSendFailures = 15

// Sender accepts velocity commands without waiting.
type Sender interface {
	SendVelocity(v link.Velocity) error
}

// Dispatcher sends the current velocity once per tick while armed.
type Dispatcher struct {
	log         zerolog.Logger
	sender      Sender
	maxFailures int
	failures    int
	armed       atomic.Bool

	sentCount   metric.Int64Counter
	failedCount metric.Int64Counter
	armedGauge  metric.Int64ObservableGauge
}

// NewDispatcher returns a Dispatcher. log should be sampled, since failures
// can be reported on every tick.
func NewDispatcher(log zerolog.Logger, sender Sender, maxFailures int) (*Dispatcher, error) {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxSendFailures
	}
	d := &Dispatcher{
		log:         log.With().Str("component", "dispatcher").Logger(),
		sender:      sender,
		maxFailures: maxFailures,
	}

	m := meter()
	var err error
	d.sentCount, err = m.Int64Counter(
		"control.commands.sent",
		metric.WithDescription("Velocity commands handed to the link"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	d.failedCount, err = m.Int64Counter(
		"control.commands.failed",
		metric.WithDescription("Velocity commands the link failed to send"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	d.armedGauge, err = m.Int64ObservableGauge(
		"control.armed",
		metric.WithDescription("1 while velocity commands are being sent"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating armed gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			var v int64
			if d.armed.Load() {
				v = 1
			}
			o.ObserveInt64(d.armedGauge, v)
			return nil
		},
		d.armedGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering armed callback: %w", err)
	}
	return d, nil
}

// Tick sends state's velocity if state is armed. A single failed send is
// logged and forgotten; the maxFailures'th consecutive one returns
// ErrLinkDegraded and resets the count.
func (d *Dispatcher) Tick(ctx context.Context, state *State) error {
	d.armed.Store(state.Armed)
	if !state.Armed {
		d.failures = 0
		return nil
	}
	if err := d.sender.SendVelocity(state.Velocity); err != nil {
		d.failures++
		d.failedCount.Add(ctx, 1)
		d.log.Warn().Err(err).Int("consecutive", d.failures).Msg("Velocity command not sent")
		if d.failures >= d.maxFailures {
			n := d.failures
			d.failures = 0
			return fmt.Errorf("%w: %d consecutive failures: %w", ErrLinkDegraded, n, err)
		}
		return nil
	}
	d.failures = 0
	d.sentCount.Add(ctx, 1)
	return nil
}

// Failures returns the current run of failed sends.
func (d *Dispatcher) Failures() int {
	return d.failures
}
