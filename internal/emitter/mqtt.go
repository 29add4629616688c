// mqtt.go

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

// Package emitter publishes flight status snapshots to an MQTT broker as
// msgpack messages.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/SMerrony/tellopilot/internal/status"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// ErrNotConnected is returned by Publish before Connect succeeds or after the
// connection was lost.
var ErrNotConnected = errors.New("mqtt not connected")

// Config addresses the broker.
type Config struct {
	Broker   string // eg. tcp://localhost:1883
	ClientID string
	Topic    string
	QoS      byte
	Interval time.Duration
}

// publisher is the part of mqtt.Client the emitter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTEmitter publishes the newest status snapshot whenever it changes.
type MQTTEmitter struct {
	log   zerolog.Logger
	cfg   Config
	board *status.Board

	mu          sync.RWMutex
	client      publisher
	connected   bool
	published   uint64
	errors      uint64
	lastVersion uint64
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// NewMQTTEmitter creates an emitter for board.
func NewMQTTEmitter(log zerolog.Logger, cfg Config, board *status.Board) *MQTTEmitter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &MQTTEmitter{
		log:   log.With().Str("component", "mqtt").Logger(),
		cfg:   cfg,
		board: board,
	}
}

// Connect establishes the connection to the broker. The client reconnects on
// its own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.Info().Str("broker", e.cfg.Broker).Str("client_id", e.cfg.ClientID).
			Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn().Err(err).Str("broker", e.cfg.Broker).
			Msg("MQTT connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	e.log.Info().Str("broker", e.cfg.Broker).Msg("Connecting to MQTT broker")

	token := client.Connect()
	timeout := connectTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.client = client
	e.connected = true
	e.mu.Unlock()
	return nil
}

func (e *MQTTEmitter) setConnected(c bool) {
	e.mu.Lock()
	e.connected = c
	e.mu.Unlock()
}

func (e *MQTTEmitter) fail(err error) error {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
	return err
}

// Encode serializes a snapshot the way it is published.
func Encode(s status.Snapshot) ([]byte, error) {
	return msgpack.Marshal(&s)
}

// Decode parses a published payload.
func Decode(payload []byte) (status.Snapshot, error) {
	var s status.Snapshot
	err := msgpack.Unmarshal(payload, &s)
	return s, err
}

// Publish sends s as a retained message, so late subscribers see the
// current state straight away.
func (e *MQTTEmitter) Publish(s status.Snapshot) error {
	e.mu.RLock()
	client, connected := e.client, e.connected
	e.mu.RUnlock()
	if client == nil || !connected {
		return e.fail(ErrNotConnected)
	}

	payload, err := Encode(s)
	if err != nil {
		return e.fail(fmt.Errorf("failed to marshal status: %w", err))
	}

	token := client.Publish(e.cfg.Topic, e.cfg.QoS, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return e.fail(errors.New("publish timeout"))
	}
	if err := token.Error(); err != nil {
		return e.fail(fmt.Errorf("publish failed: %w", err))
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	e.log.Trace().Str("topic", e.cfg.Topic).Int("size", len(payload)).Msg("Status published")
	return nil
}

// Sample publishes the board's snapshot if it changed since the last one
// that was published.
func (e *MQTTEmitter) Sample() error {
	v := e.board.Version()
	e.mu.RLock()
	unchanged := v == e.lastVersion
	e.mu.RUnlock()
	if unchanged {
		return nil
	}
	s, ok := e.board.Latest()
	if !ok {
		return nil
	}
	if err := e.Publish(s); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastVersion = v
	e.mu.Unlock()
	return nil
}

// Run samples every Interval until ctx is done.
func (e *MQTTEmitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := e.Sample(); err != nil {
				e.log.Debug().Err(err).Msg("Final status publish failed")
			}
			return
		case <-ticker.C:
			if err := e.Sample(); err != nil {
				e.log.Debug().Err(err).Msg("Status publish failed")
			}
		}
	}
}

// Disconnect closes the MQTT connection.
func (e *MQTTEmitter) Disconnect() error {
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.connected = false
	e.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250) // 250ms grace period
		e.log.Info().Msg("MQTT disconnected")
	}
	return nil
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}
