// status.go

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

// Package status publishes what the pilot is doing for observers that must
// not slow the control loop down: the HTTP API, the MQTT emitter and the
// telemetry exporter.
package status

import (
	"time"

	"github.com/SMerrony/tellopilot/internal/latest"
	"github.com/SMerrony/tellopilot/internal/link"
)

// Mode names.
const (
	ModeManual  = "manual"
	ModeMission = "mission"
)

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Session      string         `json:"session" msgpack:"session"`
	Mode         string         `json:"mode" msgpack:"mode"`
	State        string         `json:"state" msgpack:"state"`
	Armed        bool           `json:"armed" msgpack:"armed"`
	Speed        int            `json:"speed" msgpack:"speed"`
	Velocity     link.Velocity  `json:"velocity" msgpack:"velocity"`
	Telemetry    link.Telemetry `json:"telemetry" msgpack:"telemetry"`
	Snapshots    int            `json:"snapshots" msgpack:"snapshots"`
	LastSnapshot string         `json:"lastSnapshot,omitempty" msgpack:"lastSnapshot,omitempty"`
	LastError    string         `json:"lastError,omitempty" msgpack:"lastError,omitempty"`
	FrameSeq     uint64         `json:"frameSeq" msgpack:"frameSeq"`
	UpdatedAt    time.Time      `json:"updatedAt" msgpack:"updatedAt"`
}

// Board holds the newest Snapshot.
type Board struct {
	cell latest.Cell[Snapshot]
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{}
}

// Publish replaces the current snapshot.
func (b *Board) Publish(s Snapshot) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	b.cell.Publish(s)
}

// Latest returns the current snapshot, if any.
func (b *Board) Latest() (Snapshot, bool) {
	s, _, ok := b.cell.Load()
	return s, ok
}

// Version increases with every Publish.
func (b *Board) Version() uint64 {
	return b.cell.Seq()
}
