// model.go

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

package catalog

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Models lists the tables the catalog migrates.
var Models = []interface{}{
	&Session{},
	&Capture{},
	&MissionEvent{},
}

// Session is one run of the pilot, manual or mission.
type Session struct {
	gorm.Model
	UUID      string         `json:"uuid" gorm:"size:36;uniqueIndex"`
	Mode      string         `json:"mode" gorm:"size:16"`
	Vehicle   string         `json:"vehicle" gorm:"size:16"`
	Dir       string         `json:"dir" gorm:"size:512"`
	Prefix    string         `json:"prefix" gorm:"size:128"`
	Params    datatypes.JSON `json:"params"`
	StartedAt time.Time      `json:"startedAt" gorm:"index:idx_session_start"`
	EndedAt   *time.Time     `json:"endedAt"`
	Outcome   string         `json:"outcome" gorm:"size:32"`
	Failure   string         `json:"failure" gorm:"size:1024"`
	Captures  []Capture
	Events    []MissionEvent
}

// Capture is one snapshot written to disk.
type Capture struct {
	gorm.Model
	SessionID  uint      `json:"sessionId" gorm:"index:idx_capture_session"`
	Index      int       `json:"index" gorm:"column:image_index"`
	Path       string    `json:"path" gorm:"size:1024"`
	FrameSeq   uint64    `json:"frameSeq"`
	Battery    int       `json:"battery"`
	CapturedAt time.Time `json:"capturedAt"`
}

// MissionEvent is a state change of the mission sequencer.
type MissionEvent struct {
	gorm.Model
	SessionID uint      `json:"sessionId" gorm:"index:idx_event_session"`
	From      string    `json:"from" gorm:"size:16"`
	To        string    `json:"to" gorm:"size:16"`
	At        time.Time `json:"at"`
}
