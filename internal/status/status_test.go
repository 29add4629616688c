// status_test.go

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

package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBoard(t *testing.T) {
	b := NewBoard()
	_, ok := b.Latest()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), b.Version())

	b.Publish(Snapshot{Session: "s1", Mode: ModeManual, Armed: true})
	b.Publish(Snapshot{Session: "s1", Mode: ModeManual, Armed: false, UpdatedAt: time.Unix(5, 0)})

	s, ok := b.Latest()
	assert.True(t, ok)
	assert.False(t, s.Armed)
	assert.Equal(t, time.Unix(5, 0), s.UpdatedAt)
	assert.Equal(t, uint64(2), b.Version())
}

func TestPublishStampsTime(t *testing.T) {
	b := NewBoard()
	b.Publish(Snapshot{})
	s, _ := b.Latest()
	assert.WithinDuration(t, time.Now(), s.UpdatedAt, time.Second)
}
