// dispatcher_test.go

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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMerrony/tellopilot/internal/link"
)

type recordingSender struct {
	sent []link.Velocity
	fail bool
}

func (r *recordingSender) SendVelocity(v link.Velocity) error {
	if r.fail {
		return link.ErrTransientSend
	}
	r.sent = append(r.sent, v)
	return nil
}

func newTestDispatcher(t *testing.T, maxFailures int) (*Dispatcher, *recordingSender) {
	t.Helper()
	s := &recordingSender{}
	d, err := NewDispatcher(zerolog.Nop(), s, maxFailures)
	require.NoError(t, err)
	return d, s
}

func TestDispatcherSilentWhileDisarmed(t *testing.T) {
	d, s := newTestDispatcher(t, 3)
	state := NewState(30)
	state.Velocity.Yaw = 30

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Tick(context.Background(), state))
	}
	assert.Empty(t, s.sent)
}

func TestDispatcherSendsVerbatimWhileArmed(t *testing.T) {
	d, s := newTestDispatcher(t, 3)
	state := NewState(30)
	state.Armed = true
	state.Velocity = link.Velocity{ForwardBack: 30, Yaw: -30}

	require.NoError(t, d.Tick(context.Background(), state))
	state.Velocity = link.Velocity{}
	require.NoError(t, d.Tick(context.Background(), state))

	assert.Equal(t, []link.Velocity{{ForwardBack: 30, Yaw: -30}, {}}, s.sent)
}

func TestDispatcherDegradesAfterConsecutiveFailures(t *testing.T) {
	d, s := newTestDispatcher(t, 3)
	state := NewState(30)
	state.Armed = true
	s.fail = true

	ctx := context.Background()
	assert.NoError(t, d.Tick(ctx, state))
	assert.NoError(t, d.Tick(ctx, state))
	assert.Equal(t, 2, d.Failures())

	// a success breaks the run
	s.fail = false
	assert.NoError(t, d.Tick(ctx, state))
	assert.Equal(t, 0, d.Failures())

	s.fail = true
	assert.NoError(t, d.Tick(ctx, state))
	assert.NoError(t, d.Tick(ctx, state))
	err := d.Tick(ctx, state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLinkDegraded))
	assert.ErrorIs(t, err, link.ErrTransientSend)
	assert.Equal(t, 0, d.Failures())
}

func TestDispatcherDefaultThreshold(t *testing.T) {
	d, _ := newTestDispatcher(t, 0)
	assert.Equal(t, DefaultMaxSendFailures, d.maxFailures)
}
