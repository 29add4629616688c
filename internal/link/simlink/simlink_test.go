// simlink_test.go

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

package simlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMerrony/tellopilot/internal/link"
)

func newTestVehicle(t *testing.T) *Vehicle {
	t.Helper()
	opts := DefaultOptions()
	opts.Width, opts.Height = 8, 6
	opts.FrameInterval = time.Millisecond
	v := New(zerolog.Nop(), opts)
	t.Cleanup(func() { v.Disconnect() })
	return v
}

func TestPrimitivesNeedConnection(t *testing.T) {
	v := newTestVehicle(t)
	ctx := context.Background()

	assert.ErrorIs(t, v.Takeoff(ctx), link.ErrConnection)
	assert.ErrorIs(t, v.SendVelocity(link.Velocity{Yaw: 10}), link.ErrTransientSend)

	require.NoError(t, v.Connect(ctx))
	require.NoError(t, v.Takeoff(ctx))
	require.NoError(t, v.MoveUp(ctx, 30))
	require.NoError(t, v.RotateClockwise(ctx, 90))
	require.NoError(t, v.SendVelocity(link.Velocity{Yaw: 10}))

	tel := v.Telemetry()
	assert.Equal(t, 110, tel.HeightCM)
	assert.Equal(t, 90, tel.Yaw)
	assert.True(t, tel.Flying)
	assert.Equal(t, 84, tel.Battery)

	require.NoError(t, v.MoveDown(ctx, 200))
	require.NoError(t, v.Land(ctx))
	assert.Equal(t, link.Telemetry{Battery: 83, Yaw: 90}, v.Telemetry())

	assert.Equal(t, []string{"takeoff", "connect", "takeoff", "move_up 30", "rotate_cw 90", "move_down 200", "land"}, v.Calls())
	assert.Equal(t, []link.Velocity{{Yaw: 10}}, v.Velocities())
}

func TestRotateWraps(t *testing.T) {
	v := newTestVehicle(t)
	ctx := context.Background()
	require.NoError(t, v.Connect(ctx))
	require.NoError(t, v.Takeoff(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, v.RotateClockwise(ctx, 90))
	}
	assert.Equal(t, -90, v.Telemetry().Yaw)
	require.NoError(t, v.RotateClockwise(ctx, 90))
	assert.Equal(t, 0, v.Telemetry().Yaw)
}

func TestMoveRejectedOnGround(t *testing.T) {
	v := newTestVehicle(t)
	ctx := context.Background()
	require.NoError(t, v.Connect(ctx))
	assert.ErrorIs(t, v.MoveUp(ctx, 30), link.ErrCommandRejected)
	assert.ErrorIs(t, v.SetSpeed(ctx, 0), link.ErrCommandRejected)
	assert.NoError(t, v.SetSpeed(ctx, 10))
}

func TestFaults(t *testing.T) {
	v := newTestVehicle(t)
	ctx := context.Background()
	boom := errors.New("boom")

	v.Fail(OpConnect, boom)
	assert.ErrorIs(t, v.Connect(ctx), boom)
	v.Clear(OpConnect)
	require.NoError(t, v.Connect(ctx))
	require.NoError(t, v.Takeoff(ctx))

	v.FailNth(OpRotate, 2, link.ErrCommandRejected)
	assert.NoError(t, v.RotateClockwise(ctx, 90))
	assert.ErrorIs(t, v.RotateClockwise(ctx, 90), link.ErrCommandRejected)
	assert.NoError(t, v.RotateClockwise(ctx, 90))
	assert.Equal(t, 3, v.Count(OpRotate))

	v.Fail(OpVelocity, link.ErrTransientSend)
	assert.ErrorIs(t, v.SendVelocity(link.Velocity{}), link.ErrTransientSend)
	assert.Empty(t, v.Velocities())
}

func TestStepDelayHonoursDeadline(t *testing.T) {
	opts := DefaultOptions()
	opts.StepDelay = time.Second
	v := New(zerolog.Nop(), opts)
	require.NoError(t, v.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := v.Takeoff(ctx)
	assert.ErrorIs(t, err, link.ErrTimeout)
	assert.Equal(t, link.KindTimeout, link.Classify(err))
	assert.False(t, v.Telemetry().Flying)
}

func TestStreamPublishesFrames(t *testing.T) {
	v := newTestVehicle(t)
	ctx := context.Background()
	require.NoError(t, v.Connect(ctx))

	_, ok := v.Frame()
	assert.False(t, ok)

	require.NoError(t, v.StreamOn(ctx))
	require.Eventually(t, func() bool {
		f, ok := v.Frame()
		return ok && f.Seq >= 2
	}, time.Second, time.Millisecond)

	f, _ := v.Frame()
	assert.Equal(t, link.BGR, f.Order)
	assert.Equal(t, 8, f.Image.Rect.Dx())
	// heading 0 maps to shade 127, which BGR order puts in the blue byte
	assert.Equal(t, uint8(127), f.Image.Pix[2])
	assert.Equal(t, uint8(127), f.ToRGB().Pix[0])

	require.NoError(t, v.StreamOff(ctx))
	stopped, _ := v.Frame()
	time.Sleep(5 * time.Millisecond)
	last, _ := v.Frame()
	assert.Equal(t, stopped.Seq, last.Seq)
}
