// link_test.go

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

package link

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVelocityClamp(t *testing.T) {
	v := Velocity{ForwardBack: 50, LeftRight: -50, UpDown: 10, Yaw: -10}
	assert.Equal(t, Velocity{ForwardBack: 30, LeftRight: -30, UpDown: 10, Yaw: -10}, v.Clamp(30))
	assert.True(t, Velocity{}.IsZero())
	assert.False(t, v.IsZero())
	assert.Equal(t, "fb=50 lr=-50 ud=10 yaw=-10", v.String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("dial: %w", ErrConnection), KindConnection},
		{fmt.Errorf("takeoff: %w", ErrCommandRejected), KindRejected},
		{fmt.Errorf("move up: %w", ErrTimeout), KindTimeout},
		{fmt.Errorf("land: %w", context.DeadlineExceeded), KindTimeout},
		{ErrTransientSend, KindTransient},
		{fmt.Errorf("frame0.png: %w", ErrCapture), KindCapture},
		{context.Canceled, KindCanceled},
		{errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapContext(t *testing.T) {
	err := WrapContext("move up", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "move up: vehicle primitive timed out: context deadline exceeded", err.Error())

	err = WrapContext("land", context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindCanceled, Classify(err))
}

func TestFrameFromRGB(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	f, err := FrameFromRGB(data, 2, 1, BGR, 7, time.Unix(10, 0))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 2, 1), f.Image.Rect)
	assert.Equal(t, []uint8{1, 2, 3, 255, 4, 5, 6, 255}, f.Image.Pix)
	assert.Equal(t, uint64(7), f.Seq)

	rgb := f.ToRGB()
	assert.Equal(t, []uint8{3, 2, 1, 255, 6, 5, 4, 255}, rgb.Pix)
	// the original is untouched
	assert.Equal(t, uint8(1), f.Image.Pix[0])

	_, err = FrameFromRGB(data, 3, 1, RGB, 0, time.Time{})
	assert.Error(t, err)
	_, err = FrameFromRGB(data, 0, 1, RGB, 0, time.Time{})
	assert.Error(t, err)
}

type batteryOnly struct{ Vehicle }

func (batteryOnly) Battery() int { return 42 }

func TestReadTelemetryFallsBackToBattery(t *testing.T) {
	assert.Equal(t, Telemetry{Battery: 42}, ReadTelemetry(batteryOnly{}))
}
