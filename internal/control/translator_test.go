// translator_test.go

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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/SMerrony/tellopilot/internal/link"
)

func newTestTranslator(speed int) (*Translator, *State, *int) {
	state := NewState(speed)
	snaps := 0
	tr := NewTranslator(zerolog.Nop(), state, nil, func() { snaps++ })
	return tr, state, &snaps
}

func TestAxisKeys(t *testing.T) {
	tests := []struct {
		key  Key
		want link.Velocity
	}{
		{KeyUp, link.Velocity{ForwardBack: 30}},
		{KeyDown, link.Velocity{ForwardBack: -30}},
		{KeyLeft, link.Velocity{LeftRight: -30}},
		{KeyRight, link.Velocity{LeftRight: 30}},
		{KeyW, link.Velocity{UpDown: 30}},
		{KeyS, link.Velocity{UpDown: -30}},
		{KeyA, link.Velocity{Yaw: -30}},
		{KeyD, link.Velocity{Yaw: 30}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			tr, state, _ := newTestTranslator(30)
			tr.KeyDown(tt.key)
			assert.Equal(t, tt.want, state.Velocity)
			tr.KeyUp(tt.key)
			assert.True(t, state.Velocity.IsZero())
		})
	}
}

func TestAxisLastWriteWins(t *testing.T) {
	tr, state, _ := newTestTranslator(30)

	tr.KeyDown(KeyLeft)
	tr.KeyDown(KeyRight)
	assert.Equal(t, 30, state.Velocity.LeftRight)

	tr.KeyDown(KeyUp)
	tr.KeyDown(KeyD)
	assert.Equal(t, link.Velocity{ForwardBack: 30, LeftRight: 30, Yaw: 30}, state.Velocity)
}

func TestReleasingOneOpposingKeyKeepsTheOther(t *testing.T) {
	tr, state, _ := newTestTranslator(30)

	tr.KeyDown(KeyUp)
	tr.KeyDown(KeyDown)
	assert.Equal(t, -30, state.Velocity.ForwardBack)

	tr.KeyUp(KeyUp)
	assert.Equal(t, -30, state.Velocity.ForwardBack, "down still held")

	tr.KeyUp(KeyDown)
	assert.Equal(t, 0, state.Velocity.ForwardBack)

	// the other order, on another axis
	tr.KeyDown(KeyA)
	tr.KeyDown(KeyD)
	tr.KeyUp(KeyD)
	assert.Equal(t, -30, state.Velocity.Yaw, "yaw left still held")
	tr.KeyUp(KeyA)
	assert.True(t, state.Velocity.IsZero())
}

func TestKeyUpWithoutKeyDown(t *testing.T) {
	tr, state, _ := newTestTranslator(30)

	tr.KeyDown(KeyW)
	tr.KeyUp(KeyS)
	assert.Equal(t, 30, state.Velocity.UpDown, "stray release of the opposing key")
	tr.KeyUp(KeyW)
	assert.Equal(t, 0, state.Velocity.UpDown)
}

func TestVelocityStaysWithinSpeed(t *testing.T) {
	tr, state, _ := newTestTranslator(25)
	for _, k := range []Key{KeyUp, KeyDown, KeyLeft, KeyRight, KeyW, KeyS, KeyA, KeyD} {
		tr.KeyDown(k)
		assert.Equal(t, state.Velocity, state.Velocity.Clamp(state.Speed))
	}
}

func TestTakeoffAndLandFireOnRelease(t *testing.T) {
	tr, state, _ := newTestTranslator(30)

	assert.Equal(t, Takeoff, tr.KeyDown(KeyT))
	assert.False(t, state.TakeoffRequested)
	tr.KeyUp(KeyT)
	assert.True(t, state.TakeoffRequested)
	assert.False(t, state.Armed, "armed only once the takeoff is acknowledged")

	state.TakeoffRequested = false
	state.Armed = true
	tr.KeyDown(KeyL)
	assert.True(t, state.Armed)
	tr.KeyUp(KeyL)
	assert.False(t, state.Armed)
	assert.True(t, state.LandRequested)
}

func TestSnapshotFiresOnPress(t *testing.T) {
	tr, _, snaps := newTestTranslator(30)
	assert.Equal(t, Snapshot, tr.KeyDown(KeyP))
	assert.Equal(t, 1, *snaps)
	tr.KeyUp(KeyP)
	assert.Equal(t, 1, *snaps)
}

func TestTerminateAndUnknownKeys(t *testing.T) {
	tr, state, _ := newTestTranslator(30)

	assert.Equal(t, ActionNone, tr.KeyDown("q"))
	assert.Equal(t, ActionNone, tr.KeyUp("q"))
	assert.Equal(t, *NewState(30), *state)

	assert.Equal(t, Terminate, tr.Handle(KeyEvent{Key: KeyEscape, Down: true}))
	assert.True(t, state.Terminate)
}

func TestCustomKeymap(t *testing.T) {
	state := NewState(10)
	tr := NewTranslator(zerolog.Nop(), state, Keymap{"i": MoveForward}, nil)
	tr.KeyDown(KeyUp)
	assert.True(t, state.Velocity.IsZero())
	tr.KeyDown("i")
	assert.Equal(t, 10, state.Velocity.ForwardBack)
	// no snapshot callback is fine
	assert.Equal(t, ActionNone, tr.KeyDown(KeyP))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "yaw_right", YawRight.String())
	assert.Equal(t, "unknown", Action(99).String())
}
