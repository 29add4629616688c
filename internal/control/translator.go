// translator.go

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
	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/link"
)

// State is the pilot's intent. It is owned by the loop that drives the
// Translator and Dispatcher and must not be shared with other goroutines.
type State struct {
	Velocity link.Velocity
	// Armed is set after an acknowledged takeoff and cleared by a land request.
	Armed bool
	Speed int

	// Pending requests, executed and cleared by the session loop.
	TakeoffRequested bool
	LandRequested    bool
	Terminate        bool
}

// NewState returns a disarmed state with the given cruise speed.
func NewState(speed int) *State {
	return &State{Speed: speed}
}

type binding struct {
	down, up func(t *Translator)
}

// axis binds one direction of a velocity component. Releasing it hands the
// component back to the opposing key if that is still held.
func axis(component func(*link.Velocity) *int, self, opposite Action, sign int) binding {
	return binding{
		down: func(t *Translator) {
			t.held[self] = true
			*component(&t.state.Velocity) = sign * t.state.Speed
		},
		up: func(t *Translator) {
			delete(t.held, self)
			v := 0
			if t.held[opposite] {
				v = -sign * t.state.Speed
			}
			*component(&t.state.Velocity) = v
		},
	}
}

func forwardBack(v *link.Velocity) *int { return &v.ForwardBack }
func leftRight(v *link.Velocity) *int   { return &v.LeftRight }
func upDown(v *link.Velocity) *int      { return &v.UpDown }
func yaw(v *link.Velocity) *int         { return &v.Yaw }

var bindings = map[Action]binding{
	MoveForward: axis(forwardBack, MoveForward, MoveBack, 1),
	MoveBack:    axis(forwardBack, MoveBack, MoveForward, -1),
	MoveLeft:    axis(leftRight, MoveLeft, MoveRight, -1),
	MoveRight:   axis(leftRight, MoveRight, MoveLeft, 1),
	MoveUp:      axis(upDown, MoveUp, MoveDown, 1),
	MoveDown:    axis(upDown, MoveDown, MoveUp, -1),
	YawLeft:     axis(yaw, YawLeft, YawRight, -1),
	YawRight:    axis(yaw, YawRight, YawLeft, 1),
	Takeoff: {
		up: func(t *Translator) { t.state.TakeoffRequested = true },
	},
	Land: {
		up: func(t *Translator) {
			t.state.Armed = false
			t.state.LandRequested = true
		},
	},
	Snapshot: {
		down: func(t *Translator) {
			if t.snapshot != nil {
				t.snapshot()
			}
		},
	},
	Terminate: {
		down: func(t *Translator) { t.state.Terminate = true },
	},
}

// Translator applies key events to a State.
type Translator struct {
	log      zerolog.Logger
	keymap   Keymap
	state    *State
	snapshot func()
	held     map[Action]bool // axis keys currently down
}

// NewTranslator returns a Translator mutating state. snapshot is called
// synchronously when the snapshot key goes down; it may be nil.
func NewTranslator(log zerolog.Logger, state *State, keymap Keymap, snapshot func()) *Translator {
	if keymap == nil {
		keymap = DefaultKeymap()
	}
	return &Translator{
		log:      log.With().Str("component", "translator").Logger(),
		keymap:   keymap,
		state:    state,
		snapshot: snapshot,
		held:     make(map[Action]bool),
	}
}

// KeyDown applies a key press and returns the action it mapped to.
func (t *Translator) KeyDown(k Key) Action {
	return t.apply(k, true)
}

// KeyUp applies a key release and returns the action it mapped to.
func (t *Translator) KeyUp(k Key) Action {
	return t.apply(k, false)
}

// Handle applies ev.
func (t *Translator) Handle(ev KeyEvent) Action {
	return t.apply(ev.Key, ev.Down)
}

func (t *Translator) apply(k Key, down bool) Action {
	a := t.keymap.Lookup(k)
	b, ok := bindings[a]
	if !ok {
		return ActionNone
	}
	fn := b.up
	if down {
		fn = b.down
	}
	if fn == nil {
		return a
	}
	fn(t)
	t.log.Trace().Str("key", string(k)).Bool("down", down).Stringer("action", a).Msg("Key applied")
	return a
}
