// keys.go

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

// Package control turns key events into flight commands: a Translator keeps
// the pilot's State up to date and a Dispatcher sends it at a fixed rate.
package control

// Key is a logical key name, independent of the window system.
type Key string

// Keys understood by DefaultKeymap.
const (
	KeyUp     Key = "up"
	KeyDown   Key = "down"
	KeyLeft   Key = "left"
	KeyRight  Key = "right"
	KeyW      Key = "w"
	KeyS      Key = "s"
	KeyA      Key = "a"
	KeyD      Key = "d"
	KeyT      Key = "t"
	KeyL      Key = "l"
	KeyP      Key = "p"
	KeyEscape Key = "escape"
)

// KeyEvent is one press or release.
type KeyEvent struct {
	Key  Key
	Down bool
}

// Action is what a key does.
type Action int

const (
	ActionNone Action = iota
	MoveForward
	MoveBack
	MoveLeft
	MoveRight
	MoveUp
	MoveDown
	YawLeft
	YawRight
	Takeoff
	Land
	Snapshot
	Terminate
)

var actionNames = [...]string{
	ActionNone:  "none",
	MoveForward: "forward",
	MoveBack:    "back",
	MoveLeft:    "left",
	MoveRight:   "right",
	MoveUp:      "up",
	MoveDown:    "down",
	YawLeft:     "yaw_left",
	YawRight:    "yaw_right",
	Takeoff:     "takeoff",
	Land:        "land",
	Snapshot:    "snapshot",
	Terminate:   "terminate",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// Keymap binds keys to actions.
type Keymap map[Key]Action

// DefaultKeymap: arrows fly horizontally, w/s climb and descend, a/d yaw,
// t/l take off and land, p takes a snapshot and escape quits.
func DefaultKeymap() Keymap {
	return Keymap{
		KeyUp:     MoveForward,
		KeyDown:   MoveBack,
		KeyLeft:   MoveLeft,
		KeyRight:  MoveRight,
		KeyW:      MoveUp,
		KeyS:      MoveDown,
		KeyA:      YawLeft,
		KeyD:      YawRight,
		KeyT:      Takeoff,
		KeyL:      Land,
		KeyP:      Snapshot,
		KeyEscape: Terminate,
	}
}

// Lookup returns the action bound to k, or ActionNone.
func (m Keymap) Lookup(k Key) Action {
	return m[k]
}
