// state.go

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

package mission

// State is the sequencer's progress through a flight.
type State int

const (
	Idle State = iota
	Connected
	Airborne
	Capturing
	Descending
	Landed
	Aborted
)

var stateNames = [...]string{
	Idle:       "idle",
	Connected:  "connected",
	Airborne:   "airborne",
	Capturing:  "capturing",
	Descending: "descending",
	Landed:     "landed",
	Aborted:    "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Landed || s == Aborted
}

// entering returns the state the sequencer is in while running a step of kind k.
func entering(current State, k StepKind) State {
	switch k {
	case StepCapture, StepRotate:
		return Capturing
	case StepMoveDown, StepLand:
		return Descending
	}
	return current
}

// completed returns the state after a step of kind k succeeds.
func completed(current State, k StepKind) State {
	switch k {
	case StepTakeoff:
		return Airborne
	case StepLand:
		return Landed
	}
	return current
}
