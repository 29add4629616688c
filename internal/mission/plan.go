// plan.go

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

// Package mission flies a fixed survey: take off, climb, photograph a number
// of evenly spaced headings, descend and land.
package mission

import (
	"errors"
	"fmt"
	"strings"
)

// StepKind tags a Step.
type StepKind int

const (
	StepTakeoff StepKind = iota
	StepLand
	StepMoveUp
	StepMoveDown
	StepRotate
	StepCapture
)

var stepNames = [...]string{
	StepTakeoff:  "takeoff",
	StepLand:     "land",
	StepMoveUp:   "move_up",
	StepMoveDown: "move_down",
	StepRotate:   "rotate_cw",
	StepCapture:  "capture",
}

func (k StepKind) String() string {
	if k < 0 || int(k) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[k]
}

// Step is one instruction of a Plan. Arg is centimetres for moves, degrees
// for rotations and the sequence index for captures.
type Step struct {
	Kind StepKind
	Arg  int
}

func (s Step) String() string {
	switch s.Kind {
	case StepTakeoff, StepLand:
		return s.Kind.String()
	default:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Arg)
	}
}

// flies reports whether the step is carried out by the vehicle.
func (s Step) flies() bool {
	return s.Kind != StepCapture
}

// Params shape a Plan.
type Params struct {
	Height int `json:"height"` // cm
	Angle  int `json:"angle"`  // degrees per turn
	Repeat int `json:"repeat"`
}

// DefaultParams: four photographs at 90 degree intervals, 30 cm above the
// takeoff hover height.
func DefaultParams() Params {
	return Params{Height: 30, Angle: 90, Repeat: 4}
}

// Validate checks p against what the vehicle will accept.
func (p Params) Validate() error {
	var errs []error
	if p.Height < 20 || p.Height > 500 {
		errs = append(errs, fmt.Errorf("height %dcm outside 20..500", p.Height))
	}
	if p.Angle < 1 || p.Angle > 360 {
		errs = append(errs, fmt.Errorf("angle %d outside 1..360", p.Angle))
	}
	if p.Repeat < 0 {
		errs = append(errs, fmt.Errorf("negative repeat count %d", p.Repeat))
	}
	return errors.Join(errs...)
}

// Plan is an immutable sequence of steps.
type Plan struct {
	steps []Step
}

// NewPlan builds
//
//	takeoff, move_up(h), {capture(i), rotate_cw(a)} x n, move_down(h), land
func NewPlan(p Params) (Plan, error) {
	if err := p.Validate(); err != nil {
		return Plan{}, fmt.Errorf("mission: %w", err)
	}
	steps := make([]Step, 0, 4+2*p.Repeat)
	steps = append(steps, Step{Kind: StepTakeoff}, Step{Kind: StepMoveUp, Arg: p.Height})
	for i := 0; i < p.Repeat; i++ {
		steps = append(steps, Step{Kind: StepCapture, Arg: i}, Step{Kind: StepRotate, Arg: p.Angle})
	}
	steps = append(steps, Step{Kind: StepMoveDown, Arg: p.Height}, Step{Kind: StepLand})
	return Plan{steps: steps}, nil
}

// Len returns the number of steps.
func (p Plan) Len() int { return len(p.steps) }

// Step returns step i.
func (p Plan) Step(i int) Step { return p.steps[i] }

// Steps returns a copy of the steps.
func (p Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// TotalRotation is the sum of all clockwise turns, in degrees.
func (p Plan) TotalRotation() int {
	total := 0
	for _, s := range p.steps {
		if s.Kind == StepRotate {
			total += s.Arg
		}
	}
	return total
}

// Captures counts the capture steps.
func (p Plan) Captures() int {
	n := 0
	for _, s := range p.steps {
		if s.Kind == StepCapture {
			n++
		}
	}
	return n
}

func (p Plan) String() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}
