// link.go

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

// Package link defines the capability set the pilot needs from a vehicle and
// the errors a vehicle reports.
package link

import (
	"context"
	"fmt"
)

// Velocity is one stick command, each component a signed percentage of the
// configured speed limit. It is sent to the vehicle verbatim.
type Velocity struct {
	ForwardBack int `json:"forwardBack" msgpack:"fb"`
	LeftRight   int `json:"leftRight" msgpack:"lr"`
	UpDown      int `json:"upDown" msgpack:"ud"`
	Yaw         int `json:"yaw" msgpack:"yaw"`
}

// Clamp limits every component to ±limit.
func (v Velocity) Clamp(limit int) Velocity {
	c := func(x int) int {
		switch {
		case x > limit:
			return limit
		case x < -limit:
			return -limit
		}
		return x
	}
	return Velocity{
		ForwardBack: c(v.ForwardBack),
		LeftRight:   c(v.LeftRight),
		UpDown:      c(v.UpDown),
		Yaw:         c(v.Yaw),
	}
}

// IsZero reports whether all components are zero.
func (v Velocity) IsZero() bool {
	return v == Velocity{}
}

func (v Velocity) String() string {
	return fmt.Sprintf("fb=%d lr=%d ud=%d yaw=%d", v.ForwardBack, v.LeftRight, v.UpDown, v.Yaw)
}

// Telemetry is the vehicle state that is not video.
type Telemetry struct {
	Battery  int  `json:"battery" msgpack:"battery"` // percent
	HeightCM int  `json:"heightCm" msgpack:"heightCm"`
	Yaw      int  `json:"yaw" msgpack:"yaw"` // degrees, -180..180
	Flying   bool `json:"flying" msgpack:"flying"`
}

// Vehicle is the capability set of a remotely piloted quadcopter.
//
// Calls that take a context block until the vehicle acknowledges or completes
// them. Frame, Battery and SendVelocity never wait for the vehicle.
type Vehicle interface {
	Connect(ctx context.Context) error
	SetSpeed(ctx context.Context, limit int) error
	StreamOn(ctx context.Context) error
	StreamOff(ctx context.Context) error
	// Frame returns the newest decoded frame, if any has arrived.
	Frame() (Frame, bool)
	Battery() int
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	SendVelocity(v Velocity) error
	MoveUp(ctx context.Context, cm int) error
	MoveDown(ctx context.Context, cm int) error
	RotateClockwise(ctx context.Context, deg int) error
	Disconnect() error
}

// TelemetrySource is implemented by vehicles that report more than battery level.
type TelemetrySource interface {
	Telemetry() Telemetry
}

// ReadTelemetry returns v's telemetry, falling back to battery only.
func ReadTelemetry(v Vehicle) Telemetry {
	if ts, ok := v.(TelemetrySource); ok {
		return ts.Telemetry()
	}
	return Telemetry{Battery: v.Battery()}
}
