// autopilot.go

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

package tello

import (
	"context"
	"errors"
	"time"
)

const autopilotPeriodMs = 25 // how often the autopilot(s) monitor the drone

const (
	defaultFullThrottle = 32500
	yawToleranceDeg     = 2
	maxYawStepDeg       = 90 // FlyToYaw takes the short way round, so bigger turns are split
)

// SetAutopilotThrottle limits the autopilot's stick deflection to pct of full travel.
func (tello *Tello) SetAutopilotThrottle(pct int) {
	if pct < 1 {
		pct = 1
	}
	if pct > 100 {
		pct = 100
	}
	tello.autoMu.Lock()
	tello.autoFullThrottle = int16(pct * defaultFullThrottle / 100)
	tello.autoMu.Unlock()
}

func (tello *Tello) fullThrottle() int16 {
	tello.autoMu.Lock()
	defer tello.autoMu.Unlock()
	return tello.autoFullThrottle
}

// heightThrottle returns the vertical stick for a height error of delta decimetres,
// positive when we are too low.
func heightThrottle(delta, full int16) int16 {
	switch {
	case delta > 4:
		return full // full throttle if >40cm off target
	case delta > 0:
		return full / 2 // half throttle if <40cm off target
	case delta < -4:
		return -full
	case delta < 0:
		return -full / 2
	}
	return 0
}

// yawDelta returns the shortest signed rotation from current to target, in degrees.
func yawDelta(target, current int16) int16 {
	delta := int(target) - int(current)
	for delta > 180 {
		delta -= 360
	}
	for delta < -180 {
		delta += 360
	}
	return int16(delta)
}

func yawThrottle(delta, full int16) int16 {
	switch {
	case delta > 10:
		return full // full throttle if >10deg off target
	case delta > 0:
		return full / 2
	case delta < -10:
		return -full
	case delta < 0:
		return -full / 2
	}
	return 0
}

func normaliseYaw(deg int) int16 {
	deg %= 360
	if deg > 180 {
		deg -= 360
	}
	if deg <= -180 {
		deg += 360
	}
	return int16(deg)
}

func (tello *Tello) claimAxis(flag *bool) error {
	tello.autoMu.Lock()
	defer tello.autoMu.Unlock()
	if *flag {
		return ErrAutopilotBusy
	}
	*flag = true
	return nil
}

func (tello *Tello) releaseAxis(flag *bool) {
	tello.autoMu.Lock()
	*flag = false
	tello.autoMu.Unlock()
}

// FlyToHeight moves the Tello to the given height in decimetres from the ground.
// It returns once the height is reached, or with ctx's error if ctx ends first.
// Either way vertical movement is stopped before returning.
func (tello *Tello) FlyToHeight(ctx context.Context, dm int16) error {
	if !tello.ControlConnected() {
		return ErrNotConnected
	}
	if err := tello.claimAxis(&tello.autoHeight); err != nil {
		return err
	}
	defer tello.releaseAxis(&tello.autoHeight)

	full := tello.fullThrottle()
	ticker := time.NewTicker(autopilotPeriodMs * time.Millisecond)
	defer ticker.Stop()

	for {
		tello.fdMu.RLock()
		delta := dm - tello.fd.Height // delta will be positive if we are too low
		tello.fdMu.RUnlock()

		ly := heightThrottle(delta, full)
		tello.ctrlMu.Lock()
		tello.ctrlLy = ly
		tello.ctrlMu.Unlock()
		if err := tello.sendStickUpdate(); err != nil {
			return err
		}
		if ly == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			tello.stopAxis(func() { tello.ctrlLy = 0 })
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FlyToYaw rotates the Tello to the given IMU yaw, -180 to +180 degrees, by the shortest route.
func (tello *Tello) FlyToYaw(ctx context.Context, targetYaw int16) error {
	if targetYaw < -180 || targetYaw > 180 {
		return errors.New("tello: target yaw must be between -180 and +180")
	}
	if !tello.ControlConnected() {
		return ErrNotConnected
	}
	if err := tello.claimAxis(&tello.autoYaw); err != nil {
		return err
	}
	defer tello.releaseAxis(&tello.autoYaw)

	full := tello.fullThrottle()
	ticker := time.NewTicker(autopilotPeriodMs * time.Millisecond)
	defer ticker.Stop()

	for {
		tello.fdMu.RLock()
		delta := yawDelta(targetYaw, tello.fd.IMU.Yaw)
		tello.fdMu.RUnlock()

		var lx int16
		if delta > yawToleranceDeg || delta < -yawToleranceDeg {
			lx = yawThrottle(delta, full)
		}
		tello.ctrlMu.Lock()
		tello.ctrlLx = lx
		tello.ctrlMu.Unlock()
		if err := tello.sendStickUpdate(); err != nil {
			return err
		}
		if lx == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			tello.stopAxis(func() { tello.ctrlLx = 0 })
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TurnBy rotates deg degrees from the current heading, clockwise if positive.
func (tello *Tello) TurnBy(ctx context.Context, deg int) error {
	for deg != 0 {
		step := deg
		if step > maxYawStepDeg {
			step = maxYawStepDeg
		}
		if step < -maxYawStepDeg {
			step = -maxYawStepDeg
		}
		current := tello.GetFlightData().IMU.Yaw
		if err := tello.FlyToYaw(ctx, normaliseYaw(int(current)+step)); err != nil {
			return err
		}
		deg -= step
	}
	return nil
}

func (tello *Tello) stopAxis(zero func()) {
	tello.ctrlMu.Lock()
	zero()
	tello.ctrlMu.Unlock()
	_ = tello.sendStickUpdate()
}
