// flightCommands.go

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

import "context"

// TakeOff sends a normal takeoff request to the Tello and waits for it to be acknowledged.
func (tello *Tello) TakeOff(ctx context.Context) error {
	return tello.command(ctx, newPacket(ptSet, msgDoTakeoff, 0, 0))
}

// Land asks the Tello to land and waits for the acknowledgement.
// The sticks are centred first so the keepalive does not fight the landing.
func (tello *Tello) Land(ctx context.Context) error {
	tello.Hover()
	pkt := newPacket(ptSet, msgDoLand, 0, 1)
	pkt.payload[0] = 0
	return tello.command(ctx, pkt)
}

func (tello *Tello) command(ctx context.Context, pkt packet) error {
	if !tello.ControlConnected() {
		return ErrNotConnected
	}
	ack := tello.expectAck(pkt.messageID)
	if err := tello.sendPacket(pkt, true); err != nil {
		tello.cancelAck(pkt.messageID, ack)
		return err
	}
	return tello.awaitAck(ctx, pkt.messageID, ack)
}

// Hover centres all sticks.
func (tello *Tello) Hover() {
	tello.UpdateSticks(StickMessage{})
}

// pctToStick converts a -100..100 percentage into a stick deflection.
func pctToStick(pct int) int16 {
	switch {
	case pct > 100:
		pct = 100
	case pct < -100:
		pct = -100
	}
	return int16(pct) * 327 // /100 * 32767
}

// SetVelocity sets all four sticks from percentages of full deflection and sends them
// straight away rather than waiting for the next keepalive.
// lr is left/right, fb forward/back, ud up/down and yaw is clockwise rotation.
func (tello *Tello) SetVelocity(lr, fb, ud, yaw int) error {
	tello.UpdateSticks(StickMessage{
		Rx: pctToStick(lr),
		Ry: pctToStick(fb),
		Lx: pctToStick(yaw),
		Ly: pctToStick(ud),
	})
	return tello.sendStickUpdate()
}
