// tello_test.go

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
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDrone answers the control protocol on a loopback socket.
type fakeDrone struct {
	t    *testing.T
	conn *net.UDPConn

	mu       sync.Mutex
	peer     *net.UDPAddr
	silent   bool            // never acknowledge the connection request
	ackCodes map[uint16]byte // reply to these message IDs with the given code
	received []packet
}

func newFakeDrone(t *testing.T) *fakeDrone {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	fd := &fakeDrone{t: t, conn: conn, ackCodes: make(map[uint16]byte)}
	t.Cleanup(func() { conn.Close() })
	go fd.serve()
	return fd
}

func (fd *fakeDrone) port() int {
	return fd.conn.LocalAddr().(*net.UDPAddr).Port
}

func (fd *fakeDrone) options() Options {
	return Options{
		Addr:           "127.0.0.1",
		ControlPort:    fd.port(),
		LocalPort:      0,
		VideoPort:      DefaultVideoPort,
		ConnectTimeout: time.Second,
	}
}

func (fd *fakeDrone) serve() {
	buff := make([]byte, 2048)
	for {
		n, addr, err := fd.conn.ReadFromUDP(buff)
		if err != nil {
			return
		}
		fd.mu.Lock()
		fd.peer = addr
		silent := fd.silent
		fd.mu.Unlock()

		if bytes.HasPrefix(buff[:n], []byte("conn_req:")) {
			if !silent {
				reply := append([]byte("conn_ack:"), buff[9:11]...)
				fd.conn.WriteToUDP(reply, addr)
			}
			continue
		}
		pkt, err := bufferToPacket(buff[:n])
		if err != nil {
			continue
		}
		fd.mu.Lock()
		fd.received = append(fd.received, pkt)
		code, ack := fd.ackCodes[pkt.messageID]
		fd.mu.Unlock()
		if ack {
			fd.send(pkt.messageID, []byte{code})
		}
	}
}

func (fd *fakeDrone) send(id uint16, payload []byte) {
	pkt := newPacket(ptData1, id, 0, len(payload))
	pkt.toDrone = false
	pkt.fromDrone = true
	copy(pkt.payload, payload)
	fd.mu.Lock()
	peer := fd.peer
	fd.mu.Unlock()
	if peer != nil {
		fd.conn.WriteToUDP(packetToBuffer(pkt), peer)
	}
}

func (fd *fakeDrone) ack(id uint16, code byte) {
	fd.mu.Lock()
	fd.ackCodes[id] = code
	fd.mu.Unlock()
}

func (fd *fakeDrone) count(id uint16) int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	n := 0
	for _, p := range fd.received {
		if p.messageID == id {
			n++
		}
	}
	return n
}

func connectedDrone(t *testing.T) (*Tello, *fakeDrone) {
	fake := newFakeDrone(t)
	drone := New(zerolog.Nop())
	require.NoError(t, drone.Connect(context.Background(), fake.options()))
	t.Cleanup(drone.ControlDisconnect)
	return drone, fake
}

func TestControlConnectDisconnect(t *testing.T) {
	drone, fake := connectedDrone(t)
	assert.True(t, drone.ControlConnected())

	// the keepalive transmitter sends sticks every 50ms
	assert.Eventually(t, func() bool { return fake.count(msgSetStick) >= 2 }, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, drone.Connect(context.Background(), fake.options()), ErrAlreadyConnected)

	drone.ControlDisconnect()
	assert.False(t, drone.ControlConnected())
	assert.ErrorIs(t, drone.SetVelocity(10, 0, 0, 0), ErrNotConnected)
}

func TestConnectTimeout(t *testing.T) {
	fake := newFakeDrone(t)
	fake.mu.Lock()
	fake.silent = true
	fake.mu.Unlock()

	opts := fake.options()
	opts.ConnectTimeout = 100 * time.Millisecond
	drone := New(zerolog.Nop())

	err := drone.Connect(context.Background(), opts)
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.False(t, drone.ControlConnected())
}

func TestTakeoffAndLandAcknowledged(t *testing.T) {
	drone, fake := connectedDrone(t)
	fake.ack(msgDoTakeoff, 0)
	fake.ack(msgDoLand, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, drone.TakeOff(ctx))
	require.NoError(t, drone.Land(ctx))
	assert.Equal(t, 1, fake.count(msgDoTakeoff))
	assert.Equal(t, 1, fake.count(msgDoLand))
}

func TestTakeoffRejected(t *testing.T) {
	drone, fake := connectedDrone(t)
	fake.ack(msgDoTakeoff, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.ErrorIs(t, drone.TakeOff(ctx), ErrRejected)
}

func TestLandWithoutAckTimesOut(t *testing.T) {
	drone, _ := connectedDrone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, drone.Land(ctx), context.DeadlineExceeded)
	drone.acksMu.Lock()
	assert.Empty(t, drone.acks)
	drone.acksMu.Unlock()
}

func TestFlightStatusUpdatesFlightData(t *testing.T) {
	drone, fake := connectedDrone(t)
	assert.Eventually(t, func() bool { return fake.count(msgSetStick) > 0 }, time.Second, 10*time.Millisecond)

	pl := make([]byte, flightStatusSize)
	pl[0] = 15
	pl[12] = 64
	fake.send(msgFlightStatus, pl)
	fake.send(msgWifiStrength, []byte{90, 3})

	assert.Eventually(t, func() bool {
		fd := drone.GetFlightData()
		return fd.BatteryPercentage == 64 && fd.Height == 15 && fd.WifiStrength == 90
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlyToHeight(t *testing.T) {
	drone, fake := connectedDrone(t)
	assert.Eventually(t, func() bool { return fake.count(msgSetStick) > 0 }, time.Second, 10*time.Millisecond)

	pl := make([]byte, flightStatusSize)
	pl[0] = 10
	fake.send(msgFlightStatus, pl)
	assert.Eventually(t, func() bool { return drone.GetFlightData().Height == 10 }, time.Second, 10*time.Millisecond)

	// already there
	require.NoError(t, drone.FlyToHeight(context.Background(), 10))

	// never gets there
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, drone.FlyToHeight(ctx, 20), context.DeadlineExceeded)

	drone.ctrlMu.RLock()
	assert.Equal(t, int16(0), drone.ctrlLy)
	drone.ctrlMu.RUnlock()
}

func TestSetVelocityScalesPercentages(t *testing.T) {
	drone, _ := connectedDrone(t)

	require.NoError(t, drone.SetVelocity(10, -20, 100, 250))

	drone.ctrlMu.RLock()
	defer drone.ctrlMu.RUnlock()
	assert.Equal(t, int16(3270), drone.ctrlRx)
	assert.Equal(t, int16(-6540), drone.ctrlRy)
	assert.Equal(t, int16(32700), drone.ctrlLy)
	assert.Equal(t, int16(32700), drone.ctrlLx)
}

func TestDroneErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	drone := New(zerolog.New(&buf))

	drone.handlePacket(packet{messageID: msgError1, payload: []byte{0x01}})
	drone.handlePacket(packet{messageID: msgError2})

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Tello reported an error"))
	assert.Contains(t, out, `"id":67`)
	assert.Contains(t, out, `"level":"warn"`)
}
