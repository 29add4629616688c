// tello.go

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
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default network settings of a Tello access point.
const (
	DefaultAddr        = "192.168.10.1"
	DefaultControlPort = 8889
	DefaultLocalPort   = 8800
	DefaultVideoPort   = 6038
)

const (
	keepAlivePeriodMs     = 50
	defaultConnectTimeout = 3 * time.Second
)

// Errors returned by the driver.
var (
	ErrAlreadyConnected = errors.New("tello: already connected")
	ErrNotConnected     = errors.New("tello: not connected")
	ErrConnectTimeout   = errors.New("tello: timeout waiting for response to connection request")
	ErrRejected         = errors.New("tello: command rejected")
	ErrAutopilotBusy    = errors.New("tello: autopilot already navigating on this axis")
)

// Options describes where to find the drone.
type Options struct {
	Addr           string
	ControlPort    int
	LocalPort      int // 0 picks an ephemeral port
	VideoPort      int
	ConnectTimeout time.Duration
}

// DefaultOptions returns the settings used by a stock Tello.
func DefaultOptions() Options {
	return Options{
		Addr:           DefaultAddr,
		ControlPort:    DefaultControlPort,
		LocalPort:      DefaultLocalPort,
		VideoPort:      DefaultVideoPort,
		ConnectTimeout: defaultConnectTimeout,
	}
}

// Tello holds the current state of a connection to a Tello drone
type Tello struct {
	log zerolog.Logger

	ctrlMu                         sync.RWMutex // this mutex protects the control fields
	ctrlConn, videoConn            *net.UDPConn
	ctrlStopChan, videoStopChan    chan struct{}
	ctrlConnecting, ctrlConnected  bool
	connAckChan                    chan struct{}
	ctrlSeq                        uint16
	ctrlRx, ctrlRy, ctrlLx, ctrlLy int16 // we are using the SDL convention: vals range from -32768 to 32767
	ctrlSportsMode                 bool  // are we in 'sports' (a.k.a. 'Fast') mode?
	videoChan                      chan []byte

	acksMu sync.Mutex
	acks   map[uint16]chan byte // pending acknowledgements by message ID

	fdMu sync.RWMutex // this mutex protects the flight data fields
	fd   FlightData   // our private amalgamated store of the latest data

	autoMu           sync.Mutex
	autoHeight       bool
	autoYaw          bool
	autoFullThrottle int16

	wg sync.WaitGroup
}

// New returns an unconnected Tello which logs to log.
func New(log zerolog.Logger) *Tello {
	return &Tello{
		log:              log.With().Str("component", "tello").Logger(),
		acks:             make(map[uint16]chan byte),
		autoFullThrottle: defaultFullThrottle,
	}
}

// Connect attempts to connect to a Tello using opts.
// It then starts listening for responses on the control channel and waits for the
// Tello to respond, giving up when ctx ends or opts.ConnectTimeout elapses.
func (tello *Tello) Connect(ctx context.Context, opts Options) error {
	tello.ctrlMu.Lock()
	if tello.ctrlConnected {
		tello.ctrlMu.Unlock()
		return ErrAlreadyConnected
	}
	if tello.ctrlConnecting {
		tello.ctrlMu.Unlock()
		return errors.New("tello: connection attempt already in progress")
	}
	tello.ctrlConnecting = true
	tello.ctrlMu.Unlock()

	conn, err := dial(opts)
	if err != nil {
		tello.ctrlMu.Lock()
		tello.ctrlConnecting = false
		tello.ctrlMu.Unlock()
		return err
	}

	tello.ctrlMu.Lock()
	tello.ctrlConn = conn
	tello.ctrlStopChan = make(chan struct{})
	tello.connAckChan = make(chan struct{})
	ack := tello.connAckChan
	tello.ctrlMu.Unlock()

	tello.wg.Add(1)
	go tello.controlResponseListener(conn)

	// say hello to the Tello
	if err := tello.sendConnectRequest(uint16(opts.VideoPort)); err != nil {
		tello.ControlDisconnect()
		return err
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ack:
	case <-timer.C:
		tello.ControlDisconnect()
		return ErrConnectTimeout
	case <-ctx.Done():
		tello.ControlDisconnect()
		return ctx.Err()
	}

	tello.log.Info().Str("addr", opts.Addr).Int("port", opts.ControlPort).Msg("Connected to Tello")

	// start the keepalive transmitter
	tello.wg.Add(1)
	go tello.keepAlive()

	return nil
}

func dial(opts Options) (*net.UDPConn, error) {
	droneAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(opts.Addr, strconv.Itoa(opts.ControlPort)))
	if err != nil {
		return nil, err
	}
	localAddr, err := net.ResolveUDPAddr("udp", ":"+strconv.Itoa(opts.LocalPort))
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", localAddr, droneAddr)
}

// ControlDisconnect stops the control channel listener and closes the connection to a Tello
func (tello *Tello) ControlDisconnect() {
	tello.ctrlMu.Lock()
	if tello.ctrlConn == nil {
		tello.ctrlMu.Unlock()
		return
	}
	close(tello.ctrlStopChan)
	tello.ctrlConn.Close()
	tello.ctrlConn = nil
	tello.ctrlConnected = false
	tello.ctrlConnecting = false
	tello.ctrlMu.Unlock()

	tello.wg.Wait()
	tello.log.Info().Msg("Disconnected from Tello")
}

// ControlConnected returns true if we are currently connected
func (tello *Tello) ControlConnected() (c bool) {
	tello.ctrlMu.RLock()
	c = tello.ctrlConnected
	tello.ctrlMu.RUnlock()
	return c
}

// GetFlightData returns the current known state of the Tello
func (tello *Tello) GetFlightData() FlightData {
	tello.fdMu.RLock()
	rfd := tello.fd
	tello.fdMu.RUnlock()
	return rfd
}

func (tello *Tello) controlResponseListener(conn *net.UDPConn) {
	defer tello.wg.Done()
	buff := make([]byte, 4096)

	for {
		n, err := conn.Read(buff)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				tello.log.Debug().Msg("Control response listener stopped")
				return
			}
			tello.log.Warn().Err(err).Msg("Network read error")
			continue
		}

		// the initial connect response is different...
		if bytes.HasPrefix(buff[:n], []byte("conn_ack:")) {
			tello.ctrlMu.Lock()
			if tello.ctrlConnecting {
				tello.log.Debug().Int("len", n).Msg("conn_ack received")
				tello.ctrlConnecting = false
				tello.ctrlConnected = true
				close(tello.connAckChan)
			}
			tello.ctrlMu.Unlock()
			continue
		}

		pkt, err := bufferToPacket(buff[:n])
		if err != nil {
			tello.log.Debug().Uint8("first", buff[0]).Int("len", n).Msg("Unexpected network message from Tello")
			continue
		}
		tello.handlePacket(pkt)
	}
}

func (tello *Tello) handlePacket(pkt packet) {
	switch pkt.messageID {
	case msgDoTakeoff, msgDoLand, msgDoPalmLand:
		var code byte
		if len(pkt.payload) > 0 {
			code = pkt.payload[0]
		}
		tello.deliverAck(pkt.messageID, code)
	case msgFlightStatus:
		tmpFd, err := payloadToFlightData(pkt.payload)
		if err != nil {
			tello.log.Debug().Err(err).Msg("Bad flight status")
			return
		}
		tello.fdMu.Lock()
		// not all fields are sent...
		tmpFd.IMU = tello.fd.IMU
		tmpFd.MVO = tello.fd.MVO
		tmpFd.LightStrength = tello.fd.LightStrength
		tmpFd.WifiStrength = tello.fd.WifiStrength
		tmpFd.WifiInterference = tello.fd.WifiInterference
		tello.fd = tmpFd
		tello.fdMu.Unlock()
	case msgLightStrength:
		if len(pkt.payload) < 1 {
			return
		}
		tello.fdMu.Lock()
		tello.fd.LightStrength = pkt.payload[0]
		tello.fdMu.Unlock()
	case msgLogHeader:
		if len(pkt.payload) >= 2 {
			tello.ackLogHeader(pkt.payload[0:2])
		}
	case msgLogData:
		tello.parseLogPacket(pkt.payload)
	case msgSetDateTime:
		tello.sendDateTime()
	case msgError1, msgError2:
		tello.log.Warn().Uint16("id", pkt.messageID).Hex("payload", pkt.payload).Msg("Tello reported an error")
	case msgWifiStrength:
		if len(pkt.payload) < 2 {
			return
		}
		tello.fdMu.Lock()
		tello.fd.WifiStrength = pkt.payload[0]
		tello.fd.WifiInterference = pkt.payload[1]
		tello.fdMu.Unlock()
	default:
		tello.log.Trace().Uint16("id", pkt.messageID).Uint16("size", pkt.size13).
			Uint8("type", pkt.packetType).Msg("Unhandled message from Tello")
	}
}

// expectAck registers interest in the drone's answer to message id.
// It must be called before the request is sent.
func (tello *Tello) expectAck(id uint16) chan byte {
	ch := make(chan byte, 1)
	tello.acksMu.Lock()
	tello.acks[id] = ch
	tello.acksMu.Unlock()
	return ch
}

func (tello *Tello) deliverAck(id uint16, code byte) {
	tello.acksMu.Lock()
	ch, ok := tello.acks[id]
	if ok {
		delete(tello.acks, id)
	}
	tello.acksMu.Unlock()
	if ok {
		ch <- code
	}
}

func (tello *Tello) awaitAck(ctx context.Context, id uint16, ch chan byte) error {
	select {
	case code := <-ch:
		if code != 0 {
			return fmt.Errorf("%w: message 0x%04x answered with code %d", ErrRejected, id, code)
		}
		return nil
	case <-ctx.Done():
		tello.cancelAck(id, ch)
		return ctx.Err()
	}
}

func (tello *Tello) cancelAck(id uint16, ch chan byte) {
	tello.acksMu.Lock()
	if tello.acks[id] == ch {
		delete(tello.acks, id)
	}
	tello.acksMu.Unlock()
}

// sendPacket numbers and transmits pkt on the control channel.
func (tello *Tello) sendPacket(pkt packet, numbered bool) error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	if tello.ctrlConn == nil {
		return ErrNotConnected
	}
	if numbered {
		tello.ctrlSeq++
		pkt.sequence = tello.ctrlSeq
	}
	_, err := tello.ctrlConn.Write(packetToBuffer(pkt))
	return err
}

func (tello *Tello) sendConnectRequest(videoPort uint16) error {
	// the initial connect request is different to the usual packets...
	msgBuff := []byte("conn_req:lh")
	msgBuff[9] = byte(videoPort & 0xff)
	msgBuff[10] = byte(videoPort >> 8)
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	_, err := tello.ctrlConn.Write(msgBuff)
	return err
}

func (tello *Tello) sendDateTime() {
	pkt := newPacket(ptData1, msgSetDateTime, 0, 15)

	now := time.Now()
	pkt.payload[0] = 0
	pkt.payload[1] = byte(now.Year())
	pkt.payload[2] = byte(now.Year() >> 8)
	pkt.payload[3] = byte(int(now.Month()))
	pkt.payload[4] = byte(int(now.Month()) >> 8)
	pkt.payload[5] = byte(now.Day())
	pkt.payload[6] = byte(now.Day() >> 8)
	pkt.payload[7] = byte(now.Hour())
	pkt.payload[8] = byte(now.Hour() >> 8)
	pkt.payload[9] = byte(now.Minute())
	pkt.payload[10] = byte(now.Minute() >> 8)
	pkt.payload[11] = byte(now.Second())
	pkt.payload[12] = byte(now.Second() >> 8)
	ms := now.UnixNano() / 1000000
	pkt.payload[13] = byte(ms)
	pkt.payload[14] = byte(ms >> 8)

	if err := tello.sendPacket(pkt, true); err != nil {
		tello.log.Debug().Err(err).Msg("Failed to send date/time")
	}
}

func (tello *Tello) keepAlive() {
	defer tello.wg.Done()
	ticker := time.NewTicker(keepAlivePeriodMs * time.Millisecond)
	defer ticker.Stop()

	tello.ctrlMu.RLock()
	stop := tello.ctrlStopChan
	tello.ctrlMu.RUnlock()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := tello.sendStickUpdate(); err != nil && !errors.Is(err, ErrNotConnected) {
				tello.log.Debug().Err(err).Msg("Keepalive stick update failed")
			}
		}
	}
}

// UpdateSticks does a one-off update of the stick values which are then sent to the Tello
// by the keepalive transmitter.
func (tello *Tello) UpdateSticks(sm StickMessage) {
	tello.ctrlMu.Lock()
	tello.ctrlLx = sm.Lx
	tello.ctrlLy = sm.Ly
	tello.ctrlRx = sm.Rx
	tello.ctrlRy = sm.Ry
	tello.ctrlMu.Unlock()
}

// SetSportsMode switches the 'fast' flight mode bit carried in every stick update.
func (tello *Tello) SetSportsMode(sports bool) {
	tello.ctrlMu.Lock()
	tello.ctrlSportsMode = sports
	tello.ctrlMu.Unlock()
}

func jsInt16ToTello(sv int16) uint64 {
	// sv is in range -32768 to 32767, we need 660 to 1388 where 0 => 1024
	return uint64(int(sv)/90 + 1024)
}

// packSticks builds the 11-byte stick payload; the time fields come from now.
func packSticks(rx, ry, lx, ly int16, sports bool, now time.Time) []byte {
	payload := make([]byte, 11)

	// This packing of the joystick data is just vile...
	packedAxes := jsInt16ToTello(rx) & 0x07ff
	packedAxes |= (jsInt16ToTello(ry) & 0x07ff) << 11
	packedAxes |= (jsInt16ToTello(ly) & 0x07ff) << 22
	packedAxes |= (jsInt16ToTello(lx) & 0x07ff) << 33
	if sports {
		packedAxes |= 1 << 44
	}

	payload[0] = byte(packedAxes)
	payload[1] = byte(packedAxes >> 8)
	payload[2] = byte(packedAxes >> 16)
	payload[3] = byte(packedAxes >> 24)
	payload[4] = byte(packedAxes >> 32)
	payload[5] = byte(packedAxes >> 40)

	payload[6] = byte(now.Hour())
	payload[7] = byte(now.Minute())
	payload[8] = byte(now.Second())
	ms := now.UnixNano() / 1000000
	payload[9] = byte(ms & 0xff)
	payload[10] = byte(ms >> 8)
	return payload
}

func (tello *Tello) sendStickUpdate() error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	if tello.ctrlConn == nil || !tello.ctrlConnected {
		return ErrNotConnected
	}

	pkt := newPacket(ptData2, msgSetStick, 0, 0)
	pkt.payload = packSticks(tello.ctrlRx, tello.ctrlRy, tello.ctrlLx, tello.ctrlLy, tello.ctrlSportsMode, time.Now())

	_, err := tello.ctrlConn.Write(packetToBuffer(pkt))
	return err
}
