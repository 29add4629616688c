// video.go

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
	"errors"
	"net"
	"strconv"
)

const videoChanDepth = 100

// VideoConnect starts listening for the H.264 stream on the given local UDP port.
// Chunks arrive on the returned channel; if the consumer falls behind they are dropped.
func (tello *Tello) VideoConnect(udpPort int) (<-chan []byte, error) {
	addr, err := net.ResolveUDPAddr("udp", ":"+strconv.Itoa(udpPort))
	if err != nil {
		return nil, err
	}
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	if tello.videoConn != nil {
		return nil, errors.New("tello: video already connected")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	tello.videoConn = conn
	tello.videoStopChan = make(chan struct{})
	tello.videoChan = make(chan []byte, videoChanDepth)
	go tello.videoResponseListener(conn, tello.videoChan, tello.videoStopChan)
	tello.log.Debug().Int("port", udpPort).Msg("Video connection setup complete")
	return tello.videoChan, nil
}

// VideoDisconnect closes the connection to the video channel
func (tello *Tello) VideoDisconnect() {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	if tello.videoConn == nil {
		return
	}
	close(tello.videoStopChan)
	tello.videoConn.Close()
	tello.videoConn = nil
}

func (tello *Tello) videoResponseListener(conn *net.UDPConn, out chan []byte, stop chan struct{}) {
	defer close(out)
	dropped := 0
	for {
		vbuf := make([]byte, 2048)
		n, _, err := conn.ReadFromUDP(vbuf)
		if err != nil {
			select {
			case <-stop:
				tello.log.Debug().Int("dropped", dropped).Msg("Video listener stopped")
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			tello.log.Warn().Err(err).Msg("Error reading from video channel")
			continue
		}
		if n <= 2 {
			continue
		}
		// the first two bytes are a frame/sequence header, not video
		select {
		case out <- vbuf[2:n]:
		default: // so we don't block
			dropped++
		}
	}
}

// StartVideo asks the Tello to send SPS/PPS, which the decoder needs before it can
// produce pictures. It should be repeated about once a second while streaming.
func (tello *Tello) StartVideo() error {
	return tello.sendPacket(newPacket(ptData2, msgQueryVideoSPSPPS, 0, 0), false)
}

// SetVideoBitrate asks the Tello to use the given video bitrate.
func (tello *Tello) SetVideoBitrate(vbr VBR) error {
	pkt := newPacket(ptSet, msgSetVideoBitrate, 0, 1)
	pkt.payload[0] = byte(vbr)
	return tello.sendPacket(pkt, true)
}

// SetVideoNormal selects the normal (4:3) video mode.
func (tello *Tello) SetVideoNormal() error {
	pkt := newPacket(ptSet, msgSwitchPicVideo, 0, 1)
	pkt.payload[0] = vmNormal
	return tello.sendPacket(pkt, true)
}

// SetVideoWide selects the wide (16:9) video mode.
func (tello *Tello) SetVideoWide() error {
	pkt := newPacket(ptSet, msgSwitchPicVideo, 0, 1)
	pkt.payload[0] = vmWide
	return tello.sendPacket(pkt, true)
}
