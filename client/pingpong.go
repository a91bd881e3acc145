// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/errs"
	"github.com/SergeyPalam/streaming-quotes/timer"
	"github.com/SergeyPalam/streaming-quotes/wire"
)

const (
	pingPongCmdPeriodMillis = 300
	eventCmd                = "cmd"
	eventPing               = "ping"
	eventPong               = "pong"
)

// pingPeriodMillis and pongWaitMillis are the spec's 30s/5s liveness
// periods. They are vars, not consts, solely so tests can shrink them
// instead of waiting out real minutes.
var (
	pingPeriodMillis uint64 = 30000
	pongWaitMillis   uint64 = 5000
)

// PingPongCmdKind tags a command sent to a PingPong worker's control
// channel.
type PingPongCmdKind int

const (
	PingPongCmdStop PingPongCmdKind = iota
)

type pingPongState int

const (
	waitPing pingPongState = iota
	waitPong
)

// PingPong is the client's liveness worker (C8.1): it sends a Ping every
// 30s and expects a Pong from exactly serverAddr within 5s of it.
type PingPong struct {
	conn       *net.UDPConn
	serverAddr *net.UDPAddr
	cmdCh      chan PingPongCmdKind
	log        *zap.Logger

	state pingPongState
}

// NewPingPong binds a fresh UDP socket on bindHost (OS-assigned port) aimed
// at serverAddr, the address the first quote datagram was observed to come
// from.
func NewPingPong(bindHost string, serverAddr *net.UDPAddr, log *zap.Logger) (*PingPong, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(bindHost), Port: 0})
	if err != nil {
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}
	return &PingPong{
		conn:       conn,
		serverAddr: serverAddr,
		cmdCh:      make(chan PingPongCmdKind, 1),
		log:        log,
		state:      waitPing,
	}, nil
}

// CmdChan returns the control channel the receive worker sends Stop on.
func (p *PingPong) CmdChan() chan<- PingPongCmdKind { return p.cmdCh }

// Run is the PingPong worker loop. It returns nil on a clean Stop, and a
// non-nil error when the server failed to Pong back in time or replied from
// the wrong address - either ends the worker, which the receive worker
// observes as "server unreachable".
func (p *PingPong) Run() error {
	defer p.conn.Close()

	tm := timer.New()
	tm.AddEvent(eventCmd, pingPongCmdPeriodMillis)
	tm.AddEvent(eventPing, pingPeriodMillis)
	tm.AddEvent(eventPong, pongWaitMillis)

	for {
		tm.Sleep()

		if expired, _ := tm.IsExpiredEvent(eventCmd); expired {
			tm.ResetEvent(eventCmd)
			select {
			case cmd, open := <-p.cmdCh:
				if !open || cmd == PingPongCmdStop {
					return nil
				}
			default:
			}
		}

		switch p.state {
		case waitPing:
			if expired, _ := tm.IsExpiredEvent(eventPing); expired {
				tm.ResetEvent(eventPing)
				ping, err := wire.Encode(wire.PingMessage())
				if err != nil {
					return err
				}
				if _, err := p.conn.WriteToUDP(ping, p.serverAddr); err != nil {
					return errors.Wrap(errs.ErrTransport, err.Error())
				}
				tm.ResetEvent(eventPong)
				p.state = waitPong
			}
		case waitPong:
			if expired, _ := tm.IsExpiredEvent(eventPong); expired {
				if err := p.checkPong(); err != nil {
					return err
				}
				tm.ResetEvent(eventPing)
				p.state = waitPing
			}
		}
	}
}

func (p *PingPong) checkPong() error {
	if err := p.conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond)); err != nil {
		return errors.Wrap(errs.ErrTransport, err.Error())
	}
	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return errors.Wrap(errs.ErrServerUnreachable, "no pong within deadline")
	}
	if !from.IP.Equal(p.serverAddr.IP) || from.Port != p.serverAddr.Port {
		return errors.Wrap(errs.ErrServerUnreachable, "pong from unexpected address")
	}
	msg, err := wire.Decode(buf[:n])
	if err != nil || msg.Kind != wire.KindPong {
		return errors.Wrap(errs.ErrServerUnreachable, "expected pong")
	}
	return nil
}
