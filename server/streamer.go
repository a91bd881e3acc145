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
	"github.com/SergeyPalam/streaming-quotes/quotegen"
	"github.com/SergeyPalam/streaming-quotes/timer"
	"github.com/SergeyPalam/streaming-quotes/wire"
)

const (
	streamerCmdPeriodMillis = 300
	checkPingPeriodMillis   = 100
	streamPeriodMillis      = 1000
	pingWaitMillis          = 40000
	silenceLimit            = pingWaitMillis / checkPingPeriodMillis
	streamerEventCmd        = "cmd"
	streamerEventCheckPing  = "check_ping"
	streamerEventStream     = "stream"
	udpReadPoll             = 1 * time.Millisecond
)

// StreamerCmdKind tags a StreamerCmd's meaning.
type StreamerCmdKind int

const (
	StreamerCmdNoop StreamerCmdKind = iota
	StreamerCmdStop
	StreamerCmdQuotes
)

// StreamerCmd is sent by a Handler to its Streamer's control channel.
type StreamerCmd struct {
	Kind    StreamerCmdKind
	Port    uint16
	Tickers []string
}

type streamerState int

const (
	streamerIdle streamerState = iota
	streamerSubscribed
	streamerClosing
)

// Streamer is the per-connection UDP-side worker: it answers PINGs with
// PONGs, watches for PING silence, and on every stream tick submits a
// filter-and-send callback to the shared Generator for the currently
// subscribed tickers.
type Streamer struct {
	conn       *net.UDPConn
	clientIP   net.IP
	cmdCh      chan StreamerCmd
	generateCh chan<- quotegen.Callback
	log        *zap.Logger

	state          streamerState
	port           uint16
	tickers        map[string]struct{}
	silenceCounter int
}

// NewStreamer binds a fresh UDP socket on bindHost (port chosen by the OS,
// so many Streamers can coexist on one host) for the connection whose
// stream-side remote address is clientIP.
func NewStreamer(bindHost string, clientIP net.IP, generateCh chan<- quotegen.Callback, log *zap.Logger) (*Streamer, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindHost), Port: 0}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}
	return &Streamer{
		conn:       conn,
		clientIP:   clientIP,
		cmdCh:      make(chan StreamerCmd, 8),
		generateCh: generateCh,
		log:        log,
		state:      streamerIdle,
	}, nil
}

// CmdChan returns the control channel a Handler forwards commands on.
func (s *Streamer) CmdChan() chan<- StreamerCmd { return s.cmdCh }

// LocalAddr exposes the bound UDP socket's address, mostly for tests.
func (s *Streamer) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Run is the Streamer's worker loop. It returns when it reaches
// streamerClosing, either by command, PING timeout, or protocol violation.
func (s *Streamer) Run() {
	defer s.conn.Close()

	tm := timer.New()
	tm.AddEvent(streamerEventCmd, streamerCmdPeriodMillis)
	tm.AddEvent(streamerEventCheckPing, checkPingPeriodMillis)
	tm.AddEvent(streamerEventStream, streamPeriodMillis)

	for s.state != streamerClosing {
		tm.Sleep()

		if expired, _ := tm.IsExpiredEvent(streamerEventCmd); expired {
			tm.ResetEvent(streamerEventCmd)
			s.handleCmd()
		}
		if s.state == streamerClosing {
			break
		}

		if expired, _ := tm.IsExpiredEvent(streamerEventCheckPing); expired {
			tm.ResetEvent(streamerEventCheckPing)
			s.checkPing()
		}
		if s.state == streamerClosing {
			break
		}

		if expired, _ := tm.IsExpiredEvent(streamerEventStream); expired {
			tm.ResetEvent(streamerEventStream)
			s.submitStreamCallback()
		}
	}
	s.log.Info("streamer stopped")
}

func (s *Streamer) handleCmd() {
	select {
	case cmd, open := <-s.cmdCh:
		if !open {
			s.log.Warn("streamer: control channel closed", zap.Error(errs.ErrChannelClosed))
			s.state = streamerClosing
			return
		}
		switch cmd.Kind {
		case StreamerCmdStop:
			s.state = streamerClosing
		case StreamerCmdQuotes:
			set := make(map[string]struct{}, len(cmd.Tickers))
			for _, tk := range cmd.Tickers {
				set[tk] = struct{}{}
			}
			s.port = cmd.Port
			s.tickers = set
			if s.state == streamerIdle {
				s.state = streamerSubscribed
			}
		case StreamerCmdNoop:
		}
	default:
	}
}

func (s *Streamer) checkPing() {
	if err := s.conn.SetReadDeadline(time.Now().Add(udpReadPoll)); err != nil {
		s.log.Warn("streamer: set read deadline", zap.Error(err))
		return
	}
	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		// Both a read timeout and other transient errors (e.g. ICMP
		// port-unreachable) count as "no ping this tick".
		s.silenceCounter++
		if s.silenceCounter >= silenceLimit {
			s.log.Warn("streamer: ping silence exceeded, closing")
			s.state = streamerClosing
		}
		return
	}

	msg, err := wire.Decode(buf[:n])
	if err != nil || msg.Kind != wire.KindPing {
		s.log.Warn("streamer: unexpected datagram, expected Ping", zap.Error(errs.ErrProtocol))
		s.state = streamerClosing
		return
	}
	s.silenceCounter = 0

	pong, err := wire.Encode(wire.PongMessage())
	if err != nil {
		s.log.Warn("streamer: encoding pong", zap.Error(err))
		return
	}
	if _, err := s.conn.WriteToUDP(pong, from); err != nil {
		s.log.Warn("streamer: sending pong", zap.Error(err))
	}
}

func (s *Streamer) submitStreamCallback() {
	if s.state != streamerSubscribed {
		return
	}
	dest := &net.UDPAddr{IP: s.clientIP, Port: int(s.port)}
	cb := &streamerCallback{conn: s.conn, dest: dest, tickers: s.tickers, log: s.log}
	select {
	case s.generateCh <- cb:
	default:
		s.log.Warn("streamer: generator callback channel full, dropping this tick")
	}
}

// streamerCallback is the self-contained work item a Streamer hands to the
// Generator: a socket, a destination address, and the subscribed-tickers
// filter. It never touches Streamer state directly, so it is safe to
// invoke from the Generator's own goroutine.
type streamerCallback struct {
	conn    *net.UDPConn
	dest    *net.UDPAddr
	tickers map[string]struct{}
	log     *zap.Logger
}

func (c *streamerCallback) Handle(quotes []wire.StockQuote) error {
	var firstErr error
	for _, q := range quotes {
		if _, ok := c.tickers[q.Ticker]; !ok {
			continue
		}
		buf, err := wire.Encode(wire.QuoteMessage(q))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := c.conn.WriteToUDP(buf, c.dest); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
