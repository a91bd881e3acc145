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
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/errs"
	"github.com/SergeyPalam/streaming-quotes/timer"
	"github.com/SergeyPalam/streaming-quotes/wire"
)

const (
	receiverCmdPeriodMillis    = 300
	receiverQuotesPeriodMillis = 100
	receiverEventCmd           = "cmd"
	receiverEventQuotes        = "quotes"
)

// ReceiverCmdKind tags a command sent to a Receiver's control channel.
type ReceiverCmdKind int

const (
	ReceiverCmdStop ReceiverCmdKind = iota
)

// Client is the Client Core (C8): it knows which tickers to subscribe to
// and where the server is, but opens no sockets until StartReceiveQuotes.
type Client struct {
	tickers    []string
	serverAddr string
	pingHost   string
	log        *zap.Logger
}

// New parses the tickers file and resolves the server address. It does not
// open any connection.
func New(tickersPath, serverAddr, pingHost string, log *zap.Logger) (*Client, error) {
	tickers, err := readTickers(tickersPath)
	if err != nil {
		return nil, err
	}
	if _, err := net.ResolveTCPAddr("tcp", serverAddr); err != nil {
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}
	return &Client{tickers: tickers, serverAddr: serverAddr, pingHost: pingHost, log: log}, nil
}

// Receiver is the worker spawned by StartReceiveQuotes: it prints incoming
// quotes to stdout and supervises the PING worker it starts on first
// datagram arrival.
type Receiver struct {
	udpConn    *net.UDPConn
	streamConn net.Conn
	cmdCh      chan ReceiverCmdKind
	pingHost   string
	log        *zap.Logger

	pingWorker *PingPong
	// pingDone is closed exactly once, by the goroutine running pingWorker,
	// after storing its result in pingErr. A close is safe to observe from
	// any number of receivers (pollQuotes and stopPingWorker both do),
	// unlike a single buffered value which only one reader can consume.
	pingDone chan struct{}
	pingErr  error
}

// StartReceiveQuotes opens the datagram receive socket on localPort, writes
// the one-shot subscription request over a fresh stream connection to the
// server, and returns a Receiver ready to be run.
func (c *Client) StartReceiveQuotes(localPort uint16) (*Receiver, error) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: int(localPort)})
	if err != nil {
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}

	streamConn, err := net.Dial("tcp", c.serverAddr)
	if err != nil {
		udpConn.Close()
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}

	packed, err := wire.PackWithLen(wire.TickersMessage(localPort, c.tickers))
	if err != nil {
		udpConn.Close()
		streamConn.Close()
		return nil, err
	}
	if _, err := streamConn.Write(packed); err != nil {
		udpConn.Close()
		streamConn.Close()
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}

	return &Receiver{
		udpConn:    udpConn,
		streamConn: streamConn,
		cmdCh:      make(chan ReceiverCmdKind, 1),
		pingHost:   c.pingHost,
		log:        c.log,
	}, nil
}

// CmdChan returns the control channel the CLI's "exit" prompt sends Stop on.
func (r *Receiver) CmdChan() chan<- ReceiverCmdKind { return r.cmdCh }

// Run is the receive worker loop (C8's main body). It returns nil on a
// clean Stop and errs.ErrServerUnreachable once the PING worker it
// supervises has died.
func (r *Receiver) Run() error {
	defer r.udpConn.Close()
	defer r.streamConn.Close()

	tm := timer.New()
	tm.AddEvent(receiverEventCmd, receiverCmdPeriodMillis)
	tm.AddEvent(receiverEventQuotes, receiverQuotesPeriodMillis)

	for {
		tm.Sleep()

		if expired, _ := tm.IsExpiredEvent(receiverEventCmd); expired {
			tm.ResetEvent(receiverEventCmd)
			select {
			case cmd, open := <-r.cmdCh:
				if !open || cmd == ReceiverCmdStop {
					r.stopPingWorker()
					return nil
				}
			default:
			}
		}

		if expired, _ := tm.IsExpiredEvent(receiverEventQuotes); expired {
			tm.ResetEvent(receiverEventQuotes)
			if err := r.pollQuotes(); err != nil {
				r.stopPingWorker()
				return err
			}
		}
	}
}

func (r *Receiver) pollQuotes() error {
	if err := r.udpConn.SetReadDeadline(time.Now().Add(1 * time.Millisecond)); err != nil {
		return errors.Wrap(errs.ErrTransport, err.Error())
	}
	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := r.udpConn.ReadFromUDP(buf)
	if err != nil {
		return nil // would-block: no quote this tick
	}

	if r.pingWorker == nil {
		r.spawnPingWorker(from)
	} else {
		select {
		case <-r.pingDone:
			return errors.Wrap(errs.ErrServerUnreachable, "ping worker terminated")
		default:
		}
	}

	msg, err := wire.Decode(buf[:n])
	if err != nil {
		r.log.Warn("receiver: failed to decode datagram", zap.Error(err))
		return nil
	}
	if msg.Kind == wire.KindQuote {
		fmt.Println(msg.Quote.String())
	} else {
		r.log.Warn("receiver: unexpected datagram kind", zap.String("kind", msg.Kind.String()))
	}
	return nil
}

func (r *Receiver) spawnPingWorker(serverUDPAddr *net.UDPAddr) {
	pp, err := NewPingPong(r.pingHost, serverUDPAddr, r.log.Named("pingpong"))
	if err != nil {
		r.log.Error("receiver: failed to start ping worker", zap.Error(err))
		return
	}
	r.pingWorker = pp
	r.pingDone = make(chan struct{})
	go func() {
		r.pingErr = pp.Run()
		close(r.pingDone)
	}()
}

func (r *Receiver) stopPingWorker() {
	if r.pingWorker == nil {
		return
	}
	select {
	case <-r.pingDone:
		return
	default:
	}
	r.pingWorker.CmdChan() <- PingPongCmdStop
	<-r.pingDone
}
