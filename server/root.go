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
)

const (
	rootCmdPeriodMillis = 300
	acceptPeriodMillis  = 100
	rootEventCmd        = "cmd"
	rootEventAccept     = "accept"
	acceptPoll          = 1 * time.Millisecond

	callbackChanBuffer = 64
)

// RootCmdKind tags a command sent to the Server Root's own control channel,
// driven by the "exit" console prompt.
type RootCmdKind int

const (
	RootCmdStop RootCmdKind = iota
)

type handlerHandle struct {
	cmdCh chan<- HandlerCmdKind
	done  chan struct{}
	err   error
}

// Root is the Server Root (C7): it accepts stream connections, spawns a
// Handler+Streamer pair per connection wired to the shared Generator, and
// shuts the fleet down in insertion order on command.
type Root struct {
	listener     *net.TCPListener
	streamerHost string
	generator    *quotegen.Generator
	generatorCmd chan quotegen.Cmd
	callbackCh   chan quotegen.Callback
	cmdCh        chan RootCmdKind
	log          *zap.Logger

	handlers []*handlerHandle
}

// NewRoot binds the stream listener on listenAddr and constructs (but does
// not yet start) the Generator from the instrument config at tickersPath.
func NewRoot(listenAddr, streamerHost, tickersPath string, log *zap.Logger) (*Root, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", listenAddr)
	if err != nil {
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}
	lis, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, errors.Wrap(errs.ErrTransport, err.Error())
	}

	tickers, err := quotegen.LoadTickers(tickersPath)
	if err != nil {
		lis.Close()
		return nil, err
	}

	return &Root{
		listener:     lis,
		streamerHost: streamerHost,
		generator:    quotegen.New(tickers),
		generatorCmd: make(chan quotegen.Cmd, 1),
		callbackCh:   make(chan quotegen.Callback, callbackChanBuffer),
		cmdCh:        make(chan RootCmdKind, 1),
		log:          log,
	}, nil
}

// CmdChan returns the control channel the CLI's "exit" prompt sends Stop on.
func (r *Root) CmdChan() chan<- RootCmdKind { return r.cmdCh }

// Run is the Server Root's accept loop. It returns once RootCmdStop is
// received or the listener fails, after the whole fleet (handlers, then the
// generator) has been shut down in order.
func (r *Root) Run() error {
	generatorDone := make(chan struct{})
	go func() {
		r.generator.Run(r.generatorCmd, r.callbackCh, r.log.Named("generator"))
		close(generatorDone)
	}()

	tm := timer.New()
	tm.AddEvent(rootEventCmd, rootCmdPeriodMillis)
	tm.AddEvent(rootEventAccept, acceptPeriodMillis)

	var firstErr error
loop:
	for {
		tm.Sleep()

		if expired, _ := tm.IsExpiredEvent(rootEventCmd); expired {
			tm.ResetEvent(rootEventCmd)
			select {
			case cmd, open := <-r.cmdCh:
				if !open || cmd == RootCmdStop {
					break loop
				}
			default:
			}
		}

		if expired, _ := tm.IsExpiredEvent(rootEventAccept); expired {
			tm.ResetEvent(rootEventAccept)
			if err := r.acceptOnce(); err != nil {
				r.log.Error("root: listener error", zap.Error(err))
				firstErr = err
				break loop
			}
		}
	}

	if err := r.shutdownHandlers(); err != nil && firstErr == nil {
		firstErr = err
	}

	r.generatorCmd <- quotegen.CmdStop
	<-generatorDone

	r.listener.Close()
	return firstErr
}

func (r *Root) acceptOnce() error {
	if err := r.listener.SetDeadline(time.Now().Add(acceptPoll)); err != nil {
		return errors.Wrap(errs.ErrTransport, err.Error())
	}
	conn, err := r.listener.Accept()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil
		}
		return errors.Wrap(errs.ErrTransport, err.Error())
	}

	clientIP := conn.RemoteAddr().(*net.TCPAddr).IP
	streamer, err := NewStreamer(r.streamerHost, clientIP, r.callbackCh, r.log.Named("streamer"))
	if err != nil {
		r.log.Error("root: starting streamer", zap.Error(err))
		conn.Close()
		return nil
	}
	handler := NewHandler(conn, streamer, r.log.Named("handler"))

	handle := &handlerHandle{cmdCh: handler.CmdChan(), done: make(chan struct{})}
	go func() {
		handle.err = handler.Run()
		close(handle.done)
	}()
	r.handlers = append(r.handlers, handle)
	return nil
}

func (r *Root) shutdownHandlers() error {
	var firstErr error
	for _, h := range r.handlers {
		h.cmdCh <- HandlerCmdStop
		<-h.done
		if h.err != nil && firstErr == nil {
			firstErr = h.err
		}
	}
	return firstErr
}
