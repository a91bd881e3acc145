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
	"encoding/binary"
	"net"

	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/errs"
	"github.com/SergeyPalam/streaming-quotes/framing"
	"github.com/SergeyPalam/streaming-quotes/timer"
	"github.com/SergeyPalam/streaming-quotes/wire"
)

const (
	handlerCmdPeriodMillis  = 300
	checkTCPCmdPeriodMillis = 100
	handlerEventCmd         = "cmd"
	handlerEventCheckTCPCmd = "check_tcp_cmd"
)

type handlerState int

const (
	waitPackLen handlerState = iota
	waitPack
)

// HandlerCmdKind tags a command sent to a Handler's own control channel
// (used by the Server Root to cascade shutdown).
type HandlerCmdKind int

const (
	HandlerCmdStop HandlerCmdKind = iota
)

// streamWorker is the slice of *Streamer a Handler depends on; factored out
// so tests can substitute a fake without binding a real UDP socket.
type streamWorker interface {
	CmdChan() chan<- StreamerCmd
	Run()
}

// Handler is the per-connection stream-side worker: it frames and decodes
// incoming Tickers requests and forwards them to its Streamer.
type Handler struct {
	conn     net.Conn
	streamer streamWorker
	cmdCh    chan HandlerCmdKind
	log      *zap.Logger

	framer  *framing.Framer
	state   handlerState
	wantLen int
}

// NewHandler wires together a stream connection and the Streamer that will
// serve it.
func NewHandler(conn net.Conn, streamer streamWorker, log *zap.Logger) *Handler {
	return &Handler{
		conn:     conn,
		streamer: streamer,
		cmdCh:    make(chan HandlerCmdKind, 1),
		log:      log,
		framer:   framing.New(),
		state:    waitPackLen,
	}
}

// CmdChan returns the control channel the Server Root sends Stop on.
func (h *Handler) CmdChan() chan<- HandlerCmdKind { return h.cmdCh }

// Run is the Handler's worker loop. It starts the Streamer, services the
// framed request stream until a transport fault, protocol violation, or
// Stop command, then cascades Stop to the Streamer and joins it.
func (h *Handler) Run() error {
	defer h.conn.Close()

	streamerDone := make(chan struct{})
	go func() {
		h.streamer.Run()
		close(streamerDone)
	}()

	tm := timer.New()
	tm.AddEvent(handlerEventCmd, handlerCmdPeriodMillis)
	tm.AddEvent(handlerEventCheckTCPCmd, checkTCPCmdPeriodMillis)

	stopReason := error(nil)
loop:
	for {
		tm.Sleep()

		if expired, _ := tm.IsExpiredEvent(handlerEventCmd); expired {
			tm.ResetEvent(handlerEventCmd)
			select {
			case cmd, open := <-h.cmdCh:
				if !open || cmd == HandlerCmdStop {
					break loop
				}
			default:
			}
		}

		if expired, _ := tm.IsExpiredEvent(handlerEventCheckTCPCmd); expired {
			tm.ResetEvent(handlerEventCheckTCPCmd)
			if _, err := h.framer.ReadFrom(h.conn); err != nil {
				h.log.Warn("handler: transport fault", zap.Error(err))
				stopReason = errs.ErrFraming
				break loop
			}
			if err := h.drainFramer(); err != nil {
				h.log.Warn("handler: protocol fault", zap.Error(err))
				stopReason = err
				break loop
			}
		}
	}

	h.streamer.CmdChan() <- StreamerCmd{Kind: StreamerCmdStop}
	<-streamerDone
	if stopReason != nil {
		h.log.Info("handler stopped", zap.Error(stopReason))
	} else {
		h.log.Info("handler stopped")
	}
	return stopReason
}

func (h *Handler) drainFramer() error {
	for {
		switch h.state {
		case waitPackLen:
			chunk, ok := h.framer.ExtractChunk(4)
			if !ok {
				return nil
			}
			h.wantLen = int(binary.BigEndian.Uint32(chunk))
			h.state = waitPack
		case waitPack:
			chunk, ok := h.framer.ExtractChunk(h.wantLen)
			if !ok {
				return nil
			}
			msg, err := wire.Decode(chunk)
			if err != nil {
				return errs.ErrProtocol
			}
			if msg.Kind != wire.KindTickers {
				return errs.ErrProtocol
			}
			h.streamer.CmdChan() <- StreamerCmd{
				Kind:    StreamerCmdQuotes,
				Port:    msg.Tickers.Port,
				Tickers: msg.Tickers.Tickers,
			}
			h.state = waitPackLen
		}
	}
}
