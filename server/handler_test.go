package main

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/wire"
)

// fakeStreamer substitutes for a real Streamer in Handler tests: it is the
// sole consumer of its own command channel (avoiding a race with the test
// goroutine) and republishes every non-Stop command it sees on received so
// a test can assert on what the Handler forwarded.
type fakeStreamer struct {
	cmdCh    chan StreamerCmd
	received chan StreamerCmd
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		cmdCh:    make(chan StreamerCmd, 8),
		received: make(chan StreamerCmd, 8),
	}
}

func (f *fakeStreamer) CmdChan() chan<- StreamerCmd { return f.cmdCh }

func (f *fakeStreamer) Run() {
	for cmd := range f.cmdCh {
		if cmd.Kind == StreamerCmdStop {
			return
		}
		f.received <- cmd
	}
}

func packTickers(t *testing.T, port uint16, tickers []string) []byte {
	t.Helper()
	buf, err := wire.PackWithLen(wire.TickersMessage(port, tickers))
	if err != nil {
		t.Fatalf("PackWithLen: %v", err)
	}
	return buf
}

// TestHandlerFramingRobustness mirrors scenario 6: two Tickers messages
// concatenated and delivered in 7-byte chunks must produce exactly two
// Quotes commands, in order, with nothing left over.
func TestHandlerFramingRobustness(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	streamer := newFakeStreamer()
	h := NewHandler(server, streamer, zap.NewNop())

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	payload := append(packTickers(t, 1000, []string{"AMD"}), packTickers(t, 2000, []string{"INT", "XYZ"})...)

	go func() {
		for i := 0; i < len(payload); i += 7 {
			end := i + 7
			if end > len(payload) {
				end = len(payload)
			}
			client.Write(payload[i:end])
			time.Sleep(5 * time.Millisecond)
		}
	}()

	var got []StreamerCmd
	timeout := time.After(5 * time.Second)
collect:
	for len(got) < 2 {
		select {
		case cmd := <-streamer.received:
			got = append(got, cmd)
		case <-timeout:
			break collect
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d commands, want 2", len(got))
	}
	if got[0].Port != 1000 || len(got[0].Tickers) != 1 || got[0].Tickers[0] != "AMD" {
		t.Fatalf("first command wrong: %+v", got[0])
	}
	if got[1].Port != 2000 || len(got[1].Tickers) != 2 {
		t.Fatalf("second command wrong: %+v", got[1])
	}

	h.cmdCh <- HandlerCmdStop
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler did not stop")
	}
	if n := h.framer.Buffered(); n != 0 {
		t.Fatalf("%d residual bytes left in the framer, want 0", n)
	}
}

func TestHandlerRejectsNonTickersMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	streamer := newFakeStreamer()
	h := NewHandler(server, streamer, zap.NewNop())

	go func() {
		body, _ := wire.Encode(wire.PingMessage())
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
		client.Write(lenBuf[:])
		client.Write(body)
	}()

	runDone := make(chan error, 1)
	go func() {
		runDone <- h.Run()
	}()

	select {
	case err := <-runDone:
		if err == nil {
			t.Fatalf("expected protocol error for non-Tickers message")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler did not stop after protocol violation")
	}
}
