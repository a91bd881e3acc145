package main

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/quotegen"
	"github.com/SergeyPalam/streaming-quotes/wire"
)

func TestStreamerRepliesPongToPing(t *testing.T) {
	callbackCh := make(chan quotegen.Callback, 4)
	s, err := NewStreamer("127.0.0.1", net.ParseIP("127.0.0.1"), callbackCh, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStreamer: %v", err)
	}

	client, err := net.DialUDP("udp", nil, s.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	ping, _ := wire.Encode(wire.PingMessage())
	if _, err := client.Write(ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, wire.MaxDatagramSize)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	msg, err := wire.Decode(buf[:n])
	if err != nil || msg.Kind != wire.KindPong {
		t.Fatalf("expected Pong, got %+v err=%v", msg, err)
	}

	s.CmdChan() <- StreamerCmd{Kind: StreamerCmdStop}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("streamer did not stop")
	}
}

func TestStreamerEmitsNoDatagramsWithoutSubscription(t *testing.T) {
	callbackCh := make(chan quotegen.Callback, 4)
	s, err := NewStreamer("127.0.0.1", net.ParseIP("127.0.0.1"), callbackCh, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStreamer: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(1200 * time.Millisecond)

	select {
	case cb := <-callbackCh:
		t.Fatalf("unexpected callback submitted with no subscription: %+v", cb)
	default:
	}

	s.CmdChan() <- StreamerCmd{Kind: StreamerCmdStop}
	<-done
}

func TestStreamerCallbackFiltersToSubscribedTickers(t *testing.T) {
	dest, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer dest.Close()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	cb := &streamerCallback{
		conn:    conn,
		dest:    dest.LocalAddr().(*net.UDPAddr),
		tickers: map[string]struct{}{"AMD": {}},
		log:     zap.NewNop(),
	}

	quotes := []wire.StockQuote{
		{Ticker: "AMD", Price: 10, Volume: 1, Timestamp: 1},
		{Ticker: "XYZ", Price: 20, Volume: 2, Timestamp: 1},
	}
	if err := cb.Handle(quotes); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	dest.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, wire.MaxDatagramSize)
	n, err := dest.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := wire.Decode(buf[:n])
	if err != nil || msg.Kind != wire.KindQuote || msg.Quote.Ticker != "AMD" {
		t.Fatalf("expected AMD quote, got %+v err=%v", msg, err)
	}

	dest.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := dest.Read(buf); err == nil {
		t.Fatalf("expected no second datagram for unsubscribed XYZ ticker")
	}
}
