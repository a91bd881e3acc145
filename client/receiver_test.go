package main

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/wire"
)

func writeTickersFile(t *testing.T, tickers ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tickers.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	for _, tk := range tickers {
		f.WriteString(tk + "\n")
	}
	return path
}

// fakeServer accepts exactly one stream connection, reads the one Tickers
// subscription request off it, and lets the test drive quote/ping traffic.
type fakeServer struct {
	lis *net.TCPListener
}

func startFakeServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	lis, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	return &fakeServer{lis: lis}, lis.Addr().String()
}

func (f *fakeServer) acceptAndReadSubscription(t *testing.T) net.Conn {
	t.Helper()
	conn, err := f.lis.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	reader := bufio.NewReader(conn)
	var lenBuf [4]byte
	if _, err := reader.Read(lenBuf[:]); err != nil {
		t.Fatalf("read length prefix: %v", err)
	}
	return conn
}

func TestClientReceivesQuoteAndAnswersPingPong(t *testing.T) {
	withFastPingPeriods(t, 50, 200)

	tickersPath := writeTickersFile(t, "AMD")
	srv, addr := startFakeServer(t)
	defer srv.lis.Close()

	client, err := New(tickersPath, addr, "127.0.0.1", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	receiver, err := client.StartReceiveQuotes(0)
	if err != nil {
		t.Fatalf("StartReceiveQuotes: %v", err)
	}

	_ = srv.acceptAndReadSubscription(t)

	localUDPAddr := receiver.udpConn.LocalAddr().(*net.UDPAddr)
	serverUDP, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer serverUDP.Close()

	quote, _ := wire.Encode(wire.QuoteMessage(wire.StockQuote{Ticker: "AMD", Price: 100, Volume: 10, Timestamp: 1}))
	if _, err := serverUDP.WriteToUDP(quote, localUDPAddr); err != nil {
		t.Fatalf("write quote: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- receiver.Run() }()

	buf := make([]byte, wire.MaxDatagramSize)
	serverUDP.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := serverUDP.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected a ping from the client: %v", err)
	}
	msg, err := wire.Decode(buf[:n])
	if err != nil || msg.Kind != wire.KindPing {
		t.Fatalf("expected Ping, got %+v err=%v", msg, err)
	}
	pong, _ := wire.Encode(wire.PongMessage())
	serverUDP.WriteToUDP(pong, from)

	receiver.CmdChan() <- ReceiverCmdStop
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("receiver did not stop")
	}
}

func TestClientObservesServerUnreachableWhenPingWorkerDies(t *testing.T) {
	withFastPingPeriods(t, 20, 50)

	tickersPath := writeTickersFile(t, "AMD")
	srv, addr := startFakeServer(t)
	defer srv.lis.Close()

	client, err := New(tickersPath, addr, "127.0.0.1", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	receiver, err := client.StartReceiveQuotes(0)
	if err != nil {
		t.Fatalf("StartReceiveQuotes: %v", err)
	}
	_ = srv.acceptAndReadSubscription(t)

	localUDPAddr := receiver.udpConn.LocalAddr().(*net.UDPAddr)
	serverUDP, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer serverUDP.Close()

	runDone := make(chan error, 1)
	go func() { runDone <- receiver.Run() }()

	// First quote triggers the PING worker; the fake server never answers
	// any Ping, so the PING worker dies without ever receiving a Pong.
	quote1, _ := wire.Encode(wire.QuoteMessage(wire.StockQuote{Ticker: "AMD", Price: 100, Volume: 10, Timestamp: 1}))
	serverUDP.WriteToUDP(quote1, localUDPAddr)

	time.Sleep(300 * time.Millisecond)

	// A second quote lets the receiver notice the dead PING worker.
	quote2, _ := wire.Encode(wire.QuoteMessage(wire.StockQuote{Ticker: "AMD", Price: 101, Volume: 11, Timestamp: 2}))
	serverUDP.WriteToUDP(quote2, localUDPAddr)

	select {
	case err := <-runDone:
		if err == nil {
			t.Fatalf("expected ServerUnreachable, got nil")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("receiver did not observe the dead ping worker in time")
	}
}
