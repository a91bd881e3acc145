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

// Package wire is the tagged-union message codec and stream-framing helper
// shared by the server and the client: it is the one place on either side of
// the connection that knows the on-the-wire byte layout.
package wire

import "fmt"

// MaxDatagramSize is the hard ceiling on any encoded message sent over the
// UDP path. The system commits to keeping every datagram (Quote/Ping/Pong)
// under this bound.
const MaxDatagramSize = 100

// Kind tags which field of a Message is meaningful.
type Kind uint8

const (
	KindQuote Kind = iota
	KindTickers
	KindPing
	KindPong
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindQuote:
		return "Quote"
	case KindTickers:
		return "Tickers"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// StockQuote is the unit of output from the generator to a subscriber.
// Timestamp is a generator sequence number, not a wall-clock value.
type StockQuote struct {
	Ticker    string
	Price     float64
	Volume    uint32
	Timestamp uint64
}

// String renders a StockQuote the way the client prints it to stdout.
func (q StockQuote) String() string {
	return fmt.Sprintf("T: %s, P: %.4f, V: %d, TIME: %d", q.Ticker, q.Price, q.Volume, q.Timestamp)
}

// TickersRequest is the payload of a Message of kind KindTickers: the port
// the sender wants quotes delivered to, and the set of tickers it wants.
type TickersRequest struct {
	Port    uint16
	Tickers []string
}

// Message is the tagged union carried over both the stream and the datagram
// transports. Only the field matching Kind is meaningful; the others carry
// their zero value.
type Message struct {
	Kind    Kind
	Quote   StockQuote
	Tickers TickersRequest
}

// QuoteMessage builds a Message wrapping a single StockQuote.
func QuoteMessage(q StockQuote) Message {
	return Message{Kind: KindQuote, Quote: q}
}

// TickersMessage builds a Message wrapping a subscription request.
func TickersMessage(port uint16, tickers []string) Message {
	return Message{Kind: KindTickers, Tickers: TickersRequest{Port: port, Tickers: tickers}}
}

// PingMessage is the liveness probe sent from client to server.
func PingMessage() Message { return Message{Kind: KindPing} }

// PongMessage is the liveness reply sent from server to client.
func PongMessage() Message { return Message{Kind: KindPong} }
