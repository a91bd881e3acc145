package wire

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"quote", QuoteMessage(StockQuote{Ticker: "AMD", Price: 123.4567, Volume: 42, Timestamp: 7})},
		{"quote-zero-price", QuoteMessage(StockQuote{Ticker: "X", Price: 0, Volume: 0, Timestamp: 0})},
		{"tickers", TickersMessage(34254, []string{"AMD", "INT"})},
		{"tickers-empty", TickersMessage(1000, nil)},
		{"ping", PingMessage()},
		{"pong", PongMessage()},
		{"unknown", Message{Kind: KindUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			dec, err := Decode(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(dec, tt.msg) {
				// Tickers with nil vs empty slice decode to an empty, non-nil
				// slice; normalize before comparing.
				if tt.msg.Kind == KindTickers && len(tt.msg.Tickers.Tickers) == 0 && len(dec.Tickers.Tickers) == 0 {
					dec.Tickers.Tickers = tt.msg.Tickers.Tickers
				}
				if !reflect.DeepEqual(dec, tt.msg) {
					t.Fatalf("round trip mismatch: got %+v, want %+v", dec, tt.msg)
				}
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	enc, err := Encode(QuoteMessage(StockQuote{Ticker: "AMD", Price: 1, Volume: 1, Timestamp: 1}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for n := 0; n < len(enc); n++ {
		if _, err := Decode(enc[:n]); err == nil {
			t.Fatalf("expected error decoding truncated buffer of length %d", n)
		}
	}
}

func TestDecodeUnknownKindByte(t *testing.T) {
	if _, err := Decode([]byte{200}); err == nil {
		t.Fatalf("expected error for unknown discriminant")
	}
}

func TestMaxDatagramSizeHoldsAQuote(t *testing.T) {
	enc, err := Encode(QuoteMessage(StockQuote{Ticker: "AMD", Price: 999.9999, Volume: 999999, Timestamp: 1 << 40}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) > MaxDatagramSize {
		t.Fatalf("encoded quote is %d bytes, want <= %d", len(enc), MaxDatagramSize)
	}
}

func TestPackWithLen(t *testing.T) {
	msg := TickersMessage(12948, []string{"AMD"})
	packed, err := PackWithLen(msg)
	if err != nil {
		t.Fatalf("PackWithLen: %v", err)
	}
	body, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packed) != 4+len(body) {
		t.Fatalf("packed length = %d, want %d", len(packed), 4+len(body))
	}
	gotLen := binary.BigEndian.Uint32(packed[:4])
	if int(gotLen) != len(body) {
		t.Fatalf("length prefix = %d, want %d", gotLen, len(body))
	}
	dec, err := Decode(packed[4:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(dec, msg) {
		t.Fatalf("decoded %+v, want %+v", dec, msg)
	}
}
