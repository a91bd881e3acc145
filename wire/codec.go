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

package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrTruncated is returned by Decode when the supplied buffer ends before a
// complete message could be read.
var ErrTruncated = errors.New("wire: truncated message")

// ErrUnknownKind is returned by Decode when the leading discriminant byte
// does not correspond to any known Kind.
var ErrUnknownKind = errors.New("wire: unknown message kind")

// Encode renders m as a self-delimiting binary buffer: a one-byte
// discriminant followed by the fields relevant to that discriminant. Strings
// are length-prefixed with a Uvarint byte count, integers are Uvarint, and
// floats are little-endian IEEE-754.
func Encode(m Message) ([]byte, error) {
	buf := []byte{byte(m.Kind)}
	switch m.Kind {
	case KindQuote:
		buf = appendString(buf, m.Quote.Ticker)
		buf = appendFloat64(buf, m.Quote.Price)
		buf = binary.AppendUvarint(buf, uint64(m.Quote.Volume))
		buf = binary.AppendUvarint(buf, m.Quote.Timestamp)
	case KindTickers:
		buf = binary.AppendUvarint(buf, uint64(m.Tickers.Port))
		buf = binary.AppendUvarint(buf, uint64(len(m.Tickers.Tickers)))
		for _, tk := range m.Tickers.Tickers {
			buf = appendString(buf, tk)
		}
	case KindPing, KindPong, KindUnknown:
		// no payload
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "encode: kind %d", m.Kind)
	}
	return buf, nil
}

// Decode parses b into a Message. decode(encode(m)) == m for every Message
// this package can produce, except that a nil Tickers list decodes as an
// empty, non-nil slice.
func Decode(b []byte) (Message, error) {
	d := &decoder{buf: b}
	kindByte, err := d.readByte()
	if err != nil {
		return Message{}, err
	}
	kind := Kind(kindByte)

	var m Message
	m.Kind = kind
	switch kind {
	case KindQuote:
		ticker, err := d.readString()
		if err != nil {
			return Message{}, err
		}
		price, err := d.readFloat64()
		if err != nil {
			return Message{}, err
		}
		volume, err := d.readUvarint()
		if err != nil {
			return Message{}, err
		}
		timestamp, err := d.readUvarint()
		if err != nil {
			return Message{}, err
		}
		m.Quote = StockQuote{Ticker: ticker, Price: price, Volume: uint32(volume), Timestamp: timestamp}
	case KindTickers:
		port, err := d.readUvarint()
		if err != nil {
			return Message{}, err
		}
		count, err := d.readUvarint()
		if err != nil {
			return Message{}, err
		}
		tickers := make([]string, 0, count)
		for i := uint64(0); i < count; i++ {
			tk, err := d.readString()
			if err != nil {
				return Message{}, err
			}
			tickers = append(tickers, tk)
		}
		m.Tickers = TickersRequest{Port: uint16(port), Tickers: tickers}
	case KindPing, KindPong, KindUnknown:
		// no payload
	default:
		return Message{}, errors.Wrapf(ErrUnknownKind, "decode: kind %d", kind)
	}
	return m, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendFloat64(buf []byte, f float64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	return append(buf, tmp[:]...)
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrTruncated
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	d.pos += n
	return v, nil
}

func (d *decoder) readFloat64() (float64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrTruncated
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8]))
	d.pos += 8
	return v, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readUvarint()
	if err != nil {
		return "", err
	}
	if d.pos+int(n) > len(d.buf) {
		return "", ErrTruncated
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}
