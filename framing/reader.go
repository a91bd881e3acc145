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

// Package framing accumulates bytes read off a stream connection and hands
// them back out in exact, fixed-size chunks - never a partial one. A command
// handler asks for a 4-byte length prefix, then for exactly that many bytes
// of payload; this package is what lets it poll a non-blocking connection
// without ever seeing a torn read.
package framing

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrTransport wraps any read failure from the underlying connection that
// is not a plain "no data available right now" condition.
var ErrTransport = errors.New("framing: transport error")

// pollTimeout is the read deadline applied to each ReadFrom attempt so a
// blocking net.Conn behaves like a non-blocking socket poll: either some
// bytes are already waiting and are returned immediately, or the deadline
// trips almost instantly and ReadFrom reports no progress.
const pollTimeout = 1 * time.Millisecond

// Framer buffers bytes pulled from a stream connection and releases them
// only in complete, caller-requested chunks.
type Framer struct {
	buf []byte
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{}
}

// ReadFrom makes one non-blocking-style read attempt against conn and
// appends whatever bytes were available to the internal buffer. No bytes
// being available is not an error: a read timeout, io.EOF, or
// io.ErrUnexpectedEOF all return a nil error, with whatever byte count the
// read produced. Any other failure is wrapped in ErrTransport.
func (f *Framer) ReadFrom(conn net.Conn) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return 0, errors.Wrap(ErrTransport, err.Error())
	}

	var tmp [4096]byte
	n, err := conn.Read(tmp[:])
	if n > 0 {
		f.buf = append(f.buf, tmp[:n]...)
	}
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return n, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, nil
		}
		return n, errors.Wrap(ErrTransport, err.Error())
	}
	return n, nil
}

// ExtractChunk pops exactly n bytes off the front of the buffer. It returns
// ok == false, leaving the buffer untouched, when fewer than n bytes have
// accumulated yet.
func (f *Framer) ExtractChunk(n int) (chunk []byte, ok bool) {
	if len(f.buf) < n {
		return nil, false
	}
	chunk = make([]byte, n)
	copy(chunk, f.buf[:n])
	f.buf = append(f.buf[:0], f.buf[n:]...)
	return chunk, true
}

// Buffered reports how many bytes are currently held, unconsumed.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
