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

// Package errs holds the sentinel errors shared between the server and
// client workers, the taxonomy every worker's non-recoverable failure gets
// wrapped into before it is logged and cascaded to its siblings.
package errs

import "github.com/pkg/errors"

var (
	// ErrTransport marks a socket/bind/accept/read/write failure that a
	// worker cannot recover from on its own.
	ErrTransport = errors.New("transport error")
	// ErrProtocol marks an unexpected message kind, a failed decode, or a
	// source-address mismatch.
	ErrProtocol = errors.New("protocol error")
	// ErrFraming marks a declared length that never arrives before the
	// stream fails.
	ErrFraming = errors.New("framing error")
	// ErrChannelClosed marks a sibling worker having died; treated the same
	// as an explicit Stop by the receiving worker.
	ErrChannelClosed = errors.New("channel closed")
	// ErrServerUnreachable is client-side only: the PING worker ended.
	ErrServerUnreachable = errors.New("server unreachable")
)
