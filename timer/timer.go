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

// Package timer implements the cooperative, tick-driven scheduler shared by
// every long-lived worker in this system (the generator, the per-connection
// streamer and handler, the client's receiver and ping/pong worker). A single
// owner goroutine calls Sleep once per loop iteration and then polls whichever
// named events it cares about; there is no callback firing and no cross-
// goroutine synchronization inside the Timer itself.
package timer

import (
	"time"

	"github.com/pkg/errors"
)

// Tick is the fixed duration Sleep advances by on every call.
const Tick = 10 * time.Millisecond

// ErrUnknownEvent is returned by RemoveEvent, ResetEvent and IsExpiredEvent
// when asked about a name that was never registered with AddEvent.
var ErrUnknownEvent = errors.New("timer: unknown event")

type event struct {
	counter uint64
	boundMs uint64
}

func (e *event) bound() uint64 {
	return e.boundMs / uint64(Tick/time.Millisecond)
}

func (e *event) tick() {
	if e.counter < e.bound() {
		e.counter++
	}
}

func (e *event) isExpired() bool {
	return e.counter >= e.bound()
}

// Timer is a named set of saturating tick counters. It is not safe for
// concurrent use: every worker in this system owns exactly one Timer on its
// own goroutine.
type Timer struct {
	events map[string]*event
}

// New returns an empty Timer.
func New() *Timer {
	return &Timer{events: make(map[string]*event)}
}

// AddEvent registers name with a fresh zero counter, replacing any existing
// event of the same name.
func (t *Timer) AddEvent(name string, boundMs uint64) {
	t.events[name] = &event{boundMs: boundMs}
}

// RemoveEvent drops a registered event.
func (t *Timer) RemoveEvent(name string) error {
	if _, ok := t.events[name]; !ok {
		return ErrUnknownEvent
	}
	delete(t.events, name)
	return nil
}

// ResetEvent sets a registered event's counter back to zero.
func (t *Timer) ResetEvent(name string) error {
	e, ok := t.events[name]
	if !ok {
		return ErrUnknownEvent
	}
	e.counter = 0
	return nil
}

// IsExpiredEvent reports whether at least boundMs/Tick ticks (integer
// division, rounded down) have elapsed since the event was added or last
// reset. The result is sticky: it
// stays true until an explicit ResetEvent or RemoveEvent/AddEvent.
func (t *Timer) IsExpiredEvent(name string) (bool, error) {
	e, ok := t.events[name]
	if !ok {
		return false, ErrUnknownEvent
	}
	return e.isExpired(), nil
}

// Sleep blocks for one Tick and then advances every registered event's
// counter by one, saturating at its bound.
func (t *Timer) Sleep() {
	time.Sleep(Tick)
	for _, e := range t.events {
		e.tick()
	}
}
