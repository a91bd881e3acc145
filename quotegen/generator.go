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

// Package quotegen is the single shared source of simulated market data: one
// Generator walks every instrument's price with a normal distribution and
// samples its volume uniformly, and hands a batch of quotes to whichever
// Callback shows up on its channel at each poll. Unlike the original
// mutex-guarded generator this is message-passing only - callers never touch
// Generator state directly, they send a Callback and get results back
// through it.
package quotegen

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/SergeyPalam/streaming-quotes/timer"
	"github.com/SergeyPalam/streaming-quotes/wire"
)

const (
	handleCmdPeriodMillis    = 100
	waitCallbackPeriodMillis = 100
	waitCmdEvent             = "cmd"
	waitCallbackEvent        = "callback"
	priceNormalStdDev        = 0.5
)

// Callback receives one batch of generated quotes, one entry per configured
// ticker, every time the generator services a pending callback slot.
type Callback interface {
	Handle(quotes []wire.StockQuote) error
}

// Cmd is sent on a Generator's command channel to control its worker loop.
type Cmd int

const (
	// CmdStop asks the generator's worker goroutine to exit.
	CmdStop Cmd = iota
)

type tickerState struct {
	bounds       Ticker
	currentPrice float64
}

// Generator produces a simulated quote for every configured ticker once per
// callback request it services.
type Generator struct {
	tickers          map[string]*tickerState
	timestampCounter uint64
}

// New builds a Generator from a set of configured instruments, each seeded
// at half its upper price bound.
func New(tickers map[string]Ticker) *Generator {
	states := make(map[string]*tickerState, len(tickers))
	for name, t := range tickers {
		states[name] = &tickerState{bounds: t, currentPrice: t.UpperBoundPrice / 2.0}
	}
	return &Generator{tickers: states, timestampCounter: 1}
}

func (g *Generator) generateQuotes() []wire.StockQuote {
	quotes := make([]wire.StockQuote, 0, len(g.tickers))
	for name, state := range g.tickers {
		price := state.currentPrice + (state.bounds.priceRange()/64.0)*(rand.NormFloat64()*priceNormalStdDev)
		if price < 0 {
			price = 0
		}
		if price > state.bounds.UpperBoundPrice {
			price = state.bounds.UpperBoundPrice
		}
		state.currentPrice = price

		volRange := state.bounds.volumeRange()
		var volume uint32
		if volRange > 0 {
			volume = rand.Uint32()%volRange + state.bounds.LowerBoundVolume
		} else {
			volume = state.bounds.LowerBoundVolume
		}

		quotes = append(quotes, wire.StockQuote{
			Ticker:    name,
			Price:     price,
			Volume:    volume,
			Timestamp: g.timestampCounter,
		})
	}
	g.timestampCounter++
	return quotes
}

// Run is the generator's worker loop: it polls cmdCh for a CmdStop and
// callbackCh for a pending callback, each once per 100ms timer event on the
// shared cooperative Timer. It returns once CmdStop is
// received or cmdCh is closed.
func (g *Generator) Run(cmdCh <-chan Cmd, callbackCh <-chan Callback, log *zap.Logger) {
	tm := timer.New()
	tm.AddEvent(waitCmdEvent, handleCmdPeriodMillis)
	tm.AddEvent(waitCallbackEvent, waitCallbackPeriodMillis)

	for {
		tm.Sleep()

		if expired, _ := tm.IsExpiredEvent(waitCmdEvent); expired {
			tm.ResetEvent(waitCmdEvent)
			select {
			case cmd, open := <-cmdCh:
				if !open {
					log.Warn("generator: command channel closed, stopping")
					return
				}
				switch cmd {
				case CmdStop:
					log.Info("quotes generator stopped")
					return
				}
			default:
			}
		}

		if expired, _ := tm.IsExpiredEvent(waitCallbackEvent); expired {
			tm.ResetEvent(waitCallbackEvent)
			select {
			case cb, open := <-callbackCh:
				if !open {
					continue
				}
				if err := cb.Handle(g.generateQuotes()); err != nil {
					log.Warn("generator: callback failed", zap.Error(err))
				}
			default:
			}
		}
	}
}
