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

package quotegen

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ErrConfig is wrapped by every instrument-config parsing failure: a
// malformed file, a missing required field, or a field of the wrong type.
var ErrConfig = errors.New("quotegen: config error")

// Ticker is one instrument's price-walk and volume-sampling bounds.
type Ticker struct {
	UpperBoundPrice  float64
	UpperBoundVolume uint32
	LowerBoundVolume uint32
}

func (t Ticker) priceRange() float64 { return t.UpperBoundPrice }
func (t Ticker) volumeRange() uint32 { return t.UpperBoundVolume - t.LowerBoundVolume }

// LoadTickers reads the instrument list from path. Each entry is a JSON
// object:
//
//	{
//	    "name": "AMD",
//	    "upper_bound_price": 1000.0,
//	    "upper_bound_volume": 1000000,
//	    "lower_bound_volume": 1000
//	}
//
// Parsing is deliberately done through map[string]interface{} rather than
// a struct: a struct-based json.Unmarshal silently zero-fills a missing
// field, which would let a broken config file through as all-zero bounds.
// Reading each field through an explicit type assertion turns a missing or
// mistyped field into an ErrConfig instead.
func LoadTickers(path string) (map[string]Ticker, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "reading %s: %v", path, err)
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrapf(ErrConfig, "parsing %s: %v", path, err)
	}

	tickers := make(map[string]Ticker, len(entries))
	for _, entry := range entries {
		name, ok := entry["name"].(string)
		if !ok {
			return nil, errors.Wrapf(ErrConfig, "can't read ticker name from config: %s", path)
		}
		ticker, ok := tickerFromJSON(entry)
		if !ok {
			return nil, errors.Wrapf(ErrConfig, "can't read ticker params from config: %s", path)
		}
		tickers[name] = ticker
	}
	return tickers, nil
}

func tickerFromJSON(entry map[string]interface{}) (Ticker, bool) {
	upperPrice, ok := asFloat64(entry["upper_bound_price"])
	if !ok {
		return Ticker{}, false
	}
	upperVolume, ok := asUint32(entry["upper_bound_volume"])
	if !ok {
		return Ticker{}, false
	}
	lowerVolume, ok := asUint32(entry["lower_bound_volume"])
	if !ok {
		return Ticker{}, false
	}
	if lowerVolume >= upperVolume {
		return Ticker{}, false
	}
	return Ticker{
		UpperBoundPrice:  upperPrice,
		UpperBoundVolume: upperVolume,
		LowerBoundVolume: lowerVolume,
	}, true
}

func asFloat64(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asUint32(v interface{}) (uint32, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, false
	}
	return uint32(f), true
}
