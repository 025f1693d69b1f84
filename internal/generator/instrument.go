// Package generator produces a synthetic instrument feed for demos and
// offline runs: a trending random walk with EMA-12/EMA-26 and crossover
// signals, written to the store the same way a real producer would.
package generator

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// Signals emitted on an EMA crossover.
const (
	SignalBullish = "BULLISH_CROSS"
	SignalBearish = "BEARISH_CROSS"
)

// TimestampLayout is the payload timestamp format: UTC, milliseconds, no zone.
const TimestampLayout = "2006-01-02 15:04:05.000"

const (
	defaultBasePrice  = 150.50
	defaultTrend      = 0.0001
	defaultVolatility = 0.002

	emaShortPeriod = 12
	emaLongPeriod  = 26
)

// Tick is one generated data point.
type Tick struct {
	Timestamp   time.Time
	Price       float64
	EMAShort    float64
	EMALong     float64
	Signal      string // empty when there is no crossover
	Description string
	Random05    int
}

// payload fixes the JSON member order.
type payload struct {
	Timestamp   string  `json:"timestamp"`
	Price       float64 `json:"price"`
	EMAShort    float64 `json:"ema_short"`
	EMALong     float64 `json:"ema_long"`
	Signal      *string `json:"signal"`
	Description *string `json:"description"`
	Random05    int     `json:"random_0_5"`
}

// Payload encodes the tick as the JSON record stored under its key.
// Missing signal and description encode as null.
func (t Tick) Payload() ([]byte, error) {
	p := payload{
		Timestamp: t.Timestamp.UTC().Format(TimestampLayout),
		Price:     t.Price,
		EMAShort:  t.EMAShort,
		EMALong:   t.EMALong,
		Random05:  t.Random05,
	}
	if t.Signal != "" {
		p.Signal = &t.Signal
	}
	if t.Description != "" {
		p.Description = &t.Description
	}
	return json.Marshal(p)
}

// Instrument is the random-walk state of one instrument. Not safe for
// concurrent use.
type Instrument struct {
	Name string

	price      float64
	trend      float64
	volatility float64
	emaShort   float64
	emaLong    float64

	rng *rand.Rand
}

// NewInstrument creates an instrument whose walk is reproducible for a given
// (seed, name) pair.
func NewInstrument(name string, seed int64) *Instrument {
	h := fnv.New64a()
	h.Write([]byte(name))

	return &Instrument{
		Name:       name,
		price:      defaultBasePrice,
		trend:      defaultTrend,
		volatility: defaultVolatility,
		emaShort:   defaultBasePrice,
		emaLong:    defaultBasePrice,
		rng:        rand.New(rand.NewSource(seed ^ int64(h.Sum64()))),
	}
}

// SetPrice overrides the current price; EMAs keep their state.
func (in *Instrument) SetPrice(p float64) {
	in.price = p
}

// Next advances the walk and returns the tick stamped at.
func (in *Instrument) Next(at time.Time) Tick {
	price := in.step()

	prevShort, prevLong := in.emaShort, in.emaLong
	in.emaShort = ema(price, in.emaShort, emaShortPeriod)
	in.emaLong = ema(price, in.emaLong, emaLongPeriod)

	t := Tick{
		Timestamp: at,
		Price:     price,
		EMAShort:  round4(in.emaShort),
		EMALong:   round4(in.emaLong),
		Signal:    crossover(prevShort, prevLong, in.emaShort, in.emaLong),
		Random05:  in.rng.Intn(6),
	}

	switch t.Signal {
	case SignalBullish:
		t.Description = fmt.Sprintf("BULLISH SIGNAL: EMA-%d crossed above EMA-%d. Price: %.4f, Short EMA: %.4f, Long EMA: %.4f",
			emaShortPeriod, emaLongPeriod, price, in.emaShort, in.emaLong)
	case SignalBearish:
		t.Description = fmt.Sprintf("BEARISH SIGNAL: EMA-%d crossed below EMA-%d. Price: %.4f, Short EMA: %.4f, Long EMA: %.4f",
			emaShortPeriod, emaLongPeriod, price, in.emaShort, in.emaLong)
	}
	return t
}

// step applies trend, noise and a pull towards the long EMA.
func (in *Instrument) step() float64 {
	walk := in.rng.NormFloat64() * in.volatility
	deviation := (in.price - in.emaLong) / in.price
	change := in.trend + walk - deviation*0.001

	in.price *= 1 + change
	return round4(in.price)
}

func ema(price, current float64, period int) float64 {
	k := 2 / float64(period+1)
	return price*k + current*(1-k)
}

func crossover(prevShort, prevLong, short, long float64) string {
	switch {
	case prevShort <= prevLong && short > long:
		return SignalBullish
	case prevShort >= prevLong && short < long:
		return SignalBearish
	default:
		return ""
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
