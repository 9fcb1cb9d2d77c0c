package quote

import (
	"main/internal/fairvalue"
	"main/internal/inventory"
	"main/internal/schema"
)

// Config controls skew and sizing. Scaled-integer fields use the symbol's
// price/quantity scales.
type Config struct {
	// SkewShift is the reservation-price shift, in price units, applied
	// at full inventory cap. The shift opposes the inventory sign and is
	// clamped to the base spread so quoting stays two-sided.
	SkewShift schema.Price

	InventoryCap schema.Quantity // hard cap, shared with the supervisor
	QuoteSize    schema.Quantity // target size per level

	LowConfidenceMult float64 // spread multiplier when signals lack confidence
}

func (c Config) withDefaults() Config {
	if c.LowConfidenceMult < 1 {
		c.LowConfidenceMult = 3
	}
	return c
}

// Quote is a two-sided quoting target. Generation increases on every
// recompute; stale generations must never reach the venue.
type Quote struct {
	BidPrice   schema.Price
	BidSize    schema.Quantity
	AskPrice   schema.Price
	AskSize    schema.Quantity
	Generation uint64
	TsEvent    int64
}

// TwoSided reports whether both sides carry size.
func (q Quote) TwoSided() bool {
	return q.BidSize > 0 && q.AskSize > 0
}

// Engine computes inventory-skewed quotes from fair value.
type Engine struct {
	cfg        Config
	tick       schema.Price
	generation uint64
}

// NewEngine creates a quote engine for one symbol.
func NewEngine(cfg Config, tick schema.Price) *Engine {
	if tick <= 0 {
		tick = 1
	}
	return &Engine{cfg: cfg.withDefaults(), tick: tick}
}

// SetConfig swaps the tuning while preserving the generation counter, so
// orders issued before a reload still order correctly against new quotes.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg = cfg.withDefaults()
}

// Generation returns the last issued generation.
func (e *Engine) Generation() uint64 {
	return e.generation
}

// Compute derives the target quote. Every call increments the generation,
// including suppressed ones, so downstream staleness checks stay simple.
// ok is false when no quote should rest (HALTED mode or no usable mid).
func (e *Engine) Compute(fv fairvalue.FairValue, pos inventory.Position, mode schema.RiskMode) (Quote, bool) {
	e.generation++
	q := Quote{Generation: e.generation, TsEvent: fv.TsEvent}

	if mode == schema.RiskModeHalted || fv.Mid <= 0 || fv.BaseSpread <= 0 {
		return q, false
	}

	spread := fv.BaseSpread
	if !fv.Confident {
		spread *= e.cfg.LowConfidenceMult
	}

	// reservation-price skew opposing the inventory sign
	var shift float64
	if e.cfg.InventoryCap > 0 {
		shift = -float64(e.cfg.SkewShift) * float64(pos.NetSize) / float64(e.cfg.InventoryCap)
		if shift > fv.BaseSpread {
			shift = fv.BaseSpread
		} else if shift < -fv.BaseSpread {
			shift = -fv.BaseSpread
		}
	}
	mid := fv.Mid + shift

	q.BidPrice = e.roundDown(mid - spread/2)
	q.AskPrice = e.roundUp(mid + spread/2)
	if q.AskPrice <= q.BidPrice {
		q.AskPrice = q.BidPrice + e.tick
	}

	// both sides capped by remaining headroom; a side with zero headroom
	// emits no order and the hedge works the inventory back down
	room := e.cfg.InventoryCap - pos.NetSize.Abs()
	q.BidSize = headroom(e.cfg.QuoteSize, room)
	q.AskSize = headroom(e.cfg.QuoteSize, room)
	return q, true
}

func headroom(size, room schema.Quantity) schema.Quantity {
	if room <= 0 {
		return 0
	}
	if size > room {
		return room
	}
	return size
}

func (e *Engine) roundDown(px float64) schema.Price {
	if px <= 0 {
		return 0
	}
	t := int64(e.tick)
	return schema.Price(int64(px) / t * t)
}

func (e *Engine) roundUp(px float64) schema.Price {
	if px <= 0 {
		return 0
	}
	t := int64(e.tick)
	v := int64(px)
	if v%t == 0 && float64(v) == px {
		return schema.Price(v)
	}
	return schema.Price((v/t + 1) * t)
}
