package hedge

import (
	"main/internal/schema"
)

// Config controls how excess inventory is offloaded on the hedge venue.
type Config struct {
	Venue    schema.VenueID
	SymbolID schema.SymbolID

	// NoHedgeBand is the inventory magnitude carried without hedging.
	NoHedgeBand schema.Quantity
	// TakerFraction of the excess is crossed immediately; the remainder
	// is worked through the passive ladder.
	TakerFraction float64
	// TakerClip caps a single IOC order.
	TakerClip schema.Quantity

	MaxSlippageBps int64 // local rejection cap for taker legs
	// SlippageStepBps widens the cap per retry while HALTED, where the
	// flatten must eventually go through.
	SlippageStepBps int64

	PostOffsetBps int64 // ladder distance from the reference price, first rung
	LadderLevels  int
	LadderStepBps int64 // distance between rungs
}

func (c Config) withDefaults() Config {
	if c.TakerFraction < 0 {
		c.TakerFraction = 0
	}
	if c.TakerFraction > 1 {
		c.TakerFraction = 1
	}
	if c.LadderLevels <= 0 {
		c.LadderLevels = 3
	}
	if c.LadderStepBps <= 0 {
		c.LadderStepBps = 2
	}
	if c.SlippageStepBps <= 0 {
		c.SlippageStepBps = 1
	}
	return c
}

// Policy decides the taker/ladder mix for excess inventory. Single writer:
// the engine loop. The policy only plans; the executor and ladder carry
// the instructions out.
type Policy struct {
	cfg Config

	// haltedRetries counts consecutive slippage-capped flatten attempts
	// in HALTED mode; each retry widens the cap by SlippageStepBps.
	haltedRetries int64
}

// NewPolicy creates a hedge policy.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg.withDefaults()}
}

// Plan computes hedge instructions for the current inventory. net is the
// signed position, refPrice the fair value anchor, and asks/bids the hedge
// venue book used to estimate taker execution. In HALTED mode the band is
// ignored and the full position is flattened at maximum urgency.
func (p *Policy) Plan(net schema.Quantity, refPrice schema.Price, book schema.BookSnapshot, mode schema.RiskMode, now int64) []schema.HedgeInstruction {
	if net == 0 || refPrice <= 0 {
		p.haltedRetries = 0
		return nil
	}

	band := p.cfg.NoHedgeBand
	takerFraction := p.cfg.TakerFraction
	if mode == schema.RiskModeHalted {
		// most-aggressive flatten: no band, all taker
		band = 0
		takerFraction = 1
	}

	excess := net.Abs() - band
	if excess <= 0 {
		p.haltedRetries = 0
		return nil
	}

	side := schema.SideSell
	if net < 0 {
		side = schema.SideBuy
	}

	takerQty := schema.Quantity(float64(excess) * takerFraction)
	if p.cfg.TakerClip > 0 && takerQty > p.cfg.TakerClip {
		takerQty = p.cfg.TakerClip
	}
	ladderQty := excess - takerQty

	slipCap := p.cfg.MaxSlippageBps
	if mode == schema.RiskModeHalted {
		slipCap += p.haltedRetries * p.cfg.SlippageStepBps
	}

	var out []schema.HedgeInstruction
	if takerQty > 0 {
		est, ok := estimateAvgPrice(book, side, takerQty)
		if ok && withinSlippage(est, refPrice, side, slipCap) {
			out = append(out, schema.HedgeInstruction{
				Kind:           schema.HedgeKindTaker,
				Venue:          p.cfg.Venue,
				SymbolID:       p.cfg.SymbolID,
				Side:           side,
				Qty:            takerQty,
				LimitPrice:     slippageGuard(refPrice, side, slipCap),
				MaxSlippageBps: slipCap,
				TsEvent:        now,
			})
			p.haltedRetries = 0
		} else {
			// estimated execution breaches the cap: reject locally and
			// escalate the full excess to the ladder
			ladderQty = excess
			takerQty = 0
			if mode == schema.RiskModeHalted {
				p.haltedRetries++
			}
		}
	}

	if ladderQty > 0 {
		out = append(out, p.ladderLegs(side, ladderQty, refPrice, now)...)
	}
	return out
}

func (p *Policy) ladderLegs(side schema.Side, qty schema.Quantity, refPrice schema.Price, now int64) []schema.HedgeInstruction {
	levels := p.cfg.LadderLevels
	per := qty / schema.Quantity(levels)
	if per <= 0 {
		per = qty
		levels = 1
	}
	out := make([]schema.HedgeInstruction, 0, levels)
	remaining := qty
	for i := 0; i < levels && remaining > 0; i++ {
		legQty := per
		if i == levels-1 || legQty > remaining {
			legQty = remaining
		}
		offsetBps := p.cfg.PostOffsetBps + int64(i)*p.cfg.LadderStepBps
		out = append(out, schema.HedgeInstruction{
			Kind:       schema.HedgeKindLadder,
			Venue:      p.cfg.Venue,
			SymbolID:   p.cfg.SymbolID,
			Side:       side,
			Qty:        legQty,
			LimitPrice: offsetPrice(refPrice, side, offsetBps),
			TsEvent:    now,
		})
		remaining -= legQty
	}
	return out
}

// estimateAvgPrice walks the opposite book side for the expected average
// execution price of an aggressive order.
func estimateAvgPrice(book schema.BookSnapshot, side schema.Side, qty schema.Quantity) (schema.Price, bool) {
	levels := book.Asks
	if side == schema.SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 || qty <= 0 {
		return 0, false
	}
	var filled, notional int64
	remaining := int64(qty)
	for _, lvl := range levels {
		take := int64(lvl.Size)
		if take > remaining {
			take = remaining
		}
		filled += take
		notional += take * int64(lvl.Price)
		remaining -= take
		if remaining == 0 {
			break
		}
	}
	if remaining > 0 {
		// not enough visible depth: assume the worst shown level for the rest
		worst := int64(levels[len(levels)-1].Price)
		notional += remaining * worst
		filled += remaining
	}
	return schema.Price(notional / filled), true
}

func withinSlippage(est, ref schema.Price, side schema.Side, capBps int64) bool {
	diff := int64(est) - int64(ref)
	if side == schema.SideSell {
		diff = -diff
	}
	if diff <= 0 {
		return true
	}
	return diff*1e4 <= int64(ref)*capBps
}

// slippageGuard returns the IOC limit price ref*(1 +/- cap).
func slippageGuard(ref schema.Price, side schema.Side, capBps int64) schema.Price {
	delta := int64(ref) * capBps / 1e4
	if side == schema.SideBuy {
		return ref + schema.Price(delta)
	}
	return ref - schema.Price(delta)
}

func offsetPrice(ref schema.Price, side schema.Side, offsetBps int64) schema.Price {
	delta := int64(ref) * offsetBps / 1e4
	if side == schema.SideBuy {
		return ref - schema.Price(delta)
	}
	return ref + schema.Price(delta)
}
