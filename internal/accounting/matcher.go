package accounting

import (
	"main/internal/schema"
)

// Completed pairs one maker fill with the hedge fills that offset it.
type Completed struct {
	Maker  schema.Fill
	Hedges []schema.Fill
}

type pendingTrade struct {
	maker     schema.Fill
	hedges    []schema.Fill
	remaining schema.Quantity
}

// Matcher allocates hedge fills to maker fills in arrival order so each
// trade record values one maker fill against its own hedge legs. Single
// writer: the engine loop.
type Matcher struct {
	pending []pendingTrade
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Pending returns the number of maker fills awaiting a full hedge.
func (m *Matcher) Pending() int {
	return len(m.pending)
}

// OnMakerFill queues a maker fill for hedging.
func (m *Matcher) OnMakerFill(f schema.Fill) {
	m.pending = append(m.pending, pendingTrade{maker: f, remaining: f.Qty})
}

// OnHedgeFill allocates a hedge fill across pending maker fills, splitting
// it when it spans more than one. Returns the trades completed by this fill.
func (m *Matcher) OnHedgeFill(f schema.Fill) []Completed {
	var done []Completed
	remaining := f.Qty
	for remaining > 0 && len(m.pending) > 0 {
		p := &m.pending[0]
		take := remaining
		if take > p.remaining {
			take = p.remaining
		}
		p.hedges = append(p.hedges, splitFill(f, take))
		p.remaining -= take
		remaining -= take
		if p.remaining <= 0 {
			done = append(done, Completed{Maker: p.maker, Hedges: p.hedges})
			m.pending = m.pending[1:]
		}
	}
	return done
}

// splitFill carves a portion of a hedge fill, pro-rating the fee.
func splitFill(f schema.Fill, qty schema.Quantity) schema.Fill {
	if qty >= f.Qty {
		return f
	}
	part := f
	part.Qty = qty
	if f.Qty > 0 {
		part.Fee = schema.Fee(int64(f.Fee) * int64(qty) / int64(f.Qty))
	}
	return part
}
