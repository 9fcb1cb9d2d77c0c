package inventory

import (
	"main/internal/schema"
	"main/pkg/exception"
)

// Position is a read-only snapshot of the net inventory for one instrument.
// NetSize is signed: positive long, negative short.
type Position struct {
	SymbolID      schema.SymbolID
	NetSize       schema.Quantity
	AvgEntryPrice schema.Price
	RealizedPnL   schema.Notional
	OpenTs        int64
	LastFillTs    int64
}

// Ledger tracks the signed net position across both venues. Single writer:
// only the engine loop calls ApplyFill; other components read Position
// copies. Fills are applied exactly once, keyed by venue fill ID.
type Ledger struct {
	pos    Position
	pnlDiv int64
	seen   map[string]struct{}
}

// NewLedger creates an empty ledger for one instrument. Realized PnL is
// carried in notional units derived from the scale spec.
func NewLedger(symbolID schema.SymbolID, scale schema.ScaleSpec) *Ledger {
	return &Ledger{
		pos:    Position{SymbolID: symbolID},
		pnlDiv: notionalDivisor(scale),
		seen:   make(map[string]struct{}),
	}
}

// notionalDivisor converts raw price*qty products into notional units:
// 10^(priceScale+quantityScale-notionalScale).
func notionalDivisor(scale schema.ScaleSpec) int64 {
	exp := int(scale.PriceScale) + int(scale.QuantityScale) - int(scale.NotionalScale)
	div := int64(1)
	for i := 0; i < exp; i++ {
		div *= 10
	}
	return div
}

// Position returns the current position snapshot.
func (l *Ledger) Position() Position {
	return l.pos
}

// Applied reports whether a fill ID was already applied.
func (l *Ledger) Applied(fillID string) bool {
	_, ok := l.seen[fillID]
	return ok
}

// ApplyFill folds a confirmed fill into the position. Replaying a fill ID
// returns ErrDuplicateFill and leaves the position unchanged. Sign flips
// are handled as a partial close followed by a partial open at the fill
// price; realized PnL accrues on the closed portion.
func (l *Ledger) ApplyFill(f schema.Fill) (Position, error) {
	if f.FillID == "" || f.Qty <= 0 || f.Price <= 0 {
		return l.pos, exception.ErrLedgerMismatch
	}
	if _, ok := l.seen[f.FillID]; ok {
		return l.pos, exception.ErrDuplicateFill
	}
	l.seen[f.FillID] = struct{}{}

	signed := int64(f.Qty)
	if f.Side == schema.SideSell {
		signed = -signed
	}

	old := int64(l.pos.NetSize)
	next := old + signed

	switch {
	case old == 0:
		l.pos.AvgEntryPrice = f.Price
		l.pos.OpenTs = f.TsEvent
	case sameSign(old, signed):
		// weighted average of existing position and fill
		oldAbs := abs(old)
		fillAbs := abs(signed)
		total := oldAbs + fillAbs
		l.pos.AvgEntryPrice = schema.Price(
			(int64(l.pos.AvgEntryPrice)*oldAbs + int64(f.Price)*fillAbs) / total)
	default:
		closed := min64(abs(old), abs(signed))
		pnl := (int64(f.Price) - int64(l.pos.AvgEntryPrice)) * closed
		if old < 0 {
			pnl = -pnl
		}
		l.pos.RealizedPnL += schema.Notional(pnl / l.pnlDiv)
		if !sameSign(next, old) && next != 0 {
			// flipped through zero: remainder opens at the fill price
			l.pos.AvgEntryPrice = f.Price
			l.pos.OpenTs = f.TsEvent
		}
	}

	if next == 0 {
		l.pos.AvgEntryPrice = 0
		l.pos.OpenTs = 0
	}
	l.pos.NetSize = schema.Quantity(next)
	l.pos.LastFillTs = f.TsEvent
	return l.pos, nil
}

// Restore replaces the position from a snapshot. Fill dedup history is
// reset; the journal replay re-applies anything newer than the snapshot.
func (l *Ledger) Restore(pos Position) {
	l.pos = pos
	l.seen = make(map[string]struct{})
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
