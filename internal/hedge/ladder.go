package hedge

import (
	"time"

	"github.com/tidwall/btree"
	"golang.org/x/time/rate"

	"main/internal/schema"
)

// RungState mirrors the maker slot lifecycle for one ladder level.
type RungState uint16

const (
	RungNone RungState = iota
	RungPendingPlace
	RungOpen
	RungPendingCancel
)

// Rung is one passive ladder order on the hedge venue.
type Rung struct {
	ClientID     uint64
	VenueOrderID string
	Side         schema.Side
	Price        schema.Price
	Qty          schema.Quantity
	LeavesQty    schema.Quantity
	State        RungState
}

// Ladder maintains the passive hedge orders, price-ordered, with the same
// replace/cancel reconciliation discipline as the maker manager. Single
// writer: the engine loop.
type Ladder struct {
	venue    schema.VenueID
	symbolID schema.SymbolID
	sender   Sender

	rungs    *btree.Map[schema.Price, *Rung]
	byClient map[uint64]*Rung

	limiter      *rate.Limiter
	nextClientID uint64

	// OnFill receives ladder fills exactly once for ledger application.
	OnFill func(schema.Fill)
	// Gate validates a placement before it is sent; nil allows everything.
	// Wired to the risk supervisor so ladder legs pass the same chokepoint
	// as maker orders.
	Gate func(schema.OrderAction) bool
}

// Sender submits passive order actions to the hedge venue.
type Sender interface {
	Submit(action schema.OrderAction) error
}

// NewLadder creates an empty ladder.
func NewLadder(venue schema.VenueID, symbolID schema.SymbolID, sender Sender, minActionInterval time.Duration) *Ladder {
	if minActionInterval <= 0 {
		minActionInterval = 200 * time.Millisecond
	}
	return &Ladder{
		venue:    venue,
		symbolID: symbolID,
		sender:   sender,
		rungs:    btree.NewMap[schema.Price, *Rung](8),
		byClient: make(map[uint64]*Rung),
		limiter:  rate.NewLimiter(rate.Every(minActionInterval), 2),
	}
}

// Rungs returns the live rungs ordered by price.
func (l *Ladder) Rungs() []Rung {
	out := make([]Rung, 0, l.rungs.Len())
	l.rungs.Scan(func(_ schema.Price, r *Rung) bool {
		if r.State != RungNone {
			out = append(out, *r)
		}
		return true
	})
	return out
}

// OpenQty returns the total unfilled size resting on the ladder.
func (l *Ladder) OpenQty() schema.Quantity {
	var total schema.Quantity
	l.rungs.Scan(func(_ schema.Price, r *Rung) bool {
		if r.State == RungOpen || r.State == RungPendingPlace {
			total += r.LeavesQty
		}
		return true
	})
	return total
}

// Sync reconciles the ladder against the planned legs: cancels rungs at
// prices no longer wanted, places missing ones. Non-urgent actions are
// throttled and retried on the next sync.
func (l *Ladder) Sync(legs []schema.HedgeInstruction, now time.Time, urgent bool) {
	wanted := make(map[schema.Price]schema.HedgeInstruction, len(legs))
	for _, leg := range legs {
		if leg.Kind == schema.HedgeKindLadder && leg.Qty > 0 {
			wanted[leg.LimitPrice] = leg
		}
	}

	var stale []*Rung
	l.rungs.Scan(func(price schema.Price, r *Rung) bool {
		if _, ok := wanted[price]; ok {
			delete(wanted, price)
			return true
		}
		if r.State == RungOpen {
			stale = append(stale, r)
		}
		return true
	})
	for _, r := range stale {
		l.cancel(r, now, urgent)
	}
	for _, leg := range wanted {
		l.place(leg, now, urgent)
	}
}

// CancelAll cancels every live rung, bypassing the throttle.
func (l *Ladder) CancelAll(now time.Time) {
	var live []*Rung
	l.rungs.Scan(func(_ schema.Price, r *Rung) bool {
		if r.State == RungOpen || r.State == RungPendingPlace {
			live = append(live, r)
		}
		return true
	})
	for _, r := range live {
		l.cancel(r, now, true)
	}
}

// OnAck applies a hedge venue acknowledgment.
func (l *Ladder) OnAck(ack schema.OrderAck) {
	r, ok := l.byClient[ack.ClientID]
	if !ok {
		return
	}
	switch ack.Status {
	case schema.AckStatusAcked:
		if ack.VenueOrderID != "" {
			r.VenueOrderID = ack.VenueOrderID
		}
		if r.State == RungPendingPlace {
			r.State = RungOpen
		}
	case schema.AckStatusCanceled, schema.AckStatusRejected:
		l.remove(r)
	}
}

// HandleFill applies a hedge venue fill and forwards it exactly once.
func (l *Ladder) HandleFill(fill schema.Fill) {
	if r, ok := l.byClient[fill.ClientID]; ok {
		leaves := r.LeavesQty - fill.Qty
		if leaves <= 0 {
			l.remove(r)
		} else {
			r.LeavesQty = leaves
		}
	}
	if l.OnFill != nil {
		l.OnFill(fill)
	}
}

func (l *Ladder) place(leg schema.HedgeInstruction, now time.Time, urgent bool) {
	action := schema.OrderAction{
		Kind:        schema.ActionPlace,
		Venue:       l.venue,
		SymbolID:    l.symbolID,
		Side:        leg.Side,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       leg.LimitPrice,
		Qty:         leg.Qty,
	}
	if l.Gate != nil && !l.Gate(action) {
		return
	}
	if !urgent && !l.limiter.AllowN(now, 1) {
		return
	}
	l.nextClientID++
	action.ClientID = l.nextClientID
	r := &Rung{
		ClientID:  action.ClientID,
		Side:      leg.Side,
		Price:     leg.LimitPrice,
		Qty:       leg.Qty,
		LeavesQty: leg.Qty,
		State:     RungPendingPlace,
	}
	l.rungs.Set(r.Price, r)
	l.byClient[r.ClientID] = r
	if err := l.sender.Submit(action); err != nil {
		l.remove(r)
	}
}

func (l *Ladder) cancel(r *Rung, now time.Time, urgent bool) {
	if !urgent && !l.limiter.AllowN(now, 1) {
		return
	}
	r.State = RungPendingCancel
	_ = l.sender.Submit(schema.OrderAction{
		Kind:         schema.ActionCancel,
		ClientID:     r.ClientID,
		Venue:        l.venue,
		SymbolID:     l.symbolID,
		Side:         r.Side,
		VenueOrderID: r.VenueOrderID,
		Price:        r.Price,
	})
}

func (l *Ladder) remove(r *Rung) {
	delete(l.byClient, r.ClientID)
	l.rungs.Delete(r.Price)
}
