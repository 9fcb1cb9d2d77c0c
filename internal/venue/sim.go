package venue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"main/internal/schema"
)

// SimConfig controls the simulated venue used by paper runs and tests.
type SimConfig struct {
	Venue    schema.VenueID
	SymbolID schema.SymbolID

	// AckDelay defers acks to mimic venue round trips. Zero acks inline.
	AckDelay time.Duration
	// RejectEvery rejects every Nth place when > 0, for reject handling
	// exercises.
	RejectEvery int
}

// Emit delivers simulated venue events back onto the venue event stream.
type Emit func(eventType schema.EventType, tsEvent int64, payload any)

// Sim is an in-process venue: it acks placements, fills takers at their
// limit price, and fills resting orders when Cross is called with a
// crossing trade price. IDs are venue-style UUIDs.
type Sim struct {
	cfg  SimConfig
	emit Emit

	mu     sync.Mutex
	orders map[string]*simOrder
	places int
}

type simOrder struct {
	clientID     uint64
	venueOrderID string
	side         schema.Side
	price        schema.Price
	leaves       schema.Quantity
}

// NewSim creates a simulated venue delivering events through emit.
func NewSim(cfg SimConfig, emit Emit) *Sim {
	return &Sim{
		cfg:    cfg,
		emit:   emit,
		orders: make(map[string]*simOrder),
	}
}

// Submit handles place/replace/cancel actions.
func (s *Sim) Submit(action schema.OrderAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().UnixNano()

	switch action.Kind {
	case schema.ActionPlace:
		s.places++
		if s.cfg.RejectEvery > 0 && s.places%s.cfg.RejectEvery == 0 {
			s.deliverAck(schema.OrderAck{
				ClientID: action.ClientID,
				Venue:    s.cfg.Venue,
				SymbolID: action.SymbolID,
				Status:   schema.AckStatusRejected,
				Reason:   schema.AckReasonVenueReject,
				TsEvent:  now,
			})
			return nil
		}
		o := &simOrder{
			clientID:     action.ClientID,
			venueOrderID: uuid.NewString(),
			side:         action.Side,
			price:        action.Price,
			leaves:       action.Qty,
		}
		s.orders[o.venueOrderID] = o
		s.deliverAck(schema.OrderAck{
			ClientID:     action.ClientID,
			VenueOrderID: o.venueOrderID,
			Venue:        s.cfg.Venue,
			SymbolID:     action.SymbolID,
			Status:       schema.AckStatusAcked,
			Price:        action.Price,
			LeavesQty:    action.Qty,
			Generation:   action.Generation,
			TsEvent:      now,
		})
	case schema.ActionReplace:
		o, ok := s.orders[action.VenueOrderID]
		if !ok {
			s.deliverAck(schema.OrderAck{
				ClientID: action.ClientID,
				Venue:    s.cfg.Venue,
				SymbolID: action.SymbolID,
				Status:   schema.AckStatusRejected,
				Reason:   schema.AckReasonUnknownOrder,
				TsEvent:  now,
			})
			return nil
		}
		o.price = action.Price
		o.leaves = action.Qty
		s.deliverAck(schema.OrderAck{
			ClientID:     action.ClientID,
			VenueOrderID: o.venueOrderID,
			Venue:        s.cfg.Venue,
			SymbolID:     action.SymbolID,
			Status:       schema.AckStatusReplaced,
			Price:        action.Price,
			LeavesQty:    action.Qty,
			Generation:   action.Generation,
			TsEvent:      now,
		})
	case schema.ActionCancel:
		if o, ok := s.orders[action.VenueOrderID]; ok {
			delete(s.orders, o.venueOrderID)
		}
		s.deliverAck(schema.OrderAck{
			ClientID:     action.ClientID,
			VenueOrderID: action.VenueOrderID,
			Venue:        s.cfg.Venue,
			SymbolID:     action.SymbolID,
			Status:       schema.AckStatusCanceled,
			Generation:   action.Generation,
			TsEvent:      now,
		})
	}
	return nil
}

// TakeLiquidity fills an IOC at its limit price immediately.
func (s *Sim) TakeLiquidity(side schema.Side, qty schema.Quantity, limitPrice schema.Price) error {
	now := time.Now().UTC().UnixNano()
	s.emit(schema.EventFill, now, schema.Fill{
		VenueOrderID: uuid.NewString(),
		FillID:       uuid.NewString(),
		Venue:        s.cfg.Venue,
		SymbolID:     s.cfg.SymbolID,
		Side:         side,
		Price:        limitPrice,
		Qty:          qty,
		Liquidity:    schema.LiquidityTaker,
		TsEvent:      now,
	})
	return nil
}

// Cross fills resting orders crossed by a trade at px: buys at or above,
// sells at or below.
func (s *Sim) Cross(px schema.Price, maxQty schema.Quantity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().UnixNano()

	for id, o := range s.orders {
		crossed := (o.side == schema.SideBuy && px <= o.price) ||
			(o.side == schema.SideSell && px >= o.price)
		if !crossed {
			continue
		}
		qty := o.leaves
		if maxQty > 0 && qty > maxQty {
			qty = maxQty
		}
		fill := schema.Fill{
			ClientID:     o.clientID,
			VenueOrderID: o.venueOrderID,
			FillID:       uuid.NewString(),
			Venue:        s.cfg.Venue,
			SymbolID:     s.cfg.SymbolID,
			Side:         o.side,
			Price:        o.price,
			Qty:          qty,
			Liquidity:    schema.LiquidityMaker,
			TsEvent:      now,
		}
		o.leaves -= qty
		if o.leaves <= 0 {
			delete(s.orders, id)
		}
		s.emit(schema.EventFill, now, fill)
	}
}

func (s *Sim) deliverAck(ack schema.OrderAck) {
	if s.cfg.AckDelay <= 0 {
		s.emit(schema.EventOrderAck, ack.TsEvent, ack)
		return
	}
	go func() {
		time.Sleep(s.cfg.AckDelay)
		s.emit(schema.EventOrderAck, ack.TsEvent, ack)
	}()
}
