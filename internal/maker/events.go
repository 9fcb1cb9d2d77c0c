package maker

import (
	"time"

	"main/internal/schema"
)

// OnAck applies a venue acknowledgment to its slot. Acks for generations
// older than the slot's current target update bookkeeping only; the next
// tick reconciles instead of issuing a corrective action here.
func (m *Manager) OnAck(ack schema.OrderAck, now time.Time) {
	s, ok := m.byClient[ack.ClientID]
	if !ok {
		return
	}

	switch ack.Status {
	case schema.AckStatusAcked:
		if ack.VenueOrderID != "" {
			s.order.VenueOrderID = ack.VenueOrderID
		}
		if ack.LeavesQty > 0 {
			s.order.LeavesQty = ack.LeavesQty
		}
		if s.order.State == SlotPendingPlace {
			s.order.State = SlotOpen
		}
	case schema.AckStatusReplaced:
		s.order.Price = ack.Price
		if ack.LeavesQty > 0 {
			s.order.LeavesQty = ack.LeavesQty
		}
		s.order.State = SlotOpen
	case schema.AckStatusCanceled:
		m.clearSlot(s)
	case schema.AckStatusRejected:
		m.clearSlot(s)
		if m.sup != nil {
			m.sup.ObserveReject(now.UnixNano())
		}
		if m.OnReject != nil {
			m.OnReject(ack)
		}
		return
	}

	if ack.Generation >= s.targetGen {
		// current generation settled; drop the dirty mark when the slot
		// matches its target
		if s.order.State == SlotOpen && !m.drifted(s) {
			s.dirty = false
		}
	}
}

// HandleFill applies a venue fill to its slot and forwards it exactly once.
// Partial fills reduce the remaining size; a full fill frees the slot.
func (m *Manager) HandleFill(fill schema.Fill) {
	s, ok := m.byClient[fill.ClientID]
	if !ok && fill.VenueOrderID != "" {
		s = m.slotByVenueOrder(fill.VenueOrderID)
		ok = s != nil
	}
	if ok {
		leaves := s.order.LeavesQty - fill.Qty
		if leaves <= 0 {
			m.clearSlot(s)
		} else {
			s.order.LeavesQty = leaves
			s.order.State = SlotOpen
			s.dirty = true
		}
	}
	if m.OnFill != nil {
		m.OnFill(fill)
	}
}

func (m *Manager) slotByVenueOrder(venueOrderID string) *slot {
	for _, s := range m.slots {
		if s.order.VenueOrderID == venueOrderID && s.order.State != SlotNone {
			return s
		}
	}
	return nil
}

func (m *Manager) clearSlot(s *slot) {
	delete(m.byClient, s.order.ClientID)
	issued := s.issuedGen
	s.order = Order{Side: s.side}
	s.issuedGen = issued
	s.dirty = true
}
