package maker

import (
	"time"

	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"main/internal/inventory"
	"main/internal/quote"
	"main/internal/risk"
	"main/internal/schema"
)

// SlotState tracks the lifecycle of one quoting slot.
type SlotState uint16

const (
	SlotNone SlotState = iota
	SlotPendingPlace
	SlotOpen
	SlotPendingReplace
	SlotPendingCancel
)

// Order holds the manager's view of a resting order.
type Order struct {
	ClientID     uint64
	VenueOrderID string
	Side         schema.Side
	Price        schema.Price
	Qty          schema.Quantity
	LeavesQty    schema.Quantity
	Generation   uint64
	State        SlotState
}

// slot is one (side, level) quoting slot with its desired target.
type slot struct {
	side  schema.Side
	level int

	order Order

	targetPrice schema.Price
	targetSize  schema.Quantity
	targetGen   uint64
	dirty       bool

	issuedGen uint64 // highest generation issued to the venue on this slot
}

// Sender submits order actions to the venue. Submission is asynchronous;
// outcomes arrive later as acks, rejects, and fills.
type Sender interface {
	Submit(action schema.OrderAction) error
}

// Config controls reconciliation behavior.
type Config struct {
	Venue    schema.VenueID
	SymbolID schema.SymbolID

	// Levels is the number of price levels quoted per side. Single-level
	// quoting is the default; the slot map makes ladders a config change.
	Levels int

	PriceTolerance schema.Price    // replace when drift exceeds this
	SizeTolerance  schema.Quantity // replace when size drift exceeds this

	MinActionInterval time.Duration // per-side throttle for non-urgent actions
}

func (c Config) withDefaults() Config {
	if c.Levels <= 0 {
		c.Levels = 1
	}
	if c.MinActionInterval <= 0 {
		c.MinActionInterval = 100 * time.Millisecond
	}
	return c
}

type slotKey struct {
	side  schema.Side
	level int
}

// Manager reconciles target quotes against live venue orders. Single
// writer: the engine loop. Actions carry the generation they were computed
// from; a slot never issues a generation below one it already issued.
type Manager struct {
	cfg    Config
	sender Sender
	sup    *risk.Supervisor

	slots    map[slotKey]*slot
	byClient map[uint64]*slot

	limiters map[schema.Side]*rate.Limiter

	pos          inventory.Position
	nextClientID uint64

	// OnFill receives every venue fill exactly once for ledger application.
	OnFill func(schema.Fill)
	// OnReject fires after a slot is cleared by a venue rejection so the
	// engine can recompute immediately.
	OnReject func(schema.OrderAck)
}

// NewManager creates a manager quoting through sender, gated by sup.
func NewManager(cfg Config, sender Sender, sup *risk.Supervisor) *Manager {
	cfg = cfg.withDefaults()
	interval := rate.Every(cfg.MinActionInterval)
	return &Manager{
		cfg:      cfg,
		sender:   sender,
		sup:      sup,
		slots:    make(map[slotKey]*slot),
		byClient: make(map[uint64]*slot),
		limiters: map[schema.Side]*rate.Limiter{
			schema.SideBuy:  rate.NewLimiter(interval, 1),
			schema.SideSell: rate.NewLimiter(interval, 1),
		},
	}
}

// Slot returns the order on a (side, level) slot.
func (m *Manager) Slot(side schema.Side, level int) (Order, bool) {
	s, ok := m.slots[slotKey{side: side, level: level}]
	if !ok {
		return Order{}, false
	}
	return s.order, true
}

// OpenOrders returns all orders not in SlotNone.
func (m *Manager) OpenOrders() []Order {
	out := make([]Order, 0, len(m.slots))
	for _, s := range m.slots {
		if s.order.State != SlotNone {
			out = append(out, s.order)
		}
	}
	return out
}

// SyncQuote updates slot targets from a new quote and reconciles. Quotes
// with a generation at or below the current target are discarded: they
// raced with a newer recompute.
func (m *Manager) SyncQuote(q quote.Quote, now time.Time, urgent bool) {
	m.syncSide(schema.SideBuy, 0, q.BidPrice, q.BidSize, q.Generation, now, urgent)
	m.syncSide(schema.SideSell, 0, q.AskPrice, q.AskSize, q.Generation, now, urgent)
}

func (m *Manager) syncSide(side schema.Side, level int, price schema.Price, size schema.Quantity, gen uint64, now time.Time, urgent bool) {
	s := m.slot(side, level)
	if gen <= s.targetGen {
		return
	}
	s.targetPrice = price
	s.targetSize = size
	s.targetGen = gen
	s.dirty = true
	m.reconcile(s, now, urgent)
}

// Reconcile retries deferred actions. Called on timer ticks so throttled
// replaces eventually go out without a new quote.
func (m *Manager) Reconcile(now time.Time) {
	for _, s := range m.slots {
		if s.dirty {
			m.reconcile(s, now, false)
		}
	}
}

// CancelAll issues cancels for every live slot, bypassing the throttle.
// Used on the HALTED transition.
func (m *Manager) CancelAll(now time.Time) {
	for _, s := range m.slots {
		s.targetSize = 0
		s.dirty = true
		switch s.order.State {
		case SlotOpen, SlotPendingPlace, SlotPendingReplace:
			m.issueCancel(s)
		}
	}
}

func (m *Manager) reconcile(s *slot, now time.Time, urgent bool) {
	switch s.order.State {
	case SlotPendingPlace, SlotPendingReplace, SlotPendingCancel:
		// in flight: the ack will trigger the next pass
		return
	case SlotNone:
		if s.targetSize <= 0 || s.targetPrice <= 0 {
			s.dirty = false
			return
		}
		if !urgent && !m.allow(s.side, now) {
			return // RateLimited: deferred, not dropped
		}
		m.issuePlace(s)
	case SlotOpen:
		if s.targetSize <= 0 {
			m.issueCancel(s)
			return
		}
		if !m.drifted(s) {
			s.dirty = false
			return
		}
		if !urgent && !m.allow(s.side, now) {
			return
		}
		m.issueReplace(s)
	}
}

func (m *Manager) drifted(s *slot) bool {
	priceDrift := s.order.Price - s.targetPrice
	if priceDrift < 0 {
		priceDrift = -priceDrift
	}
	sizeDrift := s.order.LeavesQty - s.targetSize
	if sizeDrift < 0 {
		sizeDrift = -sizeDrift
	}
	return priceDrift > m.cfg.PriceTolerance || sizeDrift > m.cfg.SizeTolerance
}

func (m *Manager) allow(side schema.Side, now time.Time) bool {
	return m.limiters[side].AllowN(now, 1)
}

func (m *Manager) issuePlace(s *slot) {
	action := m.action(schema.ActionPlace, s)
	if !m.gate(action, s) {
		return
	}
	m.nextClientID++
	action.ClientID = m.nextClientID

	s.order = Order{
		ClientID:   action.ClientID,
		Side:       s.side,
		Price:      action.Price,
		Qty:        action.Qty,
		LeavesQty:  action.Qty,
		Generation: action.Generation,
		State:      SlotPendingPlace,
	}
	m.byClient[action.ClientID] = s
	m.send(action, s)
}

func (m *Manager) issueReplace(s *slot) {
	action := m.action(schema.ActionReplace, s)
	action.ClientID = s.order.ClientID
	action.VenueOrderID = s.order.VenueOrderID
	if !m.gate(action, s) {
		return
	}
	s.order.State = SlotPendingReplace
	m.send(action, s)
}

func (m *Manager) issueCancel(s *slot) {
	action := m.action(schema.ActionCancel, s)
	action.ClientID = s.order.ClientID
	action.VenueOrderID = s.order.VenueOrderID
	action.Price = s.order.Price
	action.Qty = 0
	s.order.State = SlotPendingCancel
	m.send(action, s)
}

func (m *Manager) action(kind schema.OrderActionKind, s *slot) schema.OrderAction {
	return schema.OrderAction{
		Kind:        kind,
		Venue:       m.cfg.Venue,
		SymbolID:    m.cfg.SymbolID,
		Side:        s.side,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       s.targetPrice,
		Qty:         s.targetSize,
		Generation:  s.targetGen,
	}
}

func (m *Manager) gate(action schema.OrderAction, s *slot) bool {
	if m.sup == nil {
		return true
	}
	d := m.sup.Gate(action, m.pos)
	if !d.Allow {
		s.dirty = false
		return false
	}
	return true
}

// SetPosition installs the position snapshot used for gating this cycle.
func (m *Manager) SetPosition(pos inventory.Position) {
	m.pos = pos
}

func (m *Manager) send(action schema.OrderAction, s *slot) {
	if action.Generation < s.issuedGen {
		// stale action computed before one already issued; drop it and
		// let the next tick reconcile
		return
	}
	s.issuedGen = action.Generation
	if err := m.sender.Submit(action); err != nil {
		// local submit failure behaves like an immediate reject
		logs.Warnf("maker submit failed side=%s kind=%d, err: %v", action.Side, action.Kind, err)
		s.order.State = SlotNone
		s.dirty = true
	}
}

func (m *Manager) slot(side schema.Side, level int) *slot {
	key := slotKey{side: side, level: level}
	s, ok := m.slots[key]
	if !ok {
		s = &slot{side: side, level: level}
		m.slots[key] = s
	}
	return s
}
