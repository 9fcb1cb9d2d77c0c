package risk

import (
	"time"

	"github.com/yanun0323/logs"

	"main/internal/inventory"
	"main/internal/schema"
)

// Limits defines the supervisor thresholds. All are static per config
// version; a hot reload swaps the whole supervisor config.
type Limits struct {
	SoftInventory schema.Quantity
	HardInventory schema.Quantity

	MaxOrderQty      schema.Quantity
	MaxOrderNotional schema.Notional
	// NotionalDivisor converts a raw price*qty product into notional
	// units: 10^(priceScale+quantityScale-notionalScale). Zero means 1.
	NotionalDivisor int64

	RejectStormCount  int
	RejectStormWindow time.Duration

	StaleDataTimeout time.Duration
	MarkOutLossLimit schema.Notional
}

// Decision is the outcome of gating one order action.
type Decision struct {
	Allow  bool
	Reason schema.RiskReason
	Mode   schema.RiskMode
}

// Supervisor owns the process-wide risk state. Transitions escalate only
// (NORMAL -> REDUCED -> HALTED); de-escalation requires an operator Reset.
// Single writer: the engine loop. Every transition is journaled via the
// OnTransition hook and kept in the audit trail.
type Supervisor struct {
	limits Limits

	mode   schema.RiskMode
	reason schema.RiskReason

	lastMarketData map[schema.VenueID]int64
	venueDown      map[schema.VenueID]bool

	rejectWindowStart int64
	rejectCount       int

	audit []schema.RiskTransition

	// OnTransition fires after every mode change, including operator
	// resets. The engine uses it to journal and cancel open orders.
	OnTransition func(schema.RiskTransition)
}

// NewSupervisor creates a supervisor in NORMAL mode.
func NewSupervisor(limits Limits) *Supervisor {
	return &Supervisor{
		limits:         limits,
		lastMarketData: make(map[schema.VenueID]int64),
		venueDown:      make(map[schema.VenueID]bool),
	}
}

// Mode returns the current mode and the reason for the last escalation.
// This pair is the single source of truth for why quoting stopped.
func (s *Supervisor) Mode() (schema.RiskMode, schema.RiskReason) {
	return s.mode, s.reason
}

// Audit returns the recorded transitions, oldest first.
func (s *Supervisor) Audit() []schema.RiskTransition {
	out := make([]schema.RiskTransition, len(s.audit))
	copy(out, s.audit)
	return out
}

// SetLimits swaps the limit set. Called on validated config reload only.
func (s *Supervisor) SetLimits(limits Limits) {
	s.limits = limits
}

// Limits returns the active limit set.
func (s *Supervisor) Limits() Limits {
	return s.limits
}

// Gate validates one order action against the current state. It never
// mutates the mode; escalation happens on the evaluation paths.
func (s *Supervisor) Gate(action schema.OrderAction, pos inventory.Position) Decision {
	d := Decision{Allow: true, Reason: schema.RiskReasonNone, Mode: s.mode}

	// HALTED admits cancels and position-reducing orders only; the hedge
	// flatten legs keep flowing, everything else stops
	if s.mode == schema.RiskModeHalted && action.Kind != schema.ActionCancel &&
		!reducesExposure(pos.NetSize, action.Side, action.Qty) {
		d.Allow = false
		d.Reason = s.reason
		return d
	}
	if s.venueDown[action.Venue] && action.Kind != schema.ActionCancel {
		d.Allow = false
		d.Reason = schema.RiskReasonVenueDown
		return d
	}
	if action.Kind == schema.ActionCancel {
		return d
	}

	if s.limits.MaxOrderQty > 0 && action.Qty > s.limits.MaxOrderQty {
		d.Allow = false
		d.Reason = schema.RiskReasonHardInventory
		return d
	}
	if s.limits.MaxOrderNotional > 0 {
		if notional, overflow := mulNotional(action.Price, action.Qty, s.limits.NotionalDivisor); overflow || notional > s.limits.MaxOrderNotional {
			d.Allow = false
			d.Reason = schema.RiskReasonHardInventory
			return d
		}
	}

	// deny any action whose full fill could breach the hard cap
	if s.limits.HardInventory > 0 {
		next := projectPosition(pos.NetSize, action.Side, action.Qty)
		if next.Abs() > s.limits.HardInventory {
			d.Allow = false
			d.Reason = schema.RiskReasonHardInventory
			return d
		}
	}
	return d
}

// ObserveMarketData records feed liveness for a venue.
func (s *Supervisor) ObserveMarketData(venue schema.VenueID, tsRecv int64) {
	s.lastMarketData[venue] = tsRecv
}

// ObserveGap handles an explicit feed gap signal.
func (s *Supervisor) ObserveGap(gap schema.Gap, now int64) {
	if gap.Resumed {
		s.venueDown[gap.Venue] = false
		return
	}
	s.venueDown[gap.Venue] = true
	s.escalate(schema.RiskModeReduced, schema.RiskReasonVenueDown, gap.Venue, now)
}

// ObserveReject counts venue rejections; a storm escalates to HALTED.
func (s *Supervisor) ObserveReject(now int64) {
	if s.limits.RejectStormCount <= 0 || s.limits.RejectStormWindow <= 0 {
		return
	}
	window := int64(s.limits.RejectStormWindow)
	if s.rejectWindowStart == 0 || now-s.rejectWindowStart >= window {
		s.rejectWindowStart = now
		s.rejectCount = 0
	}
	s.rejectCount++
	if s.rejectCount > s.limits.RejectStormCount {
		s.escalate(schema.RiskModeHalted, schema.RiskReasonRejectStorm, 0, now)
	}
}

// Evaluate runs the continuous checks. Called on every market-data event
// and every fill, independent of the quote cycle cadence.
func (s *Supervisor) Evaluate(pos inventory.Position, mark schema.Price, now int64) {
	if s.limits.StaleDataTimeout > 0 {
		timeout := int64(s.limits.StaleDataTimeout)
		for venue, last := range s.lastMarketData {
			if last > 0 && now-last > timeout {
				s.escalate(schema.RiskModeHalted, schema.RiskReasonStaleData, venue, now)
			}
		}
	}

	size := pos.NetSize.Abs()
	if s.limits.HardInventory > 0 && size > s.limits.HardInventory {
		s.escalate(schema.RiskModeHalted, schema.RiskReasonHardInventory, 0, now)
	} else if s.limits.SoftInventory > 0 && size > s.limits.SoftInventory {
		s.escalate(schema.RiskModeReduced, schema.RiskReasonSoftInventory, 0, now)
	}

	if s.limits.MarkOutLossLimit > 0 && mark > 0 && pos.NetSize != 0 {
		// RealizedPnL already carries notional units; scale the raw
		// mark-out product to match before summing
		unrealized := (int64(mark) - int64(pos.AvgEntryPrice)) * int64(pos.NetSize)
		if s.limits.NotionalDivisor > 1 {
			unrealized /= s.limits.NotionalDivisor
		}
		total := int64(pos.RealizedPnL) + unrealized
		if total < -int64(s.limits.MarkOutLossLimit) {
			s.escalate(schema.RiskModeHalted, schema.RiskReasonMarkOutLoss, 0, now)
		}
	}
}

// ForceHalt escalates straight to HALTED. Used for non-recoverable faults
// such as an irreconcilable ledger mismatch.
func (s *Supervisor) ForceHalt(reason schema.RiskReason, now int64) {
	s.escalate(schema.RiskModeHalted, reason, 0, now)
}

// Reset de-escalates to NORMAL. Operator action only; clears the reject
// window and venue-down flags so a stale fault does not re-trip instantly.
func (s *Supervisor) Reset(now int64) {
	if s.mode == schema.RiskModeNormal {
		return
	}
	from := s.mode
	s.mode = schema.RiskModeNormal
	s.reason = schema.RiskReasonNone
	s.rejectCount = 0
	s.rejectWindowStart = 0
	for venue := range s.venueDown {
		s.venueDown[venue] = false
	}
	s.record(schema.RiskTransition{
		From:    from,
		To:      schema.RiskModeNormal,
		Reason:  schema.RiskReasonOperatorReset,
		TsEvent: now,
	})
}

func (s *Supervisor) escalate(to schema.RiskMode, reason schema.RiskReason, venue schema.VenueID, now int64) {
	if to <= s.mode {
		return
	}
	from := s.mode
	s.mode = to
	s.reason = reason
	s.record(schema.RiskTransition{
		From:    from,
		To:      to,
		Reason:  reason,
		Venue:   venue,
		TsEvent: now,
	})
}

func (s *Supervisor) record(tr schema.RiskTransition) {
	s.audit = append(s.audit, tr)
	logs.Warnf("risk transition %s -> %s reason=%d venue=%d", tr.From, tr.To, tr.Reason, tr.Venue)
	if s.OnTransition != nil {
		s.OnTransition(tr)
	}
}

const maxInt64 = int64(^uint64(0) >> 1)

func mulNotional(price schema.Price, qty schema.Quantity, divisor int64) (schema.Notional, bool) {
	p, q := int64(price), int64(qty)
	if p <= 0 || q <= 0 {
		return 0, false
	}
	if p > maxInt64/q {
		return 0, true
	}
	n := p * q
	if divisor > 1 {
		n /= divisor
	}
	return schema.Notional(n), false
}

// reducesExposure reports whether a full fill shrinks the absolute net
// position.
func reducesExposure(pos schema.Quantity, side schema.Side, qty schema.Quantity) bool {
	return projectPosition(pos, side, qty).Abs() < pos.Abs()
}

func projectPosition(pos schema.Quantity, side schema.Side, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.SideBuy:
		return pos + qty
	case schema.SideSell:
		return pos - qty
	default:
		return pos
	}
}
