package schema

import "strconv"

// Price is a scaled integer. The scale is defined by the symbol registry.
type Price int64

// Quantity is a scaled integer. The scale is defined by the symbol registry.
type Quantity int64

// Notional is a scaled integer. The scale is defined by the symbol registry.
type Notional int64

// Fee is a scaled integer. The scale is defined by the symbol registry.
type Fee int64

// Abs returns the magnitude of a quantity.
func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Side describes order or trade direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
)

// MaxBookDepth caps the number of levels carried per book side.
const MaxBookDepth = 32

// BookLevel is one price level of a book snapshot.
type BookLevel struct {
	Price Price
	Size  Quantity
}

// BookSnapshot is the payload for EventBook. Levels are ordered best-first.
type BookSnapshot struct {
	SymbolID SymbolID
	Venue    VenueID
	TsEvent  int64
	Bids     []BookLevel
	Asks     []BookLevel
}

// BestBid returns the top bid level.
func (b BookSnapshot) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level.
func (b BookSnapshot) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// TradeTick is the payload for EventTrade. Side is the taker side.
type TradeTick struct {
	SymbolID SymbolID
	Venue    VenueID
	TsEvent  int64
	Price    Price
	Size     Quantity
	Side     Side
}

// Gap is the payload for EventGap, signaling a feed disconnect or sequence
// break on a venue. It is an explicit signal, never inferred from staleness.
type Gap struct {
	Venue    VenueID
	SymbolID SymbolID
	TsEvent  int64
	Resumed  bool
}

// OrderActionKind discriminates venue order requests.
type OrderActionKind uint16

const (
	ActionUnknown OrderActionKind = iota
	ActionPlace
	ActionReplace
	ActionCancel
)

// OrderAction is a venue order request computed from a quote generation.
type OrderAction struct {
	Kind         OrderActionKind
	ClientID     uint64
	Venue        VenueID
	SymbolID     SymbolID
	Side         Side
	Type         OrderType
	TimeInForce  TimeInForce
	Price        Price
	Qty          Quantity
	Generation   uint64
	VenueOrderID string
}

// AckStatus describes the outcome of an order acknowledgment.
type AckStatus uint16

const (
	AckStatusUnknown AckStatus = iota
	AckStatusAcked
	AckStatusRejected
	AckStatusCanceled
	AckStatusReplaced
)

// AckReason describes the reason for a rejection.
type AckReason uint16

const (
	AckReasonNone AckReason = iota
	AckReasonVenueReject
	AckReasonRiskReject
	AckReasonRateLimit
	AckReasonInvalidPrice
	AckReasonInvalidQty
	AckReasonUnknownOrder
)

// OrderAck is the payload for EventOrderAck.
type OrderAck struct {
	ClientID     uint64
	VenueOrderID string
	Venue        VenueID
	SymbolID     SymbolID
	Status       AckStatus
	Reason       AckReason
	Price        Price
	LeavesQty    Quantity
	Generation   uint64
	TsEvent      int64
}

// Fill is the payload for EventFill. FillID is the venue fill identifier
// used for exactly-once ledger application.
type Fill struct {
	ClientID     uint64
	VenueOrderID string
	FillID       string
	Venue        VenueID
	SymbolID     SymbolID
	Side         Side
	Price        Price
	Qty          Quantity
	Fee          Fee
	Liquidity    Liquidity
	TsEvent      int64
}

// Liquidity marks whether a fill added or removed liquidity.
type Liquidity uint16

const (
	LiquidityUnknown Liquidity = iota
	LiquidityMaker
	LiquidityTaker
)

// RiskMode is the supervisor operating mode.
type RiskMode uint16

const (
	RiskModeNormal RiskMode = iota
	RiskModeReduced
	RiskModeHalted
)

func (m RiskMode) String() string {
	switch m {
	case RiskModeNormal:
		return "normal"
	case RiskModeReduced:
		return "reduced"
	case RiskModeHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// RiskReason is a coarse reason code for risk transitions and denials.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonSoftInventory
	RiskReasonHardInventory
	RiskReasonStaleData
	RiskReasonRejectStorm
	RiskReasonMarkOutLoss
	RiskReasonVenueDown
	RiskReasonLedgerMismatch
	RiskReasonOperatorReset
)

// RiskTransition is the payload for EventRiskTransition. Every mode change
// is journaled with its reason for the audit trail.
type RiskTransition struct {
	From    RiskMode
	To      RiskMode
	Reason  RiskReason
	Venue   VenueID
	TsEvent int64
}

// HedgeKind discriminates hedge instruction styles.
type HedgeKind uint16

const (
	HedgeKindUnknown HedgeKind = iota
	HedgeKindTaker
	HedgeKindLadder
)

// HedgeInstruction is the payload for EventHedge: one leg of a hedge plan.
type HedgeInstruction struct {
	Kind           HedgeKind
	Venue          VenueID
	SymbolID       SymbolID
	Side           Side
	Qty            Quantity
	LimitPrice     Price
	MaxSlippageBps int64
	TsEvent        int64
}

// AppendScaled formats a scaled integer into buf with the given scale.
func AppendScaled(buf []byte, value int64, scale Scale) []byte {
	if scale <= 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(^value) + 1
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	s := int(scale)
	if len(digits) <= s {
		buf = append(buf, '0', '.')
		for i := 0; i < s-len(digits); i++ {
			buf = append(buf, '0')
		}
		return append(buf, digits...)
	}

	idx := len(digits) - s
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	return append(buf, digits[idx:]...)
}
