package fairvalue

import (
	"math"

	"main/internal/schema"
	"main/internal/signal"
)

// Config controls the fair value blend and base spread shape.
type Config struct {
	MicroWeight    float64 // blend weight of microprice vs rolling VWAP
	VolCoeff       float64 // bps added per sqrt(sigma_bps)
	ImbalanceCoeff float64 // bps added per unit of |depth imbalance|
	TakerFeeBps    float64 // hedge venue taker fee covered by the spread
	MinSpreadTicks int64   // floor in ticks

	ReducedSpreadMult float64 // spread multiplier in REDUCED mode
}

func (c Config) withDefaults() Config {
	if c.MicroWeight <= 0 || c.MicroWeight > 1 {
		c.MicroWeight = 0.7
	}
	if c.VolCoeff < 0 {
		c.VolCoeff = 0
	}
	if c.MinSpreadTicks <= 0 {
		c.MinSpreadTicks = 2
	}
	if c.ReducedSpreadMult < 1 {
		c.ReducedSpreadMult = 2
	}
	return c
}

// FairValue is the derived quoting anchor. Mid and BaseSpread are in scaled
// integer price units; it is recomputed per signal update, never stored.
type FairValue struct {
	Mid        float64
	BaseSpread float64
	TsEvent    int64
	Confident  bool
}

// Model turns indicator state into a fair mid and base spread.
type Model struct {
	cfg  Config
	tick schema.Price
}

// NewModel creates a fair value model for one symbol.
func NewModel(cfg Config, tick schema.Price) *Model {
	return &Model{cfg: cfg.withDefaults(), tick: tick}
}

// Compute blends microprice with VWAP and derives the base spread. The
// spread widens monotonically with volatility and depth imbalance, floored
// at MinSpreadTicks, and is multiplied up when the supervisor is REDUCED.
func (m *Model) Compute(s signal.State, mode schema.RiskMode) FairValue {
	fv := FairValue{TsEvent: s.TsEvent}
	if s.Microprice <= 0 {
		return fv
	}

	mid := s.Microprice
	if s.VWAP > 0 {
		w := m.cfg.MicroWeight
		mid = w*s.Microprice + (1-w)*s.VWAP
	}

	halfBps := m.cfg.TakerFeeBps +
		m.cfg.VolCoeff*math.Sqrt(math.Max(0, s.SigmaBps)) +
		m.cfg.ImbalanceCoeff*math.Abs(s.Imbalance)
	spread := 2 * halfBps / 1e4 * mid

	floor := float64(m.cfg.MinSpreadTicks) * float64(m.tick)
	if spread < floor {
		spread = floor
	}
	if mode == schema.RiskModeReduced {
		spread *= m.cfg.ReducedSpreadMult
	}

	fv.Mid = mid
	fv.BaseSpread = spread
	fv.Confident = s.Confident
	return fv
}
