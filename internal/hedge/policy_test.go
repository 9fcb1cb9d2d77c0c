package hedge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testPolicyConfig() Config {
	return Config{
		Venue:          2,
		SymbolID:       2,
		NoHedgeBand:    10,
		TakerFraction:  0.5,
		MaxSlippageBps: 20,
		PostOffsetBps:  1,
		LadderLevels:   3,
		LadderStepBps:  2,
	}
}

func deepBook(bid, ask int64) schema.BookSnapshot {
	return schema.BookSnapshot{
		SymbolID: 2,
		Venue:    2,
		Bids:     []schema.BookLevel{{Price: schema.Price(bid), Size: 1000}},
		Asks:     []schema.BookLevel{{Price: schema.Price(ask), Size: 1000}},
	}
}

func totalQty(legs []schema.HedgeInstruction, kind schema.HedgeKind) schema.Quantity {
	var total schema.Quantity
	for _, leg := range legs {
		if leg.Kind == kind {
			total += leg.Qty
		}
	}
	return total
}

func TestPlanInsideBandDoesNothing(t *testing.T) {
	p := NewPolicy(testPolicyConfig())

	legs := p.Plan(8, 10000, deepBook(9999, 10001), schema.RiskModeNormal, 1)
	assert.Empty(t, legs)

	legs = p.Plan(0, 10000, deepBook(9999, 10001), schema.RiskModeNormal, 1)
	assert.Empty(t, legs)
}

func TestPlanSplitsTakerAndLadder(t *testing.T) {
	p := NewPolicy(testPolicyConfig())

	// 50 long: excess 40, half taker half ladder
	legs := p.Plan(50, 10000, deepBook(9999, 10001), schema.RiskModeNormal, 1)
	require.NotEmpty(t, legs)

	assert.Equal(t, schema.Quantity(20), totalQty(legs, schema.HedgeKindTaker))
	assert.Equal(t, schema.Quantity(20), totalQty(legs, schema.HedgeKindLadder))
	for _, leg := range legs {
		assert.Equal(t, schema.SideSell, leg.Side)
	}
}

func TestPlanShortInventoryBuys(t *testing.T) {
	p := NewPolicy(testPolicyConfig())

	legs := p.Plan(-50, 10000, deepBook(9999, 10001), schema.RiskModeNormal, 1)
	require.NotEmpty(t, legs)
	for _, leg := range legs {
		assert.Equal(t, schema.SideBuy, leg.Side)
	}
}

func TestPlanTakerClipCapsIOC(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.TakerClip = 5
	p := NewPolicy(cfg)

	legs := p.Plan(50, 10000, deepBook(9999, 10001), schema.RiskModeNormal, 1)
	assert.Equal(t, schema.Quantity(5), totalQty(legs, schema.HedgeKindTaker))
	assert.Equal(t, schema.Quantity(35), totalQty(legs, schema.HedgeKindLadder))
}

func TestPlanSlippageBreachEscalatesToLadder(t *testing.T) {
	p := NewPolicy(testPolicyConfig())

	// selling into a bid 1% below ref breaches the 20 bps cap
	legs := p.Plan(50, 10000, deepBook(9900, 10001), schema.RiskModeNormal, 1)
	assert.Zero(t, totalQty(legs, schema.HedgeKindTaker))
	assert.Equal(t, schema.Quantity(40), totalQty(legs, schema.HedgeKindLadder))
}

func TestPlanThinBookAssumesWorstLevel(t *testing.T) {
	p := NewPolicy(testPolicyConfig())

	book := schema.BookSnapshot{
		Bids: []schema.BookLevel{{Price: 9999, Size: 1}},
		Asks: []schema.BookLevel{{Price: 10001, Size: 1}},
	}
	// visible depth 1 at a good price still estimates within the cap
	legs := p.Plan(50, 10000, book, schema.RiskModeNormal, 1)
	assert.Equal(t, schema.Quantity(20), totalQty(legs, schema.HedgeKindTaker))
}

func TestPlanHaltedFlattensAllAsTaker(t *testing.T) {
	p := NewPolicy(testPolicyConfig())

	legs := p.Plan(50, 10000, deepBook(9999, 10001), schema.RiskModeHalted, 1)
	require.Len(t, legs, 1)
	assert.Equal(t, schema.HedgeKindTaker, legs[0].Kind)
	assert.Equal(t, schema.Quantity(50), legs[0].Qty)
}

func TestPlanHaltedRetriesWidenSlippageCap(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.SlippageStepBps = 10
	p := NewPolicy(cfg)

	// bid 50 bps below ref: first attempts breach the 20 bps cap
	book := deepBook(9950, 10001)
	first := p.Plan(50, 10000, book, schema.RiskModeHalted, 1)
	assert.Zero(t, totalQty(first, schema.HedgeKindTaker))

	// caps: 20, 30, 40, 50; the fourth attempt clears the 50 bps gap
	p.Plan(50, 10000, book, schema.RiskModeHalted, 2)
	p.Plan(50, 10000, book, schema.RiskModeHalted, 3)
	fourth := p.Plan(50, 10000, book, schema.RiskModeHalted, 4)
	assert.Equal(t, schema.Quantity(50), totalQty(fourth, schema.HedgeKindTaker))
	assert.Equal(t, int64(50), fourth[0].MaxSlippageBps)
}

func TestPlanLadderLegsStepAwayFromRef(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.TakerFraction = 0
	cfg.PostOffsetBps = 10
	cfg.LadderStepBps = 10
	p := NewPolicy(cfg)

	legs := p.Plan(40, 100000, deepBook(99990, 100010), schema.RiskModeNormal, 1)
	require.Len(t, legs, 3)

	// selling: rungs above ref, each one step further
	assert.Equal(t, schema.Price(100100), legs[0].LimitPrice)
	assert.Equal(t, schema.Price(100200), legs[1].LimitPrice)
	assert.Equal(t, schema.Price(100300), legs[2].LimitPrice)
	assert.Equal(t, schema.Quantity(30), totalQty(legs, schema.HedgeKindLadder))
}

func TestSlippageGuardDirection(t *testing.T) {
	assert.Equal(t, schema.Price(10020), slippageGuard(10000, schema.SideBuy, 20))
	assert.Equal(t, schema.Price(9980), slippageGuard(10000, schema.SideSell, 20))
}
