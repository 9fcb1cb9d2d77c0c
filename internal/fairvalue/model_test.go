package fairvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
	"main/internal/signal"
)

func TestComputeBlendsMicropriceAndVWAP(t *testing.T) {
	m := NewModel(Config{MicroWeight: 0.7}, 1)

	fv := m.Compute(signal.State{
		Microprice: 10000,
		VWAP:       9000,
		TsEvent:    5,
		Confident:  true,
	}, schema.RiskModeNormal)

	assert.InDelta(t, 0.7*10000+0.3*9000, fv.Mid, 1e-9)
	assert.True(t, fv.Confident)
	assert.Equal(t, int64(5), fv.TsEvent)
}

func TestComputeNoMicropriceYieldsNoAnchor(t *testing.T) {
	m := NewModel(Config{}, 1)

	fv := m.Compute(signal.State{VWAP: 10000}, schema.RiskModeNormal)
	assert.Zero(t, fv.Mid)
	assert.Zero(t, fv.BaseSpread)
}

func TestSpreadWidensWithVolatility(t *testing.T) {
	m := NewModel(Config{VolCoeff: 1, MinSpreadTicks: 1}, 1)

	calm := m.Compute(signal.State{Microprice: 100000, SigmaBps: 1}, schema.RiskModeNormal)
	wild := m.Compute(signal.State{Microprice: 100000, SigmaBps: 100}, schema.RiskModeNormal)
	assert.Greater(t, wild.BaseSpread, calm.BaseSpread)
}

func TestSpreadWidensWithImbalance(t *testing.T) {
	m := NewModel(Config{ImbalanceCoeff: 5, MinSpreadTicks: 1}, 1)

	flat := m.Compute(signal.State{Microprice: 100000}, schema.RiskModeNormal)
	lean := m.Compute(signal.State{Microprice: 100000, Imbalance: -0.9}, schema.RiskModeNormal)
	assert.Greater(t, lean.BaseSpread, flat.BaseSpread)
}

func TestSpreadFlooredAtMinTicks(t *testing.T) {
	m := NewModel(Config{MinSpreadTicks: 4}, 25)

	fv := m.Compute(signal.State{Microprice: 10000}, schema.RiskModeNormal)
	assert.InDelta(t, 100, fv.BaseSpread, 1e-9)
}

func TestReducedModeMultipliesSpread(t *testing.T) {
	m := NewModel(Config{MinSpreadTicks: 2, ReducedSpreadMult: 3}, 1)

	normal := m.Compute(signal.State{Microprice: 10000}, schema.RiskModeNormal)
	reduced := m.Compute(signal.State{Microprice: 10000}, schema.RiskModeReduced)
	assert.InDelta(t, normal.BaseSpread*3, reduced.BaseSpread, 1e-9)
}

func TestTakerFeeCoveredBySpread(t *testing.T) {
	m := NewModel(Config{TakerFeeBps: 10, MinSpreadTicks: 1}, 1)

	fv := m.Compute(signal.State{Microprice: 1000000}, schema.RiskModeNormal)
	// spread is 2x the half-spread so one round trip covers the fee
	assert.InDelta(t, 2*10.0/1e4*1000000, fv.BaseSpread, 1e-9)
}
