package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/codec"
	"main/internal/inventory"
	"main/internal/journal"
	"main/internal/ops"
	"main/internal/quote"
	"main/internal/schema"
)

const engineConfig = `{
  "registry": {
    "venues": [
      {"name": "simx", "role": "maker"},
      {"name": "simy", "role": "hedge"}
    ],
    "symbols": [
      {"name": "BTCUSDT", "venue": "simx", "scale": {"priceScale": 2, "quantityScale": 4, "notionalScale": 2, "feeScale": 2}, "tick": "0.01"},
      {"name": "BTCUSDT", "venue": "simy", "scale": {"priceScale": 2, "quantityScale": 4, "notionalScale": 2, "feeScale": 2}, "tick": "0.01"}
    ]
  },
  "signal": {"vwapTrades": 16, "volReturns": 16, "depthLevels": 3, "minSamples": 4},
  "fairValue": {"microWeight": 0.7, "volCoeff": 1.0, "imbalanceCoeff": 0.5, "takerFeeBps": 10, "minSpreadTicks": 4, "reducedSpreadMult": 3},
  "quote": {"skewShift": "1.50", "inventoryCap": "2.5", "quoteSize": "0.25", "lowConfidenceMult": 3},
  "risk": {
    "softInventory": "5", "hardInventory": "10",
    "maxOrderQty": "1", "maxOrderNotional": "250000.00",
    "rejectStormCount": 3, "rejectStormWindow": "1s",
    "staleDataTimeout": "1h", "markOutLossLimit": "100000.00"
  },
  "maker": {"levels": 1, "priceTolerance": "0.02", "sizeTolerance": "0.01", "minActionInterval": "1ms"},
  "hedge": {
    "noHedgeBand": "0.1", "takerFraction": 0.5, "takerClip": "0.5",
    "maxSlippageBps": 50, "slippageStepBps": 10, "postOffsetBps": 5,
    "ladderLevels": 2, "ladderStepBps": 10
  },
  "journal": {"dir": "wal", "filePrefix": "events", "queueSize": 64, "flushEvery": "100ms"},
  "accounting": {"jsonlPath": "trades.jsonl", "queueSize": 64},
  "generator": {"basePrice": "6500", "volBps": 5, "spreadTicks": 2, "depth": 3, "baseSize": "0.01", "tradeEvery": 3, "seed": 1},
  "engine": {"queueSize": 64, "quoteInterval": "10ms", "snapshotEvery": "1s"}
}`

type actionsClient struct {
	actions []schema.OrderAction
}

func (c *actionsClient) Submit(a schema.OrderAction) error {
	c.actions = append(c.actions, a)
	return nil
}

func (c *actionsClient) byKind(kind schema.OrderActionKind) []schema.OrderAction {
	var out []schema.OrderAction
	for _, a := range c.actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type takerCall struct {
	side  schema.Side
	qty   schema.Quantity
	limit schema.Price
}

type takerFake struct {
	calls []takerCall
}

func (f *takerFake) TakeLiquidity(side schema.Side, qty schema.Quantity, limit schema.Price) error {
	f.calls = append(f.calls, takerCall{side: side, qty: qty, limit: limit})
	return nil
}

type testHarness struct {
	engine *Engine
	loaded ops.Loaded
	maker  *actionsClient
	hedge  *actionsClient
	taker  *takerFake
}

func newTestEngine(t *testing.T) *testHarness {
	t.Helper()
	loaded, err := ops.Parse([]byte(engineConfig))
	require.NoError(t, err)

	h := &testHarness{loaded: loaded, maker: &actionsClient{}, hedge: &actionsClient{}, taker: &takerFake{}}
	h.engine, err = New(loaded, ops.NewRuntime(loaded), Deps{
		MakerClient: h.maker,
		HedgeClient: h.hedge,
		HedgeTaker:  h.taker,
	})
	require.NoError(t, err)

	// tight two-sided hedge book around 6500.00 with ample depth
	h.engine.lastHedgeBook = schema.BookSnapshot{
		SymbolID: loaded.HedgeSymbol,
		Venue:    h.engine.hedgeVenue.ID,
		TsEvent:  time.Now().UTC().UnixNano(),
		Bids: []schema.BookLevel{
			{Price: 649950, Size: 500000},
			{Price: 649940, Size: 500000},
		},
		Asks: []schema.BookLevel{
			{Price: 650050, Size: 500000},
			{Price: 650060, Size: 500000},
		},
	}
	return h
}

func makerBuy(id string, qty schema.Quantity) func(*Engine) schema.Fill {
	return func(e *Engine) schema.Fill {
		return schema.Fill{
			FillID:    id,
			Venue:     e.makerVenue.ID,
			SymbolID:  e.makerSym.ID,
			Side:      schema.SideBuy,
			Price:     650000,
			Qty:       qty,
			Liquidity: schema.LiquidityMaker,
			TsEvent:   time.Now().UTC().UnixNano(),
		}
	}
}

func TestApplyFillHedgesExcessInventory(t *testing.T) {
	h := newTestEngine(t)

	h.engine.applyFill(makerBuy("mf1", 20000)(h.engine))

	assert.Equal(t, schema.Quantity(20000), h.engine.Position().NetSize)

	// excess above the band splits: the taker clip sells first
	require.Len(t, h.taker.calls, 1)
	assert.Equal(t, schema.SideSell, h.taker.calls[0].side)
	assert.Equal(t, schema.Quantity(5000), h.taker.calls[0].qty)
	assert.Equal(t, schema.Quantity(5000), h.engine.takerInFlight)

	// the remainder rests as ladder orders on the hedge venue
	assert.NotEmpty(t, h.hedge.byKind(schema.ActionPlace))
	assert.False(t, h.engine.Halted())
}

func TestApplyFillDuplicateIgnored(t *testing.T) {
	h := newTestEngine(t)
	fill := makerBuy("mf1", 20000)(h.engine)

	h.engine.applyFill(fill)
	takerCalls := len(h.taker.calls)

	h.engine.applyFill(fill)
	assert.Equal(t, schema.Quantity(20000), h.engine.Position().NetSize)
	assert.Equal(t, takerCalls, len(h.taker.calls))
	assert.False(t, h.engine.Halted())
}

func TestTakerInFlightTrimsReplans(t *testing.T) {
	h := newTestEngine(t)

	h.engine.applyFill(makerBuy("mf1", 20000)(h.engine))
	require.Len(t, h.taker.calls, 1)
	require.Equal(t, schema.Quantity(5000), h.engine.takerInFlight)

	// replanning while the clip is in flight must not re-send it
	h.engine.hedgeCycle(time.Now().UTC().Add(time.Second), false)
	assert.Len(t, h.taker.calls, 1)
	assert.Equal(t, schema.Quantity(5000), h.engine.takerInFlight)
}

func TestTakerFillSettlesInFlight(t *testing.T) {
	h := newTestEngine(t)

	h.engine.applyFill(makerBuy("mf1", 20000)(h.engine))
	require.Equal(t, schema.Quantity(5000), h.engine.takerInFlight)

	h.engine.applyFill(schema.Fill{
		FillID:    "hf1",
		Venue:     h.engine.hedgeVenue.ID,
		SymbolID:  h.loaded.HedgeSymbol,
		Side:      schema.SideSell,
		Price:     649950,
		Qty:       5000,
		Liquidity: schema.LiquidityTaker,
		TsEvent:   time.Now().UTC().UnixNano(),
	})

	assert.Equal(t, schema.Quantity(15000), h.engine.Position().NetSize)
	assert.Zero(t, h.engine.takerInFlight)
}

func TestMalformedFillForcesHalt(t *testing.T) {
	h := newTestEngine(t)

	h.engine.applyFill(schema.Fill{
		FillID:   "bad",
		Venue:    h.engine.makerVenue.ID,
		SymbolID: h.engine.makerSym.ID,
		Side:     schema.SideBuy,
		Price:    650000,
		Qty:      0,
	})

	assert.True(t, h.engine.Halted())
	assert.Zero(t, h.engine.Position().NetSize)
	assert.Empty(t, h.taker.calls)
}

func TestHaltCancelsRestingOrders(t *testing.T) {
	h := newTestEngine(t)
	now := time.Now().UTC()

	h.engine.mgr.SyncQuote(quote.Quote{
		BidPrice: 649900, BidSize: 2500,
		AskPrice: 650100, AskSize: 2500,
		Generation: 1,
	}, now, true)

	places := h.maker.byKind(schema.ActionPlace)
	require.Len(t, places, 2)
	for i, a := range places {
		h.engine.mgr.OnAck(schema.OrderAck{
			ClientID:     a.ClientID,
			VenueOrderID: []string{"vo-a", "vo-b"}[i],
			Venue:        h.engine.makerVenue.ID,
			SymbolID:     a.SymbolID,
			Status:       schema.AckStatusAcked,
			Price:        a.Price,
			LeavesQty:    a.Qty,
			Generation:   a.Generation,
		}, now)
	}

	h.engine.sup.ForceHalt(schema.RiskReasonHardInventory, now.UnixNano())

	assert.True(t, h.engine.Halted())
	assert.Len(t, h.maker.byKind(schema.ActionCancel), 2)
}

func TestQuoteCrossedDetectsRestingThroughFair(t *testing.T) {
	h := newTestEngine(t)
	now := time.Now().UTC()

	h.engine.mgr.SyncQuote(quote.Quote{
		BidPrice: 649900, BidSize: 2500,
		AskPrice: 650100, AskSize: 2500,
		Generation: 1,
	}, now, true)
	places := h.maker.byKind(schema.ActionPlace)
	require.Len(t, places, 2)
	for i, a := range places {
		h.engine.mgr.OnAck(schema.OrderAck{
			ClientID:     a.ClientID,
			VenueOrderID: []string{"vo-a", "vo-b"}[i],
			Venue:        h.engine.makerVenue.ID,
			SymbolID:     a.SymbolID,
			Status:       schema.AckStatusAcked,
			Price:        a.Price,
			LeavesQty:    a.Qty,
			Generation:   a.Generation,
		}, now)
	}

	// fair between the resting prices: routine reprice
	assert.False(t, h.engine.quoteCrossed(650000))
	// fair collapsed below the bid or spiked above the ask: urgent
	assert.True(t, h.engine.quoteCrossed(649800))
	assert.True(t, h.engine.quoteCrossed(650200))
	// no fair value yet: never urgent
	assert.False(t, h.engine.quoteCrossed(0))
}

func appendFill(t *testing.T, w *journal.Writer, seq uint64, fill schema.Fill) {
	t.Helper()
	header := schema.NewHeader(schema.EventFill, fill.Venue, seq, fill.TsEvent, fill.TsEvent)
	require.NoError(t, w.TryAppend(header, codec.EncodeFill(nil, fill)))
}

func journalFill(id string, side schema.Side, px, qty, ts int64) schema.Fill {
	return schema.Fill{
		FillID:   id,
		Venue:    1,
		SymbolID: 1,
		Side:     side,
		Price:    schema.Price(px),
		Qty:      schema.Quantity(qty),
		TsEvent:  ts,
	}
}

func TestRecoverReplaysJournal(t *testing.T) {
	dir := t.TempDir()
	w, err := journal.NewWriter(journal.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	appendFill(t, w, 1, journalFill("f1", schema.SideBuy, 650000, 10000, 100))
	appendFill(t, w, 2, journalFill("f2", schema.SideSell, 651000, 4000, 200))
	// non-fill events are skipped during recovery
	header := schema.NewHeader(schema.EventTrade, 1, 3, 300, 300)
	require.NoError(t, w.TryAppend(header, codec.EncodeTrade(nil, schema.TradeTick{SymbolID: 1, Venue: 1, Price: 650000, Size: 1})))
	require.NoError(t, w.Close())

	ledger := inventory.NewLedger(1, schema.ScaleSpec{})
	snap, err := Recover(context.Background(), RecoverConfig{
		Playback: journal.PlaybackConfig{Dir: dir},
	}, ledger)
	require.NoError(t, err)

	assert.Equal(t, schema.Quantity(6000), snap.Position.NetSize)
	assert.Equal(t, int64(200), snap.Position.LastFillTs)
	assert.Equal(t, uint64(2), snap.LastSeq)
	assert.Equal(t, int64(200), snap.LastEventTs)
}

func TestRecoverSnapshotCutoff(t *testing.T) {
	dir := t.TempDir()
	snapPath := dir + "/ledger.snap"
	require.NoError(t, inventory.WriteSnapshot(snapPath, inventory.Snapshot{
		Position: inventory.Position{
			SymbolID:      1,
			NetSize:       10000,
			AvgEntryPrice: 650000,
			LastFillTs:    150,
		},
		LastSeq:     5,
		LastEventTs: 150,
	}))

	w, err := journal.NewWriter(journal.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	// at or before the snapshot cutoff: already folded in
	appendFill(t, w, 4, journalFill("f1", schema.SideBuy, 650000, 10000, 150))
	// after the cutoff: replayed
	appendFill(t, w, 6, journalFill("f2", schema.SideBuy, 650000, 5000, 200))
	require.NoError(t, w.Close())

	ledger := inventory.NewLedger(1, schema.ScaleSpec{})
	snap, err := Recover(context.Background(), RecoverConfig{
		SnapshotPath: snapPath,
		Playback:     journal.PlaybackConfig{Dir: dir},
	}, ledger)
	require.NoError(t, err)

	assert.Equal(t, schema.Quantity(15000), snap.Position.NetSize)
	assert.Equal(t, uint64(6), snap.LastSeq)
}

func TestRecoverMissingJournalKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapPath := dir + "/ledger.snap"
	require.NoError(t, inventory.WriteSnapshot(snapPath, inventory.Snapshot{
		Position:    inventory.Position{SymbolID: 1, NetSize: 7000, LastFillTs: 99},
		LastEventTs: 99,
	}))

	ledger := inventory.NewLedger(1, schema.ScaleSpec{})
	snap, err := Recover(context.Background(), RecoverConfig{
		SnapshotPath: snapPath,
		Playback:     journal.PlaybackConfig{Dir: dir},
	}, ledger)
	require.NoError(t, err)

	assert.Equal(t, schema.Quantity(7000), snap.Position.NetSize)
	assert.Equal(t, schema.Quantity(7000), ledger.Position().NetSize)
}

func TestRecoverColdStartWithNothingFails(t *testing.T) {
	ledger := inventory.NewLedger(1, schema.ScaleSpec{})
	_, err := Recover(context.Background(), RecoverConfig{
		Playback: journal.PlaybackConfig{Dir: t.TempDir()},
	}, ledger)
	assert.Error(t, err)
}
