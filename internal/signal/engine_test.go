package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
	"main/pkg/exception"
)

func book(ts int64, bidPx, bidSz, askPx, askSz int64) schema.BookSnapshot {
	return schema.BookSnapshot{
		SymbolID: 1,
		Venue:    1,
		TsEvent:  ts,
		Bids:     []schema.BookLevel{{Price: schema.Price(bidPx), Size: schema.Quantity(bidSz)}},
		Asks:     []schema.BookLevel{{Price: schema.Price(askPx), Size: schema.Quantity(askSz)}},
	}
}

func trade(ts int64, px, sz int64) schema.TradeTick {
	return schema.TradeTick{
		SymbolID: 1,
		Venue:    1,
		TsEvent:  ts,
		Price:    schema.Price(px),
		Size:     schema.Quantity(sz),
		Side:     schema.SideBuy,
	}
}

func TestOnBookMicropriceBetweenBidAndAsk(t *testing.T) {
	e := NewEngine(1, 1, Config{})

	st, err := e.OnBook(book(100, 9990, 30, 10010, 10))
	require.NoError(t, err)

	assert.Equal(t, schema.Price(9990), st.BestBid)
	assert.Equal(t, schema.Price(10010), st.BestAsk)
	assert.InDelta(t, 10000, st.Mid, 1e-9)
	assert.GreaterOrEqual(t, st.Microprice, float64(st.BestBid))
	assert.LessOrEqual(t, st.Microprice, float64(st.BestAsk))
	// more bid size pushes the microprice toward the ask
	assert.Greater(t, st.Microprice, st.Mid)
}

func TestOnBookRejectsStaleTimestamp(t *testing.T) {
	e := NewEngine(1, 1, Config{})

	_, err := e.OnBook(book(100, 9990, 10, 10010, 10))
	require.NoError(t, err)

	_, err = e.OnBook(book(100, 9991, 10, 10011, 10))
	assert.ErrorIs(t, err, exception.ErrStaleData)

	_, err = e.OnBook(book(99, 9991, 10, 10011, 10))
	assert.ErrorIs(t, err, exception.ErrStaleData)

	// the state keeps the last accepted book
	assert.Equal(t, schema.Price(9990), e.State().BestBid)
}

func TestOnBookImbalanceSign(t *testing.T) {
	e := NewEngine(1, 1, Config{})

	st, err := e.OnBook(book(1, 9990, 90, 10010, 10))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, st.Imbalance, 1e-9)

	st, err = e.OnBook(book(2, 9990, 10, 10010, 90))
	require.NoError(t, err)
	assert.InDelta(t, -0.8, st.Imbalance, 1e-9)
}

func TestOnTradeVWAPAndWindowEviction(t *testing.T) {
	e := NewEngine(1, 1, Config{VWAPTrades: 2})

	_, err := e.OnTrade(trade(1, 10000, 1))
	require.NoError(t, err)
	_, err = e.OnTrade(trade(2, 20000, 1))
	require.NoError(t, err)
	assert.InDelta(t, 15000, e.State().VWAP, 1e-6)

	// third trade evicts the first
	_, err = e.OnTrade(trade(3, 20000, 1))
	require.NoError(t, err)
	assert.InDelta(t, 20000, e.State().VWAP, 1e-6)
}

func TestOnTradeRejectsBadPrints(t *testing.T) {
	e := NewEngine(1, 1, Config{})

	_, err := e.OnTrade(trade(5, 10000, 1))
	require.NoError(t, err)

	_, err = e.OnTrade(trade(5, 10001, 1))
	assert.ErrorIs(t, err, exception.ErrStaleData)

	// malformed prints are not staleness
	_, err = e.OnTrade(trade(6, 0, 1))
	assert.ErrorIs(t, err, exception.ErrMalformedEvent)
	_, err = e.OnTrade(trade(7, 10001, 0))
	assert.ErrorIs(t, err, exception.ErrMalformedEvent)

	// a rejected print does not advance the trade clock
	_, err = e.OnTrade(trade(7, 10001, 1))
	assert.NoError(t, err)
}

func TestVolatilityRisesWithSwings(t *testing.T) {
	calm := NewEngine(1, 1, Config{})
	wild := NewEngine(1, 1, Config{})

	px := []int64{10000, 10001, 10000, 10001, 10000, 10001}
	for i, p := range px {
		_, err := calm.OnTrade(trade(int64(i+1), p, 1))
		require.NoError(t, err)
	}
	px = []int64{10000, 10500, 9800, 10600, 9700, 10400}
	for i, p := range px {
		_, err := wild.OnTrade(trade(int64(i+1), p, 1))
		require.NoError(t, err)
	}

	assert.Greater(t, wild.State().SigmaBps, calm.State().SigmaBps)
}

func TestConfidenceRequiresBookAndSamples(t *testing.T) {
	e := NewEngine(1, 1, Config{MinSamples: 3})

	_, err := e.OnBook(book(1, 9990, 10, 10010, 10))
	require.NoError(t, err)
	assert.False(t, e.State().Confident)

	for i := int64(0); i < 3; i++ {
		_, err := e.OnTrade(trade(10+i, 10000+i, 1))
		require.NoError(t, err)
	}
	assert.True(t, e.State().Confident)

	// a crossed book clears confidence
	_, err = e.OnBook(book(20, 10020, 10, 10010, 10))
	require.NoError(t, err)
	assert.False(t, e.State().Confident)
}
