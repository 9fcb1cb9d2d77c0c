package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestBookRoundTrip(t *testing.T) {
	book := schema.BookSnapshot{
		SymbolID: 1,
		Venue:    2,
		TsEvent:  1234567890,
		Bids: []schema.BookLevel{
			{Price: 10000, Size: 500},
			{Price: 9995, Size: 800},
		},
		Asks: []schema.BookLevel{
			{Price: 10005, Size: 300},
		},
	}

	buf := EncodeBook(nil, book)
	got, ok := DecodeBook(buf)
	require.True(t, ok)
	assert.Equal(t, book, got)
}

func TestBookEncodeTruncatesDepth(t *testing.T) {
	book := schema.BookSnapshot{SymbolID: 1, Venue: 1}
	for i := 0; i < schema.MaxBookDepth+3; i++ {
		book.Bids = append(book.Bids, schema.BookLevel{Price: schema.Price(10000 - i), Size: 1})
	}

	buf := EncodeBook(nil, book)
	got, ok := DecodeBook(buf)
	require.True(t, ok)
	assert.Len(t, got.Bids, schema.MaxBookDepth)
	assert.Empty(t, got.Asks)
}

func TestBookDecodeShortBuffer(t *testing.T) {
	book := schema.BookSnapshot{
		SymbolID: 1, Venue: 1,
		Bids: []schema.BookLevel{{Price: 10000, Size: 1}},
	}
	buf := EncodeBook(nil, book)

	for _, n := range []int{0, 13, len(buf) - 1} {
		_, ok := DecodeBook(buf[:n])
		assert.False(t, ok, "length %d", n)
	}
}

func TestTradeRoundTrip(t *testing.T) {
	trade := schema.TradeTick{
		SymbolID: 3,
		Venue:    1,
		Side:     schema.SideSell,
		TsEvent:  42,
		Price:    10001,
		Size:     250,
	}

	buf := EncodeTrade(nil, trade)
	assert.Len(t, buf, TradePayloadSize)
	got, ok := DecodeTrade(buf)
	require.True(t, ok)
	assert.Equal(t, trade, got)

	_, ok = DecodeTrade(buf[:TradePayloadSize-1])
	assert.False(t, ok)
}

func TestGapRoundTrip(t *testing.T) {
	for _, resumed := range []bool{false, true} {
		gap := schema.Gap{SymbolID: 1, Venue: 2, Resumed: resumed, TsEvent: 99}
		got, ok := DecodeGap(EncodeGap(nil, gap))
		require.True(t, ok)
		assert.Equal(t, gap, got)
	}
}

func TestOrderAckRoundTrip(t *testing.T) {
	ack := schema.OrderAck{
		ClientID:     17,
		VenueOrderID: "v-abc-123",
		Venue:        2,
		SymbolID:     1,
		Status:       schema.AckStatusRejected,
		Reason:       schema.AckReasonVenueReject,
		Price:        10005,
		LeavesQty:    7,
		Generation:   9,
		TsEvent:      100,
	}

	buf := EncodeOrderAck(nil, ack)
	got, ok := DecodeOrderAck(buf)
	require.True(t, ok)
	assert.Equal(t, ack, got)
}

func TestFillRoundTrip(t *testing.T) {
	fill := schema.Fill{
		ClientID:     5,
		VenueOrderID: "vo-1",
		FillID:       "f-77",
		Venue:        1,
		SymbolID:     2,
		Side:         schema.SideBuy,
		Price:        10000,
		Qty:          2500,
		Fee:          -3,
		Liquidity:    schema.LiquidityMaker,
		TsEvent:      123,
	}

	buf := EncodeFill(nil, fill)
	got, ok := DecodeFill(buf)
	require.True(t, ok)
	assert.Equal(t, fill, got)

	// a truncated string section fails cleanly
	_, ok = DecodeFill(buf[:len(buf)-2])
	assert.False(t, ok)
}

func TestRiskTransitionRoundTrip(t *testing.T) {
	tr := schema.RiskTransition{
		From:    schema.RiskModeNormal,
		To:      schema.RiskModeHalted,
		Reason:  schema.RiskReasonHardInventory,
		Venue:   1,
		TsEvent: 55,
	}
	got, ok := DecodeRiskTransition(EncodeRiskTransition(nil, tr))
	require.True(t, ok)
	assert.Equal(t, tr, got)
}

func TestHedgeRoundTrip(t *testing.T) {
	h := schema.HedgeInstruction{
		Kind:           schema.HedgeKindTaker,
		Venue:          2,
		SymbolID:       2,
		Side:           schema.SideSell,
		Qty:            4000,
		LimitPrice:     9990,
		MaxSlippageBps: 20,
		TsEvent:        77,
	}
	got, ok := DecodeHedge(EncodeHedge(nil, h))
	require.True(t, ok)
	assert.Equal(t, h, got)
}

func TestEncodeReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 256)
	trade := schema.TradeTick{SymbolID: 1, Venue: 1, Price: 1, Size: 1}

	out := EncodeTrade(buf, trade)
	assert.Equal(t, cap(buf), cap(out))
}
