package accounting

import (
	"math"
	"time"

	"main/internal/schema"
)

// TradeRecord is one maker fill together with the hedge that flattened it,
// valued from our side of the trade.
type TradeRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	TraceID     uint64 `gorm:"index"`
	Symbol      string `gorm:"size:32;index"`
	MakerVenue  string `gorm:"size:32"`
	HedgeVenue  string `gorm:"size:32"`
	MakerSide   string `gorm:"size:8"`
	MakerPrice  int64
	MakerQty    int64
	HedgeVWAP   int64
	HedgeQty    int64
	GrossEdge   float64
	Fees        float64
	NetEdge     float64
	MakerFillID string `gorm:"size:64;uniqueIndex"`
	FillTs      int64
	CreatedAt   time.Time
}

// TableName keeps the table name stable across gorm naming strategies.
func (TradeRecord) TableName() string { return "trade_records" }

// Edge is the per-trade profit breakdown in quote-currency units.
type Edge struct {
	Gross float64
	Fees  float64
	Net   float64

	HedgeVWAP schema.Price
	HedgeQty  schema.Quantity
}

// ComputeEdge values a maker fill against the hedge fills that offset it.
// Selling on the maker venue and buying back cheaper on the hedge venue is
// positive edge, and vice versa. Fees from both legs are subtracted.
func ComputeEdge(maker schema.Fill, hedges []schema.Fill, spec schema.ScaleSpec) Edge {
	pxFactor := pow10(int(spec.PriceScale))
	qtyFactor := pow10(int(spec.QuantityScale))
	feeFactor := pow10(int(spec.FeeScale))

	makerPx := float64(maker.Price) / pxFactor

	var edge Edge
	var hedgeNotional float64
	var hedgeQty int64
	edge.Fees = float64(maker.Fee) / feeFactor
	for _, h := range hedges {
		hPx := float64(h.Price) / pxFactor
		hQty := float64(h.Qty) / qtyFactor
		if maker.Side == schema.SideSell {
			edge.Gross += (makerPx - hPx) * hQty
		} else {
			edge.Gross += (hPx - makerPx) * hQty
		}
		edge.Fees += float64(h.Fee) / feeFactor
		hedgeNotional += hPx * hQty
		hedgeQty += int64(h.Qty)
	}
	edge.Net = edge.Gross - edge.Fees
	edge.HedgeQty = schema.Quantity(hedgeQty)
	if hedgeQty > 0 {
		vwap := hedgeNotional / (float64(hedgeQty) / qtyFactor)
		edge.HedgeVWAP = schema.Price(math.Round(vwap * pxFactor))
	}
	return edge
}

// NewTradeRecord assembles the persisted row for one maker fill and its
// hedge legs.
func NewTradeRecord(reg *schema.Registry, maker schema.Fill, hedges []schema.Fill) TradeRecord {
	sym, _ := reg.Symbol(maker.SymbolID)
	makerVenue, _ := reg.Venue(maker.Venue)
	var hedgeVenue schema.Venue
	if len(hedges) > 0 {
		hedgeVenue, _ = reg.Venue(hedges[0].Venue)
	}
	edge := ComputeEdge(maker, hedges, sym.Scale)
	return TradeRecord{
		Symbol:      sym.Name,
		MakerVenue:  makerVenue.Name,
		HedgeVenue:  hedgeVenue.Name,
		MakerSide:   maker.Side.String(),
		MakerPrice:  int64(maker.Price),
		MakerQty:    int64(maker.Qty),
		HedgeVWAP:   int64(edge.HedgeVWAP),
		HedgeQty:    int64(edge.HedgeQty),
		GrossEdge:   edge.Gross,
		Fees:        edge.Fees,
		NetEdge:     edge.Net,
		MakerFillID: maker.FillID,
		FillTs:      maker.TsEvent,
	}
}

func pow10(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 10
	}
	return f
}
