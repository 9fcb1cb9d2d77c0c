package signal

import (
	"math"

	"main/internal/schema"
	"main/pkg/exception"
)

// Config controls the rolling indicator windows.
type Config struct {
	VWAPTrades  int // trades kept in the rolling VWAP window
	VolReturns  int // log returns kept in the volatility window
	DepthLevels int // book levels aggregated for depth stats
	MinSamples  int // trades required before the state is confident
	ResyncEvery int // raw-buffer resync cadence for running sums
}

func (c Config) withDefaults() Config {
	if c.VWAPTrades <= 0 {
		c.VWAPTrades = 200
	}
	if c.VolReturns <= 0 {
		c.VolReturns = 300
	}
	if c.DepthLevels <= 0 {
		c.DepthLevels = 5
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 20
	}
	return c
}

// State is an immutable snapshot of the rolling indicators. Prices are in
// scaled integer units of the symbol; SigmaBps is scale-free.
type State struct {
	SymbolID schema.SymbolID
	Venue    schema.VenueID
	TsEvent  int64

	BestBid    schema.Price
	BestAsk    schema.Price
	BidDepth   schema.Quantity // cumulative size within DepthLevels
	AskDepth   schema.Quantity
	Microprice float64
	Mid        float64
	Imbalance  float64 // (bidDepth-askDepth)/(bidDepth+askDepth)

	VWAP     float64
	SigmaBps float64
	Samples  int

	Confident bool
}

// Engine owns the indicator state for one symbol. Single writer: only
// OnBook and OnTrade mutate it; everyone else reads State copies.
type Engine struct {
	cfg Config

	lastBookTs  int64
	lastTradeTs int64
	lastPx      float64

	vwap    *ring
	returns *ring

	state State
}

// NewEngine creates a signal engine for one symbol.
func NewEngine(symbolID schema.SymbolID, venue schema.VenueID, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		vwap:    newRing(cfg.VWAPTrades, cfg.ResyncEvery),
		returns: newRing(cfg.VolReturns, cfg.ResyncEvery),
		state: State{
			SymbolID: symbolID,
			Venue:    venue,
		},
	}
}

// OnBook folds a book snapshot into the indicator state. Events at or
// before the last processed book timestamp are rejected as stale.
func (e *Engine) OnBook(b schema.BookSnapshot) (State, error) {
	if b.TsEvent <= e.lastBookTs {
		return e.state, exception.ErrStaleData
	}
	e.lastBookTs = b.TsEvent

	bestBid, hasBid := b.BestBid()
	bestAsk, hasAsk := b.BestAsk()
	if hasBid {
		e.state.BestBid = bestBid.Price
	}
	if hasAsk {
		e.state.BestAsk = bestAsk.Price
	}
	e.state.BidDepth = cumDepth(b.Bids, e.cfg.DepthLevels)
	e.state.AskDepth = cumDepth(b.Asks, e.cfg.DepthLevels)

	if hasBid && hasAsk {
		bp, ap := float64(bestBid.Price), float64(bestAsk.Price)
		bs, as := float64(bestBid.Size), float64(bestAsk.Size)
		e.state.Mid = (bp + ap) / 2
		if bs+as > 0 {
			// weight each side by the opposite-side size
			e.state.Microprice = (bp*as + ap*bs) / (bs + as)
		} else {
			e.state.Microprice = e.state.Mid
		}
	}

	total := float64(e.state.BidDepth + e.state.AskDepth)
	if total > 0 {
		e.state.Imbalance = float64(e.state.BidDepth-e.state.AskDepth) / total
	} else {
		e.state.Imbalance = 0
	}

	e.state.TsEvent = b.TsEvent
	e.refreshConfidence(hasBid && hasAsk)
	return e.state, nil
}

// OnTrade folds a trade tick into the rolling VWAP and volatility windows.
func (e *Engine) OnTrade(t schema.TradeTick) (State, error) {
	if t.TsEvent <= e.lastTradeTs {
		return e.state, exception.ErrStaleData
	}
	if t.Price <= 0 || t.Size <= 0 {
		return e.state, exception.ErrMalformedEvent
	}
	e.lastTradeTs = t.TsEvent

	px := float64(t.Price)
	e.vwap.push(px, float64(t.Size))
	if e.lastPx > 0 {
		e.returns.push(math.Log(px/e.lastPx), 1)
	}
	e.lastPx = px

	if v, ok := e.vwap.mean(); ok {
		e.state.VWAP = v
	}
	e.state.SigmaBps = math.Sqrt(e.returns.variance()) * 1e4
	e.state.Samples = e.vwap.count()
	e.state.TsEvent = t.TsEvent
	e.refreshConfidence(e.state.BestBid > 0 && e.state.BestAsk > 0)
	return e.state, nil
}

// State returns the current indicator snapshot.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) refreshConfidence(hasBook bool) {
	e.state.Confident = hasBook &&
		e.state.Samples >= e.cfg.MinSamples &&
		e.state.BestBid < e.state.BestAsk
}

func cumDepth(levels []schema.BookLevel, k int) schema.Quantity {
	if k > len(levels) {
		k = len(levels)
	}
	var total schema.Quantity
	for i := 0; i < k; i++ {
		total += levels[i].Size
	}
	return total
}
