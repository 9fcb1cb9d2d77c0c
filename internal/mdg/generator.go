package mdg

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"main/internal/schema"
)

// Config tunes the synthetic market.
type Config struct {
	// BasePrice is the starting mid, in scaled price units.
	BasePrice int64
	// Drift and VolBps shape the per-step random walk of the mid.
	Drift  float64
	VolBps float64
	// SpreadTicks is the synthetic half-spread in ticks.
	SpreadTicks int64
	// Depth is the number of book levels per side.
	Depth int
	// BaseSize is the level size, in scaled quantity units.
	BaseSize int64
	// TradeEvery emits one trade tick per N book snapshots.
	TradeEvery int
	Seed       int64
}

func (c Config) withDefaults() Config {
	if c.BasePrice <= 0 {
		c.BasePrice = 10_000
	}
	if c.VolBps <= 0 {
		c.VolBps = 5
	}
	if c.SpreadTicks <= 0 {
		c.SpreadTicks = 2
	}
	if c.Depth <= 0 {
		c.Depth = 5
	}
	if c.Depth > schema.MaxBookDepth {
		c.Depth = schema.MaxBookDepth
	}
	if c.BaseSize <= 0 {
		c.BaseSize = 100
	}
	if c.TradeEvery <= 0 {
		c.TradeEvery = 3
	}
	return c
}

// Generator produces a random-walk order book and trade prints for one
// symbol. Output feeds the sim venue in paper runs and tests.
type Generator struct {
	cfg    Config
	symbol schema.Symbol
	venue  schema.VenueID
	rng    *rand.Rand
	mid    float64
	step   int
	seq    uint64
}

// NewGenerator creates a generator for one symbol on one venue.
func NewGenerator(reg *schema.Registry, symbolID schema.SymbolID, cfg Config) (*Generator, error) {
	symbol, ok := reg.Symbol(symbolID)
	if !ok {
		return nil, fmt.Errorf("symbol not found: %d", symbolID)
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:    cfg,
		symbol: symbol,
		venue:  symbol.VenueID,
		rng:    rand.New(rand.NewSource(seed)),
		mid:    float64(cfg.BasePrice),
	}, nil
}

// NextBook advances the walk and returns the next snapshot.
func (g *Generator) NextBook(now time.Time) (schema.EventHeader, schema.BookSnapshot) {
	g.walk()
	g.seq++
	g.step++

	tick := float64(g.symbol.Tick)
	half := float64(g.cfg.SpreadTicks) * tick
	bid := roundToTick(g.mid-half, tick)
	ask := roundToTick(g.mid+half, tick)
	if ask <= bid {
		ask = bid + int64(tick)
	}

	book := schema.BookSnapshot{
		SymbolID: g.symbol.ID,
		Venue:    g.venue,
		TsEvent:  now.UnixNano(),
		Bids:     make([]schema.BookLevel, g.cfg.Depth),
		Asks:     make([]schema.BookLevel, g.cfg.Depth),
	}
	for i := 0; i < g.cfg.Depth; i++ {
		size := g.cfg.BaseSize + g.rng.Int63n(g.cfg.BaseSize)
		book.Bids[i] = schema.BookLevel{
			Price: schema.Price(bid - int64(i)*int64(tick)),
			Size:  schema.Quantity(size),
		}
		size = g.cfg.BaseSize + g.rng.Int63n(g.cfg.BaseSize)
		book.Asks[i] = schema.BookLevel{
			Price: schema.Price(ask + int64(i)*int64(tick)),
			Size:  schema.Quantity(size),
		}
	}
	header := schema.NewHeader(schema.EventBook, g.venue, g.seq, book.TsEvent, now.UnixNano())
	return header, book
}

// MaybeTrade returns a trade print every TradeEvery books.
func (g *Generator) MaybeTrade(now time.Time) (schema.EventHeader, schema.TradeTick, bool) {
	if g.step == 0 || g.step%g.cfg.TradeEvery != 0 {
		return schema.EventHeader{}, schema.TradeTick{}, false
	}
	g.seq++
	side := schema.SideBuy
	if g.rng.Intn(2) == 0 {
		side = schema.SideSell
	}
	tick := float64(g.symbol.Tick)
	px := roundToTick(g.mid, tick)
	trade := schema.TradeTick{
		SymbolID: g.symbol.ID,
		Venue:    g.venue,
		Side:     side,
		TsEvent:  now.UnixNano(),
		Price:    schema.Price(px),
		Size:     schema.Quantity(g.cfg.BaseSize/2 + g.rng.Int63n(g.cfg.BaseSize)),
	}
	header := schema.NewHeader(schema.EventTrade, g.venue, g.seq, trade.TsEvent, now.UnixNano())
	return header, trade, true
}

// Mid reports the current mid of the walk, in scaled price units.
func (g *Generator) Mid() int64 {
	return int64(math.Round(g.mid))
}

func (g *Generator) walk() {
	ret := g.cfg.Drift + g.cfg.VolBps/1e4*g.rng.NormFloat64()
	g.mid *= math.Exp(ret)
	if g.mid < float64(g.symbol.Tick) {
		g.mid = float64(g.symbol.Tick)
	}
}

func roundToTick(px, tick float64) int64 {
	if tick <= 0 {
		return int64(math.Round(px))
	}
	return int64(math.Round(px/tick)) * int64(tick)
}
