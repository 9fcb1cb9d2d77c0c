package ops

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"main/internal/fairvalue"
	"main/internal/hedge"
	"main/internal/journal"
	"main/internal/maker"
	"main/internal/mdg"
	"main/internal/quote"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
	"main/pkg/exception"
)

var json = sonic.ConfigDefault

// Duration accepts either a Go duration string ("250ms") or nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// FileConfig mirrors the JSON config layout. Prices and quantities are
// decimal strings scaled per the symbol's ScaleSpec at load time.
type FileConfig struct {
	Registry   RegistryConfig   `json:"registry"`
	Signal     SignalConfig     `json:"signal"`
	FairValue  FairValueConfig  `json:"fairValue"`
	Quote      QuoteConfig      `json:"quote"`
	Risk       RiskConfig       `json:"risk"`
	Maker      MakerConfig      `json:"maker"`
	Hedge      HedgeConfig      `json:"hedge"`
	Journal    JournalConfig    `json:"journal"`
	Accounting AccountingConfig `json:"accounting"`
	Generator  GeneratorConfig  `json:"generator"`
	Engine     EngineConfig     `json:"engine"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues"`
	Symbols []SymbolConfig `json:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name"`
	Role string `json:"role"` // "maker" or "hedge"
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name  string           `json:"name"`
	Venue string           `json:"venue"`
	Scale schema.ScaleSpec `json:"scale"`
	Tick  decimal.Decimal  `json:"tick"`
}

// SignalConfig tunes the rolling indicator windows.
type SignalConfig struct {
	VWAPTrades  int `json:"vwapTrades"`
	VolReturns  int `json:"volReturns"`
	DepthLevels int `json:"depthLevels"`
	MinSamples  int `json:"minSamples"`
}

// FairValueConfig tunes the fair value blend and spread model.
type FairValueConfig struct {
	MicroWeight       float64 `json:"microWeight"`
	VolCoeff          float64 `json:"volCoeff"`
	ImbalanceCoeff    float64 `json:"imbalanceCoeff"`
	TakerFeeBps       float64 `json:"takerFeeBps"`
	MinSpreadTicks    int64   `json:"minSpreadTicks"`
	ReducedSpreadMult float64 `json:"reducedSpreadMult"`
}

// QuoteConfig tunes skew and sizing.
type QuoteConfig struct {
	SkewShift         decimal.Decimal `json:"skewShift"`
	InventoryCap      decimal.Decimal `json:"inventoryCap"`
	QuoteSize         decimal.Decimal `json:"quoteSize"`
	LowConfidenceMult float64         `json:"lowConfidenceMult"`
}

// RiskConfig tunes supervisor limits.
type RiskConfig struct {
	SoftInventory     decimal.Decimal `json:"softInventory"`
	HardInventory     decimal.Decimal `json:"hardInventory"`
	MaxOrderQty       decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional  decimal.Decimal `json:"maxOrderNotional"`
	RejectStormCount  int             `json:"rejectStormCount"`
	RejectStormWindow Duration        `json:"rejectStormWindow"`
	StaleDataTimeout  Duration        `json:"staleDataTimeout"`
	MarkOutLossLimit  decimal.Decimal `json:"markOutLossLimit"`
}

// MakerConfig tunes maker order management.
type MakerConfig struct {
	Levels            int             `json:"levels"`
	PriceTolerance    decimal.Decimal `json:"priceTolerance"`
	SizeTolerance     decimal.Decimal `json:"sizeTolerance"`
	MinActionInterval Duration        `json:"minActionInterval"`
}

// HedgeConfig tunes the hedge policy.
type HedgeConfig struct {
	NoHedgeBand     decimal.Decimal `json:"noHedgeBand"`
	TakerFraction   float64         `json:"takerFraction"`
	TakerClip       decimal.Decimal `json:"takerClip"`
	MaxSlippageBps  int64           `json:"maxSlippageBps"`
	SlippageStepBps int64           `json:"slippageStepBps"`
	PostOffsetBps   int64           `json:"postOffsetBps"`
	LadderLevels    int             `json:"ladderLevels"`
	LadderStepBps   int64           `json:"ladderStepBps"`
}

// JournalConfig tunes the event journal.
type JournalConfig struct {
	Dir        string   `json:"dir"`
	FilePrefix string   `json:"filePrefix"`
	QueueSize  int      `json:"queueSize"`
	FlushEvery Duration `json:"flushEvery"`
}

// AccountingConfig selects the trade-record sink.
type AccountingConfig struct {
	PostgresDSN string `json:"postgresDsn"`
	JSONLPath   string `json:"jsonlPath"`
	QueueSize   int    `json:"queueSize"`
}

// GeneratorConfig tunes the synthetic market for paper runs.
type GeneratorConfig struct {
	BasePrice   decimal.Decimal `json:"basePrice"`
	Drift       float64         `json:"drift"`
	VolBps      float64         `json:"volBps"`
	SpreadTicks int64           `json:"spreadTicks"`
	Depth       int             `json:"depth"`
	BaseSize    decimal.Decimal `json:"baseSize"`
	TradeEvery  int             `json:"tradeEvery"`
	Seed        int64           `json:"seed"`
}

// EngineConfig tunes the event loop.
type EngineConfig struct {
	QueueSize     int      `json:"queueSize"`
	QuoteInterval Duration `json:"quoteInterval"`
	SnapshotPath  string   `json:"snapshotPath"`
	SnapshotEvery Duration `json:"snapshotEvery"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry    *schema.Registry
	MakerSymbol schema.SymbolID
	HedgeSymbol schema.SymbolID

	Signal     signal.Config
	FairValue  fairvalue.Config
	Quote      quote.Config
	Risk       risk.Limits
	Maker      maker.Config
	Hedge      hedge.Config
	Journal    journal.Config
	Accounting AccountingConfig
	Generator  mdg.Config
	Engine     EngineConfig
}

// Load reads a JSON config file, builds the registry, and resolves all
// decimal fields against the maker symbol's scale.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Parse(data)
}

// Parse resolves a raw JSON config document.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config: %w: %s", exception.ErrInvalidConfig, err)
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	return resolve(cfg, registry)
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		role, err := parseRole(venue.Role)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", venue.Name, err)
		}
		if _, err := reg.AddVenue(venue.Name, role); err != nil {
			return nil, fmt.Errorf("%w: %s", exception.ErrInvalidConfig, err)
		}
	}
	if _, ok := reg.VenueByRole(schema.VenueRoleMaker); !ok {
		return nil, fmt.Errorf("%w: no maker venue configured", exception.ErrInvalidConfig)
	}
	if _, ok := reg.VenueByRole(schema.VenueRoleHedge); !ok {
		return nil, fmt.Errorf("%w: no hedge venue configured", exception.ErrInvalidConfig)
	}
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, fmt.Errorf("%w: venue not found: %s", exception.ErrInvalidConfig, sym.Venue)
		}
		if err := validateScale(sym.Scale); err != nil {
			return nil, fmt.Errorf("%w: invalid scale for %s: %s", exception.ErrInvalidConfig, sym.Name, err)
		}
		tick, err := ParseScaled(sym.Tick, sym.Scale.PriceScale)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tick for %s: %s", exception.ErrInvalidConfig, sym.Name, err)
		}
		if _, err := reg.AddSymbol(sym.Name, venueID, sym.Scale, schema.Price(tick)); err != nil {
			return nil, fmt.Errorf("%w: %s", exception.ErrInvalidConfig, err)
		}
	}
	return reg, nil
}

func parseRole(role string) (schema.VenueRole, error) {
	switch strings.ToLower(role) {
	case "maker":
		return schema.VenueRoleMaker, nil
	case "hedge":
		return schema.VenueRoleHedge, nil
	default:
		return schema.VenueRoleUnknown, fmt.Errorf("%w: unknown venue role: %q", exception.ErrInvalidConfig, role)
	}
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 || scale.FeeScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}

func resolve(cfg FileConfig, reg *schema.Registry) (Loaded, error) {
	makerVenue, _ := reg.VenueByRole(schema.VenueRoleMaker)
	hedgeVenue, _ := reg.VenueByRole(schema.VenueRoleHedge)

	makerSymbol, hedgeSymbol, err := symbolsByVenue(reg, makerVenue.ID, hedgeVenue.ID)
	if err != nil {
		return Loaded{}, err
	}
	makerSym, _ := reg.Symbol(makerSymbol)
	spec := makerSym.Scale

	px := func(d decimal.Decimal) (schema.Price, error) {
		v, err := ParseScaled(d, spec.PriceScale)
		return schema.Price(v), err
	}
	qty := func(d decimal.Decimal) (schema.Quantity, error) {
		v, err := ParseScaled(d, spec.QuantityScale)
		return schema.Quantity(v), err
	}
	notional := func(d decimal.Decimal) (schema.Notional, error) {
		v, err := ParseScaled(d, spec.NotionalScale)
		return schema.Notional(v), err
	}

	loaded := Loaded{
		Registry:    reg,
		MakerSymbol: makerSymbol,
		HedgeSymbol: hedgeSymbol,
		Signal: signal.Config{
			VWAPTrades:  cfg.Signal.VWAPTrades,
			VolReturns:  cfg.Signal.VolReturns,
			DepthLevels: cfg.Signal.DepthLevels,
			MinSamples:  cfg.Signal.MinSamples,
		},
		FairValue: fairvalue.Config{
			MicroWeight:       cfg.FairValue.MicroWeight,
			VolCoeff:          cfg.FairValue.VolCoeff,
			ImbalanceCoeff:    cfg.FairValue.ImbalanceCoeff,
			TakerFeeBps:       cfg.FairValue.TakerFeeBps,
			MinSpreadTicks:    cfg.FairValue.MinSpreadTicks,
			ReducedSpreadMult: cfg.FairValue.ReducedSpreadMult,
		},
		Quote: quote.Config{
			LowConfidenceMult: cfg.Quote.LowConfidenceMult,
		},
		Risk: risk.Limits{
			NotionalDivisor:   notionalDivisor(spec),
			RejectStormCount:  cfg.Risk.RejectStormCount,
			RejectStormWindow: time.Duration(cfg.Risk.RejectStormWindow),
			StaleDataTimeout:  time.Duration(cfg.Risk.StaleDataTimeout),
		},
		Maker: maker.Config{
			Venue:             makerVenue.ID,
			SymbolID:          makerSymbol,
			Levels:            cfg.Maker.Levels,
			MinActionInterval: time.Duration(cfg.Maker.MinActionInterval),
		},
		Hedge: hedge.Config{
			Venue:           hedgeVenue.ID,
			SymbolID:        hedgeSymbol,
			TakerFraction:   cfg.Hedge.TakerFraction,
			MaxSlippageBps:  cfg.Hedge.MaxSlippageBps,
			SlippageStepBps: cfg.Hedge.SlippageStepBps,
			PostOffsetBps:   cfg.Hedge.PostOffsetBps,
			LadderLevels:    cfg.Hedge.LadderLevels,
			LadderStepBps:   cfg.Hedge.LadderStepBps,
		},
		Journal: journal.Config{
			Dir:        cfg.Journal.Dir,
			FilePrefix: cfg.Journal.FilePrefix,
			QueueSize:  cfg.Journal.QueueSize,
			FlushEvery: time.Duration(cfg.Journal.FlushEvery),
		},
		Accounting: cfg.Accounting,
		Engine:     cfg.Engine,
	}

	if loaded.Quote.SkewShift, err = px(cfg.Quote.SkewShift); err != nil {
		return Loaded{}, fmt.Errorf("%w: quote.skewShift: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Quote.InventoryCap, err = qty(cfg.Quote.InventoryCap); err != nil {
		return Loaded{}, fmt.Errorf("%w: quote.inventoryCap: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Quote.QuoteSize, err = qty(cfg.Quote.QuoteSize); err != nil {
		return Loaded{}, fmt.Errorf("%w: quote.quoteSize: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Risk.SoftInventory, err = qty(cfg.Risk.SoftInventory); err != nil {
		return Loaded{}, fmt.Errorf("%w: risk.softInventory: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Risk.HardInventory, err = qty(cfg.Risk.HardInventory); err != nil {
		return Loaded{}, fmt.Errorf("%w: risk.hardInventory: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Risk.MaxOrderQty, err = qty(cfg.Risk.MaxOrderQty); err != nil {
		return Loaded{}, fmt.Errorf("%w: risk.maxOrderQty: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Risk.MaxOrderNotional, err = notional(cfg.Risk.MaxOrderNotional); err != nil {
		return Loaded{}, fmt.Errorf("%w: risk.maxOrderNotional: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Risk.MarkOutLossLimit, err = notional(cfg.Risk.MarkOutLossLimit); err != nil {
		return Loaded{}, fmt.Errorf("%w: risk.markOutLossLimit: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Maker.PriceTolerance, err = px(cfg.Maker.PriceTolerance); err != nil {
		return Loaded{}, fmt.Errorf("%w: maker.priceTolerance: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Maker.SizeTolerance, err = qty(cfg.Maker.SizeTolerance); err != nil {
		return Loaded{}, fmt.Errorf("%w: maker.sizeTolerance: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Hedge.NoHedgeBand, err = qty(cfg.Hedge.NoHedgeBand); err != nil {
		return Loaded{}, fmt.Errorf("%w: hedge.noHedgeBand: %s", exception.ErrInvalidConfig, err)
	}
	if loaded.Hedge.TakerClip, err = qty(cfg.Hedge.TakerClip); err != nil {
		return Loaded{}, fmt.Errorf("%w: hedge.takerClip: %s", exception.ErrInvalidConfig, err)
	}

	if loaded.Generator, err = resolveGenerator(cfg.Generator, spec); err != nil {
		return Loaded{}, err
	}

	if err := validate(loaded); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}

// notionalDivisor converts price*qty products into notional units.
func notionalDivisor(spec schema.ScaleSpec) int64 {
	exp := int(spec.PriceScale) + int(spec.QuantityScale) - int(spec.NotionalScale)
	div := int64(1)
	for i := 0; i < exp; i++ {
		div *= 10
	}
	return div
}

func resolveGenerator(cfg GeneratorConfig, spec schema.ScaleSpec) (mdg.Config, error) {
	basePrice, err := ParseScaled(cfg.BasePrice, spec.PriceScale)
	if err != nil {
		return mdg.Config{}, fmt.Errorf("%w: generator.basePrice: %s", exception.ErrInvalidConfig, err)
	}
	baseSize, err := ParseScaled(cfg.BaseSize, spec.QuantityScale)
	if err != nil {
		return mdg.Config{}, fmt.Errorf("%w: generator.baseSize: %s", exception.ErrInvalidConfig, err)
	}
	return mdg.Config{
		BasePrice:   basePrice,
		Drift:       cfg.Drift,
		VolBps:      cfg.VolBps,
		SpreadTicks: cfg.SpreadTicks,
		Depth:       cfg.Depth,
		BaseSize:    baseSize,
		TradeEvery:  cfg.TradeEvery,
		Seed:        cfg.Seed,
	}, nil
}

func symbolsByVenue(reg *schema.Registry, makerVenue, hedgeVenue schema.VenueID) (schema.SymbolID, schema.SymbolID, error) {
	var makerSymbol, hedgeSymbol schema.SymbolID
	for i := 0; i < reg.SymbolCount(); i++ {
		sym, _ := reg.SymbolAt(i)
		switch sym.VenueID {
		case makerVenue:
			if makerSymbol == 0 {
				makerSymbol = sym.ID
			}
		case hedgeVenue:
			if hedgeSymbol == 0 {
				hedgeSymbol = sym.ID
			}
		}
	}
	if makerSymbol == 0 {
		return 0, 0, fmt.Errorf("%w: no symbol on the maker venue", exception.ErrInvalidConfig)
	}
	if hedgeSymbol == 0 {
		return 0, 0, fmt.Errorf("%w: no symbol on the hedge venue", exception.ErrInvalidConfig)
	}
	return makerSymbol, hedgeSymbol, nil
}

func validate(loaded Loaded) error {
	if loaded.Quote.InventoryCap <= 0 {
		return fmt.Errorf("%w: quote.inventoryCap must be > 0", exception.ErrInvalidConfig)
	}
	if loaded.Quote.QuoteSize <= 0 {
		return fmt.Errorf("%w: quote.quoteSize must be > 0", exception.ErrInvalidConfig)
	}
	if loaded.Risk.HardInventory <= 0 {
		return fmt.Errorf("%w: risk.hardInventory must be > 0", exception.ErrInvalidConfig)
	}
	if loaded.Risk.SoftInventory <= 0 || loaded.Risk.SoftInventory > loaded.Risk.HardInventory {
		return fmt.Errorf("%w: risk.softInventory must be in (0, hardInventory]", exception.ErrInvalidConfig)
	}
	if loaded.Quote.InventoryCap > loaded.Risk.HardInventory {
		return fmt.Errorf("%w: quote.inventoryCap exceeds risk.hardInventory", exception.ErrInvalidConfig)
	}
	if loaded.Hedge.TakerFraction < 0 || loaded.Hedge.TakerFraction > 1 {
		return fmt.Errorf("%w: hedge.takerFraction must be in [0, 1]", exception.ErrInvalidConfig)
	}
	if loaded.Hedge.NoHedgeBand < 0 {
		return fmt.Errorf("%w: hedge.noHedgeBand must be >= 0", exception.ErrInvalidConfig)
	}
	if loaded.Hedge.MaxSlippageBps < 0 {
		return fmt.Errorf("%w: hedge.maxSlippageBps must be >= 0", exception.ErrInvalidConfig)
	}
	if loaded.Journal.Dir == "" {
		return fmt.Errorf("%w: journal.dir is empty", exception.ErrInvalidConfig)
	}
	return nil
}
