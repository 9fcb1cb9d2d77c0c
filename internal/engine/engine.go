package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"gopkg.in/tomb.v2"

	"main/internal/accounting"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/fairvalue"
	"main/internal/hedge"
	"main/internal/inventory"
	"main/internal/journal"
	"main/internal/maker"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/quote"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
	"main/internal/venue"
	"main/pkg/exception"
)

const (
	defaultQuoteInterval = 100 * time.Millisecond
	defaultSnapshotEvery = 5 * time.Second
)

// Deps are the engine's external capabilities. Journal and Recorder are
// optional; a nil value disables that concern.
type Deps struct {
	MakerClient venue.ExecutionClient
	HedgeClient venue.ExecutionClient
	HedgeTaker  venue.TakerClient

	Journal  *journal.Writer
	Recorder *accounting.Recorder
	Metrics  *obs.Metrics
}

// Engine is the single-writer event loop tying the components together.
// All strategy state is mutated only inside the loop goroutine; venues and
// watchers communicate with it through the queues and channels.
type Engine struct {
	rt *ops.Runtime

	reg        *schema.Registry
	makerVenue schema.Venue
	hedgeVenue schema.Venue
	makerSym   schema.Symbol

	makerQ *bus.Queue
	hedgeQ *bus.Queue

	sig    *signal.Engine
	model  *fairvalue.Model
	quotes *quote.Engine
	sup    *risk.Supervisor
	ledger *inventory.Ledger
	mgr    *maker.Manager
	policy *hedge.Policy
	exec   *hedge.Executor

	wal     *journal.Writer
	rec     *accounting.Recorder
	match   *accounting.Matcher
	metrics *obs.Metrics
	traces  *obs.TraceGenerator

	lastFV        fairvalue.FairValue
	lastHedgeBook schema.BookSnapshot
	takerInFlight schema.Quantity

	makerSeq uint64
	hedgeSeq uint64

	halted uint32
	paused uint32

	updates   chan ops.Loaded
	overrides chan ops.Override

	t tomb.Tomb
}

// New wires an engine from a validated configuration. The execution
// clients are wrapped with circuit breakers; a breaker opening surfaces as
// a gap event so the supervisor fences the venue from inside the loop.
func New(loaded ops.Loaded, rt *ops.Runtime, deps Deps) (*Engine, error) {
	makerVenue, ok := loaded.Registry.VenueByRole(schema.VenueRoleMaker)
	if !ok {
		return nil, exception.ErrInvalidConfig
	}
	hedgeVenue, ok := loaded.Registry.VenueByRole(schema.VenueRoleHedge)
	if !ok {
		return nil, exception.ErrInvalidConfig
	}
	makerSym, ok := loaded.Registry.Symbol(loaded.MakerSymbol)
	if !ok {
		return nil, exception.ErrInvalidConfig
	}

	queueSize := loaded.Engine.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}

	e := &Engine{
		rt:         rt,
		reg:        loaded.Registry,
		makerVenue: makerVenue,
		hedgeVenue: hedgeVenue,
		makerSym:   makerSym,
		makerQ:     bus.NewQueue(queueSize),
		hedgeQ:     bus.NewQueue(queueSize),
		sig:        signal.NewEngine(loaded.MakerSymbol, makerVenue.ID, loaded.Signal),
		model:      fairvalue.NewModel(loaded.FairValue, makerSym.Tick),
		quotes:     quote.NewEngine(loaded.Quote, makerSym.Tick),
		sup:        risk.NewSupervisor(loaded.Risk),
		ledger:     inventory.NewLedger(loaded.MakerSymbol, makerSym.Scale),
		policy:     hedge.NewPolicy(loaded.Hedge),
		wal:        deps.Journal,
		rec:        deps.Recorder,
		match:      accounting.NewMatcher(),
		metrics:    deps.Metrics,
		traces:     obs.NewTraceGenerator(0),
		updates:    make(chan ops.Loaded, 1),
		overrides:  make(chan ops.Override, 4),
	}

	makerGuard := venue.NewGuard(makerVenue.ID, deps.MakerClient, venue.HealthConfig{Name: makerVenue.Name})
	makerGuard.OnStateChange = e.onVenueState
	hedgeGuard := venue.NewGuard(hedgeVenue.ID, deps.HedgeClient, venue.HealthConfig{Name: hedgeVenue.Name})
	hedgeGuard.OnStateChange = e.onVenueState

	e.mgr = maker.NewManager(loaded.Maker, makerGuard, e.sup)
	e.mgr.OnFill = func(f schema.Fill) { e.applyFill(f) }
	e.mgr.OnReject = func(ack schema.OrderAck) {
		e.metrics.IncRiskReason(schema.RiskReasonRejectStorm)
	}

	ladder := hedge.NewLadder(hedgeVenue.ID, loaded.Hedge.SymbolID, hedgeGuard, loaded.Maker.MinActionInterval)
	ladder.OnFill = func(f schema.Fill) { e.applyFill(f) }
	ladder.Gate = func(action schema.OrderAction) bool {
		return e.sup.Gate(action, e.ledger.Position()).Allow
	}
	e.exec = hedge.NewExecutor(deps.HedgeTaker, ladder, 0)

	e.sup.OnTransition = e.onRiskTransition
	return e, nil
}

// Start launches the event loop.
func (e *Engine) Start(ctx context.Context) {
	e.t.Go(func() error { return e.loop(ctx) })
}

// Stop terminates the loop and waits for it.
func (e *Engine) Stop() error {
	e.t.Kill(nil)
	return e.t.Wait()
}

// Halted reports whether the supervisor is in HALTED mode. Safe from any
// goroutine; the flag flips atomically with the transition.
func (e *Engine) Halted() bool {
	return atomic.LoadUint32(&e.halted) == 1
}

// Position returns the last applied position. Only meaningful once the
// loop has stopped; live reads belong inside the loop.
func (e *Engine) Position() inventory.Position {
	return e.ledger.Position()
}

// Supervisor exposes the risk supervisor for audit inspection.
func (e *Engine) Supervisor() *risk.Supervisor {
	return e.sup
}

// Publish places an event on the venue's ordered stream. Safe from any
// goroutine; ordering is guaranteed per venue, never across venues.
func (e *Engine) Publish(venueID schema.VenueID, eventType schema.EventType, tsEvent int64, payload any) error {
	header := schema.NewHeader(eventType, venueID, e.nextSeq(venueID), tsEvent, time.Now().UTC().UnixNano())
	header.TraceID = e.traces.Next()
	if err := e.queueFor(venueID).TryPublish(bus.Event{Header: header, Payload: payload}); err != nil {
		e.metrics.IncQueueDrop()
		return err
	}
	return nil
}

// Emitter returns the event callback for one venue, in the shape the sim
// venue expects.
func (e *Engine) Emitter(venueID schema.VenueID) venue.Emit {
	return func(eventType schema.EventType, tsEvent int64, payload any) {
		if err := e.Publish(venueID, eventType, tsEvent, payload); err != nil {
			logs.Warnf("publish dropped venue=%d type=%d, err: %v", venueID, eventType, err)
		}
	}
}

// ConfigUpdated delivers a validated config reload to the loop.
func (e *Engine) ConfigUpdated(loaded ops.Loaded) {
	select {
	case e.updates <- loaded:
	default:
	}
}

// ApplyOverride delivers an operator override to the loop.
func (e *Engine) ApplyOverride(o ops.Override) {
	select {
	case e.overrides <- o:
	default:
		logs.Warnf("override %d dropped: queue full", o.Version)
	}
}

func (e *Engine) loop(ctx context.Context) error {
	loaded := e.rt.Load()
	quoteEvery := time.Duration(loaded.Engine.QuoteInterval)
	if quoteEvery <= 0 {
		quoteEvery = defaultQuoteInterval
	}
	snapEvery := time.Duration(loaded.Engine.SnapshotEvery)
	if snapEvery <= 0 {
		snapEvery = defaultSnapshotEvery
	}

	quoteTick := time.NewTicker(quoteEvery)
	defer quoteTick.Stop()
	snapTick := time.NewTicker(snapEvery)
	defer snapTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.t.Dying():
			return nil
		case ev, ok := <-e.makerQ.C():
			if !ok {
				return nil
			}
			e.dispatch(ev)
		case ev, ok := <-e.hedgeQ.C():
			if !ok {
				return nil
			}
			e.dispatch(ev)
		case now := <-quoteTick.C:
			e.quoteCycle(now)
		case <-snapTick.C:
			e.writeSnapshot(loaded.Engine.SnapshotPath)
		case updated := <-e.updates:
			e.applyUpdate(updated)
		case o := <-e.overrides:
			e.applyOverride(o)
		}
	}
}

func (e *Engine) dispatch(ev bus.Event) {
	e.metrics.ObserveEvent(ev.Header)
	e.journal(ev.Header, ev.Payload)
	now := time.Now().UTC().UnixNano()

	switch p := ev.Payload.(type) {
	case schema.BookSnapshot:
		e.sup.ObserveMarketData(ev.Header.Venue, ev.Header.TsRecv)
		if ev.Header.Venue == e.makerVenue.ID {
			if _, err := e.sig.OnBook(p); err != nil {
				e.dropStale(err)
				return
			}
		} else {
			e.lastHedgeBook = p
		}
		e.sup.Evaluate(e.ledger.Position(), e.mark(), now)
	case schema.TradeTick:
		e.sup.ObserveMarketData(ev.Header.Venue, ev.Header.TsRecv)
		if ev.Header.Venue == e.makerVenue.ID {
			if _, err := e.sig.OnTrade(p); err != nil {
				e.dropStale(err)
				return
			}
		}
		e.sup.Evaluate(e.ledger.Position(), e.mark(), now)
	case schema.Gap:
		e.sup.ObserveGap(p, now)
	case schema.OrderAck:
		if ev.Header.Venue == e.makerVenue.ID {
			e.mgr.OnAck(p, time.Now().UTC())
		} else {
			e.exec.Ladder().OnAck(p)
		}
	case schema.Fill:
		if ev.Header.Venue == e.makerVenue.ID {
			e.mgr.HandleFill(p)
		} else {
			e.exec.Ladder().HandleFill(p)
		}
	}
}

// applyFill is the single ledger entry point, reached through the maker
// manager and ladder fill hooks.
func (e *Engine) applyFill(f schema.Fill) {
	now := time.Now().UTC().UnixNano()

	pos, err := e.ledger.ApplyFill(f)
	switch {
	case err == nil:
	case errors.Is(err, exception.ErrDuplicateFill):
		logs.Warnf("duplicate fill dropped id=%s", f.FillID)
		return
	default:
		logs.Errorf("ledger rejected fill id=%s, err: %+v", f.FillID, err)
		e.sup.ForceHalt(schema.RiskReasonLedgerMismatch, now)
		return
	}
	e.mgr.SetPosition(pos)

	if f.Venue == e.makerVenue.ID {
		e.match.OnMakerFill(f)
	} else {
		if f.Liquidity == schema.LiquidityTaker {
			e.settleTaker(f.Qty)
		}
		for _, c := range e.match.OnHedgeFill(f) {
			e.emitTradeRecord(c)
		}
	}

	e.sup.Evaluate(pos, e.mark(), now)
	mode, _ := e.sup.Mode()
	e.hedgeCycle(time.Now().UTC(), mode == schema.RiskModeHalted)
}

func (e *Engine) quoteCycle(now time.Time) {
	start := time.Now()
	nowNs := now.UTC().UnixNano()

	pos := e.ledger.Position()
	e.sup.Evaluate(pos, e.mark(), nowNs)
	mode, _ := e.sup.Mode()

	fv := e.model.Compute(e.sig.State(), mode)
	e.lastFV = fv

	q, ok := e.quotes.Compute(fv, pos, mode)
	if !ok || atomic.LoadUint32(&e.paused) == 1 {
		q.BidSize, q.AskSize = 0, 0
	}
	e.mgr.SetPosition(pos)
	e.mgr.SyncQuote(q, now, e.quoteCrossed(schema.Price(int64(fv.Mid))))
	e.mgr.Reconcile(now)

	e.hedgeCycle(now, mode == schema.RiskModeHalted)
	e.metrics.ObserveQuoteCycle(time.Since(start))
}

// hedgeCycle replans the hedge from current inventory. The plan is
// recomputed from scratch every time; the ladder reconciles to it and
// taker legs are trimmed by what is already in flight.
func (e *Engine) hedgeCycle(now time.Time, urgent bool) {
	start := time.Now()
	pos := e.ledger.Position()
	mode, _ := e.sup.Mode()

	plan := e.policy.Plan(pos.NetSize, e.mark(), e.lastHedgeBook, mode, now.UTC().UnixNano())
	if len(plan) == 0 {
		return
	}
	for i := range plan {
		if plan[i].Kind != schema.HedgeKindTaker {
			continue
		}
		if plan[i].Qty <= e.takerInFlight {
			plan[i].Qty = 0
		} else {
			plan[i].Qty -= e.takerInFlight
		}
	}
	for _, leg := range plan {
		e.journalHedge(leg)
	}

	sent, err := e.exec.Execute(plan, now, urgent)
	e.takerInFlight += sent
	if err != nil && !errors.Is(err, exception.ErrRateLimited) {
		logs.Warnf("hedge execute, err: %+v", err)
	}
	e.metrics.ObserveHedgePlan(time.Since(start))
}

func (e *Engine) settleTaker(qty schema.Quantity) {
	if qty >= e.takerInFlight {
		e.takerInFlight = 0
		return
	}
	e.takerInFlight -= qty
}

func (e *Engine) onRiskTransition(tr schema.RiskTransition) {
	e.metrics.IncRiskReason(tr.Reason)
	e.journalRisk(tr)

	switch tr.To {
	case schema.RiskModeHalted:
		atomic.StoreUint32(&e.halted, 1)
		now := time.Now().UTC()
		// pull every resting order on both venues in the same cycle
		e.mgr.CancelAll(now)
		e.exec.Ladder().CancelAll(now)
	case schema.RiskModeNormal:
		atomic.StoreUint32(&e.halted, 0)
	}
}

func (e *Engine) onVenueState(venueID schema.VenueID, down bool) {
	gap := schema.Gap{
		Venue:    venueID,
		SymbolID: e.makerSym.ID,
		TsEvent:  time.Now().UTC().UnixNano(),
		Resumed:  !down,
	}
	if err := e.Publish(venueID, schema.EventGap, gap.TsEvent, gap); err != nil {
		logs.Warnf("gap publish dropped venue=%d", venueID)
	}
}

func (e *Engine) applyUpdate(loaded ops.Loaded) {
	e.sup.SetLimits(loaded.Risk)
	e.quotes.SetConfig(loaded.Quote)
	e.model = fairvalue.NewModel(loaded.FairValue, e.makerSym.Tick)
	e.policy = hedge.NewPolicy(loaded.Hedge)
	logs.Infof("engine config updated")
}

func (e *Engine) applyOverride(o ops.Override) {
	now := time.Now().UTC().UnixNano()
	if o.RiskReset {
		logs.Warnf("operator risk reset: %s", o.RiskResetReason)
		e.sup.Reset(now)
	}
	if o.PauseQuoting != nil {
		if *o.PauseQuoting {
			atomic.StoreUint32(&e.paused, 1)
		} else {
			atomic.StoreUint32(&e.paused, 0)
		}
	}
	// size re-tunes were already folded into the runtime config
	e.quotes.SetConfig(e.rt.Load().Quote)
}

func (e *Engine) emitTradeRecord(c accounting.Completed) {
	if e.rec == nil {
		return
	}
	e.rec.Emit(accounting.NewTradeRecord(e.reg, c.Maker, c.Hedges))
}

// quoteCrossed reports whether a live maker order rests through the fair
// value: a bid above it or an ask below it. Such an order is adversely
// selected on the next print, so its replace bypasses the action throttle.
func (e *Engine) quoteCrossed(fair schema.Price) bool {
	if fair <= 0 {
		return false
	}
	for _, o := range e.mgr.OpenOrders() {
		switch o.Side {
		case schema.SideBuy:
			if o.Price > fair {
				return true
			}
		case schema.SideSell:
			if o.Price < fair {
				return true
			}
		}
	}
	return false
}

// mark returns the current fair mid in scaled price units, falling back to
// the hedge book mid before the first signal update.
func (e *Engine) mark() schema.Price {
	if e.lastFV.Mid > 0 {
		return schema.Price(int64(e.lastFV.Mid))
	}
	bid, okB := e.lastHedgeBook.BestBid()
	ask, okA := e.lastHedgeBook.BestAsk()
	if okB && okA {
		return (bid.Price + ask.Price) / 2
	}
	return 0
}

func (e *Engine) dropStale(err error) {
	if errors.Is(err, exception.ErrStaleData) {
		e.metrics.IncStaleDrop()
		return
	}
	logs.Warnf("signal update, err: %+v", err)
}

func (e *Engine) writeSnapshot(path string) {
	if path == "" {
		return
	}
	snap := inventory.Snapshot{
		Position:    e.ledger.Position(),
		LastSeq:     atomic.LoadUint64(&e.makerSeq),
		LastEventTs: e.ledger.Position().LastFillTs,
	}
	if err := inventory.WriteSnapshot(path, snap); err != nil {
		logs.Warnf("snapshot write, err: %+v", err)
	}
}

func (e *Engine) journal(header schema.EventHeader, payload any) {
	if e.wal == nil {
		return
	}
	var buf []byte
	switch p := payload.(type) {
	case schema.BookSnapshot:
		buf = codec.EncodeBook(nil, p)
	case schema.TradeTick:
		buf = codec.EncodeTrade(nil, p)
	case schema.Gap:
		buf = codec.EncodeGap(nil, p)
	case schema.OrderAck:
		buf = codec.EncodeOrderAck(nil, p)
	case schema.Fill:
		buf = codec.EncodeFill(nil, p)
	case schema.RiskTransition:
		buf = codec.EncodeRiskTransition(nil, p)
	case schema.HedgeInstruction:
		buf = codec.EncodeHedge(nil, p)
	default:
		return
	}
	if err := e.wal.TryAppend(header, buf); err != nil {
		e.metrics.IncQueueDrop()
	}
}

func (e *Engine) journalRisk(tr schema.RiskTransition) {
	header := schema.NewHeader(schema.EventRiskTransition, e.makerVenue.ID,
		e.nextSeq(e.makerVenue.ID), tr.TsEvent, time.Now().UTC().UnixNano())
	e.journal(header, tr)
}

func (e *Engine) journalHedge(leg schema.HedgeInstruction) {
	header := schema.NewHeader(schema.EventHedge, e.hedgeVenue.ID,
		e.nextSeq(e.hedgeVenue.ID), leg.TsEvent, time.Now().UTC().UnixNano())
	e.journal(header, leg)
}

func (e *Engine) nextSeq(venueID schema.VenueID) uint64 {
	if venueID == e.hedgeVenue.ID {
		return atomic.AddUint64(&e.hedgeSeq, 1)
	}
	return atomic.AddUint64(&e.makerSeq, 1)
}

func (e *Engine) queueFor(venueID schema.VenueID) *bus.Queue {
	if venueID == e.hedgeVenue.ID {
		return e.hedgeQ
	}
	return e.makerQ
}
