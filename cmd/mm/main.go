package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/accounting"
	"main/internal/engine"
	"main/internal/journal"
	"main/internal/mdg"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/venue"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		log.Printf("mm: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	overridePath := flag.String("override", "", "Operator override file (optional)")
	overrideInterval := flag.Duration("override-interval", time.Second, "Override poll interval")
	paper := flag.Bool("paper", true, "Drive the engine with the synthetic market")
	tickInterval := flag.Duration("tick-interval", 50*time.Millisecond, "Synthetic market tick interval")
	recoverFlag := flag.Bool("recover", false, "Recover the position from snapshot + journal")
	statsInterval := flag.Duration("stats-interval", 15*time.Second, "Metrics log interval (0=disable)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	rt := ops.NewRuntime(loaded)

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "mm",
			ServerAddress:   *pyroscopeAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	wal, err := journal.NewWriter(loaded.Journal)
	if err != nil {
		return fmt.Errorf("journal init: %w", err)
	}
	if err := wal.Start(ctx); err != nil {
		return fmt.Errorf("journal start: %w", err)
	}

	recorder, err := buildRecorder(loaded.Accounting)
	if err != nil {
		return fmt.Errorf("accounting init: %w", err)
	}
	if recorder != nil {
		recorder.Start(ctx)
	}

	metrics := obs.NewMetrics()

	makerVenue, _ := loaded.Registry.VenueByRole(schema.VenueRoleMaker)
	hedgeVenue, _ := loaded.Registry.VenueByRole(schema.VenueRoleHedge)

	// the sim venues call back into the engine; the pointer is set before
	// any event can flow
	var eng *engine.Engine
	makerSim := venue.NewSim(venue.SimConfig{Venue: makerVenue.ID, SymbolID: loaded.MakerSymbol},
		func(t schema.EventType, ts int64, p any) { eng.Emitter(makerVenue.ID)(t, ts, p) })
	hedgeSim := venue.NewSim(venue.SimConfig{Venue: hedgeVenue.ID, SymbolID: loaded.HedgeSymbol},
		func(t schema.EventType, ts int64, p any) { eng.Emitter(hedgeVenue.ID)(t, ts, p) })

	eng, err = engine.New(loaded, rt, engine.Deps{
		MakerClient: makerSim,
		HedgeClient: hedgeSim,
		HedgeTaker:  hedgeSim,
		Journal:     wal,
		Recorder:    recorder,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	if *recoverFlag {
		snap, err := eng.RecoverFrom(ctx, engine.RecoverConfig{
			SnapshotPath: loaded.Engine.SnapshotPath,
			Playback: journal.PlaybackConfig{
				Dir:        loaded.Journal.Dir,
				FilePrefix: loaded.Journal.FilePrefix,
			},
		})
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		logs.Infof("recovered position net=%d avg=%d realized=%d",
			snap.Position.NetSize, snap.Position.AvgEntryPrice, snap.Position.RealizedPnL)
	}

	eng.Start(ctx)

	if *configReload > 0 {
		go ops.Watch(ctx, *configPath, *configReload, rt, eng.ConfigUpdated)
	}
	if *overridePath != "" {
		go ops.WatchOverride(ctx, *overridePath, *overrideInterval, rt, eng)
	}
	if *paper {
		go paperFeed(ctx, loaded, eng, makerSim, hedgeSim, *tickInterval)
	}
	if *statsInterval > 0 {
		go logStats(ctx, metrics, *statsInterval)
	}

	<-ctx.Done()

	if err := eng.Stop(); err != nil {
		logs.Warnf("engine stop, err: %+v", err)
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logs.Warnf("accounting close, err: %+v", err)
		}
	}
	return wal.Close()
}

func buildRecorder(cfg ops.AccountingConfig) (*accounting.Recorder, error) {
	switch {
	case cfg.PostgresDSN != "":
		client, err := conn.New(conn.Option{ConnString: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		sink, err := accounting.NewPostgresSink(client)
		if err != nil {
			return nil, err
		}
		return accounting.NewRecorder(sink, cfg.QueueSize), nil
	case cfg.JSONLPath != "":
		sink, err := accounting.NewJSONLSink(cfg.JSONLPath)
		if err != nil {
			return nil, err
		}
		return accounting.NewRecorder(sink, cfg.QueueSize), nil
	default:
		return nil, nil
	}
}

// paperFeed drives both sim venues with correlated random walks so the
// engine quotes, gets filled, and hedges without any external feed.
func paperFeed(ctx context.Context, loaded ops.Loaded, eng *engine.Engine, makerSim, hedgeSim *venue.Sim, interval time.Duration) {
	makerGen, err := mdg.NewGenerator(loaded.Registry, loaded.MakerSymbol, loaded.Generator)
	if err != nil {
		logs.Errorf("maker generator, err: %+v", err)
		return
	}
	hedgeCfg := loaded.Generator
	hedgeCfg.Seed = loaded.Generator.Seed + 1
	hedgeGen, err := mdg.NewGenerator(loaded.Registry, loaded.HedgeSymbol, hedgeCfg)
	if err != nil {
		logs.Errorf("hedge generator, err: %+v", err)
		return
	}

	makerVenue, _ := loaded.Registry.VenueByRole(schema.VenueRoleMaker)
	hedgeVenue, _ := loaded.Registry.VenueByRole(schema.VenueRoleHedge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, book := makerGen.NextBook(now)
			if err := eng.Publish(makerVenue.ID, schema.EventBook, book.TsEvent, book); err != nil {
				continue
			}
			if _, trade, ok := makerGen.MaybeTrade(now); ok {
				_ = eng.Publish(makerVenue.ID, schema.EventTrade, trade.TsEvent, trade)
				makerSim.Cross(trade.Price, trade.Size)
			}

			_, hedgeBook := hedgeGen.NextBook(now)
			_ = eng.Publish(hedgeVenue.ID, schema.EventBook, hedgeBook.TsEvent, hedgeBook)
			if _, trade, ok := hedgeGen.MaybeTrade(now); ok {
				_ = eng.Publish(hedgeVenue.ID, schema.EventTrade, trade.TsEvent, trade)
				hedgeSim.Cross(trade.Price, trade.Size)
			}
		}
	}
}

func logStats(ctx context.Context, metrics *obs.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := metrics.Snapshot()
			logs.Infof("cycles=%d hedges=%d drops=%d stale=%d cycle_avg=%s",
				snap.QuoteCycles, snap.HedgePlans, snap.QueueDrops, snap.StaleDrops,
				snap.CycleLatency.Avg)
		}
	}
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
