package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"main/internal/codec"
	"main/internal/engine"
	"main/internal/inventory"
	"main/internal/journal"
	"main/internal/ops"
	"main/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: journal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=default 1MiB)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	rebuild := flag.Bool("rebuild", false, "Rebuild the position from the journal instead of printing")
	configPath := flag.String("config", "config.json", "Config path (rebuild mode)")
	snapshotPath := flag.String("snapshot", "", "Starting snapshot (rebuild mode, optional)")
	verifyPath := flag.String("verify-snapshot", "", "Snapshot to compare the rebuilt position against")
	flag.Parse()

	cfg := journal.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}

	if *rebuild {
		if err := rebuildPosition(cfg, *configPath, *snapshotPath, *verifyPath); err != nil {
			log.Fatalf("rebuild failed: %v", err)
		}
		return
	}

	pb, err := journal.NewPlayback(cfg)
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx := context.Background()
	var index int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		fmt.Printf("%06d seq=%d venue=%d type=%s ts_event=%d ts_recv=%d len=%d\n",
			index, header.Seq, header.Venue, eventTypeName(header.Type), header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}
}

// rebuildPosition replays the journaled fills into a fresh ledger and
// prints (or verifies) the resulting position.
func rebuildPosition(pb journal.PlaybackConfig, configPath, snapshotPath, verifyPath string) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	sym, ok := loaded.Registry.Symbol(loaded.MakerSymbol)
	if !ok {
		return fmt.Errorf("unknown symbol %d", loaded.MakerSymbol)
	}
	ledger := inventory.NewLedger(sym.ID, sym.Scale)

	snap, err := engine.Recover(context.Background(), engine.RecoverConfig{
		SnapshotPath: snapshotPath,
		Playback:     pb,
	}, ledger)
	if err != nil {
		return err
	}

	pos := snap.Position
	fmt.Printf("rebuilt symbol=%d net=%d avg_entry=%d realized=%d last_fill_ts=%d last_seq=%d\n",
		pos.SymbolID, pos.NetSize, pos.AvgEntryPrice, pos.RealizedPnL, pos.LastFillTs, snap.LastSeq)

	if verifyPath == "" {
		return nil
	}
	expected, err := inventory.ReadSnapshot(verifyPath)
	if err != nil {
		return fmt.Errorf("verify snapshot load: %w", err)
	}
	if err := inventory.CompareSnapshots(expected, snap); err != nil {
		return fmt.Errorf("verification: %w", err)
	}
	fmt.Println("verification passed")
	return nil
}

func eventTypeName(t schema.EventType) string {
	switch t {
	case schema.EventBook:
		return "Book"
	case schema.EventTrade:
		return "Trade"
	case schema.EventGap:
		return "Gap"
	case schema.EventOrderAck:
		return "OrderAck"
	case schema.EventFill:
		return "Fill"
	case schema.EventQuote:
		return "Quote"
	case schema.EventHedge:
		return "Hedge"
	case schema.EventRiskTransition:
		return "RiskTransition"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventBook:
		book, ok := codec.DecodeBook(payload)
		if !ok {
			fmt.Println("  decode Book failed")
			return
		}
		var bid, ask schema.BookLevel
		if len(book.Bids) > 0 {
			bid = book.Bids[0]
		}
		if len(book.Asks) > 0 {
			ask = book.Asks[0]
		}
		fmt.Printf("  book symbol=%d depth=%d/%d bid=%d/%d ask=%d/%d\n",
			book.SymbolID, len(book.Bids), len(book.Asks), bid.Price, bid.Size, ask.Price, ask.Size)
	case schema.EventTrade:
		trade, ok := codec.DecodeTrade(payload)
		if !ok {
			fmt.Println("  decode Trade failed")
			return
		}
		fmt.Printf("  trade symbol=%d side=%d price=%d size=%d\n",
			trade.SymbolID, trade.Side, trade.Price, trade.Size)
	case schema.EventGap:
		gap, ok := codec.DecodeGap(payload)
		if !ok {
			fmt.Println("  decode Gap failed")
			return
		}
		fmt.Printf("  gap symbol=%d resumed=%t\n", gap.SymbolID, gap.Resumed)
	case schema.EventOrderAck:
		ack, ok := codec.DecodeOrderAck(payload)
		if !ok {
			fmt.Println("  decode OrderAck failed")
			return
		}
		fmt.Printf("  ack id=%d symbol=%d status=%d reason=%d price=%d leaves=%d gen=%d\n",
			ack.ClientID, ack.SymbolID, ack.Status, ack.Reason, ack.Price, ack.LeavesQty, ack.Generation)
	case schema.EventFill:
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			fmt.Println("  decode Fill failed")
			return
		}
		fmt.Printf("  fill id=%d symbol=%d side=%d liq=%d price=%d qty=%d fee=%d fill_id=%s\n",
			fill.ClientID, fill.SymbolID, fill.Side, fill.Liquidity, fill.Price, fill.Qty, fill.Fee, fill.FillID)
	case schema.EventHedge:
		h, ok := codec.DecodeHedge(payload)
		if !ok {
			fmt.Println("  decode Hedge failed")
			return
		}
		fmt.Printf("  hedge kind=%d side=%d qty=%d limit=%d slip_bps=%d\n",
			h.Kind, h.Side, h.Qty, h.LimitPrice, h.MaxSlippageBps)
	case schema.EventRiskTransition:
		tr, ok := codec.DecodeRiskTransition(payload)
		if !ok {
			fmt.Println("  decode RiskTransition failed")
			return
		}
		fmt.Printf("  risk %d->%d reason=%d venue=%d\n", tr.From, tr.To, tr.Reason, tr.Venue)
	default:
		return
	}
}
