package engine

import (
	"context"
	"errors"
	"os"

	"github.com/yanun0323/logs"

	"main/internal/codec"
	"main/internal/inventory"
	"main/internal/journal"
	"main/internal/schema"
	"main/pkg/exception"
)

// RecoverFrom rebuilds the engine's ledger before the loop starts.
func (e *Engine) RecoverFrom(ctx context.Context, cfg RecoverConfig) (inventory.Snapshot, error) {
	snap, err := Recover(ctx, cfg, e.ledger)
	if err != nil {
		return snap, err
	}
	e.mgr.SetPosition(e.ledger.Position())
	return snap, nil
}

// RecoverConfig points recovery at a snapshot and the journal segments
// written after it.
type RecoverConfig struct {
	SnapshotPath string
	Playback     journal.PlaybackConfig
}

// Recover rebuilds a ledger from the last snapshot plus the journaled
// fills newer than it. A missing snapshot replays the whole journal; a
// missing journal keeps the snapshot as-is.
func Recover(ctx context.Context, cfg RecoverConfig, ledger *inventory.Ledger) (inventory.Snapshot, error) {
	var snap inventory.Snapshot
	if cfg.SnapshotPath != "" {
		loaded, err := inventory.ReadSnapshot(cfg.SnapshotPath)
		switch {
		case err == nil:
			snap = loaded
			ledger.Restore(snap.Position)
		case os.IsNotExist(err):
			logs.Infof("no snapshot at %s, replaying journal from the start", cfg.SnapshotPath)
		default:
			return snap, err
		}
	}

	pb, err := journal.NewPlayback(cfg.Playback)
	if err != nil {
		// no segments is a valid cold start when a snapshot was loaded
		if snap.LastEventTs > 0 || snap.Position.SymbolID != 0 {
			logs.Infof("no journal segments, keeping snapshot position")
			return snap, nil
		}
		return snap, err
	}

	cutoff := snap.Position.LastFillTs
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if header.Type != schema.EventFill {
			return nil
		}
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			return journal.ErrChecksumMismatch
		}
		if fill.TsEvent <= cutoff {
			return nil
		}
		if _, err := ledger.ApplyFill(fill); err != nil {
			if errors.Is(err, exception.ErrDuplicateFill) {
				return nil
			}
			return err
		}
		if header.Seq > snap.LastSeq {
			snap.LastSeq = header.Seq
		}
		snap.LastEventTs = fill.TsEvent
		return nil
	})
	if err != nil {
		return snap, err
	}
	snap.Position = ledger.Position()
	return snap, nil
}
