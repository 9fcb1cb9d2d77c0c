package inventory

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
)

// Snapshot is the persisted form of the ledger used for restart recovery.
type Snapshot struct {
	Position    Position `json:"position"`
	LastSeq     uint64   `json:"lastSeq"`
	LastEventTs int64    `json:"lastEventTs"`
}

// WriteSnapshot persists a snapshot atomically via rename.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := sonic.ConfigFastest.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigFastest.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots returns an error when two snapshots disagree on the
// position. Used by replay verification.
func CompareSnapshots(expected, actual Snapshot) error {
	e, a := expected.Position, actual.Position
	if e.SymbolID != a.SymbolID {
		return fmt.Errorf("symbol mismatch: want %d got %d", e.SymbolID, a.SymbolID)
	}
	if e.NetSize != a.NetSize {
		return fmt.Errorf("net size mismatch: want %d got %d", e.NetSize, a.NetSize)
	}
	if e.AvgEntryPrice != a.AvgEntryPrice {
		return fmt.Errorf("avg entry mismatch: want %d got %d", e.AvgEntryPrice, a.AvgEntryPrice)
	}
	return nil
}
