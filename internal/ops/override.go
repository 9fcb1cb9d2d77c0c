package ops

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/exception"
)

// Override is an operator instruction file. Version must strictly
// increase; a file with a stale version is ignored so a re-read never
// replays an old instruction.
type Override struct {
	Version uint64 `json:"version"`

	// RiskReset acknowledges a halt and returns the supervisor to
	// NORMAL. The reason is recorded in the audit trail.
	RiskReset       bool   `json:"riskReset"`
	RiskResetReason string `json:"riskResetReason"`

	// Optional live re-tunes. Absent fields keep the current value.
	QuoteSize    *decimal.Decimal `json:"quoteSize"`
	InventoryCap *decimal.Decimal `json:"inventoryCap"`
	PauseQuoting *bool            `json:"pauseQuoting"`
}

// OverrideHandler receives applied operator instructions.
type OverrideHandler interface {
	ApplyOverride(o Override)
}

// LoadOverride reads and validates one override file.
func LoadOverride(path string) (Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Override{}, err
	}
	var o Override
	if err := json.Unmarshal(data, &o); err != nil {
		return Override{}, fmt.Errorf("parse override: %w: %s", exception.ErrInvalidConfig, err)
	}
	if o.Version == 0 {
		return Override{}, fmt.Errorf("%w: override version must be > 0", exception.ErrInvalidConfig)
	}
	if o.RiskReset && o.RiskResetReason == "" {
		return Override{}, fmt.Errorf("%w: riskReset requires a reason", exception.ErrInvalidConfig)
	}
	return o, nil
}

// ApplyOverride folds re-tunable fields into a configuration snapshot.
func ApplyOverride(loaded Loaded, o Override) (Loaded, error) {
	sym, _ := loaded.Registry.Symbol(loaded.MakerSymbol)
	if o.QuoteSize != nil {
		v, err := ParseScaled(*o.QuoteSize, sym.Scale.QuantityScale)
		if err != nil {
			return loaded, fmt.Errorf("%w: override quoteSize: %s", exception.ErrInvalidConfig, err)
		}
		if v <= 0 {
			return loaded, fmt.Errorf("%w: override quoteSize must be > 0", exception.ErrInvalidConfig)
		}
		loaded.Quote.QuoteSize = schema.Quantity(v)
	}
	if o.InventoryCap != nil {
		v, err := ParseScaled(*o.InventoryCap, sym.Scale.QuantityScale)
		if err != nil {
			return loaded, fmt.Errorf("%w: override inventoryCap: %s", exception.ErrInvalidConfig, err)
		}
		if v <= 0 || schema.Quantity(v) > loaded.Risk.HardInventory {
			return loaded, fmt.Errorf("%w: override inventoryCap out of range", exception.ErrInvalidConfig)
		}
		loaded.Quote.InventoryCap = schema.Quantity(v)
	}
	return loaded, nil
}

// WatchOverride polls an override file and delivers each new version once.
func WatchOverride(ctx context.Context, path string, interval time.Duration, rt *Runtime, handler OverrideHandler) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastVersion uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			o, err := LoadOverride(path)
			if err != nil {
				logs.Warnf("override rejected: %+v", err)
				continue
			}
			if o.Version <= lastVersion {
				continue
			}
			updated, err := ApplyOverride(rt.Load(), o)
			if err != nil {
				logs.Warnf("override rejected: %+v", err)
				lastVersion = o.Version
				continue
			}
			rt.Update(updated)
			if handler != nil {
				handler.ApplyOverride(o)
			}
			lastVersion = o.Version
			logs.Infof("override %d applied", o.Version)
		}
	}
}
