package ops

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

// Runtime holds the live configuration. Readers see a consistent Loaded
// snapshot; updates swap the whole value.
type Runtime struct {
	v atomic.Value
}

// NewRuntime seeds the runtime with an initial configuration.
func NewRuntime(loaded Loaded) *Runtime {
	var rt Runtime
	rt.v.Store(loaded)
	return &rt
}

// Load returns the current configuration snapshot.
func (r *Runtime) Load() Loaded {
	return r.v.Load().(Loaded)
}

// Update swaps in a new configuration.
func (r *Runtime) Update(loaded Loaded) {
	r.v.Store(loaded)
}

// Watch polls the config file's mtime and applies valid updates. An
// invalid file keeps the previous configuration and logs the reason.
func Watch(ctx context.Context, path string, interval time.Duration, rt *Runtime, onUpdate func(Loaded)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := Load(path)
			if err != nil {
				logs.Warnf("config reload rejected, keeping previous: %+v", err)
				lastMod = info.ModTime()
				continue
			}
			rt.Update(loaded)
			if onUpdate != nil {
				onUpdate(loaded)
			}
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}
