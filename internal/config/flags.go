package config

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// FlagSet is the live feature-flag view. Flags are additive and inspected at
// request time, never cached at startup, so a reload takes effect without a
// restart.
type FlagSet struct {
	mu               sync.RWMutex
	scopes           bool
	idempotency      bool
	contextHydration bool
	workItems        bool
}

func newFlagSet() *FlagSet {
	// Everything ships enabled except work items, whose behavior is
	// deferred (the flag is still reported by capabilities).
	return &FlagSet{
		scopes:           true,
		idempotency:      true,
		contextHydration: true,
	}
}

func (f *FlagSet) applyEnv() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = envBool("ENGRAM_ENABLE_SCOPES", f.scopes)
	f.idempotency = envBool("ENGRAM_ENABLE_IDEMPOTENCY", f.idempotency)
	f.contextHydration = envBool("ENGRAM_ENABLE_CONTEXT_HYDRATION", f.contextHydration)
	f.workItems = envBool("ENGRAM_ENABLE_WORK_ITEMS", f.workItems)
}

func (f *FlagSet) applyFile(fc fileConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fc.Flags.Scopes != nil {
		f.scopes = *fc.Flags.Scopes
	}
	if fc.Flags.Idempotency != nil {
		f.idempotency = *fc.Flags.Idempotency
	}
	if fc.Flags.ContextHydration != nil {
		f.contextHydration = *fc.Flags.ContextHydration
	}
	if fc.Flags.WorkItems != nil {
		f.workItems = *fc.Flags.WorkItems
	}
}

// Scopes reports whether scope fields take effect.
func (f *FlagSet) Scopes() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.scopes
}

// Idempotency reports whether the idempotency ledger is consulted.
func (f *FlagSet) Idempotency() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.idempotency
}

// ContextHydration reports whether the context_hydrate tool is exposed.
func (f *FlagSet) ContextHydration() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.contextHydration
}

// WorkItems reports whether the reserved work-items surface is flagged on.
func (f *FlagSet) WorkItems() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.workItems
}

// SetScopes overrides the scopes flag (tests and tooling).
func (f *FlagSet) SetScopes(v bool) {
	f.mu.Lock()
	f.scopes = v
	f.mu.Unlock()
}

// SetIdempotency overrides the idempotency flag.
func (f *FlagSet) SetIdempotency(v bool) {
	f.mu.Lock()
	f.idempotency = v
	f.mu.Unlock()
}

// SetContextHydration overrides the context-hydration flag.
func (f *FlagSet) SetContextHydration(v bool) {
	f.mu.Lock()
	f.contextHydration = v
	f.mu.Unlock()
}

// Watch reloads flags from the config file whenever it changes, until ctx is
// done. Environment variables still win: they are reapplied after each file
// reload. Returns immediately if the file cannot be watched.
func (f *FlagSet) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				var fc fileConfig
				if _, err := toml.DecodeFile(path, &fc); err != nil {
					logger.Warn("config: reload failed", "path", path, "error", err)
					continue
				}
				f.applyFile(fc)
				f.applyEnv()
				logger.Info("config: feature flags reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config: watcher error", "error", err)
			}
		}
	}()
	return nil
}
