// internal/locator/locator.go

// Package locator finds form elements through a prioritized list of lookup
// strategies so small markup changes on the target site do not break
// automation.
package locator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// Querier runs one strategy against the live document. It blocks until the
// strategy matches or ctx is done. When clickable is set the element must
// also be visible. A miss is reported as an error.
type Querier interface {
	Query(ctx context.Context, s Strategy, clickable bool) (*cdp.Node, error)
}

// Locator resolves element keys to DOM nodes.
type Locator struct {
	q      Querier
	logger *slog.Logger

	mu    sync.RWMutex
	table map[Key][]Strategy
}

// New returns a locator over table. A nil table means DefaultTable().
func New(q Querier, table map[Key][]Strategy, logger *slog.Logger) *Locator {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{q: q, table: table, logger: logger.With("comp", "locator")}
}

// Strategies returns a copy of the strategy list for key.
func (l *Locator) Strategies(key Key) []Strategy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Strategy(nil), l.table[key]...)
}

// AddStrategy appends s as the lowest-priority strategy for key.
func (l *Locator) AddStrategy(key Key, s Strategy) {
	l.mu.Lock()
	l.table[key] = append(l.table[key], s)
	l.mu.Unlock()
	l.logger.Info("locator strategy added", "key", key, "strategy", s.String())
}

// Find tries each strategy for key in order, giving each up to timeout. It
// returns the first match, or nil when every strategy misses. A miss is an
// expected outcome and is not reported as an error.
func (l *Locator) Find(ctx context.Context, key Key, timeout time.Duration, clickable bool) *cdp.Node {
	strategies := l.Strategies(key)
	if len(strategies) == 0 {
		l.logger.Warn("no strategies configured", "key", key)
		return nil
	}

	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil
		}
		qctx, cancel := context.WithTimeout(ctx, timeout)
		node, err := l.q.Query(qctx, s, clickable)
		cancel()
		if err == nil && node != nil {
			l.logger.Debug("element located", "key", key, "strategy", s.String())
			return node
		}
		l.logger.Debug("strategy missed", "key", key, "strategy", s.String(), "err", err)
	}

	l.logger.Warn("element not located by any strategy", "key", key)
	return nil
}

// ValidateAll probes every configured key with a short timeout and reports
// which ones resolve right now.
func (l *Locator) ValidateAll(ctx context.Context, timeout time.Duration) map[Key]bool {
	l.mu.RLock()
	keys := make([]Key, 0, len(l.table))
	for _, k := range Keys() {
		if len(l.table[k]) > 0 {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()

	results := make(map[Key]bool, len(keys))
	found := 0
	for _, k := range keys {
		ok := l.Find(ctx, k, timeout, false) != nil
		results[k] = ok
		if ok {
			found++
		}
	}
	l.logger.Info("element pre-flight finished", "found", found, "total", len(keys))
	return results
}

// MissingCritical returns the critical keys that results reports as absent.
func MissingCritical(results map[Key]bool) []Key {
	var missing []Key
	for _, k := range CriticalKeys() {
		if !results[k] {
			missing = append(missing, k)
		}
	}
	return missing
}
