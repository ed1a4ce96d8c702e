// Package resource implements the process-wide ResourceGovernor: the
// single source of truth for memory accounting and batch cancellation
// that spec §5 and Design Notes §9 require instead of ambient global
// state. Callers hold an explicit *Governor rather than reading through
// package-level variables, so tests can instantiate an isolated one.
//
// No generic admission-control or arena library appears anywhere in the
// retrieval pack (checked for golang-lru, ants, pond — none present),
// so this is built directly on sync/atomic, following the teacher's own
// counter idiom (atomic.Uint64 sequence/command counters in
// runtime/executor/shell_worker.go) rather than adopting a third-party
// dependency that doesn't exist in the ecosystem pack.
package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrLimitExceeded is returned by Reserve when admitting the request
// would push cumulative usage past the configured ceiling.
type ErrLimitExceeded struct {
	Requested int64
	InUse     int64
	Ceiling   int64
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("resource limit exceeded: requested %d, in use %d, ceiling %d", e.Requested, e.InUse, e.Ceiling)
}

// Governor tracks process-wide memory usage and per-batch cancellation.
// All counter operations are lock-free (atomic fetch-add/fetch-sub), as
// spec §5 requires; cancellation flags live in a sync.Map keyed by
// batch ID rather than a single global flag, resolving Design Notes'
// open question about batch-scoped vs. global cancellation in favor of
// batch-scoped (the spec explicitly forbids replicating the
// global-flag design).
type Governor struct {
	used    atomic.Int64
	ceiling int64

	cancelled sync.Map // batch ID (string) -> struct{}
}

// NewGovernor returns a Governor whose total reservable memory is
// maxPerConversion * maxConcurrentConversions, matching spec §4.4's
// admission formula.
func NewGovernor(maxPerConversion int64, maxConcurrentConversions int) *Governor {
	if maxConcurrentConversions < 1 {
		maxConcurrentConversions = 1
	}
	return &Governor{ceiling: maxPerConversion * int64(maxConcurrentConversions)}
}

// Reserve atomically admits amount bytes against the ceiling. On
// success it returns a release func that MUST be called exactly once
// (typically via defer) regardless of whether the caller's operation
// succeeds or fails, so memory is always returned to the pool.
func (g *Governor) Reserve(amount int64) (release func(), err error) {
	for {
		cur := g.used.Load()
		next := cur + amount
		if next > g.ceiling {
			return nil, &ErrLimitExceeded{Requested: amount, InUse: cur, Ceiling: g.ceiling}
		}
		if g.used.CompareAndSwap(cur, next) {
			var once sync.Once
			return func() {
				once.Do(func() { g.used.Add(-amount) })
			}, nil
		}
	}
}

// InUse returns the current reserved total.
func (g *Governor) InUse() int64 { return g.used.Load() }

// Ceiling returns the configured admission ceiling.
func (g *Governor) Ceiling() int64 { return g.ceiling }

// CancelBatch marks batchID as cancelled. Workers processing that
// batch should observe IsCancelled and stop submitting further items;
// in-flight items still run to completion (spec §5 cancellation model).
func (g *Governor) CancelBatch(batchID string) {
	g.cancelled.Store(batchID, struct{}{})
}

// IsCancelled reports whether batchID has been cancelled.
func (g *Governor) IsCancelled(batchID string) bool {
	_, ok := g.cancelled.Load(batchID)
	return ok
}

// ForgetBatch releases the cancellation flag for batchID once the
// batch has fully drained, so the map does not grow unbounded across a
// long-lived process.
func (g *Governor) ForgetBatch(batchID string) {
	g.cancelled.Delete(batchID)
}
