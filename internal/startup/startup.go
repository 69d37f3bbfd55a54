// Package startup sequences process initialization: the persisted-index load
// and the search-subsystem warm-up run as bounded background tasks so the
// transport layer can accept connections (and report liveness) immediately,
// reporting full readiness only once the tasks settle.
package startup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paperlens/paperlens-go/internal/logging"
)

// Default bounds for the two startup tasks.
const (
	DefaultIndexLoadTimeout  = 30 * time.Second
	DefaultSearchInitTimeout = 60 * time.Second
)

// Task is one bounded initialization step. A nil error marks its readiness
// flag true.
type Task func(ctx context.Context) error

// State is a snapshot of the startup flags.
type State struct {
	// IndexReady reports that the persisted-index load settled successfully.
	IndexReady bool `json:"index_ready"`
	// SearchReady reports that the search subsystem initialized.
	SearchReady bool `json:"search_ready"`
	// InitInProgress reports that the startup sequence is still running.
	InitInProgress bool `json:"init_in_progress"`
}

// Options tunes the task bounds. Zero values select the defaults.
type Options struct {
	IndexLoadTimeout  time.Duration
	SearchInitTimeout time.Duration
}

// Orchestrator runs the two startup tasks once, in the background, each
// bounded by its timeout. A task that overruns its bound is abandoned — its
// goroutine is left to finish on its own and its late result is discarded —
// rather than cancelled, since interrupting an index load mid-flight is not
// known to be safe.
type Orchestrator struct {
	indexLoad  Task
	searchInit Task

	indexLoadTimeout  time.Duration
	searchInitTimeout time.Duration

	indexReady  atomic.Bool
	searchReady atomic.Bool
	inProgress  atomic.Bool
}

// NewOrchestrator constructs an Orchestrator over the two startup tasks.
func NewOrchestrator(indexLoad, searchInit Task, opts *Options) *Orchestrator {
	o := &Orchestrator{
		indexLoad:         indexLoad,
		searchInit:        searchInit,
		indexLoadTimeout:  DefaultIndexLoadTimeout,
		searchInitTimeout: DefaultSearchInitTimeout,
	}
	if opts != nil {
		if opts.IndexLoadTimeout > 0 {
			o.indexLoadTimeout = opts.IndexLoadTimeout
		}
		if opts.SearchInitTimeout > 0 {
			o.searchInitTimeout = opts.SearchInitTimeout
		}
	}
	return o
}

// Run starts the startup sequence and returns immediately. If a sequence is
// already in progress the call is a no-op, so a racing duplicate entry never
// runs the tasks twice concurrently.
func (o *Orchestrator) Run(ctx context.Context) {
	if !o.inProgress.CompareAndSwap(false, true) {
		logging.Component(ctx, "startup").Warn("initialization already in progress, ignoring duplicate entry")
		return
	}

	go func() {
		logger := logging.Component(ctx, "startup")
		start := time.Now()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			o.runBounded(ctx, "index-load", o.indexLoad, o.indexLoadTimeout, &o.indexReady)
		}()
		go func() {
			defer wg.Done()
			o.runBounded(ctx, "search-init", o.searchInit, o.searchInitTimeout, &o.searchReady)
		}()
		wg.Wait()

		o.inProgress.Store(false)
		logger.Info("startup settled",
			"index_ready", o.indexReady.Load(),
			"search_ready", o.searchReady.Load(),
			"duration", time.Since(start))
	}()
}

// runBounded executes task and waits at most timeout for its result. The
// task goroutine always runs to completion; on timeout its eventual result
// is discarded and the readiness flag stays false. Failures are logged, not
// propagated — a degraded start must not crash the process.
func (o *Orchestrator) runBounded(ctx context.Context, name string, task Task, timeout time.Duration, ready *atomic.Bool) {
	logger := logging.Component(ctx, "startup")

	done := make(chan error, 1)
	go func() { done <- task(ctx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("startup task failed", "task", name, "error", err)
			return
		}
		ready.Store(true)
		logger.Info("startup task completed", "task", name)
	case <-timer.C:
		logger.Warn("startup task timed out, abandoning", "task", name, "timeout", timeout)
	}
}

// State returns a snapshot of the startup flags.
func (o *Orchestrator) State() State {
	return State{
		IndexReady:     o.indexReady.Load(),
		SearchReady:    o.searchReady.Load(),
		InitInProgress: o.inProgress.Load(),
	}
}

// Ready reports that both startup tasks settled successfully.
func (o *Orchestrator) Ready() bool {
	return o.indexReady.Load() && o.searchReady.Load()
}
