// Package concurrency provides a small bounded worker pool for the
// daily batch job: running the same per-player pipeline stage over a
// large player list without unbounded goroutine fan-out. Grounded on
// the teacher's infrastructure/async.WorkerPool, trimmed to the
// fixed-size, run-to-completion shape a scheduled batch actually
// needs — no adaptive resizing, no token-bucket admission, since the
// daily run is not a long-lived service competing with live traffic.
package concurrency

import (
	"context"
	"sync"
)

// Run executes fn(item) for every item in items, bounded to at most
// workers concurrent calls. It returns one error per item, nil where
// fn succeeded, in the same order as items — callers that need
// partial-failure reporting can tally the non-nil entries
// themselves instead of the whole run aborting on the first error.
func Run[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) []error {
	if workers <= 0 {
		workers = 1
	}
	errs := make([]error, len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, item := range items {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return errs
}
