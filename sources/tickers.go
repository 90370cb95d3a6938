package sources

import (
	"context"
	"time"

	"github.com/klaytn-labs/mempool-tracker/worker"
)

// runTicker is the shared shape behind all three periodic producers:
// fire once immediately, then every interval, pushing task onto tasks
// until ctx is canceled. A blocked queue blocks the ticker rather than
// dropping a tick, since every task kind here is idempotent to produce
// late but not to skip silently.
func runTicker(ctx context.Context, interval time.Duration, tasks chan<- worker.Task, task worker.Task) error {
	send := func() bool {
		select {
		case tasks <- task:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !send() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !send() {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// MempoolStateTicker periodically requests a pool-wide snapshot.
// Default interval mirrors original_source/src/main.rs's
// mempool_state_check_interval default of 25s.
func MempoolStateTicker(ctx context.Context, interval time.Duration, tasks chan<- worker.Task) error {
	return runTicker(ctx, interval, tasks, worker.MempoolState{})
}

// PruneTicker periodically requests a sweep for rows no longer
// present upstream. Default interval mirrors prune_check_interval's
// default of 120s; disabling it entirely is a supervisor-level choice
// (skip starting this ticker), not a zero-interval special case.
func PruneTicker(ctx context.Context, interval time.Duration, tasks chan<- worker.Task) error {
	return runTicker(ctx, interval, tasks, worker.PruneCheck{})
}

// MiningInfoTicker periodically requests a mining-info document
// fetch. Default interval mirrors track_mining_interval's default of
// 3600s; like PruneTicker, disabling it is a supervisor-level choice
// to never start it.
func MiningInfoTicker(ctx context.Context, interval time.Duration, tasks chan<- worker.Task) error {
	return runTicker(ctx, interval, tasks, worker.MiningInfo{})
}
