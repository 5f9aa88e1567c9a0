package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Wangx-create/TRNNew/app/fetch"
	"github.com/Wangx-create/TRNNew/app/news"
)

type Options struct {
	Rounds        int
	RoundInterval time.Duration
	Concurrency   int
}

// Runner is the execution isolation manager. The fetch/match/aggregate/
// reduce pipeline reads its configuration from one shared persisted
// snapshot; Runner lets independent task definitions reuse it by swapping
// in a per-run override under a global execution lock and restoring the
// baseline before the lock is released, whatever the pipeline did.
type Runner struct {
	mu         sync.Mutex
	store      *news.SnapshotStore
	fetcher    fetch.Fetcher
	matcher    *news.Matcher
	aggregator *news.Aggregator
	reducer    *news.Reducer
	opts       Options
}

func New(store *news.SnapshotStore, fetcher fetch.Fetcher, history news.HistoryStore, opts Options) *Runner {
	if opts.Rounds < 1 {
		opts.Rounds = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Runner{
		store:      store,
		fetcher:    fetcher,
		matcher:    news.NewMatcher(),
		aggregator: news.NewAggregator(),
		reducer:    news.NewReducer(history),
		opts:       opts,
	}
}

// Baseline returns the live snapshot as observed outside any critical
// section.
func (r *Runner) Baseline() (news.Snapshot, error) {
	return r.store.Load()
}

// SetBaseline replaces the externally visible baseline. It takes the same
// execution lock as RunIsolated, so a baseline write can never land inside
// another run's backup/override/restore window.
func (r *Runner) SetBaseline(snap news.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Save(snap); err != nil {
		return &ConfigWriteError{Op: "baseline write", Err: err}
	}
	return nil
}

// RunIsolated executes the pipeline under the override snapshot:
// validate, lock, back up the live snapshot, write the override, run the
// pipeline, restore the backup, unlock. Restoration is deferred so it runs
// whether the pipeline succeeded, failed, or panicked, and it completes
// before the lock is released. A restore failure outranks the pipeline's
// own error. If the process dies between override and restore the file
// stays overridden; recovery is an operator concern, not attempted here.
func (r *Runner) RunIsolated(ctx context.Context, override news.Snapshot) (result *Result, err error) {
	if verr := override.Validate(); verr != nil {
		return nil, &ValidationError{Reason: verr.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	backup, lerr := r.store.Load()
	if lerr != nil {
		return nil, &ConfigWriteError{Op: "backup read", Err: lerr}
	}

	if serr := r.store.Save(override); serr != nil {
		return nil, &ConfigWriteError{Op: "override write", Err: serr}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("pipeline panicked: %v", rec)
		}
		if rerr := r.store.Save(backup); rerr != nil {
			result = nil
			err = &RestoreError{Err: rerr}
		}
	}()

	result, err = r.execute(ctx, override)
	return result, err
}

func (r *Runner) execute(ctx context.Context, snap news.Snapshot) (*Result, error) {
	start := time.Now()
	runID := newRunID()
	signature := snap.Signature()
	mode := snap.EffectiveMode()

	slog.Info("Run started",
		"run_id", runID,
		"mode", string(mode),
		"groups", len(snap.Groups),
		"platforms", len(snap.Platforms),
		"rounds", r.opts.Rounds)

	batches := make([]news.Batch, 0, r.opts.Rounds)
	totalRaw := 0
	succeeded := make(map[string]bool)

	for round := 1; round <= r.opts.Rounds; round++ {
		if round > 1 && r.opts.RoundInterval > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.opts.RoundInterval):
			}
		}

		windowStart := time.Now().UTC()
		items := r.fetchRound(ctx, snap.Platforms, round, succeeded)
		totalRaw += len(items)

		window := news.Window{Round: round, Start: windowStart, End: time.Now().UTC()}
		matched := r.matcher.Run(items, snap.Groups, snap.Filters)
		batches = append(batches, news.Batch{Window: window, Items: matched})

		slog.Debug("Round completed", "run_id", runID, "round", round, "raw", len(items), "matched", len(matched))
	}

	records := r.aggregator.Run(batches)
	reduced := r.reducer.Run(records, mode, signature, runID, r.opts.Rounds)

	groups := make(map[string]bool)
	for _, rec := range records {
		groups[rec.Keyword] = true
	}

	result := &Result{
		RunID:     runID,
		Mode:      mode,
		Signature: signature,
		Records:   reduced,
		Stats: Stats{
			TotalRawItems:      totalRaw,
			MatchedGroups:      len(groups),
			MatchedRecords:     len(reduced),
			PlatformsQueried:   len(snap.Platforms),
			PlatformsSucceeded: len(succeeded),
		},
		DurationMs: time.Since(start).Milliseconds(),
	}

	slog.Info("Run completed",
		"run_id", runID,
		"mode", string(mode),
		"raw", totalRaw,
		"records", len(reduced),
		"platforms_ok", len(succeeded),
		"duration", time.Since(start))

	return result, nil
}

// fetchRound fans out one fetch per platform with bounded concurrency and
// waits for all of them. A failed platform contributes zero items and is
// only reflected in stats; it never aborts the run. The merged round
// output keeps the configured platform order.
func (r *Runner) fetchRound(ctx context.Context, platforms []string, round int, succeeded map[string]bool) []news.RawItem {
	type fetchResult struct {
		items []news.RawItem
		err   error
	}

	sem := make(chan struct{}, r.opts.Concurrency)
	results := make([]fetchResult, len(platforms))
	var wg sync.WaitGroup

	for i, platform := range platforms {
		wg.Add(1)
		go func(i int, platform string) {
			defer wg.Done()
			// A panicking adapter counts as a failed platform, not a
			// crashed process
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = fetchResult{err: fmt.Errorf("fetch panicked: %v", rec)}
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()

			items, err := r.fetcher.Fetch(ctx, platform, round)
			results[i] = fetchResult{items: items, err: err}
		}(i, platform)
	}

	wg.Wait()

	var items []news.RawItem
	for i, res := range results {
		if res.err != nil {
			slog.Warn("Platform fetch failed", "platform", platforms[i], "round", round, "error", res.err)
			continue
		}
		succeeded[platforms[i]] = true
		items = append(items, res.items...)
	}

	return items
}

func newRunID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Intn(10000))
}
