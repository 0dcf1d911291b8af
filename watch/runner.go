package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/state"
)

// Runner drives one feed. Each poll:
//
//  1. Fetch. Any error aborts the iteration; nothing is marked seen.
//  2. On the very first successful fetch of an empty store, every key is
//     recorded silently (seeding) so a fresh deployment does not replay the
//     feed's history.
//  3. Items whose key is not in the seen set are announced one by one. A
//     failed announcement is logged and the item is still marked seen,
//     unless the notifier signals ErrRetry.
//  4. The seen set is persisted once, after the whole batch.
type Runner struct {
	name     string
	source   Source
	notifier Notifier
	store    *state.SeenSet

	pollMu sync.Mutex // one poll at a time; overlapping ticks are skipped

	mu        sync.Mutex
	firstRun  bool
	posted    int64
	retried   int64
	lastPoll  time.Time
	lastError string
}

// NewRunner creates a runner. The first-run flag is decided here: a store
// that is empty at construction seeds on its first successful fetch.
func NewRunner(name string, source Source, notifier Notifier, store *state.SeenSet) *Runner {
	return &Runner{
		name:     name,
		source:   source,
		notifier: notifier,
		store:    store,
		firstRun: store.Len() == 0,
	}
}

// Name returns the runner's name.
func (r *Runner) Name() string { return r.name }

// Stats returns a snapshot for the status command.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Name:      r.name,
		SeenCount: r.store.Len(),
		Posted:    r.posted,
		Retried:   r.retried,
		LastPoll:  r.lastPoll,
		LastError: r.lastError,
		Seeded:    !r.firstRun,
	}
}

// Poll runs one iteration. Safe to call from a scheduler; a tick that
// arrives while the previous poll is still running is skipped.
func (r *Runner) Poll(ctx context.Context) error {
	if !r.pollMu.TryLock() {
		logger.Debug("poll still running, skipping tick", "watcher", r.name)
		return nil
	}
	defer r.pollMu.Unlock()

	items, err := r.source.Fetch(ctx)

	r.mu.Lock()
	r.lastPoll = time.Now()
	if err != nil {
		r.lastError = err.Error()
	} else {
		r.lastError = ""
	}
	first := r.firstRun
	if err == nil {
		r.firstRun = false
	}
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s: fetch: %w", r.name, err)
	}

	if first {
		for _, it := range items {
			r.store.Add(it.Key)
		}
		if err := r.store.Save(); err != nil {
			return fmt.Errorf("%s: save after seeding: %w", r.name, err)
		}
		logger.Info("seeded seen set", "watcher", r.name, "items", len(items))
		return nil
	}

	fresh := r.diff(items)
	if len(fresh) == 0 {
		return nil
	}
	logger.Info("new items", "watcher", r.name, "count", len(fresh))

	for _, it := range fresh {
		err := r.notify(ctx, it)
		switch {
		case err == nil:
			r.store.Add(it.Key)
			r.mu.Lock()
			r.posted++
			r.mu.Unlock()
		case errors.Is(err, ErrRetry):
			logger.Warn("notify deferred, will retry", "watcher", r.name, "key", it.Key, "err", err)
			r.mu.Lock()
			r.retried++
			r.mu.Unlock()
		default:
			logger.Error("notify failed", "watcher", r.name, "key", it.Key, "err", err)
			r.store.Add(it.Key)
		}
	}

	if err := r.store.Save(); err != nil {
		return fmt.Errorf("%s: save: %w", r.name, err)
	}
	return nil
}

// diff returns the items not yet seen, in fetch order, deduplicated within
// the batch.
func (r *Runner) diff(items []Item) []Item {
	var fresh []Item
	inBatch := make(map[string]bool)
	for _, it := range items {
		if it.Key == "" || inBatch[it.Key] || r.store.Contains(it.Key) {
			continue
		}
		inBatch[it.Key] = true
		fresh = append(fresh, it)
	}
	return fresh
}

// notify calls the notifier with panic isolation so one bad item cannot
// take down the poll loop.
func (r *Runner) notify(ctx context.Context, it Item) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("notify panic: %v", rec)
		}
	}()
	return r.notifier.Notify(ctx, it)
}

// Preview reports what a poll would do without mutating the seen set: the
// items that would be announced, and whether the fetch would seed instead.
func (r *Runner) Preview(ctx context.Context) ([]Item, bool, error) {
	items, err := r.source.Fetch(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%s: fetch: %w", r.name, err)
	}

	r.mu.Lock()
	first := r.firstRun
	r.mu.Unlock()
	if first {
		return items, true, nil
	}
	return r.diff(items), false, nil
}
