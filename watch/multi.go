package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/linanwx/milo/logger"
)

// MultiSource merges several sub-sources into one feed. Sub-sources are
// fetched concurrently; a failing one is logged and skipped so the rest of
// the batch still lands. The merged fetch errors only when every sub-source
// fails, which keeps first-run seeding from consuming the flag on a dead
// network.
type MultiSource struct {
	name    string
	sources []Source
}

// NewMultiSource creates a fan-out source.
func NewMultiSource(name string, sources ...Source) *MultiSource {
	return &MultiSource{name: name, sources: sources}
}

// Name returns the merged feed's name.
func (m *MultiSource) Name() string { return m.name }

// Fetch gathers all sub-sources.
func (m *MultiSource) Fetch(ctx context.Context) ([]Item, error) {
	type result struct {
		idx   int
		items []Item
		err   error
	}

	results := make([]result, len(m.sources))
	var wg sync.WaitGroup
	for i, src := range m.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			items, err := src.Fetch(ctx)
			results[i] = result{idx: i, items: items, err: err}
		}(i, src)
	}
	wg.Wait()

	var merged []Item
	var failures []string
	for i, res := range results {
		if res.err != nil {
			logger.Warn("sub-source fetch failed", "feed", m.name, "source", m.sources[i].Name(), "err", res.err)
			failures = append(failures, fmt.Sprintf("%s: %v", m.sources[i].Name(), res.err))
			continue
		}
		merged = append(merged, res.items...)
	}

	if len(failures) == len(m.sources) && len(m.sources) > 0 {
		return nil, fmt.Errorf("all sources failed: %s", strings.Join(failures, "; "))
	}
	return merged, nil
}
