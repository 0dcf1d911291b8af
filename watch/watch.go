// Package watch implements the poll-diff-notify loop shared by all feed
// watchers: fetch the current items, diff them against a seen set, announce
// the new ones, and persist the set once per batch.
package watch

import (
	"context"
	"errors"
	"time"
)

// ErrRetry wraps a notify failure whose item must stay unseen so the next
// poll retries it. Any other notify error still marks the item seen
// (at-most-once announcement).
var ErrRetry = errors.New("retry on next poll")

// Item is one entry from a feed. Key is its identity: a URL, GUID, video ID,
// or a composite such as "guid|title". Everything else is display data and
// never participates in dedup.
type Item struct {
	Key    string
	Title  string
	URL    string
	Body   string
	Source string            // sub-feed name for fan-out feeds
	Fields map[string]string // extra display fields
}

// Source produces the current items of a feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Notifier announces one new item.
type Notifier interface {
	Notify(ctx context.Context, item Item) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, item Item) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, item Item) error {
	return f(ctx, item)
}

// Stats is a snapshot of a runner's activity for the status command.
type Stats struct {
	Name      string
	SeenCount int
	Posted    int64
	Retried   int64
	LastPoll  time.Time
	LastError string
	Seeded    bool
}
