package watcher

import (
	"context"
	"strings"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	rsiStatusFeedURL = "https://status.robertsspaceindustries.com/index.xml"
	rsiStatusRole    = "RSI Status"
	rsiStatusFooter  = "RSI Service Status"
)

// DefaultRSIStatusInterval is the poll interval unless config overrides it.
const DefaultRSIStatusInterval = 5 * time.Minute

// The status page edits an incident's title as it moves through states
// ([Investigating] → [Resolved]), so identity is guid|title: every
// transition produces a fresh key and announces once, and superseded keys
// stay in the seen set.
type rsiStatusSource struct {
	feedURL string
	feeds   *feedClient
}

func (s *rsiStatusSource) Name() string { return "rsi-status" }

func (s *rsiStatusSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	feed, err := s.feeds.fetch(ctx, s.feedURL)
	if err != nil {
		return nil, err
	}
	items := make([]watch.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		guid := entry.GUID
		if guid == "" {
			guid = entry.Link
		}
		title := strings.TrimSpace(entry.Title)
		it := watch.Item{
			Key:   guid + "|" + title,
			Title: title,
			URL:   entry.Link,
			Body:  entry.Description,
		}
		if entry.Published != "" {
			it.Fields = map[string]string{"published": entry.Published}
		}
		items = append(items, it)
	}
	return items, nil
}

// statusLevels maps the bracket tag at the front of an incident title to a
// label and color. Untagged titles count as investigating.
var statusLevels = []struct {
	prefix string
	label  string
	color  int
}{
	{"[resolved]", "Resolved", colorGreen},
	{"[monitoring]", "Monitoring", colorBlue},
	{"[identified]", "Identified", colorOrange},
	{"[scheduled]", "Scheduled", colorLightGrey},
}

func statusFromTitle(title string) (string, int) {
	lower := strings.ToLower(title)
	for _, lvl := range statusLevels {
		if strings.HasPrefix(lower, lvl.prefix) {
			return lvl.label, lvl.color
		}
	}
	return "Investigating", colorRed
}

var statusPrefixes = []string{
	"[Resolved]", "[Monitoring]", "[Identified]", "[Investigating]", "[Scheduled]",
}

func cleanStatusTitle(title string) string {
	for _, p := range statusPrefixes {
		title = strings.ReplaceAll(title, p, "")
	}
	return strings.TrimSpace(title)
}

type rsiStatusNotifier struct {
	ann *Announcer
}

func (n *rsiStatusNotifier) Notify(ctx context.Context, it watch.Item) error {
	label, color := statusFromTitle(it.Title)
	desc := stripHTML(it.Body)
	if desc == "" {
		desc = "No details yet."
	}
	embed := &channel.Embed{
		Title:       truncate(cleanStatusTitle(it.Title), 256),
		URL:         it.URL,
		Description: truncate(desc, 4096),
		Color:       color,
		Footer:      rsiStatusFooter,
		Fields:      []channel.EmbedField{{Name: "Status", Value: label, Inline: true}},
	}
	if pub := it.Fields["published"]; pub != "" {
		embed.Fields = append(embed.Fields, channel.EmbedField{Name: "Updated", Value: pub, Inline: true})
	}
	return n.ann.Post(ctx, rsiStatusRole, embed)
}

// NewRSIStatus watches the RSI status page feed. The seen set lives in
// memory; the first poll after startup seeds silently.
func NewRSIStatus(ann *Announcer) *watch.Runner {
	src := &rsiStatusSource{feedURL: rsiStatusFeedURL, feeds: newFeedClient("")}
	return watch.NewRunner("rsi-status", src, &rsiStatusNotifier{ann: ann}, state.NewMemorySeenSet())
}
