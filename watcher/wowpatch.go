package watcher

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	wowFeedURL = "https://www.wowhead.com/news/rss/all"
	// Wowhead serves an empty shell to unknown agents.
	wowUserAgent = "Mozilla/5.0"

	wowRole   = "WoW Patch Notes"
	wowFooter = "World of Warcraft Patch Notes"
	wowColor  = 0xFF8C00
)

// DefaultWowInterval is the poll interval unless config overrides it.
const DefaultWowInterval = 10 * time.Minute

var wowPatchKeywords = []string{
	"hotfix", "patch notes", "content update notes", "update notes",
}

func isWowPatchTitle(title string) bool {
	return containsAny(strings.ToLower(title), wowPatchKeywords)
}

type wowSource struct {
	feedURL string
	feeds   *feedClient
}

func (s *wowSource) Name() string { return "wow-patch" }

func (s *wowSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	feed, err := s.feeds.fetch(ctx, s.feedURL)
	if err != nil {
		return nil, err
	}
	var items []watch.Item
	for _, entry := range feed.Items {
		if !isWowPatchTitle(entry.Title) {
			continue
		}
		guid := entry.GUID
		if guid == "" {
			guid = entry.Link
		}
		items = append(items, watch.Item{
			Key:   guid + "|" + entry.Link,
			Title: strings.TrimSpace(entry.Title),
			URL:   entry.Link,
			Body:  entry.Description,
		})
	}
	return items, nil
}

// Unlike the other patch watchers, every failure here returns ErrRetry: a
// hotfix post stays unseen until it has actually been summarized and
// announced.
type wowNotifier struct {
	rest    *resty.Client
	llm     provider.Provider
	prompts *prompt.Registry
	ann     *Announcer
}

func (n *wowNotifier) Notify(ctx context.Context, it watch.Item) error {
	content := n.articleBody(ctx, it.URL)
	if content == "" {
		content = stripHTML(it.Body)
	}
	if content == "" {
		return fmt.Errorf("no article content for %s: %w", it.URL, watch.ErrRetry)
	}
	summary, err := summarize(ctx, n.llm, n.prompts, "wow-summary", content, patchNotesTokenCap)
	if err != nil {
		return fmt.Errorf("%v: %w", err, watch.ErrRetry)
	}
	embed := &channel.Embed{
		Title:       truncate(it.Title, 256),
		URL:         it.URL,
		Description: truncate(summary, 4096),
		Color:       wowColor,
		Footer:      wowFooter,
	}
	if err := n.ann.Post(ctx, wowRole, embed); err != nil {
		return fmt.Errorf("%v: %w", err, watch.ErrRetry)
	}
	return nil
}

// articleBody fetches the news post page and extracts its body text. An
// empty return falls back to the feed description at the call site.
func (n *wowNotifier) articleBody(ctx context.Context, url string) string {
	resp, err := n.rest.R().
		SetContext(ctx).
		SetHeader("User-Agent", wowUserAgent).
		Get(url)
	if err != nil {
		logger.Warn("wow article fetch failed", "url", url, "err", err)
		return ""
	}
	if resp.IsError() {
		logger.Warn("wow article fetch failed", "url", url, "status", resp.Status())
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		logger.Warn("wow article parse failed", "url", url, "err", err)
		return ""
	}
	for _, selector := range []string{"div.news-post-body", "#news-post-body", "article"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := newsBodyText(sel); text != "" {
			return text
		}
	}
	return ""
}

var (
	listItemOpenRe  = regexp.MustCompile(`(?i)<li[^>]*>`)
	headingOpenRe   = regexp.MustCompile(`(?i)<h[1-6][^>]*>`)
	headingCloseRe  = regexp.MustCompile(`(?i)</h[1-6]>`)
	listItemCloseRe = regexp.MustCompile(`(?i)</li>`)
)

// newsBodyText flattens an article body to text, keeping list items and
// headings readable for the summarizer.
func newsBodyText(sel *goquery.Selection) string {
	raw, err := sel.Html()
	if err != nil {
		return ""
	}
	raw = htmlCommentRe.ReplaceAllString(raw, "")
	raw = htmlBreakRe.ReplaceAllString(raw, "\n")
	raw = listItemOpenRe.ReplaceAllString(raw, "\n- ")
	raw = listItemCloseRe.ReplaceAllString(raw, "\n")
	raw = headingOpenRe.ReplaceAllString(raw, "\n## ")
	raw = headingCloseRe.ReplaceAllString(raw, "\n")
	raw = htmlParaRe.ReplaceAllString(raw, "\n")
	raw = htmlTagRe.ReplaceAllString(raw, "")
	raw = html.UnescapeString(raw)
	raw = blankRunRe.ReplaceAllString(raw, "\n\n")
	return strings.TrimSpace(raw)
}

// NewWowPatch watches the Wowhead news feed for patch notes and hotfixes.
func NewWowPatch(llm provider.Provider, prompts *prompt.Registry, ann *Announcer) *watch.Runner {
	src := &wowSource{feedURL: wowFeedURL, feeds: newFeedClient(wowUserAgent)}
	n := &wowNotifier{
		rest:    resty.New().SetTimeout(15 * time.Second),
		llm:     llm,
		prompts: prompts,
		ann:     ann,
	}
	return watch.NewRunner("wow-patch", src, n, state.NewMemorySeenSet())
}
