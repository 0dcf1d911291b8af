package watcher

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
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
	openaiFeedURL    = "https://openai.com/blog/rss.xml"
	googleFeedURL    = "https://blog.google/technology/ai/rss/"
	microsoftFeedURL = "https://www.microsoft.com/en-us/microsoft-365/blog/product/microsoft-365-copilot/feed/"
	anthropicNewsURL = "https://www.anthropic.com/news"
	anthropicBaseURL = "https://www.anthropic.com"

	aiNewsRole     = "AI News"
	aiNewsSeenFile = "ai_news.json"
)

// DefaultAINewsInterval is the poll interval unless config overrides it.
const DefaultAINewsInterval = 30 * time.Minute

// aiProviders maps an item's Source key to its embed branding.
var aiProviders = map[string]struct {
	name   string
	color  int
	footer string
}{
	"openai":    {"OpenAI", 0x10A37F, "OpenAI"},
	"anthropic": {"Anthropic", 0xD97757, "Anthropic"},
	"google":    {"Google AI", 0x4285F4, "Google AI"},
	"microsoft": {"Microsoft Copilot", 0x00A4EF, "Microsoft Copilot"},
}

type rssNewsSource struct {
	provider string
	feedURL  string
	feeds    *feedClient
}

func (s *rssNewsSource) Name() string { return s.provider }

func (s *rssNewsSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	feed, err := s.feeds.fetch(ctx, s.feedURL)
	if err != nil {
		return nil, err
	}
	var items []watch.Item
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}
		items = append(items, watch.Item{
			Key:    entry.Link,
			Title:  strings.TrimSpace(entry.Title),
			URL:    entry.Link,
			Body:   truncate(stripHTML(entry.Description), 1000),
			Source: s.provider,
		})
	}
	return items, nil
}

// Anthropic publishes no feed; their news index is scraped instead.
type anthropicSource struct {
	pageURL string
	baseURL string
	rest    *resty.Client
}

func newAnthropicSource() *anthropicSource {
	return &anthropicSource{
		pageURL: anthropicNewsURL,
		baseURL: anthropicBaseURL,
		rest:    resty.New().SetTimeout(15 * time.Second),
	}
}

func (s *anthropicSource) Name() string { return "anthropic" }

func (s *anthropicSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetHeader("User-Agent", browserUserAgent).
		Get(s.pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch news page: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch news page: status %s", resp.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse news page: %w", err)
	}

	var items []watch.Item
	found := make(map[string]bool)
	doc.Find(`a[href^="/news/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || href == "/news/" || found[href] {
			return
		}
		title := collapseSpace(a.Text())
		if title == "" {
			return
		}
		found[href] = true
		items = append(items, watch.Item{
			Key:    s.baseURL + href,
			Title:  title,
			URL:    s.baseURL + href,
			Source: "anthropic",
		})
	})
	return items, nil
}

var (
	verdictRe = regexp.MustCompile(`(?i)VERDICT:\s*(YES|NO)`)
	summaryRe = regexp.MustCompile(`(?is)SUMMARY:\s*(.+)`)
)

// Classification errors and NO verdicts both leave the item marked seen; an
// article gets exactly one shot at the filter.
type aiNewsNotifier struct {
	llm     provider.Provider
	prompts *prompt.Registry
	ann     *Announcer
}

func (n *aiNewsNotifier) Notify(ctx context.Context, it watch.Item) error {
	post, summary, err := n.classify(ctx, it)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if !post {
		logger.Debug("article filtered out", "watcher", "ai-news", "provider", it.Source, "title", it.Title)
		return nil
	}
	branding, ok := aiProviders[it.Source]
	if !ok {
		return fmt.Errorf("unknown provider %q", it.Source)
	}
	desc := summary
	if desc == "" {
		desc = it.Body
	}
	embed := &channel.Embed{
		Title:       truncate(it.Title, 256),
		URL:         it.URL,
		Description: truncate(desc, 4096),
		Color:       branding.color,
		Footer:      branding.footer,
	}
	return n.ann.Post(ctx, aiNewsRole, embed)
}

func (n *aiNewsNotifier) classify(ctx context.Context, it watch.Item) (bool, string, error) {
	desc := truncate(it.Body, 500)
	if desc == "" {
		desc = "(no description)"
	}
	text, err := n.prompts.Render("ai-news-filter", map[string]string{
		"title":       it.Title,
		"description": desc,
	})
	if err != nil {
		return false, "", err
	}
	resp, err := n.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.UserMessage(text)},
	})
	if err != nil {
		return false, "", err
	}
	verdict := verdictRe.FindStringSubmatch(resp.Content)
	var summary string
	if m := summaryRe.FindStringSubmatch(resp.Content); m != nil {
		summary = strings.TrimSpace(m[1])
	}
	// A reply without a parseable verdict counts as NO.
	return verdict != nil && strings.EqualFold(verdict[1], "YES"), summary, nil
}

// NewAINews watches the four AI company blogs for feature announcements.
func NewAINews(llm provider.Provider, prompts *prompt.Registry, dataDir string, ann *Announcer) *watch.Runner {
	src := watch.NewMultiSource("ai-news",
		&rssNewsSource{provider: "openai", feedURL: openaiFeedURL, feeds: newFeedClient(browserUserAgent)},
		&rssNewsSource{provider: "google", feedURL: googleFeedURL, feeds: newFeedClient(browserUserAgent)},
		&rssNewsSource{provider: "microsoft", feedURL: microsoftFeedURL, feeds: newFeedClient(browserUserAgent)},
		newAnthropicSource(),
	)
	store := state.NewSeenSet(filepath.Join(dataDir, aiNewsSeenFile))
	return watch.NewRunner("ai-news", src, &aiNewsNotifier{llm: llm, prompts: prompts, ann: ann}, store)
}
