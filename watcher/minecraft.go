package watcher

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	minecraftArticlesURL = "https://www.minecraft.net/en-us/articles"
	minecraftBaseURL     = "https://www.minecraft.net"
	minecraftArticlePath = "/en-us/article/"

	minecraftRole     = "Minecraft News"
	minecraftFooter   = "Minecraft.net"
	minecraftThumb    = "https://www.minecraft.net/etc.clientlibs/minecraft/clientlibs/main/resources/favicon-96x96.png"
	minecraftSeenFile = "minecraft_news.json"
)

// DefaultMinecraftInterval is the poll interval unless config overrides it.
const DefaultMinecraftInterval = 30 * time.Minute

var (
	minecraftUpdateKeywords = []string{
		"snapshot", "preview", "release", "patch", "update",
		"hotfix", "pre-release", "beta", "changelog",
	}
	minecraftExcludeKeywords = []string{
		"marketplace", "sale", "rewards", "community",
		"spotlight", "creator", "realms plus",
	}
	minecraftVersionRe = regexp.MustCompile(`minecraft\s+\d+\.\d+`)
)

// isGameUpdate reports whether an article title announces a game version
// update. Exclusions veto first: "Marketplace update" is not a patch.
func isGameUpdate(title string) bool {
	lower := strings.ToLower(title)
	if containsAny(lower, minecraftExcludeKeywords) {
		return false
	}
	return containsAny(lower, minecraftUpdateKeywords) || minecraftVersionRe.MatchString(lower)
}

// The article hub has no feed, so this scrapes every /en-us/article/ anchor.
// All articles are part of the feed identity (seeding covers the whole
// page); the notifier applies the game-update filter.
type minecraftSource struct {
	pageURL string
	baseURL string
	rest    *resty.Client
}

func newMinecraftSource() *minecraftSource {
	return &minecraftSource{
		pageURL: minecraftArticlesURL,
		baseURL: minecraftBaseURL,
		rest:    resty.New().SetTimeout(15 * time.Second),
	}
}

func (s *minecraftSource) Name() string { return "minecraft" }

func (s *minecraftSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetHeader("User-Agent", browserUserAgent).
		Get(s.pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch articles: status %s", resp.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse articles: %w", err)
	}

	var items []watch.Item
	found := make(map[string]bool)
	doc.Find(`a[href*="` + minecraftArticlePath + `"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		idx := strings.Index(href, minecraftArticlePath)
		if idx < 0 {
			return
		}
		href = href[idx:]
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			href = href[:i]
		}
		slug := strings.Trim(strings.TrimPrefix(href, minecraftArticlePath), "/")
		if slug == "" || found[href] {
			return
		}
		found[href] = true
		items = append(items, watch.Item{
			Key:   s.baseURL + href,
			Title: articleTitle(a, slug),
			URL:   s.baseURL + href,
		})
	})
	return items, nil
}

// articleTitle prefers a heading or title-classed element inside the
// anchor, then the anchor text, then the slug itself Title-Cased.
func articleTitle(a *goquery.Selection, slug string) string {
	title := collapseSpace(a.Find(`h1, h2, h3, [class*="title"]`).First().Text())
	if title == "" {
		title = collapseSpace(a.Text())
	}
	if title == "" {
		title = slugTitle(slug)
	}
	return title
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func slugTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return collapseSpace(strings.Join(words, " "))
}

type minecraftNotifier struct {
	ann *Announcer
}

func (n *minecraftNotifier) Notify(ctx context.Context, it watch.Item) error {
	if !isGameUpdate(it.Title) {
		return nil
	}
	embed := &channel.Embed{
		Title:     truncate(it.Title, 256),
		URL:       it.URL,
		Color:     colorGreen,
		Footer:    minecraftFooter,
		Thumbnail: minecraftThumb,
	}
	return n.ann.Post(ctx, minecraftRole, embed)
}

// NewMinecraft watches minecraft.net for game update articles.
func NewMinecraft(dataDir string, ann *Announcer) *watch.Runner {
	store := state.NewSeenSet(filepath.Join(dataDir, minecraftSeenFile))
	return watch.NewRunner("minecraft", newMinecraftSource(), &minecraftNotifier{ann: ann}, store)
}
