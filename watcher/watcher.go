// Package watcher implements the feed watchers. Each watcher pairs a
// watch.Source (what is currently on the feed) with a watch.Notifier (how a
// new item is announced) and exposes a constructor returning a ready
// *watch.Runner. The scheduler polls the runners; everything here is
// side-effect free until a runner calls it.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
)

// Embed accent colors shared across watchers.
const (
	colorGreen     = 0x2ECC71
	colorBlue      = 0x3498DB
	colorOrange    = 0xE67E22
	colorRed       = 0xE74C3C
	colorLightGrey = 0x979C9F
)

// browserUserAgent is sent on scrape fetches; some sites serve bots an
// empty shell.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Token budgets applied to scraped content before summarize calls.
const (
	patchNotesTokenCap = 1500
	transcriptTokenCap = 3000
)

// RoleMentioner resolves a notification role name to a mention string such
// as "<@&123>". An unknown role resolves to "".
type RoleMentioner interface {
	Mention(roleName string) string
}

// RoleMentionerFunc adapts a function to the RoleMentioner interface.
type RoleMentionerFunc func(roleName string) string

// Mention implements RoleMentioner.
func (f RoleMentionerFunc) Mention(roleName string) string { return f(roleName) }

// Announcer posts watcher embeds to one fixed channel, prefixing the
// message with a role mention when the named role exists.
type Announcer struct {
	ch        channel.Channel
	channelID string
	roles     RoleMentioner
}

// NewAnnouncer binds a channel destination for a watcher. roles may be nil
// when no subscription roles are configured.
func NewAnnouncer(ch channel.Channel, channelID string, roles RoleMentioner) *Announcer {
	return &Announcer{ch: ch, channelID: channelID, roles: roles}
}

// Post sends an embed, mentioning roleName if it resolves.
func (a *Announcer) Post(ctx context.Context, roleName string, embed *channel.Embed) error {
	if a == nil || a.ch == nil || a.channelID == "" {
		return errors.New("announce channel not configured")
	}
	var text string
	if roleName != "" && a.roles != nil {
		text = a.roles.Mention(roleName)
	}
	return a.ch.Send(ctx, &channel.Response{ChannelID: a.channelID, Text: text, Embed: embed})
}

// feedClient fetches an RSS/Atom feed with a fixed User-Agent and parses it
// with gofeed. Each source owns its own client; gofeed parsers are not
// shared across goroutines.
type feedClient struct {
	rest      *resty.Client
	parser    *gofeed.Parser
	userAgent string
}

func newFeedClient(userAgent string) *feedClient {
	return &feedClient{
		rest:      resty.New().SetTimeout(15 * time.Second),
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
	}
}

func (f *feedClient) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req := f.rest.R().SetContext(ctx)
	if f.userAgent != "" {
		req.SetHeader("User-Agent", f.userAgent)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch feed: status %s", resp.Status())
	}
	feed, err := f.parser.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// summarize renders a prompt template around token-capped content and asks
// the provider for a summary.
func summarize(ctx context.Context, llm provider.Provider, prompts *prompt.Registry, template, content string, tokenCap int) (string, error) {
	text, err := prompts.Render(template, map[string]string{
		"content": provider.TruncateTokens(content, tokenCap),
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", template, err)
	}
	resp, err := llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.UserMessage(text)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlBreakRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlParaRe    = regexp.MustCompile(`(?i)</p>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces feed description markup to plain text: breaks and
// paragraph ends become newlines, every other tag is dropped, entities are
// decoded, and runs of blank lines collapse.
func stripHTML(s string) string {
	s = htmlCommentRe.ReplaceAllString(s, "")
	s = htmlBreakRe.ReplaceAllString(s, "\n")
	s = htmlParaRe.ReplaceAllString(s, "\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate caps s at max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// containsAny reports whether s contains any of the substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
