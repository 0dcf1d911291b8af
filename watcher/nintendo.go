package watcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/service"
	"github.com/linanwx/milo/state"
	"github.com/linanwx/milo/watch"
)

const (
	nintendoSubreddits = "NintendoSwitch+nintendo"
	nintendoKeyword    = "nintendo direct"
	nintendoMinScore   = 500
	nintendoFetchLimit = 50

	nintendoRole   = "Nintendo Direct"
	nintendoFooter = "r/NintendoSwitch + r/nintendo"
	nintendoColor  = 0xE60012
)

// DefaultNintendoInterval is the poll interval unless config overrides it.
const DefaultNintendoInterval = 5 * time.Minute

// redditAPI is the slice of service.Reddit the watcher needs.
type redditAPI interface {
	Hot(ctx context.Context, subreddits string, limit int) ([]service.RedditPost, error)
}

// Hot posts mentioning a Direct pile up fast, so the score threshold keeps
// rumor threads out before the LLM ever sees them.
type nintendoSource struct {
	reddit   redditAPI
	minScore int
}

func (s *nintendoSource) Name() string { return "nintendo" }

func (s *nintendoSource) Fetch(ctx context.Context) ([]watch.Item, error) {
	posts, err := s.reddit.Hot(ctx, nintendoSubreddits, nintendoFetchLimit)
	if err != nil {
		return nil, err
	}
	var items []watch.Item
	for _, p := range posts {
		if p.Score < s.minScore || !strings.Contains(strings.ToLower(p.Title), nintendoKeyword) {
			continue
		}
		items = append(items, watch.Item{
			Key:    p.ID,
			Title:  p.Title,
			URL:    p.URL(),
			Body:   p.SelfText,
			Source: p.Subreddit,
			Fields: map[string]string{
				"score":    strconv.Itoa(p.Score),
				"comments": strconv.Itoa(p.NumComments),
			},
		})
	}
	return items, nil
}

type nintendoNotifier struct {
	llm     provider.Provider
	prompts *prompt.Registry
	ann     *Announcer
}

func (n *nintendoNotifier) Notify(ctx context.Context, it watch.Item) error {
	verified, err := n.verify(ctx, it)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !verified {
		logger.Info("post failed verification", "watcher", "nintendo", "title", it.Title)
		return nil
	}
	embed := &channel.Embed{
		Title:  truncate(it.Title, 256),
		URL:    it.URL,
		Color:  nintendoColor,
		Footer: nintendoFooter,
		Fields: []channel.EmbedField{
			{Name: "Subreddit", Value: "r/" + it.Source, Inline: true},
			{Name: "Score", Value: it.Fields["score"], Inline: true},
			{Name: "Comments", Value: it.Fields["comments"], Inline: true},
		},
	}
	return n.ann.Post(ctx, nintendoRole, embed)
}

// verify asks the model whether the post announces an actual Direct rather
// than speculation or a reaction thread.
func (n *nintendoNotifier) verify(ctx context.Context, it watch.Item) (bool, error) {
	text, err := n.prompts.Render("nintendo-verify", map[string]string{
		"title":     it.Title,
		"subreddit": it.Source,
		"body":      truncate(it.Body, 2000),
	})
	if err != nil {
		return false, err
	}
	resp, err := n.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.UserMessage(text)},
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(resp.Content), "YES"), nil
}

// NewNintendo watches the Nintendo subreddits for Direct announcements.
func NewNintendo(reddit *service.Reddit, llm provider.Provider, prompts *prompt.Registry, ann *Announcer) *watch.Runner {
	src := &nintendoSource{reddit: reddit, minScore: nintendoMinScore}
	n := &nintendoNotifier{llm: llm, prompts: prompts, ann: ann}
	return watch.NewRunner("nintendo", src, n, state.NewMemorySeenSet())
}
