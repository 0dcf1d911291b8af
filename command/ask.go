package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
)

// searcher provides formatted web search context. *service.Tavily
// implements it.
type searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Asker answers plain messages in the ask channel. Each question runs a web
// search first; when the search succeeds its results are appended to the
// system prompt so the model can cite current sources.
type Asker struct {
	llm     provider.Provider
	search  searcher
	prompts *prompt.Registry
	ch      channel.Channel
}

// NewAsker creates the ask feature. search may be nil, which skips web
// context and answers from the model alone.
func NewAsker(llm provider.Provider, search searcher, prompts *prompt.Registry, ch channel.Channel) *Asker {
	return &Asker{llm: llm, search: search, prompts: prompts, ch: ch}
}

// Listener returns the handler to register on the ask channel.
func (a *Asker) Listener() ListenerFunc {
	return a.handle
}

func (a *Asker) handle(ctx context.Context, msg *channel.Message) error {
	question := strings.TrimSpace(msg.Text)
	if question == "" {
		return nil
	}
	if p, ok := a.ch.(channel.Poster); ok {
		p.Typing(msg.ChannelID)
	}

	system, err := a.prompts.Render("ask-system", nil)
	if err != nil {
		return err
	}
	if a.search != nil {
		results, err := a.search.Search(ctx, question)
		if err != nil {
			logger.Warn("ask search failed", "error", err)
		} else if results != "" {
			addendum, err := a.prompts.Render("ask-search-context", map[string]string{"results": results})
			if err != nil {
				return err
			}
			system += "\n\n" + addendum
		}
	}

	resp, err := a.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{
			provider.SystemMessage(system),
			provider.UserMessage(question),
		},
	})
	if err != nil {
		return fmt.Errorf("ask answer: %w", err)
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		answer = "I came up empty on that one. Try rephrasing?"
	}

	for i, part := range channel.SplitMessage(answer, channel.DiscordMaxMessageLength) {
		out := &channel.Response{ChannelID: msg.ChannelID, Text: part}
		if i == 0 {
			out.ReplyTo = msg.ID
		}
		if err := a.ch.Send(ctx, out); err != nil {
			return fmt.Errorf("ask reply: %w", err)
		}
	}
	return nil
}
