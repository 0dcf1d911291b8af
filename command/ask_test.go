package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/prompt"
)

type fakeSearcher struct {
	mu      sync.Mutex
	result  string
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func TestAskerAnswersWithSearchContext(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	llm := &scriptedLLM{replies: []string{"Go 1.24 shipped in February."}}
	search := &fakeSearcher{result: "Summary: Go 1.24 released.\n- Go blog: release notes (https://go.dev/blog)"}
	asker := NewAsker(llm, search, prompt.NewRegistry(), ch)

	msg := &channel.Message{ID: "m1", ChannelID: "ask-chan", UserID: "u1", Text: "when did Go 1.24 ship?"}
	if err := asker.Listener()(context.Background(), msg); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	if len(search.queries) != 1 || search.queries[0] != "when did Go 1.24 ship?" {
		t.Errorf("search queries = %v", search.queries)
	}
	msgs := llm.lastMessages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want system + user", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "You are Milo") {
		t.Errorf("system prompt missing persona: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Go 1.24 released.") {
		t.Errorf("system prompt missing search results: %q", msgs[0].Content)
	}
	sends := ch.sends()
	if len(sends) != 1 {
		t.Fatalf("len(sends) = %d, want 1", len(sends))
	}
	if sends[0].Text != "Go 1.24 shipped in February." {
		t.Errorf("reply = %q", sends[0].Text)
	}
	if sends[0].ReplyTo != "m1" {
		t.Errorf("ReplyTo = %q, want m1", sends[0].ReplyTo)
	}
}

func TestAskerAnswersWhenSearchFails(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	llm := &scriptedLLM{replies: []string{"Probably."}}
	search := &fakeSearcher{err: errors.New("tavily down")}
	asker := NewAsker(llm, search, prompt.NewRegistry(), ch)

	msg := &channel.Message{ID: "m1", ChannelID: "ask-chan", UserID: "u1", Text: "is water wet?"}
	if err := asker.Listener()(context.Background(), msg); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	msgs := llm.lastMessages()
	if strings.Contains(msgs[0].Content, "search results") {
		t.Errorf("system prompt should not carry the search addendum: %q", msgs[0].Content)
	}
	if len(ch.sends()) != 1 {
		t.Fatalf("len(sends) = %d, want 1", len(ch.sends()))
	}
}

func TestAskerSplitsLongAnswers(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	long := strings.TrimSpace(strings.Repeat("a line of the answer\n", 150))
	llm := &scriptedLLM{replies: []string{long}}
	asker := NewAsker(llm, nil, prompt.NewRegistry(), ch)

	msg := &channel.Message{ID: "m1", ChannelID: "ask-chan", UserID: "u1", Text: "tell me everything"}
	if err := asker.Listener()(context.Background(), msg); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	sends := ch.sends()
	if len(sends) < 2 {
		t.Fatalf("len(sends) = %d, want the answer split across messages", len(sends))
	}
	for i, s := range sends {
		if len([]rune(s.Text)) > channel.DiscordMaxMessageLength {
			t.Errorf("chunk %d is %d runes, over the limit", i, len([]rune(s.Text)))
		}
	}
	if sends[0].ReplyTo != "m1" {
		t.Errorf("first chunk ReplyTo = %q, want m1", sends[0].ReplyTo)
	}
	if sends[1].ReplyTo != "" {
		t.Errorf("continuation chunk should not re-reply, got %q", sends[1].ReplyTo)
	}
}

func TestAskerPropagatesModelError(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	llm := &scriptedLLM{err: errors.New("model offline")}
	asker := NewAsker(llm, nil, prompt.NewRegistry(), ch)

	msg := &channel.Message{ID: "m1", ChannelID: "ask-chan", UserID: "u1", Text: "hello?"}
	if err := asker.Listener()(context.Background(), msg); err == nil {
		t.Fatal("want error when the model is down")
	}
	if len(ch.sends()) != 0 {
		t.Fatalf("len(sends) = %d, want 0", len(ch.sends()))
	}
}

func TestAskerIgnoresEmptyMessages(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	llm := &scriptedLLM{replies: []string{"unused"}}
	asker := NewAsker(llm, nil, prompt.NewRegistry(), ch)

	msg := &channel.Message{ID: "m1", ChannelID: "ask-chan", UserID: "u1", Text: "   "}
	if err := asker.Listener()(context.Background(), msg); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if len(ch.sends()) != 0 {
		t.Fatalf("len(sends) = %d, want 0", len(ch.sends()))
	}
	if llm.lastPrompt() != "" {
		t.Errorf("model called for empty message: %q", llm.lastPrompt())
	}
}
