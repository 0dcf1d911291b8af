package command

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/prompt"
)

func newTestShoppingList(t *testing.T, llm *scriptedLLM) (*ShoppingList, *fakeChannel, string) {
	t.Helper()
	ch := newFakeChannel()
	path := filepath.Join(t.TempDir(), "shopping_list.json")
	s, err := NewShoppingList(llm, prompt.NewRegistry(), ch, path)
	if err != nil {
		t.Fatalf("NewShoppingList() error: %v", err)
	}
	return s, ch, path
}

func shoppingMsg(text string) *channel.Message {
	return &channel.Message{ID: "m1", ChannelID: "shop-chan", UserID: "u1", Text: text}
}

func TestShoppingModelAddDedupsAndPersists(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{
		"```json\n{\"action\": \"add\", \"items\": [\"Bananas\", \"peppers\", \"bananas\"], \"confirmation\": \"Added 2 items\"}\n```",
	}}
	s, ch, path := newTestShoppingList(t, llm)

	if err := s.handleMessage(context.Background(), shoppingMsg("bananas and peppers please")); err != nil {
		t.Fatalf("handleMessage error: %v", err)
	}
	if got := s.Items(); !reflect.DeepEqual(got, []string{"bananas", "peppers"}) {
		t.Fatalf("Items() = %v", got)
	}
	if !strings.Contains(llm.lastPrompt(), "bananas and peppers please") {
		t.Errorf("model prompt missing user text: %q", llm.lastPrompt())
	}
	sends := ch.sends()
	if len(sends) != 1 {
		t.Fatalf("len(sends) = %d, want 1", len(sends))
	}
	if !strings.Contains(sends[0].Text, "Added 2 items") || !strings.Contains(sends[0].Text, "• bananas") {
		t.Errorf("reply = %q", sends[0].Text)
	}

	reloaded, err := NewShoppingList(llm, prompt.NewRegistry(), newFakeChannel(), path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if got := reloaded.Items(); !reflect.DeepEqual(got, []string{"bananas", "peppers"}) {
		t.Fatalf("reloaded Items() = %v", got)
	}
}

func TestShoppingModelRemoveMatchesCaseInsensitively(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{
		`{"action": "remove", "items": ["BANANAS"], "confirmation": "Removed bananas"}`,
	}}
	s, ch, _ := newTestShoppingList(t, llm)
	if err := s.add([]string{"bananas", "peppers"}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	if err := s.handleMessage(context.Background(), shoppingMsg("take bananas off")); err != nil {
		t.Fatalf("handleMessage error: %v", err)
	}
	if got := s.Items(); !reflect.DeepEqual(got, []string{"peppers"}) {
		t.Fatalf("Items() = %v", got)
	}
	if len(ch.sends()) != 1 || !strings.Contains(ch.sends()[0].Text, "Removed bananas") {
		t.Fatalf("sends = %+v", ch.sends())
	}
}

func TestShoppingModelSeesCurrentList(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{`{"action": "show", "confirmation": "Here's your list"}`}}
	s, _, _ := newTestShoppingList(t, llm)
	if err := s.add([]string{"milk"}); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if err := s.handleMessage(context.Background(), shoppingMsg("what's on the list?")); err != nil {
		t.Fatalf("handleMessage error: %v", err)
	}
	msgs := llm.lastMessages()
	if len(msgs) != 2 || !strings.Contains(msgs[0].Content, "- milk") {
		t.Fatalf("system prompt missing current list: %+v", msgs)
	}
}

func TestShoppingUnrelatedMessageStaysSilent(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{`{"action": "none", "confirmation": ""}`}}
	s, ch, _ := newTestShoppingList(t, llm)
	if err := s.handleMessage(context.Background(), shoppingMsg("nice weather today")); err != nil {
		t.Fatalf("handleMessage error: %v", err)
	}
	if len(ch.sends()) != 0 {
		t.Fatalf("len(sends) = %d, want 0", len(ch.sends()))
	}
}

func TestShoppingExplicitCommandsBypassModel(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{err: errors.New("model must not be called")}
	s, ch, _ := newTestShoppingList(t, llm)
	ctx := context.Background()

	if err := s.cmdAdd(ctx, shoppingMsg("!add"), "bananas, Milk"); err != nil {
		t.Fatalf("cmdAdd error: %v", err)
	}
	if got := s.Items(); !reflect.DeepEqual(got, []string{"bananas", "milk"}) {
		t.Fatalf("Items() = %v", got)
	}

	if err := s.cmdRemove(ctx, shoppingMsg("!remove"), "MILK"); err != nil {
		t.Fatalf("cmdRemove error: %v", err)
	}
	if got := s.Items(); !reflect.DeepEqual(got, []string{"bananas"}) {
		t.Fatalf("Items() after remove = %v", got)
	}

	if err := s.cmdList(ctx, shoppingMsg("!list"), ""); err != nil {
		t.Fatalf("cmdList error: %v", err)
	}
	if err := s.cmdClear(ctx, shoppingMsg("!clear"), ""); err != nil {
		t.Fatalf("cmdClear error: %v", err)
	}
	if got := s.Items(); len(got) != 0 {
		t.Fatalf("Items() after clear = %v", got)
	}

	sends := ch.sends()
	if len(sends) != 4 {
		t.Fatalf("len(sends) = %d, want 4", len(sends))
	}
	if !strings.Contains(sends[1].Text, "Removed milk") {
		t.Errorf("remove reply = %q", sends[1].Text)
	}
	if !strings.Contains(sends[2].Text, "• bananas") {
		t.Errorf("list reply = %q", sends[2].Text)
	}
	if !strings.Contains(sends[3].Text, "The list is empty.") {
		t.Errorf("clear reply = %q", sends[3].Text)
	}
}

func TestShoppingRemoveNothingMatched(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{}
	s, ch, _ := newTestShoppingList(t, llm)
	if err := s.cmdRemove(context.Background(), shoppingMsg("!remove"), "unicorn dust"); err != nil {
		t.Fatalf("cmdRemove error: %v", err)
	}
	if len(ch.sends()) != 1 || !strings.Contains(ch.sends()[0].Text, "None of those") {
		t.Fatalf("sends = %+v", ch.sends())
	}
}

func TestShoppingGarbledModelReplyErrors(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{"sure thing, added!"}}
	s, ch, _ := newTestShoppingList(t, llm)
	if err := s.handleMessage(context.Background(), shoppingMsg("add bananas")); err == nil {
		t.Fatal("want error for a reply with no JSON")
	}
	if len(ch.sends()) != 0 {
		t.Fatalf("len(sends) = %d, want 0", len(ch.sends()))
	}
}
