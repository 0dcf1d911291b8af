package command

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/state"
)

// shoppingAction is the JSON shape the model returns for a shopping message.
type shoppingAction struct {
	Action       string   `json:"action"`
	Items        []string `json:"items"`
	Confirmation string   `json:"confirmation"`
}

// ShoppingList keeps the family shopping list. Natural-language messages in
// the shopping channel are turned into add/remove/show/clear actions by the
// model; the explicit !add, !remove, !list and !clear commands skip it. The
// list persists across restarts.
type ShoppingList struct {
	llm     provider.Provider
	prompts *prompt.Registry
	ch      channel.Channel

	mu    sync.Mutex
	path  string
	items []string
}

// NewShoppingList loads the list from path. An empty path keeps the list in
// memory only.
func NewShoppingList(llm provider.Provider, prompts *prompt.Registry, ch channel.Channel, path string) (*ShoppingList, error) {
	s := &ShoppingList{llm: llm, prompts: prompts, ch: ch, path: path}
	if path != "" {
		if err := state.LoadJSON(path, &s.items); err != nil {
			return nil, fmt.Errorf("load shopping list: %w", err)
		}
	}
	return s, nil
}

// Listener returns the natural-language handler for the shopping channel.
func (s *ShoppingList) Listener() ListenerFunc {
	return s.handleMessage
}

// Register wires the explicit commands and the listener onto the router.
func (s *ShoppingList) Register(r *Router, channelID string) {
	r.Listen(channelID, s.Listener())
	r.Command("add", channelID, s.cmdAdd)
	r.Command("remove", channelID, s.cmdRemove)
	r.Command("list", channelID, s.cmdList)
	r.Command("clear", channelID, s.cmdClear)
}

func (s *ShoppingList) handleMessage(ctx context.Context, msg *channel.Message) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	system, err := s.prompts.Render("shopping-actions", map[string]string{
		"current_list": s.promptList(),
	})
	if err != nil {
		return err
	}
	resp, err := s.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{
			provider.SystemMessage(system),
			provider.UserMessage(text),
		},
	})
	if err != nil {
		return fmt.Errorf("shopping parse: %w", err)
	}

	var action shoppingAction
	if err := unmarshalReply(resp.Content, &action); err != nil {
		return fmt.Errorf("shopping parse: %w", err)
	}

	switch action.Action {
	case "add":
		if err := s.add(action.Items); err != nil {
			return err
		}
	case "remove":
		if _, err := s.remove(action.Items); err != nil {
			return err
		}
	case "clear":
		if err := s.clear(); err != nil {
			return err
		}
	case "show":
		// nothing to change
	default:
		// "none" or anything unrecognized: not a shopping message
		return nil
	}

	reply := action.Confirmation
	if reply == "" {
		reply = "Done."
	}
	return s.reply(ctx, msg, reply)
}

func (s *ShoppingList) cmdAdd(ctx context.Context, msg *channel.Message, args string) error {
	items := splitItems(args)
	if len(items) == 0 {
		return s.reply(ctx, msg, "Tell me what to add, like `!add bananas, milk`.")
	}
	if err := s.add(items); err != nil {
		return err
	}
	return s.reply(ctx, msg, fmt.Sprintf("Added %s.", joinNatural(items)))
}

func (s *ShoppingList) cmdRemove(ctx context.Context, msg *channel.Message, args string) error {
	items := splitItems(args)
	if len(items) == 0 {
		return s.reply(ctx, msg, "Tell me what to remove, like `!remove bananas`.")
	}
	removed, err := s.remove(items)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return s.reply(ctx, msg, "None of those were on the list.")
	}
	return s.reply(ctx, msg, fmt.Sprintf("Removed %s.", joinNatural(removed)))
}

func (s *ShoppingList) cmdList(ctx context.Context, msg *channel.Message, _ string) error {
	return s.reply(ctx, msg, "")
}

func (s *ShoppingList) cmdClear(ctx context.Context, msg *channel.Message, _ string) error {
	if err := s.clear(); err != nil {
		return err
	}
	return s.reply(ctx, msg, "Cleared the shopping list.")
}

// reply sends note (when non-empty) followed by the current list.
func (s *ShoppingList) reply(ctx context.Context, msg *channel.Message, note string) error {
	text := s.listText()
	if note != "" {
		text = note + "\n\n" + text
	}
	return s.ch.Send(ctx, &channel.Response{
		ChannelID: msg.ChannelID,
		Text:      text,
		ReplyTo:   msg.ID,
	})
}

// add appends items that are not already present, comparing
// case-insensitively, and persists.
func (s *ShoppingList) add(items []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || s.containsLocked(item) {
			continue
		}
		s.items = append(s.items, item)
	}
	return s.saveLocked()
}

// remove deletes case-insensitive matches and returns what actually came
// off the list.
func (s *ShoppingList) remove(items []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		kept := s.items[:0]
		for _, existing := range s.items {
			if strings.EqualFold(existing, item) {
				removed = append(removed, existing)
				continue
			}
			kept = append(kept, existing)
		}
		s.items = kept
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return removed, s.saveLocked()
}

func (s *ShoppingList) clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return s.saveLocked()
}

// Items returns a copy of the current list.
func (s *ShoppingList) Items() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

func (s *ShoppingList) containsLocked(item string) bool {
	for _, existing := range s.items {
		if strings.EqualFold(existing, item) {
			return true
		}
	}
	return false
}

func (s *ShoppingList) saveLocked() error {
	if s.path == "" {
		return nil
	}
	items := s.items
	if items == nil {
		items = []string{}
	}
	return state.SaveJSON(s.path, items)
}

func (s *ShoppingList) listText() string {
	items := s.Items()
	if len(items) == 0 {
		return "The list is empty."
	}
	var b strings.Builder
	b.WriteString("🛒 **Shopping List**\n")
	for _, item := range items {
		b.WriteString("• ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// promptList renders the list for the {current_list} placeholder.
func (s *ShoppingList) promptList() string {
	items := s.Items()
	if len(items) == 0 {
		return "(empty)"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

// splitItems breaks a comma-separated command argument into items.
func splitItems(args string) []string {
	var items []string
	for _, part := range strings.Split(args, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

// joinNatural renders ["a","b","c"] as "a, b and c" for confirmations.
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
