package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/state"
)

// menuEntry is one day's cafeteria offering.
type menuEntry struct {
	Breakfast string `json:"breakfast,omitempty"`
	Lunch     string `json:"lunch,omitempty"`
}

// MenuStore persists the school menu keyed by ISO date (YYYY-MM-DD).
type MenuStore struct {
	mu   sync.Mutex
	path string
	days map[string]menuEntry
}

// NewMenuStore loads the stored menu from path. An empty path keeps it in
// memory only.
func NewMenuStore(path string) (*MenuStore, error) {
	m := &MenuStore{path: path, days: make(map[string]menuEntry)}
	if path != "" {
		if err := state.LoadJSON(path, &m.days); err != nil {
			return nil, fmt.Errorf("load lunch menu: %w", err)
		}
		if m.days == nil {
			m.days = make(map[string]menuEntry)
		}
	}
	return m, nil
}

// Get returns the entry for an ISO date.
func (m *MenuStore) Get(date string) (menuEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.days[date]
	return e, ok
}

// Merge adds entries to the store and persists.
func (m *MenuStore) Merge(entries map[string]menuEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for date, e := range entries {
		m.days[date] = e
	}
	return m.saveLocked()
}

// Clear drops all entries.
func (m *MenuStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = make(map[string]menuEntry)
	return m.saveLocked()
}

// HasMonth reports whether any entry falls in the given "YYYY-MM" month.
func (m *MenuStore) HasMonth(month string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for date := range m.days {
		if strings.HasPrefix(date, month) {
			return true
		}
	}
	return false
}

// Len returns the number of stored days.
func (m *MenuStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.days)
}

func (m *MenuStore) saveLocked() error {
	if m.path == "" {
		return nil
	}
	return state.SaveJSON(m.path, m.days)
}

// LunchMenu serves !lunch and reads menu calendar photos posted to its
// channel into the store. The nightly reminder nags for next month's menu
// near the end of each month.
type LunchMenu struct {
	store     *MenuStore
	llm       provider.Provider
	prompts   *prompt.Registry
	ch        channel.Channel
	channelID string
	loc       *time.Location
	now       func() time.Time
}

// NewLunchMenu creates the lunch feature posting reminders to channelID.
func NewLunchMenu(store *MenuStore, llm provider.Provider, prompts *prompt.Registry, ch channel.Channel, channelID string, loc *time.Location) *LunchMenu {
	return &LunchMenu{
		store:     store,
		llm:       llm,
		prompts:   prompts,
		ch:        ch,
		channelID: channelID,
		loc:       loc,
		now:       time.Now,
	}
}

// Register wires !lunch and the menu photo listener onto the router.
func (l *LunchMenu) Register(r *Router, channelID string) {
	r.Command("lunch", channelID, l.cmdLunch)
	r.Listen(channelID, l.handleUpload)
}

func (l *LunchMenu) cmdLunch(ctx context.Context, msg *channel.Message, args string) error {
	if strings.EqualFold(strings.TrimSpace(args), "clear") {
		if err := l.store.Clear(); err != nil {
			return err
		}
		return l.ch.Send(ctx, &channel.Response{
			ChannelID: msg.ChannelID, Text: "Cleared the stored menu.", ReplyTo: msg.ID,
		})
	}

	now := l.now().In(l.loc)
	target := now
	if args != "" {
		md, err := time.Parse("01-02", strings.TrimSpace(args))
		if err != nil {
			return l.ch.Send(ctx, &channel.Response{
				ChannelID: msg.ChannelID,
				Text:      "Give me a date like `!lunch 09-02`, or no date for today.",
				ReplyTo:   msg.ID,
			})
		}
		target = time.Date(now.Year(), md.Month(), md.Day(), 0, 0, 0, 0, l.loc)
	}
	date := target.Format("2006-01-02")

	entry, ok := l.store.Get(date)
	embed := &channel.Embed{Title: "🍽️ Menu for " + target.Format("Monday, January 2")}
	if !ok {
		embed.Description = "No menu found for " + date + "."
		embed.Color = colorGrey
	} else {
		embed.Color = colorGold
		if entry.Breakfast != "" {
			embed.Fields = append(embed.Fields, channel.EmbedField{Name: "Breakfast", Value: entry.Breakfast})
		}
		if entry.Lunch != "" {
			embed.Fields = append(embed.Fields, channel.EmbedField{Name: "Lunch", Value: entry.Lunch})
		}
	}
	return l.ch.Send(ctx, &channel.Response{ChannelID: msg.ChannelID, Embed: embed, ReplyTo: msg.ID})
}

// handleUpload extracts menu entries from calendar photos posted in the
// channel.
func (l *LunchMenu) handleUpload(ctx context.Context, msg *channel.Message) error {
	images := imageURLs(msg)
	if len(images) == 0 {
		return nil
	}
	if p, ok := l.ch.(channel.Poster); ok {
		p.Typing(msg.ChannelID)
	}

	month := l.now().In(l.loc).Format("January 2006")
	instructions, err := l.prompts.Render("lunch-menu-extract", map[string]string{"month": month})
	if err != nil {
		return err
	}
	resp, err := l.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.VisionMessage(instructions, images...)},
	})
	if err != nil {
		return fmt.Errorf("menu extract: %w", err)
	}

	var raw map[string]menuEntry
	if err := unmarshalReply(resp.Content, &raw); err != nil {
		return fmt.Errorf("menu extract: %w", err)
	}
	entries := make(map[string]menuEntry, len(raw))
	for date, e := range raw {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		if e.Breakfast == "" && e.Lunch == "" {
			continue
		}
		entries[date] = e
	}
	if len(entries) == 0 {
		return l.ch.Send(ctx, &channel.Response{
			ChannelID: msg.ChannelID,
			Text:      "I couldn't read any menu days out of that image.",
			ReplyTo:   msg.ID,
		})
	}
	if err := l.store.Merge(entries); err != nil {
		return err
	}

	dates := make([]string, 0, len(entries))
	for date := range entries {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Stored %d menu days (%s through %s).\n", len(dates), dates[0], dates[len(dates)-1])
	for i, date := range dates {
		if i == 5 {
			fmt.Fprintf(&sb, "… and %d more", len(dates)-5)
			break
		}
		e := entries[date]
		fmt.Fprintf(&sb, "• %s: %s\n", date, describeMenu(e))
	}
	return l.ch.Send(ctx, &channel.Response{
		ChannelID: msg.ChannelID,
		Text:      strings.TrimRight(sb.String(), "\n"),
		ReplyTo:   msg.ID,
	})
}

// RemindIfNeeded nags for next month's menu during the last week of the
// month when nothing for next month is stored yet.
func (l *LunchMenu) RemindIfNeeded(ctx context.Context) error {
	if l.channelID == "" {
		return nil
	}
	now := l.now().In(l.loc)
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, l.loc).Day()
	if now.Day() <= lastDay-7 {
		return nil
	}
	nextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, l.loc)
	if l.store.HasMonth(nextMonth.Format("2006-01")) {
		return nil
	}
	return l.ch.Send(ctx, &channel.Response{
		ChannelID: l.channelID,
		Text: fmt.Sprintf(
			"📋 %s's lunch menu isn't loaded yet. Drop a photo of it here when you get a chance!",
			nextMonth.Format("January")),
	})
}

func describeMenu(e menuEntry) string {
	switch {
	case e.Breakfast != "" && e.Lunch != "":
		return "Breakfast: " + e.Breakfast + " / Lunch: " + e.Lunch
	case e.Breakfast != "":
		return "Breakfast: " + e.Breakfast
	default:
		return "Lunch: " + e.Lunch
	}
}
