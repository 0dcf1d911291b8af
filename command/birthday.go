package command

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/state"
)

// birthdayEntry is one stored birthday or anniversary.
type birthdayEntry struct {
	Name string `json:"name"`
	Date string `json:"date"` // MM-DD
	Type string `json:"type"` // "birthday" or "anniversary"
}

// Birthdays stores family birthdays and anniversaries, serves the !birthday
// and !anniversary commands, and posts day-of and five-day-ahead embeds from
// the morning job.
type Birthdays struct {
	ch        channel.Channel
	channelID string // announcement destination
	loc       *time.Location
	now       func() time.Time

	mu      sync.Mutex
	path    string
	entries []birthdayEntry
}

// NewBirthdays loads stored entries from path. channelID is where the daily
// job announces; the commands answer wherever they are registered.
func NewBirthdays(ch channel.Channel, channelID string, loc *time.Location, path string) (*Birthdays, error) {
	b := &Birthdays{ch: ch, channelID: channelID, loc: loc, now: time.Now, path: path}
	if path != "" {
		if err := state.LoadJSON(path, &b.entries); err != nil {
			return nil, fmt.Errorf("load birthdays: %w", err)
		}
	}
	return b, nil
}

// Register wires !birthday and !anniversary onto the router.
func (b *Birthdays) Register(r *Router, channelID string) {
	r.Command("birthday", channelID, b.command("birthday"))
	r.Command("anniversary", channelID, b.command("anniversary"))
}

func (b *Birthdays) command(kind string) HandlerFunc {
	return func(ctx context.Context, msg *channel.Message, args string) error {
		sub, rest, _ := strings.Cut(args, " ")
		rest = strings.TrimSpace(rest)
		switch strings.ToLower(sub) {
		case "add":
			return b.cmdAdd(ctx, msg, kind, rest)
		case "remove":
			return b.cmdRemove(ctx, msg, kind, rest)
		case "list", "":
			return b.cmdList(ctx, msg, kind)
		default:
			return b.send(ctx, msg, fmt.Sprintf(
				"Usage: `!%s add <name> <MM-DD>`, `!%s remove <name>`, `!%s list`", kind, kind, kind))
		}
	}
}

func (b *Birthdays) cmdAdd(ctx context.Context, msg *channel.Message, kind, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return b.send(ctx, msg, fmt.Sprintf("Usage: `!%s add <name> <MM-DD>`", kind))
	}
	date := fields[len(fields)-1]
	name := strings.Join(fields[:len(fields)-1], " ")
	if _, err := time.Parse("01-02", date); err != nil {
		return b.send(ctx, msg, "Dates look like MM-DD, e.g. 03-14.")
	}

	b.mu.Lock()
	if b.findLocked(kind, name) >= 0 {
		b.mu.Unlock()
		return b.send(ctx, msg, fmt.Sprintf("%s already has a stored %s.", name, kind))
	}
	b.entries = append(b.entries, birthdayEntry{Name: name, Date: date, Type: kind})
	err := b.saveLocked()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.send(ctx, msg, fmt.Sprintf("Saved %s's %s on %s. %s", name, kind, date, kindEmoji(kind)))
}

func (b *Birthdays) cmdRemove(ctx context.Context, msg *channel.Message, kind, name string) error {
	if name == "" {
		return b.send(ctx, msg, fmt.Sprintf("Usage: `!%s remove <name>`", kind))
	}
	b.mu.Lock()
	idx := b.findLocked(kind, name)
	if idx < 0 {
		b.mu.Unlock()
		return b.send(ctx, msg, fmt.Sprintf("No stored %s for %s.", kind, name))
	}
	removed := b.entries[idx].Name
	b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	err := b.saveLocked()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.send(ctx, msg, fmt.Sprintf("Removed %s's %s.", removed, kind))
}

func (b *Birthdays) cmdList(ctx context.Context, msg *channel.Message, kind string) error {
	entries := b.ofKind(kind)
	if len(entries) == 0 {
		return b.send(ctx, msg, fmt.Sprintf("No %ss stored yet. Add one with `!%s add <name> <MM-DD>`.", kind, kind))
	}

	now := b.now().In(b.loc)
	type row struct {
		entry birthdayEntry
		days  int
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		m, d, ok := parseMonthDay(e.Date)
		if !ok {
			continue
		}
		rows = append(rows, row{entry: e, days: daysUntil(now, m, d, b.loc)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].days < rows[j].days })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **%ss**\n", kindEmoji(kind), strings.ToUpper(kind[:1])+kind[1:])
	for _, r := range rows {
		when := fmt.Sprintf("in %d days", r.days)
		switch r.days {
		case 0:
			when = "today! 🎉"
		case 1:
			when = "tomorrow"
		}
		fmt.Fprintf(&sb, "• %s: %s (%s)\n", r.entry.Name, r.entry.Date, when)
	}
	return b.send(ctx, msg, strings.TrimRight(sb.String(), "\n"))
}

// CheckToday posts a day-of embed for every entry whose date is today and a
// reminder for entries five days out. The daily job calls it each morning.
func (b *Birthdays) CheckToday(ctx context.Context) error {
	if b.channelID == "" {
		return nil
	}
	now := b.now().In(b.loc)
	today := now.Format("01-02")

	b.mu.Lock()
	entries := make([]birthdayEntry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		m, d, ok := parseMonthDay(e.Date)
		if !ok {
			continue
		}
		var embed *channel.Embed
		switch {
		case e.Date == today:
			embed = dayOfEmbed(e)
		case daysUntil(now, m, d, b.loc) == 5:
			embed = reminderEmbed(e)
		}
		if embed == nil {
			continue
		}
		err := b.ch.Send(ctx, &channel.Response{ChannelID: b.channelID, Embed: embed})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func dayOfEmbed(e birthdayEntry) *channel.Embed {
	if e.Type == "anniversary" {
		return &channel.Embed{
			Title:       fmt.Sprintf("💍 Happy Anniversary, %s!", e.Name),
			Description: fmt.Sprintf("Today is %s's anniversary. Congratulations! 🎉", e.Name),
			Color:       colorGold,
		}
	}
	return &channel.Embed{
		Title:       fmt.Sprintf("🎂 Happy Birthday, %s!", e.Name),
		Description: fmt.Sprintf("Today is %s's birthday. Have a great one! 🎉", e.Name),
		Color:       colorPink,
	}
}

func reminderEmbed(e birthdayEntry) *channel.Embed {
	return &channel.Embed{
		Title:       fmt.Sprintf("🗓️ %s's %s is in 5 days", e.Name, e.Type),
		Description: fmt.Sprintf("Coming up on %s. Time to plan something nice.", e.Date),
		Color:       colorBlue,
	}
}

// Count returns how many entries are stored, for the status report.
func (b *Birthdays) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Birthdays) ofKind(kind string) []birthdayEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []birthdayEntry
	for _, e := range b.entries {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func (b *Birthdays) findLocked(kind, name string) int {
	for i, e := range b.entries {
		if e.Type == kind && strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

func (b *Birthdays) saveLocked() error {
	if b.path == "" {
		return nil
	}
	entries := b.entries
	if entries == nil {
		entries = []birthdayEntry{}
	}
	return state.SaveJSON(b.path, entries)
}

func (b *Birthdays) send(ctx context.Context, msg *channel.Message, text string) error {
	return b.ch.Send(ctx, &channel.Response{ChannelID: msg.ChannelID, Text: text, ReplyTo: msg.ID})
}

func kindEmoji(kind string) string {
	if kind == "anniversary" {
		return "💍"
	}
	return "🎂"
}

func parseMonthDay(date string) (time.Month, int, bool) {
	t, err := time.Parse("01-02", date)
	if err != nil {
		return 0, 0, false
	}
	return t.Month(), t.Day(), true
}

// daysUntil counts whole days from now's date to the next occurrence of
// month/day, rolling into next year when the date has already passed.
// Rounding absorbs DST-shortened days.
func daysUntil(now time.Time, month time.Month, day int, loc *time.Location) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	next := time.Date(now.Year(), month, day, 0, 0, 0, 0, loc)
	if next.Before(today) {
		next = time.Date(now.Year()+1, month, day, 0, 0, 0, 0, loc)
	}
	return int(math.Round(next.Sub(today).Hours() / 24))
}
