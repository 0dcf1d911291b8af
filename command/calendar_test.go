package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/service"
)

type fakeGCal struct {
	mu      sync.Mutex
	created []*service.EventInput
	link    string
	err     error
}

func (f *fakeGCal) CreateEvent(_ context.Context, in *service.EventInput) (*service.CreatedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &service.CreatedEvent{ID: "evt-1", HTMLLink: f.link}, nil
}

func (f *fakeGCal) events() []*service.EventInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*service.EventInput(nil), f.created...)
}

const soccerReply = "```json\n" +
	`{"title":"Soccer practice","start_date":"2026-08-29","start_time":"09:30","end_date":null,"end_time":null,"location":null,"description":null}` +
	"\n```"

func newTestCalendar(t *testing.T, llm *scriptedLLM, search searcher) (*CalendarInvites, *fakeGCal, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	gcal := &fakeGCal{link: "https://cal.example/evt"}
	c := NewCalendarInvites(gcal, llm, search, prompt.NewRegistry(), ch, time.UTC)
	c.now = func() time.Time { return time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC) }
	return c, gcal, ch
}

func eventMsg(id, text string) *channel.Message {
	return &channel.Message{ID: id, ChannelID: "events-chan", UserID: "u1", Username: "dad", Text: text}
}

func TestCalendarExtractsTextEvent(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{soccerReply}}
	c, _, ch := newTestCalendar(t, llm, nil)

	if err := c.Listener()(context.Background(), eventMsg("m1", "soccer practice saturday at 9:30")); err != nil {
		t.Fatalf("listener error: %v", err)
	}

	posts := ch.posts()
	if len(posts) != 1 || posts[0].Embed == nil {
		t.Fatalf("posts = %+v", posts)
	}
	embed := posts[0].Embed
	if embed.Title != "📅 Soccer practice" {
		t.Errorf("Title = %q", embed.Title)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Name != "When" {
		t.Fatalf("Fields = %+v", embed.Fields)
	}
	if embed.Fields[0].Value != "Saturday, August 29, 2026 · 9:30 AM" {
		t.Errorf("When = %q", embed.Fields[0].Value)
	}

	wantReactions := []string{
		"events-chan/msg-1/✅", "events-chan/msg-1/✏️", "events-chan/msg-1/❌",
	}
	got := ch.reactions()
	if len(got) != len(wantReactions) {
		t.Fatalf("reactions = %v", got)
	}
	for i, want := range wantReactions {
		if got[i] != want {
			t.Errorf("reactions[%d] = %q, want %q", i, got[i], want)
		}
	}

	msgs := llm.lastMessages()
	if len(msgs) != 2 || msgs[0].Role != "system" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "Current date/time: Tuesday, August 25, 2026 6:00 PM UTC") {
		t.Errorf("system prompt missing resolved now: %q", msgs[0].Content)
	}
}

func TestCalendarStaysQuietOnChitchat(t *testing.T) {
	t.Parallel()
	for _, reply := range []string{"null", "sounds fun, see you there!"} {
		llm := &scriptedLLM{replies: []string{reply}}
		c, _, ch := newTestCalendar(t, llm, nil)
		if err := c.Listener()(context.Background(), eventMsg("m1", "haha nice one")); err != nil {
			t.Fatalf("listener error for %q: %v", reply, err)
		}
		if len(ch.posts()) != 0 {
			t.Errorf("reply %q produced posts %+v", reply, ch.posts())
		}
	}

	// Empty messages never reach the model.
	llm := &scriptedLLM{err: errors.New("should not be called")}
	c, _, ch := newTestCalendar(t, llm, nil)
	if err := c.Listener()(context.Background(), eventMsg("m1", "   ")); err != nil {
		t.Fatalf("listener error: %v", err)
	}
	if len(ch.posts()) != 0 {
		t.Errorf("posts = %+v", ch.posts())
	}
}

func TestCalendarConfirmCreatesEvent(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{soccerReply}}
	c, gcal, ch := newTestCalendar(t, llm, nil)
	ctx := context.Background()

	if err := c.Listener()(ctx, eventMsg("m1", "soccer saturday 9:30")); err != nil {
		t.Fatalf("listener error: %v", err)
	}

	// Someone else's checkmark must not create anything.
	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "intruder", Emoji: "✅", Added: true})
	if len(gcal.events()) != 0 {
		t.Fatalf("created = %+v after stranger reaction", gcal.events())
	}

	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "u1", Emoji: "✅", Added: true})
	created := gcal.events()
	if len(created) != 1 || created[0].Title != "Soccer practice" || created[0].StartTime != "09:30" {
		t.Fatalf("created = %+v", created)
	}
	posts := ch.posts()
	notice := posts[len(posts)-1].Text
	if !strings.Contains(notice, "Added **Soccer practice** to the calendar!") {
		t.Errorf("notice = %q", notice)
	}
	if !strings.Contains(notice, "https://cal.example/evt") {
		t.Errorf("notice missing link: %q", notice)
	}

	// The session was consumed.
	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "u1", Emoji: "✅", Added: true})
	if len(gcal.events()) != 1 {
		t.Fatalf("created = %+v after repeat confirm", gcal.events())
	}
}

func TestCalendarCancel(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{soccerReply}}
	c, gcal, ch := newTestCalendar(t, llm, nil)
	ctx := context.Background()

	if err := c.Listener()(ctx, eventMsg("m1", "soccer saturday 9:30")); err != nil {
		t.Fatalf("listener error: %v", err)
	}
	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "u1", Emoji: "❌", Added: true})

	posts := ch.posts()
	if len(posts) != 2 || !strings.Contains(posts[1].Text, "cancelled") {
		t.Fatalf("posts = %+v", posts)
	}
	if len(gcal.events()) != 0 {
		t.Fatalf("created = %+v", gcal.events())
	}
}

func TestCalendarEditFlow(t *testing.T) {
	t.Parallel()
	corrected := "```json\n" +
		`{"title":"Soccer practice","start_date":"2026-08-29","start_time":"10:00","end_date":null,"end_time":null,"location":null,"description":null}` +
		"\n```"
	llm := &scriptedLLM{replies: []string{soccerReply, corrected}}
	c, gcal, ch := newTestCalendar(t, llm, nil)
	ctx := context.Background()

	if err := c.Listener()(ctx, eventMsg("m1", "soccer saturday 9:30")); err != nil {
		t.Fatalf("listener error: %v", err)
	}
	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "u1", Emoji: "✏️", Added: true})

	posts := ch.posts()
	if len(posts) != 2 || !strings.Contains(posts[1].Text, "What should I change") {
		t.Fatalf("posts = %+v", posts)
	}

	if err := c.Listener()(ctx, eventMsg("m2", "make it 10am")); err != nil {
		t.Fatalf("correction error: %v", err)
	}
	msgs := llm.lastMessages()
	ask := msgs[len(msgs)-1].Content
	if !strings.Contains(ask, "Apply this correction") || !strings.Contains(ask, `"start_time":"09:30"`) {
		t.Errorf("correction prompt = %q", ask)
	}

	posts = ch.posts()
	if len(posts) != 3 || posts[2].Embed == nil {
		t.Fatalf("posts = %+v", posts)
	}
	if got := posts[2].Embed.Fields[0].Value; !strings.Contains(got, "10:00 AM") {
		t.Errorf("updated When = %q", got)
	}

	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-3", ChannelID: "events-chan", UserID: "u1", Emoji: "✅", Added: true})
	created := gcal.events()
	if len(created) != 1 || created[0].StartTime != "10:00" {
		t.Fatalf("created = %+v", created)
	}
}

func TestCalendarICSAttachment(t *testing.T) {
	t.Parallel()
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:Dentist Appointment",
		"DTSTART:20260910T143000",
		"DTEND:20260910T153000",
		`LOCATION:12 Elm St\, Springfield`,
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	llm := &scriptedLLM{err: errors.New("model must stay out of ics parsing")}
	c, gcal, ch := newTestCalendar(t, llm, nil)
	c.fetch = func(context.Context, string) ([]byte, error) { return []byte(ics), nil }
	ctx := context.Background()

	msg := eventMsg("m1", "")
	msg.Attachments = []channel.Attachment{{URL: "https://cdn.example/invite.ics", Filename: "invite.ics", ContentType: "text/calendar"}}
	if err := c.Listener()(ctx, msg); err != nil {
		t.Fatalf("listener error: %v", err)
	}

	posts := ch.posts()
	if len(posts) != 1 || posts[0].Embed == nil {
		t.Fatalf("posts = %+v", posts)
	}
	embed := posts[0].Embed
	if embed.Title != "📅 Dentist Appointment" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Fields[0].Value != "Thursday, September 10, 2026 · 2:30 PM to 3:30 PM" {
		t.Errorf("When = %q", embed.Fields[0].Value)
	}
	if len(embed.Fields) != 2 || embed.Fields[1].Value != "12 Elm St, Springfield" {
		t.Fatalf("Fields = %+v", embed.Fields)
	}

	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "u1", Emoji: "✅", Added: true})
	created := gcal.events()
	if len(created) != 1 || created[0].StartDate != "2026-09-10" || created[0].StartTime != "14:30" {
		t.Fatalf("created = %+v", created)
	}
}

func TestCalendarICSUnreadable(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{}
	c, _, ch := newTestCalendar(t, llm, nil)
	c.fetch = func(context.Context, string) ([]byte, error) { return []byte("not a calendar"), nil }

	msg := eventMsg("m1", "")
	msg.Attachments = []channel.Attachment{{URL: "https://cdn.example/x.ics", Filename: "x.ics"}}
	if err := c.Listener()(context.Background(), msg); err != nil {
		t.Fatalf("listener error: %v", err)
	}
	posts := ch.posts()
	if len(posts) != 1 || !strings.Contains(posts[0].Text, "couldn't read that calendar file") {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestCalendarImageExtraction(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{soccerReply}}
	c, _, ch := newTestCalendar(t, llm, nil)

	msg := eventMsg("m1", "")
	msg.Attachments = []channel.Attachment{{URL: "https://cdn.example/flyer.png", ContentType: "image/png"}}
	if err := c.Listener()(context.Background(), msg); err != nil {
		t.Fatalf("listener error: %v", err)
	}

	msgs := llm.lastMessages()
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("messages = %+v", msgs)
	}
	if len(msgs[0].Images) != 1 || msgs[0].Images[0] != "https://cdn.example/flyer.png" {
		t.Errorf("Images = %v", msgs[0].Images)
	}
	if !strings.Contains(msgs[0].Content, "Current date/time:") {
		t.Errorf("vision prompt = %q", msgs[0].Content)
	}
	if len(ch.posts()) != 1 || ch.posts()[0].Embed == nil {
		t.Fatalf("posts = %+v", ch.posts())
	}
}

func TestCalendarLocationEnrichment(t *testing.T) {
	t.Parallel()
	extract := `{"title":"Team dinner","start_date":"2026-08-28","start_time":"18:30","end_date":null,"end_time":null,"location":"Pizza Palace","description":null}`
	enrich := "```json\n" +
		`{"name":"Pizza Palace","address":"123 Main St, Springfield, VA 22150","maps_query":"Pizza Palace 123 Main St Springfield"}` +
		"\n```"
	llm := &scriptedLLM{replies: []string{extract, enrich}}
	search := &fakeSearcher{result: "Pizza Palace, a family pizzeria at 123 Main St, Springfield VA."}
	c, _, ch := newTestCalendar(t, llm, search)

	if err := c.Listener()(context.Background(), eventMsg("m1", "team dinner friday 6:30 at pizza palace")); err != nil {
		t.Fatalf("listener error: %v", err)
	}

	search.mu.Lock()
	queries := append([]string(nil), search.queries...)
	search.mu.Unlock()
	if len(queries) != 1 || queries[0] != "Pizza Palace" {
		t.Fatalf("queries = %v", queries)
	}

	embed := ch.posts()[0].Embed
	if len(embed.Fields) != 3 {
		t.Fatalf("Fields = %+v", embed.Fields)
	}
	if embed.Fields[1].Value != "Pizza Palace, 123 Main St, Springfield, VA 22150" {
		t.Errorf("Where = %q", embed.Fields[1].Value)
	}
	if !strings.Contains(embed.Fields[2].Value, "Map: https://www.google.com/maps/search/?api=1&query=Pizza+Palace+123+Main+St+Springfield") {
		t.Errorf("Details = %q", embed.Fields[2].Value)
	}
}

func TestCalendarEnrichmentNullKeepsLocation(t *testing.T) {
	t.Parallel()
	extract := `{"title":"Team dinner","start_date":"2026-08-28","start_time":"18:30","location":"Pizza Palace"}`
	llm := &scriptedLLM{replies: []string{extract, "null"}}
	search := &fakeSearcher{result: "nothing useful"}
	c, _, ch := newTestCalendar(t, llm, search)

	if err := c.Listener()(context.Background(), eventMsg("m1", "dinner friday")); err != nil {
		t.Fatalf("listener error: %v", err)
	}
	embed := ch.posts()[0].Embed
	if len(embed.Fields) != 2 || embed.Fields[1].Value != "Pizza Palace" {
		t.Fatalf("Fields = %+v", embed.Fields)
	}
}

func TestCalendarSessionExpires(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{replies: []string{soccerReply}}
	c, gcal, ch := newTestCalendar(t, llm, nil)
	current := time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	ctx := context.Background()

	if err := c.Listener()(ctx, eventMsg("m1", "soccer saturday 9:30")); err != nil {
		t.Fatalf("listener error: %v", err)
	}
	mu.Lock()
	current = current.Add(11 * time.Minute)
	mu.Unlock()

	c.Reactor()(ctx, &channel.Reaction{MessageID: "msg-1", ChannelID: "events-chan", UserID: "u1", Emoji: "✅", Added: true})
	if len(gcal.events()) != 0 {
		t.Fatalf("created = %+v after expiry", gcal.events())
	}
	if len(ch.posts()) != 1 {
		t.Fatalf("posts = %+v", ch.posts())
	}
}

func TestParseExtractedEvent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		reply   string
		want    *service.EventInput
		wantErr bool
	}{
		{
			name:  "null reply",
			reply: "```json\nnull\n```",
		},
		{
			name:  "missing start date",
			reply: `{"title":"Party","start_date":null}`,
		},
		{
			name:  "unparseable date",
			reply: `{"title":"Party","start_date":"next Friday"}`,
		},
		{
			name:  "literal null strings cleaned",
			reply: `{"title":"Party","start_date":"2026-09-01","start_time":"null","location":"NULL"}`,
			want:  &service.EventInput{Title: "Party", StartDate: "2026-09-01"},
		},
		{
			name:  "bad time degrades to all-day",
			reply: `{"title":"Party","start_date":"2026-09-01","start_time":"7pm","end_time":"21:00"}`,
			want:  &service.EventInput{Title: "Party", StartDate: "2026-09-01"},
		},
		{
			name:    "no json at all",
			reply:   "happy to help!",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseExtractedEvent(tc.reply)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseExtractedEvent(%q) = %+v, want error", tc.reply, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtractedEvent(%q) error: %v", tc.reply, err)
			}
			if tc.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFormatEventWhen(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   service.EventInput
		want string
	}{
		{
			name: "timed with end",
			in:   service.EventInput{StartDate: "2026-08-29", StartTime: "09:30", EndTime: "11:00"},
			want: "Saturday, August 29, 2026 · 9:30 AM to 11:00 AM",
		},
		{
			name: "all day",
			in:   service.EventInput{StartDate: "2026-08-29"},
			want: "Saturday, August 29, 2026 (all day)",
		},
		{
			name: "multi day",
			in:   service.EventInput{StartDate: "2026-08-29", EndDate: "2026-08-31"},
			want: "Saturday, August 29, 2026 (all day)\nThrough Monday, August 31, 2026",
		},
	}
	for _, tc := range cases {
		if got := formatEventWhen(&tc.in); got != tc.want {
			t.Errorf("%s: formatEventWhen = %q, want %q", tc.name, got, tc.want)
		}
	}
}
