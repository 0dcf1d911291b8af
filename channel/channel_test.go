package channel

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSplitMessageShortTextUntouched(t *testing.T) {
	t.Parallel()

	chunks := SplitMessage("hello", 2000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("got %v", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 50) + "\n" + strings.Repeat("c", 50)
	chunks := SplitMessage(text, 80)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != strings.Repeat("a", 50) {
		t.Errorf("first chunk should end at newline, got %q", chunks[0])
	}
	if strings.HasPrefix(chunks[1], "\n") {
		t.Errorf("second chunk keeps leading newline: %q", chunks[1])
	}
}

func TestSplitMessageHardCutWithoutNewlines(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 250)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:2] {
		if len([]rune(c)) != 100 {
			t.Errorf("chunk %d length = %d, want 100", i, len([]rune(c)))
		}
	}
}

func TestSplitMessageRuneBoundaries(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("日", 150)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if strings.ContainsRune(c, '�') {
			t.Errorf("chunk contains replacement character: %q", c)
		}
	}
	if got := len([]rune(chunks[0])); got != 100 {
		t.Errorf("first chunk runes = %d, want 100", got)
	}
}

func TestMention(t *testing.T) {
	t.Parallel()

	if got := Mention("123"); got != "<@123>" {
		t.Errorf("got %q", got)
	}
}

type stubChannel struct {
	name    string
	started bool
	stopped bool
	sent    []*Response
	msgs    chan *Message
}

func (s *stubChannel) Name() string                  { return s.name }
func (s *stubChannel) Start(context.Context) error   { s.started = true; return nil }
func (s *stubChannel) Stop() error                   { s.stopped = true; return nil }
func (s *stubChannel) Messages() <-chan *Message     { return s.msgs }
func (s *stubChannel) Send(_ context.Context, r *Response) error {
	s.sent = append(s.sent, r)
	return nil
}

func TestManagerRegistryAndSendTo(t *testing.T) {
	t.Parallel()

	m := NewManager()
	stub := &stubChannel{name: "stub"}
	m.Register(stub)
	m.Register(nil)

	if _, ok := m.Get("stub"); !ok {
		t.Fatalf("registered channel not found")
	}
	if err := m.SendTo(context.Background(), "stub", "42", "ping"); err != nil {
		t.Fatalf("sendTo: %v", err)
	}
	if len(stub.sent) != 1 || stub.sent[0].ChannelID != "42" || stub.sent[0].Text != "ping" {
		t.Fatalf("send payload wrong: %+v", stub.sent)
	}
	if err := m.SendTo(context.Background(), "missing", "42", "ping"); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}

func TestManagerStartStopAll(t *testing.T) {
	t.Parallel()

	m := NewManager()
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	m.Register(a)
	m.Register(b)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("startAll: %v", err)
	}
	if !a.started || !b.started {
		t.Fatalf("channels not started: a=%v b=%v", a.started, b.started)
	}
	if err := m.StopAll(); err != nil {
		t.Fatalf("stopAll: %v", err)
	}
	if !a.stopped || !b.stopped {
		t.Fatalf("channels not stopped")
	}
}

func TestToDiscordEmbedMapping(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	e := &Embed{
		Title:       "Patch 4.2",
		URL:         "https://example.com/patch",
		Description: "Summary body",
		Color:       0x1A3D5C,
		Fields:      []EmbedField{{Name: "Status", Value: "Live", Inline: true}},
		Footer:      "Seed: 42",
		Thumbnail:   "https://example.com/thumb.png",
		Image:       "https://example.com/img.png",
		Timestamp:   ts,
	}

	de := toDiscordEmbed(e)
	if de.Title != "Patch 4.2" || de.URL != "https://example.com/patch" {
		t.Errorf("title/url wrong: %+v", de)
	}
	if de.Color != 0x1A3D5C {
		t.Errorf("color = %x", de.Color)
	}
	if len(de.Fields) != 1 || de.Fields[0].Name != "Status" || !de.Fields[0].Inline {
		t.Errorf("fields wrong: %+v", de.Fields)
	}
	if de.Footer == nil || de.Footer.Text != "Seed: 42" {
		t.Errorf("footer wrong: %+v", de.Footer)
	}
	if de.Thumbnail == nil || de.Image == nil {
		t.Errorf("thumbnail/image missing")
	}
	if de.Timestamp != "2026-02-14T12:00:00Z" {
		t.Errorf("timestamp = %q", de.Timestamp)
	}
}

func TestToDiscordEmbedTruncatesDescription(t *testing.T) {
	t.Parallel()

	e := &Embed{Description: strings.Repeat("x", 6000)}
	de := toDiscordEmbed(e)
	if len([]rune(de.Description)) > 4096 {
		t.Errorf("description not clamped: %d runes", len([]rune(de.Description)))
	}
}

func TestToDiscordEmbedNormalizesMarkdown(t *testing.T) {
	t.Parallel()

	e := &Embed{Description: "# Changes\n\nShips fly now."}
	de := toDiscordEmbed(e)
	if !strings.Contains(de.Description, "**Changes**") {
		t.Errorf("heading not converted: %q", de.Description)
	}
	if strings.Contains(de.Description, "#") {
		t.Errorf("raw heading marker survived: %q", de.Description)
	}
}
