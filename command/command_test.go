package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/provider"
)

// fakeChannel implements the full channel surface the command features use:
// message stream, reaction stream, posting with IDs, and role management.
type fakeChannel struct {
	mu        sync.Mutex
	sent      []*channel.Response
	posted    []*channel.Response
	postIDs   []string
	reacted   []string
	unreacted []string
	nextID    int
	sendErr   error

	msgs chan *channel.Message
	rxs  chan *channel.Reaction

	roles   map[string]string // guildID+"/"+name -> roleID
	granted []string          // guildID+"/"+userID+"/"+roleID
	revoked []string
	roleErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		msgs:  make(chan *channel.Message, 16),
		rxs:   make(chan *channel.Reaction, 16),
		roles: make(map[string]string),
	}
}

func (f *fakeChannel) Name() string                        { return "fake" }
func (f *fakeChannel) Start(context.Context) error         { return nil }
func (f *fakeChannel) Stop() error                         { return nil }
func (f *fakeChannel) Messages() <-chan *channel.Message   { return f.msgs }
func (f *fakeChannel) Reactions() <-chan *channel.Reaction { return f.rxs }

func (f *fakeChannel) Send(_ context.Context, resp *channel.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, resp)
	return nil
}

func (f *fakeChannel) Post(_ context.Context, resp *channel.Response) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.posted = append(f.posted, resp)
	f.postIDs = append(f.postIDs, id)
	return id, nil
}

func (f *fakeChannel) React(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacted = append(f.reacted, channelID+"/"+messageID+"/"+emoji)
	return nil
}

func (f *fakeChannel) Unreact(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreacted = append(f.unreacted, channelID+"/"+messageID+"/"+emoji)
	return nil
}

func (f *fakeChannel) Typing(string) {}

func (f *fakeChannel) EnsureRole(guildID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return "", f.roleErr
	}
	key := guildID + "/" + name
	if id, ok := f.roles[key]; ok {
		return id, nil
	}
	id := fmt.Sprintf("role-%d", len(f.roles)+1)
	f.roles[key] = id
	return id, nil
}

func (f *fakeChannel) AddRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return f.roleErr
	}
	f.granted = append(f.granted, guildID+"/"+userID+"/"+roleID)
	return nil
}

func (f *fakeChannel) RemoveRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return f.roleErr
	}
	f.revoked = append(f.revoked, guildID+"/"+userID+"/"+roleID)
	return nil
}

func (f *fakeChannel) sends() []*channel.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*channel.Response, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) posts() []*channel.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*channel.Response, len(f.posted))
	copy(out, f.posted)
	return out
}

func (f *fakeChannel) reactions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.reacted))
	copy(out, f.reacted)
	return out
}

// scriptedLLM replies with canned content in order, recording each prompt.
// The last reply repeats once the script runs out.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
	lastReq []provider.Message
}

func (s *scriptedLLM) Chat(_ context.Context, req *provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReq = req.Messages
	if len(req.Messages) > 0 {
		s.prompts = append(s.prompts, req.Messages[len(req.Messages)-1].Content)
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &provider.Response{}, nil
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return &provider.Response{Content: reply}, nil
}

func (s *scriptedLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func (s *scriptedLLM) lastMessages() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

// waitFor polls cond until it holds or the deadline passes. Router handlers
// run on their own goroutines, so tests observe effects asynchronously.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"!lunch", "lunch", "", true},
		{"!Request The Matrix", "request", "The Matrix", true},
		{"  !list  ", "list", "", true},
		{"!birthday add Sam 03-14", "birthday", "add Sam 03-14", true},
		{"hello there", "", "", false},
		{"!", "", "", false},
		{"!!", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.text)
		if name != tc.wantName || args != tc.wantArgs || ok != tc.wantOK {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.text, name, args, ok, tc.wantName, tc.wantArgs, tc.wantOK)
		}
	}
}

func TestRouterDispatchesCommand(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "owner-1")

	var mu sync.Mutex
	var gotArgs string
	r.Command("echo", "chan-1", func(_ context.Context, msg *channel.Message, args string) error {
		mu.Lock()
		gotArgs = args
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.msgs <- &channel.Message{ID: "m1", ChannelID: "chan-1", UserID: "u1", Text: "!echo hello world"}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotArgs == "hello world"
	})
}

func TestRouterChannelRestriction(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "")

	var calls int
	var mu sync.Mutex
	r.Command("echo", "chan-1", func(context.Context, *channel.Message, string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.msgs <- &channel.Message{ID: "m1", ChannelID: "chan-other", UserID: "u1", Text: "!echo nope"}
	ch.msgs <- &channel.Message{ID: "m2", ChannelID: "chan-1", UserID: "u1", Text: "!echo yes"}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (wrong channel must be ignored)", calls)
	}
}

func TestRouterOwnerGate(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "owner-1")

	var mu sync.Mutex
	var ran bool
	r.OwnerCommand("secret", func(context.Context, *channel.Message, string) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.msgs <- &channel.Message{ID: "m1", ChannelID: "chan-1", UserID: "intruder", Text: "!secret"}
	waitFor(t, func() bool { return len(ch.sends()) == 1 })
	if got := ch.sends()[0].Text; !strings.Contains(got, "owner") {
		t.Errorf("refusal text = %q, want mention of owner", got)
	}
	mu.Lock()
	if ran {
		t.Fatal("handler ran for non-owner")
	}
	mu.Unlock()

	ch.msgs <- &channel.Message{ID: "m2", ChannelID: "chan-1", UserID: "owner-1", Text: "!secret"}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran
	})
}

func TestRouterApologizesOnError(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "")
	r.Command("boom", "", func(context.Context, *channel.Message, string) error {
		return errors.New("kaput")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.msgs <- &channel.Message{ID: "m1", ChannelID: "chan-1", UserID: "u1", Text: "!boom"}
	waitFor(t, func() bool { return len(ch.sends()) == 1 })
	resp := ch.sends()[0]
	if !strings.Contains(resp.Text, "Sorry") {
		t.Errorf("reply = %q, want apology", resp.Text)
	}
	if resp.ReplyTo != "m1" {
		t.Errorf("ReplyTo = %q, want m1", resp.ReplyTo)
	}
}

func TestRouterRecoversFromPanic(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "")
	r.Command("panic", "", func(context.Context, *channel.Message, string) error {
		panic("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.msgs <- &channel.Message{ID: "m1", ChannelID: "chan-1", UserID: "u1", Text: "!panic"}
	waitFor(t, func() bool { return len(ch.sends()) == 1 })
	if !strings.Contains(ch.sends()[0].Text, "Sorry") {
		t.Errorf("reply = %q, want apology after panic", ch.sends()[0].Text)
	}
}

func TestRouterListenersSkipCommands(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "")

	var mu sync.Mutex
	var heard []string
	r.Listen("chan-1", func(_ context.Context, msg *channel.Message) error {
		mu.Lock()
		heard = append(heard, msg.Text)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.msgs <- &channel.Message{ID: "m1", ChannelID: "chan-1", UserID: "u1", Text: "!list"}
	ch.msgs <- &channel.Message{ID: "m2", ChannelID: "chan-1", UserID: "u1", Text: "plain message"}
	ch.msgs <- &channel.Message{ID: "m3", ChannelID: "chan-2", UserID: "u1", Text: "other channel"}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(heard) == 1
	})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(heard) != 1 || heard[0] != "plain message" {
		t.Fatalf("heard = %v, want only the plain message in chan-1", heard)
	}
}

func TestRouterFansOutReactions(t *testing.T) {
	t.Parallel()
	ch := newFakeChannel()
	r := NewRouter(ch, "")

	var mu sync.Mutex
	var got []string
	r.React(func(_ context.Context, rx *channel.Reaction) {
		mu.Lock()
		got = append(got, "a:"+rx.Emoji)
		mu.Unlock()
	})
	r.React(func(_ context.Context, rx *channel.Reaction) {
		mu.Lock()
		got = append(got, "b:"+rx.Emoji)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ch.rxs <- &channel.Reaction{MessageID: "m1", Emoji: "✅", Added: true}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "a:✅" || got[1] != "b:✅" {
		t.Fatalf("reactors saw %v, want ordered fan-out", got)
	}
}
