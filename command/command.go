// Package command routes channel messages to the bot's interactive
// features. Three kinds of handler exist: "!"-prefixed commands, listeners
// that watch the plain message flow of one channel, and reactors that watch
// emoji reactions. The router is the bridge between the channel layer (pure
// I/O) and the features; it never interprets message content itself beyond
// the command prefix.
package command

import (
	"context"
	"path"
	"runtime/debug"
	"strings"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
)

// Embed accent colors shared across features.
const (
	colorGreen  = 0x2ECC71
	colorRed    = 0xE74C3C
	colorBlue   = 0x3498DB
	colorPurple = 0x9B59B6
	colorPink   = 0xE91E63
	colorGold   = 0xF1C40F
	colorGrey   = 0x979C9F
)

// HandlerFunc runs one "!" command. args is the trimmed text after the
// command word.
type HandlerFunc func(ctx context.Context, msg *channel.Message, args string) error

// ListenerFunc observes plain (non-command) messages in one channel.
type ListenerFunc func(ctx context.Context, msg *channel.Message) error

// ReactorFunc observes emoji reactions. Every reactor sees every reaction
// and skips the ones that are not on its own messages.
type ReactorFunc func(ctx context.Context, r *channel.Reaction)

type command struct {
	name      string
	channelID string // empty means any channel
	ownerOnly bool
	run       HandlerFunc
}

// Router reads the message and reaction streams and dispatches to the
// registered features. Each message runs its handler in a fresh goroutine
// so a slow LLM or HTTP call never stalls the stream.
type Router struct {
	ch        channel.Channel
	ownerID   string
	commands  map[string]*command
	listeners map[string][]ListenerFunc
	reactors  []ReactorFunc
}

// NewRouter creates a router reading from ch. ownerID gates owner-only
// commands and may be empty, which disables them.
func NewRouter(ch channel.Channel, ownerID string) *Router {
	return &Router{
		ch:        ch,
		ownerID:   ownerID,
		commands:  make(map[string]*command),
		listeners: make(map[string][]ListenerFunc),
	}
}

// Command registers a "!" command restricted to channelID. An empty
// channelID accepts the command anywhere.
func (r *Router) Command(name, channelID string, run HandlerFunc) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || run == nil {
		return
	}
	r.commands[name] = &command{name: name, channelID: channelID, run: run}
}

// OwnerCommand registers a command only the configured owner may run, in
// any channel.
func (r *Router) OwnerCommand(name string, run HandlerFunc) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || run == nil {
		return
	}
	r.commands[name] = &command{name: name, ownerOnly: true, run: run}
}

// Listen registers a listener for plain messages in channelID.
func (r *Router) Listen(channelID string, fn ListenerFunc) {
	if channelID == "" || fn == nil {
		return
	}
	r.listeners[channelID] = append(r.listeners[channelID], fn)
}

// React registers a reaction observer.
func (r *Router) React(fn ReactorFunc) {
	if fn == nil {
		return
	}
	r.reactors = append(r.reactors, fn)
}

// Run reads messages (and reactions, when the channel surfaces them) until
// ctx is cancelled. Blocks.
func (r *Router) Run(ctx context.Context) {
	if rs, ok := r.ch.(channel.ReactionSource); ok {
		go r.readReactions(ctx, rs)
	}
	r.readMessages(ctx)
}

func (r *Router) readMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.ch.Messages():
			if !ok {
				return
			}
			r.dispatch(ctx, msg)
		}
	}
}

func (r *Router) readReactions(ctx context.Context, src channel.ReactionSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case rx, ok := <-src.Reactions():
			if !ok {
				return
			}
			if rx == nil {
				continue
			}
			go r.handleReaction(ctx, rx)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg *channel.Message) {
	if msg == nil {
		return
	}
	if name, args, ok := parseCommand(msg.Text); ok {
		cmd, found := r.commands[name]
		if !found {
			logger.Debug("unknown command ignored", "command", name, "user", msg.Username)
			return
		}
		if cmd.channelID != "" && msg.ChannelID != cmd.channelID {
			return
		}
		if cmd.ownerOnly && (r.ownerID == "" || msg.UserID != r.ownerID) {
			go r.reply(ctx, msg, "Sorry, only the bot owner can use that command.")
			return
		}
		logger.Debug("dispatching command",
			"command", cmd.name,
			"user", msg.Username,
			"args", truncate(args, 50),
		)
		go r.runHandler(ctx, msg, func(ctx context.Context) error {
			return cmd.run(ctx, msg, args)
		})
		return
	}

	fns := r.listeners[msg.ChannelID]
	if len(fns) == 0 {
		return
	}
	logger.Debug("dispatching message",
		"channelID", msg.ChannelID,
		"user", msg.Username,
		"text", truncate(msg.Text, 50),
	)
	for _, fn := range fns {
		fn := fn
		go r.runHandler(ctx, msg, func(ctx context.Context) error {
			return fn(ctx, msg)
		})
	}
}

// runHandler executes one handler with panic recovery. A failed handler
// gets a short apology reply; the cause goes to the log.
func (r *Router) runHandler(ctx context.Context, msg *channel.Message, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("handler panicked",
				"channelID", msg.ChannelID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			r.reply(ctx, msg, "Sorry, something went wrong with that.")
		}
	}()
	if err := fn(ctx); err != nil {
		logger.Error("handler failed",
			"channelID", msg.ChannelID,
			"user", msg.Username,
			"error", err,
		)
		r.reply(ctx, msg, "Sorry, something went wrong with that. Please try again.")
	}
}

func (r *Router) handleReaction(ctx context.Context, rx *channel.Reaction) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("reactor panicked",
				"messageID", rx.MessageID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	for _, fn := range r.reactors {
		fn(ctx, rx)
	}
}

func (r *Router) reply(ctx context.Context, msg *channel.Message, text string) {
	err := r.ch.Send(ctx, &channel.Response{
		ChannelID: msg.ChannelID,
		Text:      text,
		ReplyTo:   msg.ID,
	})
	if err != nil {
		logger.Error("reply failed", "channelID", msg.ChannelID, "error", err)
	}
}

// parseCommand splits "!name rest of args" into its parts. Text without the
// prefix, a bare "!", or doubled punctuation ("!!") is not a command.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return "", "", false
	}
	rest := strings.TrimPrefix(text, "!")
	if rest == "" || strings.HasPrefix(rest, "!") {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// imageURLs returns the URLs of image attachments on msg, going by content
// type with a filename-extension fallback.
func imageURLs(msg *channel.Message) []string {
	var urls []string
	for _, a := range msg.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			urls = append(urls, a.URL)
			continue
		}
		switch strings.ToLower(path.Ext(a.Filename)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			urls = append(urls, a.URL)
		}
	}
	return urls
}
