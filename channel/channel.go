// Package channel provides messaging channel interfaces and implementations.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/linanwx/milo/logger"
)

// Message represents an incoming message from a channel.
type Message struct {
	ID          string            // Unique message ID
	ChannelID   string            // Channel identifier (Discord snowflake, or "cli")
	GuildID     string            // Guild the message came from, empty for DMs
	UserID      string            // User identifier
	Username    string            // Human-readable username
	Text        string            // Message text
	ReplyTo     string            // ID of message being replied to (if any)
	Attachments []Attachment      // Files attached to the message
	Metadata    map[string]string // Channel-specific metadata
}

// Attachment is a file attached to an incoming message.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Response represents a message to send.
type Response struct {
	ChannelID string            // Destination channel ("dm:<userID>" opens a DM)
	Text      string            // Plain text content
	Embed     *Embed            // Rich embed, optional
	ReplyTo   string            // Message ID to reply to, optional
	Metadata  map[string]string // Channel-specific options
}

// Embed is a channel-neutral rich card. Discord renders it natively; other
// channels flatten it to text.
type Embed struct {
	Title       string
	URL         string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Thumbnail   string
	Image       string
	Timestamp   time.Time
}

// EmbedField is one name/value row in an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Reaction is an emoji added to or removed from a message.
type Reaction struct {
	MessageID string
	ChannelID string
	GuildID   string
	UserID    string
	Emoji     string
	Added     bool // false when the reaction was removed
}

// Channel is the interface for messaging channels.
type Channel interface {
	// Name returns the channel name (e.g., "discord", "cli").
	Name() string

	// Start begins listening for messages.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Send sends a response message.
	Send(ctx context.Context, resp *Response) error

	// Messages returns a channel for receiving incoming messages.
	Messages() <-chan *Message
}

// Poster is implemented by channels that report the ID of a sent message,
// for flows that track reactions on their own posts.
type Poster interface {
	Post(ctx context.Context, resp *Response) (string, error)
	React(ctx context.Context, channelID, messageID, emoji string) error
	Unreact(ctx context.Context, channelID, messageID, emoji string) error
	Typing(channelID string)
}

// ReactionSource is implemented by channels that surface emoji reactions.
type ReactionSource interface {
	Reactions() <-chan *Reaction
}

// RoleManager is implemented by channels that can manage member roles.
type RoleManager interface {
	EnsureRole(guildID, name string) (string, error)
	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error
}

// Mention formats a user mention for message text.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// RoleMention formats a role mention for message text.
func RoleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

// Manager manages multiple channels as a pure registry.
type Manager struct {
	channels map[string]Channel
}

// NewManager creates a new channel manager.
func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the manager and logs it. Nil is silently ignored.
func (m *Manager) Register(ch Channel) {
	if ch == nil {
		return
	}
	m.channels[ch.Name()] = ch
	logger.Info("channel registered", "channel", ch.Name())
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// SendTo sends a text message to a destination on a named channel.
func (m *Manager) SendTo(ctx context.Context, channelName, destination, text string) error {
	ch, ok := m.channels[channelName]
	if !ok {
		return fmt.Errorf("channel not found: %s", channelName)
	}
	return ch.Send(ctx, &Response{ChannelID: destination, Text: text})
}

// StartAll starts all registered channels. Discord starts first so feed
// watchers have somewhere to post before the CLI takes over stdin.
func (m *Manager) StartAll(ctx context.Context) error {
	if dc, ok := m.channels["discord"]; ok {
		if err := dc.Start(ctx); err != nil {
			return err
		}
	}
	for name, ch := range m.channels {
		if name == "discord" {
			continue
		}
		if err := ch.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all registered channels.
func (m *Manager) StopAll() error {
	for _, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// Each iterates over all registered channels.
func (m *Manager) Each(fn func(Channel)) {
	for _, ch := range m.channels {
		fn(ch)
	}
}
