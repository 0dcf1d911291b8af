package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/linanwx/milo/discordmd"
	"github.com/linanwx/milo/logger"
)

const (
	discordMessageBufferSize  = 100
	discordReactionBufferSize = 100

	// DiscordMaxMessageLength is Discord's cap on plain message content.
	DiscordMaxMessageLength = 2000
)

// DiscordChannel implements the Channel interface for Discord.
type DiscordChannel struct {
	token     string
	session   *discordgo.Session
	messages  chan *Message
	reactions chan *Reaction

	mu    sync.Mutex
	roles map[string]string // "guildID/name" -> role ID
}

// NewDiscordChannel creates a new Discord channel.
// Returns nil if no token is configured.
func NewDiscordChannel(token string) *DiscordChannel {
	if token == "" {
		logger.Warn("Discord token not configured, skipping Discord channel")
		return nil
	}
	return &DiscordChannel{
		token:     token,
		messages:  make(chan *Message, discordMessageBufferSize),
		reactions: make(chan *Reaction, discordReactionBufferSize),
		roles:     make(map[string]string),
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Start(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session creation failed: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	dg.AddHandler(d.handleMessageCreate)
	dg.AddHandler(d.handleReactionAdd)
	dg.AddHandler(d.handleReactionRemove)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord connection failed: %w", err)
	}
	d.session = dg
	logger.Info("discord bot connected", "username", dg.State.User.Username)

	go func() {
		<-ctx.Done()
		_ = d.Stop()
	}()

	logger.Info("discord channel started")
	return nil
}

func (d *DiscordChannel) Stop() error {
	if d.session != nil {
		_ = d.session.Close()
		d.session = nil
	}
	close(d.messages)
	close(d.reactions)
	logger.Info("discord channel stopped")
	return nil
}

// Send sends a response, discarding the created message ID.
func (d *DiscordChannel) Send(ctx context.Context, resp *Response) error {
	_, err := d.Post(ctx, resp)
	return err
}

// Post sends a response and returns the ID of the (last) created message.
func (d *DiscordChannel) Post(_ context.Context, resp *Response) (string, error) {
	if d.session == nil {
		return "", fmt.Errorf("discord session not started")
	}

	destination, err := d.resolveDestination(resp.ChannelID)
	if err != nil {
		return "", err
	}

	if resp.Embed != nil {
		send := &discordgo.MessageSend{
			Content: resp.Text,
			Embed:   toDiscordEmbed(resp.Embed),
		}
		if resp.ReplyTo != "" {
			send.Reference = &discordgo.MessageReference{
				MessageID: resp.ReplyTo,
				ChannelID: destination,
			}
		}
		msg, err := d.session.ChannelMessageSendComplex(destination, send)
		if err != nil {
			return "", fmt.Errorf("discord send error: %w", err)
		}
		return msg.ID, nil
	}

	var lastID string
	replyTo := resp.ReplyTo
	for _, chunk := range SplitMessage(resp.Text, DiscordMaxMessageLength) {
		var msg *discordgo.Message
		var err error
		if replyTo != "" {
			msg, err = d.session.ChannelMessageSendReply(destination, chunk, &discordgo.MessageReference{
				MessageID: replyTo,
				ChannelID: destination,
			})
		} else {
			msg, err = d.session.ChannelMessageSend(destination, chunk)
		}
		if err != nil {
			return "", fmt.Errorf("discord send error: %w", err)
		}
		lastID = msg.ID
		replyTo = "" // only the first chunk replies
	}
	return lastID, nil
}

// resolveDestination maps "dm:<userID>" to a DM channel ID.
func (d *DiscordChannel) resolveDestination(channelID string) (string, error) {
	if strings.HasPrefix(channelID, "dm:") {
		userID := strings.TrimPrefix(channelID, "dm:")
		ch, err := d.session.UserChannelCreate(userID)
		if err != nil {
			return "", fmt.Errorf("discord DM channel creation failed: %w", err)
		}
		return ch.ID, nil
	}
	return channelID, nil
}

// React adds the bot's reaction to a message.
func (d *DiscordChannel) React(_ context.Context, channelID, messageID, emoji string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	return d.session.MessageReactionAdd(channelID, messageID, emoji)
}

// Unreact removes the bot's reaction from a message.
func (d *DiscordChannel) Unreact(_ context.Context, channelID, messageID, emoji string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	return d.session.MessageReactionRemove(channelID, messageID, emoji, "@me")
}

// Typing shows the typing indicator in a channel.
func (d *DiscordChannel) Typing(channelID string) {
	if d.session == nil {
		return
	}
	_ = d.session.ChannelTyping(channelID)
}

func (d *DiscordChannel) Messages() <-chan *Message {
	return d.messages
}

// Reactions returns emoji add/remove events from other users.
func (d *DiscordChannel) Reactions() <-chan *Reaction {
	return d.reactions
}

// EnsureRole returns the ID of the named role, creating it if missing.
func (d *DiscordChannel) EnsureRole(guildID, name string) (string, error) {
	if d.session == nil {
		return "", fmt.Errorf("discord session not started")
	}

	key := guildID + "/" + name
	d.mu.Lock()
	if id, ok := d.roles[key]; ok {
		d.mu.Unlock()
		return id, nil
	}
	d.mu.Unlock()

	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return "", fmt.Errorf("list guild roles: %w", err)
	}
	for _, r := range roles {
		if r.Name == name {
			d.mu.Lock()
			d.roles[key] = r.ID
			d.mu.Unlock()
			return r.ID, nil
		}
	}

	created, err := d.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name})
	if err != nil {
		return "", fmt.Errorf("create role %q: %w", name, err)
	}
	logger.Info("created role", "guild", guildID, "role", name)

	d.mu.Lock()
	d.roles[key] = created.ID
	d.mu.Unlock()
	return created.ID, nil
}

// AddRole assigns a role to a member.
func (d *DiscordChannel) AddRole(guildID, userID, roleID string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

// RemoveRole removes a role from a member.
func (d *DiscordChannel) RemoveRole(guildID, userID, roleID string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	return d.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (d *DiscordChannel) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore self.
	if m.Author.ID == s.State.User.ID {
		return
	}
	// Ignore other bots.
	if m.Author.Bot {
		return
	}

	text := m.Content

	// Resolve user mentions from <@userid> to @displayname.
	for _, u := range m.Mentions {
		name := u.GlobalName
		if name == "" {
			name = u.Username
		}
		text = strings.ReplaceAll(text, "<@"+u.ID+">", "@"+name)
		text = strings.ReplaceAll(text, "<@!"+u.ID+">", "@"+name)
	}

	var attachments []Attachment
	for _, att := range m.Attachments {
		attachments = append(attachments, Attachment{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	if text == "" && len(attachments) == 0 {
		return
	}

	// Resolve username: prefer display name, fallback to username.
	username := m.Author.GlobalName
	if username == "" {
		username = m.Author.Username
	}

	msg := &Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		UserID:      m.Author.ID,
		Username:    username,
		Text:        text,
		Attachments: attachments,
		Metadata:    make(map[string]string),
	}

	if m.MessageReference != nil {
		msg.ReplyTo = m.MessageReference.MessageID
	}

	select {
	case d.messages <- msg:
	default:
		logger.Warn("discord message buffer full, dropping message")
	}
}

func (d *DiscordChannel) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == s.State.User.ID {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}
	d.pushReaction(&Reaction{
		MessageID: r.MessageID,
		ChannelID: r.ChannelID,
		GuildID:   r.GuildID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
		Added:     true,
	})
}

func (d *DiscordChannel) handleReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.UserID == s.State.User.ID {
		return
	}
	d.pushReaction(&Reaction{
		MessageID: r.MessageID,
		ChannelID: r.ChannelID,
		GuildID:   r.GuildID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
		Added:     false,
	})
}

func (d *DiscordChannel) pushReaction(r *Reaction) {
	select {
	case d.reactions <- r:
	default:
		logger.Warn("discord reaction buffer full, dropping reaction")
	}
}

// toDiscordEmbed maps the channel-neutral embed onto discordgo's type.
// Descriptions carry model-written Markdown, so they are normalized to the
// dialect Discord renders before the length clamp.
func toDiscordEmbed(e *Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		URL:         e.URL,
		Description: discordmd.TruncateForEmbed(discordmd.Convert(e.Description), 0),
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.Image}
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}
