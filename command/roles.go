package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/state"
)

// roleDef pairs a subscription emoji with the plain role name the
// watchers announce with. The Discord role itself is created as
// "emoji name".
type roleDef struct {
	emoji string
	name  string
}

var notificationRoles = []roleDef{
	{emoji: "🚀", name: "SC Patch Notes"},
	{emoji: "⚔️", name: "WoW Patch Notes"},
	{emoji: "🎮", name: "Nintendo Direct"},
	{emoji: "🤖", name: "AI News"},
	{emoji: "🎙️", name: "Trump Speeches"},
	{emoji: "📺", name: "SC YouTube"},
	{emoji: "🛰️", name: "RSI Status"},
}

type storedRole struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type roleState struct {
	MessageID string                `json:"message_id"`
	GuildID   string                `json:"guild_id"`
	Roles     map[string]storedRole `json:"roles"`
}

// ReactionRoles posts the subscription menu and grants or revokes
// notification roles as members react to it. It implements the
// watchers' RoleMentioner so announcements can ping subscribers.
type ReactionRoles struct {
	poster    channel.Poster
	mgr       channel.RoleManager
	channelID string

	mu    sync.Mutex
	path  string
	state roleState
}

// NewReactionRoles creates the feature and loads any previously posted
// menu from path. ch must also implement RoleManager for setup and
// grants to work; channelID is where the menu is posted.
func NewReactionRoles(ch channel.Channel, channelID, path string) (*ReactionRoles, error) {
	rr := &ReactionRoles{channelID: channelID, path: path}
	rr.poster, _ = ch.(channel.Poster)
	rr.mgr, _ = ch.(channel.RoleManager)
	if path != "" {
		if err := state.LoadJSON(path, &rr.state); err != nil {
			return nil, fmt.Errorf("load reaction roles: %w", err)
		}
	}
	return rr, nil
}

// Register wires !setuproles (owner only) and the grant/revoke reactor.
func (rr *ReactionRoles) Register(r *Router) {
	r.OwnerCommand("setuproles", rr.cmdSetup)
	r.React(rr.Reactor())
}

func (rr *ReactionRoles) cmdSetup(ctx context.Context, msg *channel.Message, _ string) error {
	if rr.poster == nil {
		return errors.New("channel cannot post a role menu")
	}
	if msg.GuildID == "" {
		_, err := rr.poster.Post(ctx, &channel.Response{
			ChannelID: msg.ChannelID, ReplyTo: msg.ID,
			Text: "Run that in a server channel, not a DM.",
		})
		return err
	}
	if rr.mgr == nil {
		_, err := rr.poster.Post(ctx, &channel.Response{
			ChannelID: msg.ChannelID, ReplyTo: msg.ID,
			Text: "This channel can't manage roles.",
		})
		return err
	}

	roles := make(map[string]storedRole, len(notificationRoles))
	var lines []string
	for _, def := range notificationRoles {
		id, err := rr.mgr.EnsureRole(msg.GuildID, def.emoji+" "+def.name)
		if err != nil {
			return fmt.Errorf("ensure role %q: %w", def.name, err)
		}
		roles[def.emoji] = storedRole{Name: def.name, ID: id}
		lines = append(lines, fmt.Sprintf("%s  **%s**", def.emoji, def.name))
	}

	target := rr.channelID
	if target == "" {
		target = msg.ChannelID
	}
	embed := &channel.Embed{
		Title:       "🔔 Notification Roles",
		Description: "React to subscribe. Remove your reaction to unsubscribe.\n\n" + strings.Join(lines, "\n"),
		Color:       colorBlue,
	}
	msgID, err := rr.poster.Post(ctx, &channel.Response{ChannelID: target, Embed: embed})
	if err != nil {
		return fmt.Errorf("post role menu: %w", err)
	}
	for _, def := range notificationRoles {
		if err := rr.poster.React(ctx, target, msgID, def.emoji); err != nil {
			logger.Warn("role menu reaction failed", "emoji", def.emoji, "error", err)
		}
	}

	rr.mu.Lock()
	rr.state = roleState{MessageID: msgID, GuildID: msg.GuildID, Roles: roles}
	saveErr := rr.saveLocked()
	rr.mu.Unlock()
	if saveErr != nil {
		return fmt.Errorf("save reaction roles: %w", saveErr)
	}
	logger.Info("role menu posted", "messageID", msgID, "roles", len(roles))

	if target != msg.ChannelID {
		if _, err := rr.poster.Post(ctx, &channel.Response{
			ChannelID: msg.ChannelID, ReplyTo: msg.ID,
			Text: "Done! Role menu posted.",
		}); err != nil {
			logger.Warn("role setup confirmation failed", "error", err)
		}
	}
	return nil
}

// Reactor grants on add and revokes on remove for reactions on the menu
// message. Permission failures are logged, not surfaced.
func (rr *ReactionRoles) Reactor() ReactorFunc {
	return func(_ context.Context, rx *channel.Reaction) {
		rr.mu.Lock()
		menuID := rr.state.MessageID
		guildID := rr.state.GuildID
		role, ok := rr.state.Roles[rx.Emoji]
		rr.mu.Unlock()
		if rr.mgr == nil || menuID == "" || rx.MessageID != menuID || !ok {
			return
		}
		if rx.GuildID != "" {
			guildID = rx.GuildID
		}

		if rx.Added {
			if err := rr.mgr.AddRole(guildID, rx.UserID, role.ID); err != nil {
				logger.Error("role grant failed", "role", role.Name, "user", rx.UserID, "error", err)
				return
			}
			logger.Info("role granted", "role", role.Name, "user", rx.UserID)
			return
		}
		if err := rr.mgr.RemoveRole(guildID, rx.UserID, role.ID); err != nil {
			logger.Error("role revoke failed", "role", role.Name, "user", rx.UserID, "error", err)
			return
		}
		logger.Info("role revoked", "role", role.Name, "user", rx.UserID)
	}
}

// Mention resolves a plain role name ("SC Patch Notes") to a mention
// string, or "" when the menu hasn't been set up.
func (rr *ReactionRoles) Mention(roleName string) string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	for _, role := range rr.state.Roles {
		if role.Name == roleName {
			return channel.RoleMention(role.ID)
		}
	}
	return ""
}

func (rr *ReactionRoles) saveLocked() error {
	if rr.path == "" {
		return nil
	}
	return state.SaveJSON(rr.path, &rr.state)
}
