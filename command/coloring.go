package command

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
)

// blockedSubjects gates !imagine to family-friendly requests. Matching is
// per word so "gundam" stays fine while "gun" does not.
var blockedSubjects = []string{
	"nsfw", "nude", "naked", "sexy", "porn", "blood", "gore", "violence",
	"weapon", "gun", "knife", "kill", "dead", "corpse",
}

// coloringSessionCap bounds how many generated pages stay redrawable.
const coloringSessionCap = 16

// refreshEmoji regenerates a coloring page with a new seed.
const refreshEmoji = "🔄"

type coloringSession struct {
	userID    string
	channelID string
	subject   string
}

// ColoringBook turns !imagine subjects into printable line-art pages via
// the image provider. The requester can redraw a page by reacting with the
// refresh emoji.
type ColoringBook struct {
	imager  provider.ImageGenerator
	prompts *prompt.Registry
	poster  channel.Poster

	mu       sync.Mutex
	sessions map[string]coloringSession // message ID -> session
	order    []string
	seed     func() int64
}

// NewColoringBook creates the coloring page feature.
func NewColoringBook(imager provider.ImageGenerator, prompts *prompt.Registry, poster channel.Poster) *ColoringBook {
	return &ColoringBook{
		imager:   imager,
		prompts:  prompts,
		poster:   poster,
		sessions: make(map[string]coloringSession),
		seed:     func() int64 { return int64(rand.Uint32()) },
	}
}

// Register wires !imagine and the redraw reactor onto the router.
func (c *ColoringBook) Register(r *Router, channelID string) {
	r.Command("imagine", channelID, c.cmdImagine)
	r.React(c.Reactor())
}

func (c *ColoringBook) cmdImagine(ctx context.Context, msg *channel.Message, args string) error {
	subject := strings.TrimSpace(args)
	if subject == "" {
		return c.send(ctx, msg.ChannelID, msg.ID,
			"Give me something to draw, like `!imagine a dragon eating tacos`.")
	}
	if blocked(subject) {
		return c.send(ctx, msg.ChannelID, msg.ID,
			"Let's keep it family-friendly! Try a different subject. 🎨")
	}
	c.poster.Typing(msg.ChannelID)
	return c.generate(ctx, msg.ChannelID, msg.UserID, subject)
}

// Reactor redraws a page when its requester reacts with the refresh emoji.
func (c *ColoringBook) Reactor() ReactorFunc {
	return func(ctx context.Context, rx *channel.Reaction) {
		if !rx.Added || rx.Emoji != refreshEmoji {
			return
		}
		c.mu.Lock()
		sess, ok := c.sessions[rx.MessageID]
		c.mu.Unlock()
		if !ok || rx.UserID != sess.userID {
			return
		}
		c.poster.Typing(sess.channelID)
		if err := c.generate(ctx, sess.channelID, sess.userID, sess.subject); err != nil {
			logger.Error("coloring redraw failed", "subject", sess.subject, "error", err)
		}
	}
}

func (c *ColoringBook) generate(ctx context.Context, channelID, userID, subject string) error {
	imagePrompt, err := c.prompts.Render("coloring-page", map[string]string{"subject": subject})
	if err != nil {
		return err
	}
	seed := c.seed()
	url, err := c.imager.GenerateImage(ctx, imagePrompt, seed)
	if err != nil {
		return fmt.Errorf("coloring page: %w", err)
	}

	msgID, err := c.poster.Post(ctx, &channel.Response{
		ChannelID: channelID,
		Embed: &channel.Embed{
			Title:  "🎨 Coloring Page: " + subject,
			Color:  colorPurple,
			Image:  url,
			Footer: fmt.Sprintf("Seed %d • React %s to redraw", seed, refreshEmoji),
		},
	})
	if err != nil {
		return fmt.Errorf("coloring page post: %w", err)
	}
	if err := c.poster.React(ctx, channelID, msgID, refreshEmoji); err != nil {
		logger.Warn("coloring seed reaction failed", "error", err)
	}

	c.mu.Lock()
	c.sessions[msgID] = coloringSession{userID: userID, channelID: channelID, subject: subject}
	c.order = append(c.order, msgID)
	for len(c.order) > coloringSessionCap {
		delete(c.sessions, c.order[0])
		c.order = c.order[1:]
	}
	c.mu.Unlock()
	return nil
}

func (c *ColoringBook) send(ctx context.Context, channelID, replyTo, text string) error {
	_, err := c.poster.Post(ctx, &channel.Response{ChannelID: channelID, Text: text, ReplyTo: replyTo})
	return err
}

// blocked reports whether any word of subject is on the blocklist.
func blocked(subject string) bool {
	for _, word := range strings.Fields(strings.ToLower(subject)) {
		word = strings.Trim(word, ".,!?;:'\"()")
		for _, banned := range blockedSubjects {
			if word == banned {
				return true
			}
		}
	}
	return false
}
