package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/service"
)

// mediaAPI is the Overseerr surface the request flow uses.
type mediaAPI interface {
	Search(ctx context.Context, query string) ([]service.SearchResult, error)
	RequestMedia(ctx context.Context, mediaType string, tmdbID int) (*service.MediaRequest, error)
	RequestStatus(ctx context.Context, requestID int) (*service.MediaRequest, error)
	Media(ctx context.Context, mediaID int) (*service.MediaInfo, error)
}

var mediaChoiceEmojis = []string{"1️⃣", "2️⃣", "3️⃣"}

const (
	mediaCancelEmoji  = "❌"
	mediaConfirmEmoji = "✅"
	mediaSessionTTL   = 2 * time.Minute
	mediaMaxResults   = 3
	tmdbPosterBase    = "https://image.tmdb.org/t/p/w342"
)

type mediaStage int

const (
	stageSelecting mediaStage = iota
	stageConfirming
)

// mediaSession is one user's in-flight request conversation, keyed by the
// message carrying the reactions.
type mediaSession struct {
	stage     mediaStage
	userID    string
	channelID string
	results   []service.SearchResult
	choice    *service.SearchResult
	expires   time.Time
}

// pendingRequest tracks a submitted Overseerr request until the media
// becomes available.
type pendingRequest struct {
	mediaID   int
	userID    string
	channelID string
	title     string
}

// MediaRequester drives the !request flow: search Overseerr, let the
// requester pick a result by reaction, confirm, submit, then watch the
// request until Plex has it.
type MediaRequester struct {
	api      mediaAPI
	poster   channel.Poster
	plexURL  string
	serverID string

	mu       sync.Mutex
	sessions map[string]*mediaSession
	pending  map[int]pendingRequest
	now      func() time.Time
}

// NewMediaRequester creates the media request feature. plexURL and serverID
// feed the deep links; either may be empty, which drops the link.
func NewMediaRequester(api mediaAPI, poster channel.Poster, plexURL, serverID string) *MediaRequester {
	return &MediaRequester{
		api:      api,
		poster:   poster,
		plexURL:  plexURL,
		serverID: serverID,
		sessions: make(map[string]*mediaSession),
		pending:  make(map[int]pendingRequest),
		now:      time.Now,
	}
}

// Register wires !request and the reaction stages onto the router.
func (m *MediaRequester) Register(r *Router, channelID string) {
	r.Command("request", channelID, m.cmdRequest)
	r.React(m.Reactor())
}

func (m *MediaRequester) cmdRequest(ctx context.Context, msg *channel.Message, args string) error {
	query := strings.TrimSpace(args)
	if query == "" {
		return m.post(ctx, msg.ChannelID, msg.ID, "Tell me what to find, like `!request The Matrix`.")
	}
	m.poster.Typing(msg.ChannelID)

	results, err := m.api.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("media search: %w", err)
	}
	var usable []service.SearchResult
	for _, r := range results {
		if r.MediaType == "movie" || r.MediaType == "tv" {
			usable = append(usable, r)
		}
		if len(usable) == mediaMaxResults {
			break
		}
	}
	if len(usable) == 0 {
		return m.post(ctx, msg.ChannelID, msg.ID, fmt.Sprintf("No movies or shows found for %q.", query))
	}

	embed := &channel.Embed{
		Title:  fmt.Sprintf("🎬 Results for \"%s\"", query),
		Color:  colorBlue,
		Footer: "React with a number to pick, or ❌ to cancel",
	}
	if usable[0].PosterPath != "" {
		embed.Thumbnail = tmdbPosterBase + usable[0].PosterPath
	}
	for i, r := range usable {
		label := "Movie"
		if r.MediaType == "tv" {
			label = "TV"
		}
		value := label
		if r.Overview != "" {
			value += " · " + truncate(r.Overview, 150)
		}
		embed.Fields = append(embed.Fields, channel.EmbedField{
			Name:  fmt.Sprintf("%s %s", mediaChoiceEmojis[i], r.DisplayTitle()),
			Value: value,
		})
	}

	msgID, err := m.poster.Post(ctx, &channel.Response{ChannelID: msg.ChannelID, Embed: embed})
	if err != nil {
		return fmt.Errorf("media results post: %w", err)
	}
	for i := range usable {
		if err := m.poster.React(ctx, msg.ChannelID, msgID, mediaChoiceEmojis[i]); err != nil {
			logger.Warn("media choice reaction failed", "error", err)
		}
	}
	if err := m.poster.React(ctx, msg.ChannelID, msgID, mediaCancelEmoji); err != nil {
		logger.Warn("media cancel reaction failed", "error", err)
	}

	m.mu.Lock()
	m.sessions[msgID] = &mediaSession{
		stage:     stageSelecting,
		userID:    msg.UserID,
		channelID: msg.ChannelID,
		results:   usable,
		expires:   m.now().Add(mediaSessionTTL),
	}
	m.mu.Unlock()
	return nil
}

// Reactor advances a session when its requester reacts on the bot's
// message. Strangers and stale sessions are ignored.
func (m *MediaRequester) Reactor() ReactorFunc {
	return func(ctx context.Context, rx *channel.Reaction) {
		if !rx.Added {
			return
		}
		m.mu.Lock()
		sess, ok := m.sessions[rx.MessageID]
		if ok && m.now().After(sess.expires) {
			delete(m.sessions, rx.MessageID)
			ok = false
		}
		if ok && rx.UserID != sess.userID {
			ok = false
		}
		if ok {
			delete(m.sessions, rx.MessageID)
		}
		m.mu.Unlock()
		if !ok {
			return
		}

		var err error
		switch sess.stage {
		case stageSelecting:
			err = m.handleSelection(ctx, sess, rx)
		case stageConfirming:
			err = m.handleConfirmation(ctx, sess, rx)
		}
		if err != nil {
			logger.Error("media request step failed", "error", err)
			if perr := m.post(ctx, sess.channelID, "", "Sorry, something went wrong with that request."); perr != nil {
				logger.Error("media error notice failed", "error", perr)
			}
		}
	}
}

func (m *MediaRequester) handleSelection(ctx context.Context, sess *mediaSession, rx *channel.Reaction) error {
	if rx.Emoji == mediaCancelEmoji {
		return m.post(ctx, sess.channelID, "", "Okay, cancelled.")
	}
	idx := choiceIndex(rx.Emoji)
	if idx < 0 || idx >= len(sess.results) {
		// not one of ours; put the session back for a valid reaction
		m.restore(rx.MessageID, sess)
		return nil
	}
	choice := sess.results[idx]

	if choice.MediaInfo.Available() {
		return m.post(ctx, sess.channelID, "", m.availableText(sess.userID, choice.DisplayTitle(), choice.MediaInfo.PlexRatingKey()))
	}

	embed := &channel.Embed{
		Title:       "Request " + choice.DisplayTitle() + "?",
		Description: fmt.Sprintf("React %s to confirm or %s to cancel.", mediaConfirmEmoji, mediaCancelEmoji),
		Color:       colorGold,
	}
	if choice.PosterPath != "" {
		embed.Thumbnail = tmdbPosterBase + choice.PosterPath
	}
	msgID, err := m.poster.Post(ctx, &channel.Response{ChannelID: sess.channelID, Embed: embed})
	if err != nil {
		return err
	}
	for _, emoji := range []string{mediaConfirmEmoji, mediaCancelEmoji} {
		if err := m.poster.React(ctx, sess.channelID, msgID, emoji); err != nil {
			logger.Warn("media confirm reaction failed", "error", err)
		}
	}

	m.mu.Lock()
	m.sessions[msgID] = &mediaSession{
		stage:     stageConfirming,
		userID:    sess.userID,
		channelID: sess.channelID,
		choice:    &choice,
		expires:   m.now().Add(mediaSessionTTL),
	}
	m.mu.Unlock()
	return nil
}

func (m *MediaRequester) handleConfirmation(ctx context.Context, sess *mediaSession, rx *channel.Reaction) error {
	if rx.Emoji == mediaCancelEmoji {
		return m.post(ctx, sess.channelID, "", "Okay, cancelled.")
	}
	if rx.Emoji != mediaConfirmEmoji {
		m.restore(rx.MessageID, sess)
		return nil
	}

	choice := sess.choice
	req, err := m.api.RequestMedia(ctx, choice.MediaType, choice.ID)
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}

	mediaID := 0
	if req.Media != nil {
		mediaID = req.Media.ID
	}
	m.mu.Lock()
	m.pending[req.ID] = pendingRequest{
		mediaID:   mediaID,
		userID:    sess.userID,
		channelID: sess.channelID,
		title:     choice.DisplayTitle(),
	}
	m.mu.Unlock()

	return m.post(ctx, sess.channelID, "", fmt.Sprintf(
		"🎬 Requested %s! I'll ping %s when it's ready.",
		choice.DisplayTitle(), channel.Mention(sess.userID)))
}

// Poll checks every pending request against Overseerr and pings requesters
// whose media has landed on Plex. The scheduler runs it every minute; it
// returns immediately when nothing is pending.
func (m *MediaRequester) Poll(ctx context.Context) error {
	m.mu.Lock()
	for id, sess := range m.sessions {
		if m.now().After(sess.expires) {
			delete(m.sessions, id)
		}
	}
	snapshot := make(map[int]pendingRequest, len(m.pending))
	for id, p := range m.pending {
		snapshot[id] = p
	}
	m.mu.Unlock()
	if len(snapshot) == 0 {
		return nil
	}

	for requestID, p := range snapshot {
		req, err := m.api.RequestStatus(ctx, requestID)
		if err != nil {
			logger.Warn("media request poll failed", "requestID", requestID, "error", err)
			continue
		}
		if !req.Media.Available() {
			continue
		}

		ratingKey := req.Media.PlexRatingKey()
		if ratingKey == "" && p.mediaID != 0 {
			if info, err := m.api.Media(ctx, p.mediaID); err == nil {
				ratingKey = info.PlexRatingKey()
			} else {
				logger.Warn("media detail fetch failed", "mediaID", p.mediaID, "error", err)
			}
		}

		err = m.post(ctx, p.channelID, "", m.availableText(p.userID, p.title, ratingKey))
		if err != nil {
			logger.Error("media availability notice failed", "requestID", requestID, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.pending, requestID)
		m.mu.Unlock()
	}
	return nil
}

// PendingCount reports how many submitted requests are still waiting.
func (m *MediaRequester) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *MediaRequester) availableText(userID, title, ratingKey string) string {
	text := fmt.Sprintf("%s 🍿 %s is available on Plex!", channel.Mention(userID), title)
	if ratingKey != "" && m.plexURL != "" && m.serverID != "" {
		text += "\n" + service.PlexWebLink(m.plexURL, m.serverID, ratingKey)
	}
	return text
}

func (m *MediaRequester) restore(msgID string, sess *mediaSession) {
	m.mu.Lock()
	m.sessions[msgID] = sess
	m.mu.Unlock()
}

func (m *MediaRequester) post(ctx context.Context, channelID, replyTo, text string) error {
	_, err := m.poster.Post(ctx, &channel.Response{ChannelID: channelID, Text: text, ReplyTo: replyTo})
	return err
}

func choiceIndex(emoji string) int {
	for i, e := range mediaChoiceEmojis {
		if e == emoji {
			return i
		}
	}
	return -1
}
