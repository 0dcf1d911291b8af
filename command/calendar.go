package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/service"
)

// calendarAPI is the Google Calendar surface the invite flow uses.
type calendarAPI interface {
	CreateEvent(ctx context.Context, in *service.EventInput) (*service.CreatedEvent, error)
}

const (
	calendarConfirmEmoji = "✅"
	calendarEditEmoji    = "✏️"
	calendarCancelEmoji  = "❌"
	calendarSessionTTL   = 10 * time.Minute
)

// extractedEvent is the JSON shape the extraction prompt asks for.
type extractedEvent struct {
	Title       string `json:"title"`
	StartDate   string `json:"start_date"`
	StartTime   string `json:"start_time"`
	EndDate     string `json:"end_date"`
	EndTime     string `json:"end_time"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type enrichedLocation struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	MapsQuery string `json:"maps_query"`
}

// eventSession is an extracted event awaiting the author's ✅/✏️/❌,
// keyed by the preview message ID. While a correction is pending it is
// keyed by channel+user instead.
type eventSession struct {
	userID    string
	channelID string
	event     *service.EventInput
	expires   time.Time
}

// CalendarInvites turns messages in the events channel into Google
// Calendar entries. It reads .ics attachments directly, runs images and
// text through the model, enriches locations with a web search, and
// posts a preview the author confirms by reaction.
type CalendarInvites struct {
	gcal    calendarAPI
	llm     provider.Provider
	search  searcher
	prompts *prompt.Registry
	poster  channel.Poster
	loc     *time.Location
	fetch   func(ctx context.Context, fileURL string) ([]byte, error)
	now     func() time.Time

	mu          sync.Mutex
	sessions    map[string]*eventSession
	corrections map[string]*eventSession
}

// NewCalendarInvites creates the calendar feature. search may be nil,
// which skips location enrichment.
func NewCalendarInvites(gcal calendarAPI, llm provider.Provider, search searcher, prompts *prompt.Registry, poster channel.Poster, loc *time.Location) *CalendarInvites {
	if loc == nil {
		loc = time.Local
	}
	rest := resty.New().SetTimeout(20 * time.Second)
	return &CalendarInvites{
		gcal:    gcal,
		llm:     llm,
		search:  search,
		prompts: prompts,
		poster:  poster,
		loc:     loc,
		fetch: func(ctx context.Context, fileURL string) ([]byte, error) {
			resp, err := rest.R().SetContext(ctx).Get(fileURL)
			if err != nil {
				return nil, err
			}
			if resp.IsError() {
				return nil, fmt.Errorf("status %s", resp.Status())
			}
			return resp.Body(), nil
		},
		now:         time.Now,
		sessions:    make(map[string]*eventSession),
		corrections: make(map[string]*eventSession),
	}
}

// Register wires the events-channel listener and the reaction stages.
func (c *CalendarInvites) Register(r *Router, channelID string) {
	r.Listen(channelID, c.Listener())
	r.React(c.Reactor())
}

// Listener extracts an event from each message and posts a preview.
// Casual text the model finds no event in is left alone; a failed
// attachment gets a nudge since the author clearly meant to share one.
func (c *CalendarInvites) Listener() ListenerFunc {
	return func(ctx context.Context, msg *channel.Message) error {
		if sess, ok := c.takeCorrection(msg.ChannelID, msg.UserID); ok {
			return c.handleCorrection(ctx, msg, sess)
		}

		if att := icsAttachment(msg); att != nil {
			c.poster.Typing(msg.ChannelID)
			ev, err := c.extractFromICS(ctx, att)
			if err != nil {
				return err
			}
			if ev == nil {
				return c.post(ctx, msg.ChannelID, "I couldn't read that calendar file. Is it a standard .ics?")
			}
			c.enrichLocation(ctx, ev)
			return c.postPreview(ctx, msg.ChannelID, msg.UserID, ev)
		}

		if urls := imageURLs(msg); len(urls) > 0 {
			c.poster.Typing(msg.ChannelID)
			ev, err := c.extractFromImages(ctx, urls)
			if err != nil {
				return err
			}
			if ev == nil {
				return c.post(ctx, msg.ChannelID, "I couldn't find event details in that image.")
			}
			c.enrichLocation(ctx, ev)
			return c.postPreview(ctx, msg.ChannelID, msg.UserID, ev)
		}

		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return nil
		}
		c.poster.Typing(msg.ChannelID)
		ev, err := c.extractFromText(ctx, text)
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}
		c.enrichLocation(ctx, ev)
		return c.postPreview(ctx, msg.ChannelID, msg.UserID, ev)
	}
}

// Reactor handles ✅/✏️/❌ on preview messages. Only the event's author
// can advance it; other reactions put the session back untouched.
func (c *CalendarInvites) Reactor() ReactorFunc {
	return func(ctx context.Context, rx *channel.Reaction) {
		if !rx.Added {
			return
		}
		c.mu.Lock()
		sess, ok := c.sessions[rx.MessageID]
		if ok && c.now().After(sess.expires) {
			delete(c.sessions, rx.MessageID)
			ok = false
		}
		if ok && rx.UserID != sess.userID {
			ok = false
		}
		if ok {
			delete(c.sessions, rx.MessageID)
		}
		c.mu.Unlock()
		if !ok {
			return
		}

		switch rx.Emoji {
		case calendarConfirmEmoji:
			if err := c.createEvent(ctx, sess); err != nil {
				logger.Error("calendar create failed", "title", sess.event.Title, "error", err)
				if perr := c.post(ctx, sess.channelID, "Sorry, I couldn't add that to the calendar. Try again in a bit."); perr != nil {
					logger.Error("calendar error notice failed", "error", perr)
				}
			}
		case calendarCancelEmoji:
			if err := c.post(ctx, sess.channelID, "Okay, cancelled."); err != nil {
				logger.Error("calendar cancel notice failed", "error", err)
			}
		case calendarEditEmoji:
			c.mu.Lock()
			sess.expires = c.now().Add(calendarSessionTTL)
			c.corrections[correctionKey(sess.channelID, sess.userID)] = sess
			c.mu.Unlock()
			if err := c.post(ctx, sess.channelID, "What should I change? Reply here with the fix."); err != nil {
				logger.Error("calendar edit notice failed", "error", err)
			}
		default:
			c.restore(rx.MessageID, sess)
		}
	}
}

func (c *CalendarInvites) createEvent(ctx context.Context, sess *eventSession) error {
	created, err := c.gcal.CreateEvent(ctx, sess.event)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📅 Added **%s** to the calendar!", sess.event.Title)
	if created.HTMLLink != "" {
		text += "\n" + created.HTMLLink
	}
	return c.post(ctx, sess.channelID, text)
}

// handleCorrection feeds the stored event plus the author's fix back
// through the extraction prompt and previews the result.
func (c *CalendarInvites) handleCorrection(ctx context.Context, msg *channel.Message, sess *eventSession) error {
	c.poster.Typing(msg.ChannelID)
	sys, err := c.renderExtract()
	if err != nil {
		return err
	}
	current, err := json.Marshal(snapshotEvent(sess.event))
	if err != nil {
		return err
	}
	ask := fmt.Sprintf("Current event details:\n%s\n\nApply this correction and return the full updated event: %s",
		current, strings.TrimSpace(msg.Text))

	resp, err := c.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.SystemMessage(sys), provider.UserMessage(ask)},
	})
	if err != nil {
		c.rearm(msg.ChannelID, msg.UserID, sess)
		return fmt.Errorf("event correction: %w", err)
	}
	ev, err := parseExtractedEvent(resp.Content)
	if err != nil || ev == nil {
		c.rearm(msg.ChannelID, msg.UserID, sess)
		return c.post(ctx, msg.ChannelID, "I couldn't work that change out. Tell me again?")
	}
	if ev.Location != sess.event.Location {
		c.enrichLocation(ctx, ev)
	}
	return c.postPreview(ctx, msg.ChannelID, msg.UserID, ev)
}

func (c *CalendarInvites) extractFromICS(ctx context.Context, att *channel.Attachment) (*service.EventInput, error) {
	data, err := c.fetch(ctx, att.URL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", att.Filename, err)
	}
	ics, err := service.ParseICS(data)
	if err != nil {
		logger.Warn("ics parse failed", "filename", att.Filename, "error", err)
		return nil, nil
	}
	title := ics.Title
	if title == "" {
		title = "Untitled event"
	}
	return &service.EventInput{
		Title:       title,
		StartDate:   ics.StartDate,
		StartTime:   ics.StartTime,
		EndDate:     ics.EndDate,
		EndTime:     ics.EndTime,
		Location:    ics.Location,
		Description: ics.Description,
	}, nil
}

func (c *CalendarInvites) extractFromImages(ctx context.Context, urls []string) (*service.EventInput, error) {
	instructions, err := c.renderExtract()
	if err != nil {
		return nil, err
	}
	resp, err := c.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.VisionMessage(instructions, urls...)},
	})
	if err != nil {
		return nil, fmt.Errorf("event image extraction: %w", err)
	}
	return parseExtractedEvent(resp.Content)
}

func (c *CalendarInvites) extractFromText(ctx context.Context, text string) (*service.EventInput, error) {
	sys, err := c.renderExtract()
	if err != nil {
		return nil, err
	}
	resp, err := c.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.SystemMessage(sys), provider.UserMessage(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("event extraction: %w", err)
	}
	ev, err := parseExtractedEvent(resp.Content)
	if err != nil {
		logger.Debug("event extraction returned no JSON", "error", err)
		return nil, nil
	}
	return ev, nil
}

func (c *CalendarInvites) renderExtract() (string, error) {
	return c.prompts.Render("event-extract", map[string]string{
		"now": c.now().In(c.loc).Format("Monday, January 2, 2006 3:04 PM MST"),
	})
}

// enrichLocation resolves a bare place reference into a name and street
// address via web search. Best effort; the event keeps its original
// location on any miss.
func (c *CalendarInvites) enrichLocation(ctx context.Context, ev *service.EventInput) {
	if ev.Location == "" || c.search == nil || c.llm == nil {
		return
	}
	results, err := c.search.Search(ctx, ev.Location)
	if err != nil {
		logger.Warn("location search failed", "location", ev.Location, "error", err)
		return
	}
	sys, err := c.prompts.Render("location-enrich", nil)
	if err != nil {
		logger.Warn("location prompt render failed", "error", err)
		return
	}
	ask := fmt.Sprintf("Location: %s\n\nSearch results:\n%s", ev.Location, results)
	resp, err := c.llm.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.SystemMessage(sys), provider.UserMessage(ask)},
	})
	if err != nil {
		logger.Warn("location enrichment failed", "location", ev.Location, "error", err)
		return
	}
	if isNullReply(resp.Content) {
		return
	}
	var enr enrichedLocation
	if err := unmarshalReply(resp.Content, &enr); err != nil {
		logger.Warn("location enrichment unparseable", "error", err)
		return
	}
	if enr.Name == "" && enr.Address == "" {
		return
	}

	loc := enr.Name
	if enr.Address != "" {
		if loc != "" {
			loc += ", "
		}
		loc += enr.Address
	}
	ev.Location = loc
	if enr.MapsQuery != "" {
		link := "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(enr.MapsQuery)
		if ev.Description != "" {
			ev.Description += "\n\n"
		}
		ev.Description += "Map: " + link
	}
}

func (c *CalendarInvites) postPreview(ctx context.Context, channelID, userID string, ev *service.EventInput) error {
	embed := &channel.Embed{
		Title:  "📅 " + ev.Title,
		Color:  colorBlue,
		Footer: "React ✅ to add to the calendar, ✏️ to fix something, or ❌ to cancel",
		Fields: []channel.EmbedField{{Name: "When", Value: formatEventWhen(ev)}},
	}
	if ev.Location != "" {
		embed.Fields = append(embed.Fields, channel.EmbedField{Name: "Where", Value: ev.Location})
	}
	if ev.Description != "" {
		embed.Fields = append(embed.Fields, channel.EmbedField{Name: "Details", Value: truncate(ev.Description, 300)})
	}

	msgID, err := c.poster.Post(ctx, &channel.Response{ChannelID: channelID, Embed: embed})
	if err != nil {
		return fmt.Errorf("event preview post: %w", err)
	}
	for _, emoji := range []string{calendarConfirmEmoji, calendarEditEmoji, calendarCancelEmoji} {
		if err := c.poster.React(ctx, channelID, msgID, emoji); err != nil {
			logger.Warn("event preview reaction failed", "error", err)
		}
	}

	c.mu.Lock()
	c.sessions[msgID] = &eventSession{
		userID:    userID,
		channelID: channelID,
		event:     ev,
		expires:   c.now().Add(calendarSessionTTL),
	}
	c.mu.Unlock()
	return nil
}

func (c *CalendarInvites) takeCorrection(channelID, userID string) (*eventSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := correctionKey(channelID, userID)
	sess, ok := c.corrections[key]
	if !ok {
		return nil, false
	}
	delete(c.corrections, key)
	if c.now().After(sess.expires) {
		return nil, false
	}
	return sess, true
}

func (c *CalendarInvites) rearm(channelID, userID string, sess *eventSession) {
	c.mu.Lock()
	sess.expires = c.now().Add(calendarSessionTTL)
	c.corrections[correctionKey(channelID, userID)] = sess
	c.mu.Unlock()
}

func (c *CalendarInvites) restore(msgID string, sess *eventSession) {
	c.mu.Lock()
	c.sessions[msgID] = sess
	c.mu.Unlock()
}

func (c *CalendarInvites) post(ctx context.Context, channelID, text string) error {
	_, err := c.poster.Post(ctx, &channel.Response{ChannelID: channelID, Text: text})
	return err
}

// parseExtractedEvent validates the model's JSON into an EventInput.
// A nil event with nil error means the reply held nothing usable.
func parseExtractedEvent(reply string) (*service.EventInput, error) {
	if isNullReply(reply) {
		return nil, nil
	}
	var raw extractedEvent
	if err := unmarshalReply(reply, &raw); err != nil {
		return nil, err
	}
	ev := &service.EventInput{
		Title:       cleanField(raw.Title),
		StartDate:   cleanField(raw.StartDate),
		StartTime:   cleanField(raw.StartTime),
		EndDate:     cleanField(raw.EndDate),
		EndTime:     cleanField(raw.EndTime),
		Location:    cleanField(raw.Location),
		Description: cleanField(raw.Description),
	}
	if ev.Title == "" || ev.StartDate == "" {
		return nil, nil
	}
	if _, err := time.Parse("2006-01-02", ev.StartDate); err != nil {
		return nil, nil
	}
	if ev.StartTime != "" {
		if _, err := time.Parse("15:04", ev.StartTime); err != nil {
			ev.StartTime = ""
			ev.EndTime = ""
		}
	}
	if ev.EndTime != "" {
		if _, err := time.Parse("15:04", ev.EndTime); err != nil {
			ev.EndTime = ""
		}
	}
	if ev.EndDate != "" {
		if _, err := time.Parse("2006-01-02", ev.EndDate); err != nil {
			ev.EndDate = ""
		}
	}
	return ev, nil
}

// formatEventWhen renders the preview's date/time lines, 12-hour clock.
func formatEventWhen(ev *service.EventInput) string {
	start, err := time.Parse("2006-01-02", ev.StartDate)
	if err != nil {
		return ev.StartDate
	}
	line := start.Format("Monday, January 2, 2006")
	if ev.StartTime == "" {
		line += " (all day)"
	} else {
		if t, err := time.Parse("15:04", ev.StartTime); err == nil {
			line += " · " + t.Format("3:04 PM")
		}
		if ev.EndTime != "" {
			if t, err := time.Parse("15:04", ev.EndTime); err == nil {
				line += " to " + t.Format("3:04 PM")
			}
		}
	}
	if ev.EndDate != "" && ev.EndDate != ev.StartDate {
		if end, err := time.Parse("2006-01-02", ev.EndDate); err == nil {
			line += "\nThrough " + end.Format("Monday, January 2, 2006")
		}
	}
	return line
}

func snapshotEvent(ev *service.EventInput) extractedEvent {
	return extractedEvent{
		Title:       ev.Title,
		StartDate:   ev.StartDate,
		StartTime:   ev.StartTime,
		EndDate:     ev.EndDate,
		EndTime:     ev.EndTime,
		Location:    ev.Location,
		Description: ev.Description,
	}
}

func icsAttachment(msg *channel.Message) *channel.Attachment {
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		if strings.HasSuffix(strings.ToLower(att.Filename), ".ics") ||
			strings.Contains(att.ContentType, "text/calendar") {
			return att
		}
	}
	return nil
}

func correctionKey(channelID, userID string) string {
	return channelID + "/" + userID
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}
