package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/service"
)

// weatherSource provides today's forecast. *service.Weather implements it.
type weatherSource interface {
	Today(ctx context.Context) (*service.DailyWeather, error)
}

// briefingHourlySlots caps how many three-hour forecast lines appear.
const briefingHourlySlots = 6

// cannedQuotes backs the quote of the day when the model is unavailable.
var cannedQuotes = [...]string{
	"Every morning is a fresh chance to be slightly less confused than yesterday.",
	"Do something today your future self will want to high-five you for.",
	"Coffee first. World domination second.",
	"Small steps still move you forward. So does tripping, technically.",
	"Today's forecast: 100% chance of figuring it out as you go.",
	"You don't have to be great to start, but you have to start to be great.",
	"Be the reason somebody smiles before noon.",
	"A good laugh and a long sleep cure almost anything. You already slept.",
}

// Briefing assembles the morning briefing embed: weather, what to wear, a
// quote, and today's school menu. The daily job sends it once per day; the
// !briefing command forces a fresh one.
type Briefing struct {
	weather   weatherSource
	llm       provider.Provider
	prompts   *prompt.Registry
	menu      *MenuStore
	ch        channel.Channel
	channelID string
	loc       *time.Location
	now       func() time.Time

	mu       sync.Mutex
	lastSent string // YYYY-MM-DD of the last delivery
}

// NewBriefing creates the briefing feature. weather and menu may be nil,
// which drops their sections.
func NewBriefing(weather weatherSource, llm provider.Provider, prompts *prompt.Registry, menu *MenuStore, ch channel.Channel, channelID string, loc *time.Location) *Briefing {
	return &Briefing{
		weather:   weather,
		llm:       llm,
		prompts:   prompts,
		menu:      menu,
		ch:        ch,
		channelID: channelID,
		loc:       loc,
		now:       time.Now,
	}
}

// Command returns the !briefing handler, which always sends.
func (b *Briefing) Command() HandlerFunc {
	return func(ctx context.Context, _ *channel.Message, _ string) error {
		return b.Send(ctx, true)
	}
}

// Send posts the briefing. Without force it is a no-op when today's
// briefing already went out, so a restarted bot does not double-post.
func (b *Briefing) Send(ctx context.Context, force bool) error {
	if b.channelID == "" {
		return nil
	}
	now := b.now().In(b.loc)
	today := now.Format("2006-01-02")

	b.mu.Lock()
	if !force && b.lastSent == today {
		b.mu.Unlock()
		logger.Debug("briefing already sent today", "date", today)
		return nil
	}
	b.mu.Unlock()

	embed := &channel.Embed{
		Title:     "Good Morning! Here's Your Daily Briefing",
		Color:     colorGold,
		Footer:    now.Format("Monday, January 2"),
		Timestamp: now,
	}

	if b.weather != nil {
		w, err := b.weather.Today(ctx)
		if err != nil {
			logger.Warn("briefing weather failed", "error", err)
			embed.Fields = append(embed.Fields, channel.EmbedField{
				Name:  "🌤️ Weather",
				Value: "Weather is unavailable right now.",
			})
		} else {
			embed.Thumbnail = weatherIconURL(w.Icon)
			embed.Fields = append(embed.Fields,
				channel.EmbedField{Name: "🌤️ Weather", Value: weatherText(w)},
				channel.EmbedField{Name: "👕 What to Wear", Value: service.RecommendOutfit(w)},
			)
		}
	}

	embed.Fields = append(embed.Fields, channel.EmbedField{
		Name:  "💭 Quote of the Day",
		Value: b.quote(ctx, now),
	})

	if b.menu != nil {
		if entry, ok := b.menu.Get(today); ok {
			if entry.Breakfast != "" {
				embed.Fields = append(embed.Fields, channel.EmbedField{
					Name: "🥣 School Breakfast", Value: entry.Breakfast, Inline: true,
				})
			}
			if entry.Lunch != "" {
				embed.Fields = append(embed.Fields, channel.EmbedField{
					Name: "🍽️ School Lunch", Value: entry.Lunch, Inline: true,
				})
			}
		}
	}

	err := b.ch.Send(ctx, &channel.Response{ChannelID: b.channelID, Embed: embed})
	if err != nil {
		return fmt.Errorf("send briefing: %w", err)
	}
	b.mu.Lock()
	b.lastSent = today
	b.mu.Unlock()
	return nil
}

// quote asks the model for a one-liner, falling back to the canned set.
func (b *Briefing) quote(ctx context.Context, now time.Time) string {
	fallback := cannedQuotes[now.YearDay()%len(cannedQuotes)]
	if b.llm == nil {
		return fallback
	}
	text, err := b.prompts.Render("daily-quote", nil)
	if err != nil {
		return fallback
	}
	resp, err := b.llm.Chat(ctx, &provider.Request{
		Messages:  []provider.Message{provider.UserMessage(text)},
		MaxTokens: 120,
	})
	if err != nil {
		logger.Warn("briefing quote failed", "error", err)
		return fallback
	}
	quote := strings.Trim(strings.TrimSpace(resp.Content), `"“”`)
	if quote == "" {
		return fallback
	}
	return quote
}

func weatherText(w *service.DailyWeather) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s in %s\n", capitalizeFirst(w.Description), w.City)
	fmt.Fprintf(&sb, "High %.0f°F / Low %.0f°F • %.0f%% chance of rain", w.HighF, w.LowF, w.PrecipChance)
	for i, h := range w.Hourly {
		if i == briefingHourlySlots {
			break
		}
		fmt.Fprintf(&sb, "\n%s: %.0f°F, %s", h.Time, h.TempF, h.Description)
	}
	return sb.String()
}

func weatherIconURL(icon string) string {
	if icon == "" {
		return ""
	}
	return "https://openweathermap.org/img/wn/" + icon + "@2x.png"
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
