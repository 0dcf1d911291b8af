package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/linanwx/milo/bus"
	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/internal/health"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/watch"
)

// Admin serves !restart and !status. Restart publishes a bus event the
// serve loop turns into a clean exit; the process manager brings the bot
// back up.
type Admin struct {
	ch    channel.Channel
	bus   *bus.Bus
	stats func() []watch.Stats
	jobs  func() []string
}

// NewAdmin creates the admin feature. stats and jobs may be nil when no
// watchers or scheduler are running.
func NewAdmin(ch channel.Channel, b *bus.Bus, stats func() []watch.Stats, jobs func() []string) *Admin {
	return &Admin{ch: ch, bus: b, stats: stats, jobs: jobs}
}

// Register wires !restart and !status onto the router.
func (a *Admin) Register(r *Router, channelID string) {
	r.Command("restart", channelID, a.cmdRestart)
	r.Command("status", channelID, a.cmdStatus)
}

func (a *Admin) cmdRestart(ctx context.Context, msg *channel.Message, args string) error {
	err := a.ch.Send(ctx, &channel.Response{
		ChannelID: msg.ChannelID,
		Text:      "Restarting. Back in a moment! 🔄",
		ReplyTo:   msg.ID,
	})
	if err != nil {
		logger.Warn("restart ack failed", "error", err)
	}
	evt, err := bus.NewEvent(bus.EventRestart, "command", bus.RestartData{
		RequestedBy: msg.Username,
		Reason:      args,
	})
	if err != nil {
		return err
	}
	a.bus.Publish(evt)
	return nil
}

func (a *Admin) cmdStatus(ctx context.Context, msg *channel.Message, _ string) error {
	snap := health.Collect()
	embed := &channel.Embed{
		Title:     "🤖 Milo Status",
		Color:     colorBlue,
		Timestamp: time.Now(),
		Fields: []channel.EmbedField{
			{Name: "Uptime", Value: snap.Uptime, Inline: true},
			{Name: "Goroutines", Value: strconv.Itoa(snap.Goroutines), Inline: true},
			{Name: "Memory", Value: fmt.Sprintf("%.1f MB (sys %.1f MB)", snap.Memory.AllocMB, snap.Memory.SysMB), Inline: true},
			{Name: "Go", Value: fmt.Sprintf("%s %s/%s", snap.Runtime.Version, snap.Runtime.OS, snap.Runtime.Arch), Inline: true},
		},
	}
	if a.stats != nil {
		if lines := watcherLines(a.stats()); lines != "" {
			embed.Fields = append(embed.Fields, channel.EmbedField{Name: "Watchers", Value: lines})
		}
	}
	if a.jobs != nil {
		if jobs := a.jobs(); len(jobs) > 0 {
			embed.Fields = append(embed.Fields, channel.EmbedField{
				Name: "Scheduled Jobs", Value: strings.Join(jobs, "\n"),
			})
		}
	}
	return a.ch.Send(ctx, &channel.Response{ChannelID: msg.ChannelID, Embed: embed, ReplyTo: msg.ID})
}

// watcherLines renders one line per watcher: poll freshness, store size,
// post and retry counters, and a warning marker when the last poll failed.
func watcherLines(stats []watch.Stats) string {
	var lines []string
	for _, s := range stats {
		line := fmt.Sprintf("• %s: %d seen, %d posted", s.Name, s.SeenCount, s.Posted)
		if s.Retried > 0 {
			line += fmt.Sprintf(", %d retrying", s.Retried)
		}
		if !s.LastPoll.IsZero() {
			line += ", polled " + s.LastPoll.UTC().Format("15:04")
		}
		if s.LastError != "" {
			line += " ⚠️"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
