package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/linanwx/milo/bus"
	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/command"
	"github.com/linanwx/milo/config"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/sched"
)

type fakeLLM struct{}

func (fakeLLM) Chat(context.Context, *provider.Request) (*provider.Response, error) {
	return &provider.Response{Content: "ok"}, nil
}

func mustSched(t *testing.T) *sched.Scheduler {
	t.Helper()
	s, err := sched.New(time.UTC)
	if err != nil {
		t.Fatalf("sched.New: %v", err)
	}
	return s
}

func jobSet(s *sched.Scheduler) map[string]bool {
	set := make(map[string]bool)
	for _, j := range s.Jobs() {
		set[j] = true
	}
	return set
}

func TestStartWatchersHonorsConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Channels.Minecraft = "chan-mc"
	cfg.Channels.StarCitizen = "chan-sc"

	off := false
	cfg.Watchers.RSIStatus = &config.WatcherConfig{Enabled: &off}

	s := &server{
		cfg:     cfg,
		ch:      channel.NewCLIChannel(),
		llm:     fakeLLM{},
		prompts: prompt.NewRegistry(),
		sch:     mustSched(t),
		dataDir: t.TempDir(),
		loc:     time.UTC,
	}
	if err := s.startWatchers(); err != nil {
		t.Fatalf("startWatchers: %v", err)
	}

	if len(s.runners) != 2 {
		names := make([]string, 0, len(s.runners))
		for _, r := range s.runners {
			names = append(names, r.Name())
		}
		t.Fatalf("runners = %v, want [minecraft sc-patch]", names)
	}
	if got := s.runners[0].Name(); got != "minecraft" {
		t.Errorf("runner 0 = %q, want minecraft", got)
	}
	if got := s.runners[1].Name(); got != "sc-patch" {
		t.Errorf("runner 1 = %q, want sc-patch", got)
	}

	jobs := jobSet(s.sch)
	if !jobs["minecraft: every 30m"] {
		t.Errorf("missing minecraft job, have %v", s.sch.Jobs())
	}
	if !jobs["sc-patch: every 10m"] {
		t.Errorf("missing sc-patch job, have %v", s.sch.Jobs())
	}
}

func TestStartWatchersIntervalOverride(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Channels.Minecraft = "chan-mc"
	cfg.Watchers.Minecraft = &config.WatcherConfig{Interval: "45m"}

	s := &server{
		cfg:     cfg,
		ch:      channel.NewCLIChannel(),
		prompts: prompt.NewRegistry(),
		sch:     mustSched(t),
		dataDir: t.TempDir(),
		loc:     time.UTC,
	}
	if err := s.startWatchers(); err != nil {
		t.Fatalf("startWatchers: %v", err)
	}

	if !jobSet(s.sch)["minecraft: every 45m"] {
		t.Errorf("interval override not applied, have %v", s.sch.Jobs())
	}
}

func TestRegisterFeaturesWiresConfiguredJobs(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Discord.LogChannel = "log-chan"
	cfg.Channels.Ask = "ask-chan"
	cfg.Channels.Shopping = "shop-chan"
	cfg.Channels.Briefing = "brief-chan"
	cfg.Channels.Birthdays = "bday-chan"
	cfg.Channels.BirthdayCommands = "bdaycmd-chan"

	b := bus.NewBus(8)
	defer b.Close()

	ch := channel.NewCLIChannel()
	s := &server{
		cfg:     cfg,
		ch:      ch,
		bus:     b,
		llm:     fakeLLM{},
		prompts: prompt.NewRegistry(),
		sch:     mustSched(t),
		dataDir: t.TempDir(),
		loc:     time.UTC,
	}
	router := command.NewRouter(ch, "owner")

	if err := s.registerFeatures(router); err != nil {
		t.Fatalf("registerFeatures: %v", err)
	}

	jobs := jobSet(s.sch)
	for _, want := range []string{
		"briefing: daily at 06:00",
		"birthdays: daily at 06:00",
		"lunch-reminder: daily at 06:05",
	} {
		if !jobs[want] {
			t.Errorf("missing job %q, have %v", want, s.sch.Jobs())
		}
	}

	// fakeLLM reports no balance and the CLI channel cannot post embeds
	// with reactions, so neither job may appear.
	for job := range jobs {
		if strings.HasPrefix(job, "balance:") || strings.HasPrefix(job, "media-poll:") {
			t.Errorf("unexpected job %q", job)
		}
	}
}

func TestLogAlertBlock(t *testing.T) {
	t.Parallel()

	got := logAlertBlock("WARN", "disk filling up")
	want := "```\n[WARN] disk filling up\n```"
	if got != want {
		t.Errorf("block = %q, want %q", got, want)
	}

	long := logAlertBlock("ERROR", strings.Repeat("x", 3000))
	if len(long) > 1990 {
		t.Errorf("len = %d, want <= 1990", len(long))
	}
	if !strings.HasPrefix(long, "```\n[ERROR] xxx") {
		t.Errorf("truncated block lost its prefix: %q", long[:20])
	}
	if !strings.HasSuffix(long, "\n```") {
		t.Errorf("truncated block lost its closing fence")
	}
}

func TestFormatLogArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []any
		want string
	}{
		{"empty", nil, ""},
		{"pairs", []any{"watcher", "wow", "count", 3}, "watcher=wow count=3"},
		{"odd", []any{"watcher", "wow", "dangling"}, "watcher=wow dangling"},
	}
	for _, tt := range tests {
		if got := formatLogArgs(tt.args); got != tt.want {
			t.Errorf("%s: formatLogArgs = %q, want %q", tt.name, got, tt.want)
		}
	}
}
