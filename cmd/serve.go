package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linanwx/milo/bus"
	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/command"
	"github.com/linanwx/milo/config"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/sched"
	"github.com/linanwx/milo/service"
	"github.com/linanwx/milo/watch"
	"github.com/linanwx/milo/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	Long: `Connect to Discord, start the feed watchers and scheduled jobs, and
answer commands until interrupted.

Features come and go with the config: a watcher without a channel ID is
skipped, a service without credentials disables the commands that need it.

Use --channel cli for a local dry run: watcher announcements and command
replies print to stdout instead of posting to Discord.`,
	RunE: runServe,
}

var serveChannelName string

func init() {
	serveCmd.Flags().StringVar(&serveChannelName, "channel", "discord", "channel to run on: discord or cli")
	rootCmd.AddCommand(serveCmd)
}

// redditUserAgent identifies us to reddit's listing API, which asks bots
// for a descriptive User-Agent.
const redditUserAgent = "miloBot/1.0 (Discord community bot)"

// server holds everything runServe wires together.
type server struct {
	cfg     *config.Config
	ch      channel.Channel
	bus     *bus.Bus
	llm     provider.Provider
	prompts *prompt.Registry
	sch     *sched.Scheduler
	roles   *command.ReactionRoles
	runners []*watch.Runner
	dataDir string
	loc     *time.Location
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}
	dataDir, err := cfg.DataPath()
	if err != nil {
		return err
	}

	ch, err := buildChannel(cfg)
	if err != nil {
		return err
	}

	scheduler, err := sched.New(cfg.Location())
	if err != nil {
		return err
	}

	s := &server{
		cfg:     cfg,
		ch:      ch,
		bus:     bus.NewBus(256),
		prompts: loadPrompts(cfg),
		sch:     scheduler,
		dataDir: dataDir,
		loc:     cfg.Location(),
	}
	defer s.bus.Close()

	s.llm, err = buildProvider(cfg)
	if err != nil {
		return err
	}

	// Records at warn level and above are republished on the bus so the
	// log-channel relay can mirror them into Discord.
	logger.SetForward(s.forwardAlert)
	defer logger.SetForward(nil)

	router := command.NewRouter(ch, cfg.Discord.OwnerID)

	// Reaction roles come up before the watchers: announcements resolve
	// their role mentions through the stored menu.
	s.roles, err = command.NewReactionRoles(ch, cfg.Channels.Roles, filepath.Join(dataDir, "reaction_roles.json"))
	if err != nil {
		return fmt.Errorf("reaction roles: %w", err)
	}
	s.roles.Register(router)

	if err := s.startWatchers(); err != nil {
		return err
	}
	if err := s.registerFeatures(router); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.subscribeLogAlerts()
	s.subscribeRestart(cancel)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	manager := channel.NewManager()
	manager.Register(ch)
	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	s.sch.Start()

	logger.Info("milo started", "channel", ch.Name(), "watchers", len(s.runners), "jobs", len(s.sch.Jobs()))
	fmt.Println("milo is running. Press Ctrl+C to stop.")

	// Blocks reading messages and reactions until ctx is cancelled.
	router.Run(ctx)

	s.sch.Stop()
	if err := manager.StopAll(); err != nil {
		logger.Error("error stopping channels", "err", err)
	}
	logger.Info("milo stopped")
	return nil
}

func buildChannel(cfg *config.Config) (channel.Channel, error) {
	switch serveChannelName {
	case "discord":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return channel.NewDiscordChannel(cfg.Discord.Token), nil
	case "cli":
		return channel.NewCLIChannel(), nil
	}
	return nil, fmt.Errorf("unknown channel %q (want discord or cli)", serveChannelName)
}

// buildProvider constructs the configured default LLM provider.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Providers.Default
	pc := cfg.ProviderFor(name)
	if pc == nil {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return provider.New(name, pc.APIKey, pc.APIBase, pc.Model)
}

// loadPrompts returns the built-in prompt registry with any overrides from
// the prompts directory applied on top.
func loadPrompts(cfg *config.Config) *prompt.Registry {
	prompts := prompt.NewRegistry()
	dir, err := cfg.PromptsPath()
	if err != nil {
		return prompts
	}
	if err := prompts.LoadFromDirectory(dir); err != nil {
		logger.Warn("prompt overrides not loaded", "dir", dir, "err", err)
	}
	return prompts
}

// startWatchers schedules every enabled watcher that has a channel to post
// to, collecting the runners for the !status report.
func (s *server) startWatchers() error {
	type feed struct {
		name     string
		channel  string
		conf     *config.WatcherConfig
		fallback time.Duration
		build    func(ann *watcher.Announcer) *watch.Runner
	}

	feeds := []feed{
		{"ai-news", s.cfg.Channels.AINews, s.cfg.Watchers.AINews, watcher.DefaultAINewsInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewAINews(s.llm, s.prompts, s.dataDir, ann)
			}},
		{"minecraft", s.cfg.Channels.Minecraft, s.cfg.Watchers.Minecraft, watcher.DefaultMinecraftInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewMinecraft(s.dataDir, ann)
			}},
		{"wow", s.cfg.Channels.Wow, s.cfg.Watchers.Wow, watcher.DefaultWowInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewWowPatch(s.llm, s.prompts, ann)
			}},
		{"sc-patch", s.cfg.Channels.StarCitizen, s.cfg.Watchers.SCPatch, watcher.DefaultSCPatchInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewSCPatch(service.NewSpectrum(), s.llm, s.prompts, ann)
			}},
		{"rsi-status", s.cfg.Channels.StarCitizen, s.cfg.Watchers.RSIStatus, watcher.DefaultRSIStatusInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewRSIStatus(ann)
			}},
		{"nintendo", s.cfg.Channels.Nintendo, s.cfg.Watchers.Nintendo, watcher.DefaultNintendoInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewNintendo(service.NewReddit(redditUserAgent), s.llm, s.prompts, ann)
			}},
		{"sc-youtube", s.cfg.Channels.SCYoutube, s.cfg.Watchers.SCYoutube, watcher.DefaultSCYoutubeInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewSCYoutube(service.NewYtDlp(), s.dataDir, ann)
			}},
		{"speeches", s.cfg.Channels.Speeches, s.cfg.Watchers.Speeches, watcher.DefaultSpeechInterval,
			func(ann *watcher.Announcer) *watch.Runner {
				return watcher.NewSpeeches(service.NewYtDlp(), s.llm, s.prompts, s.dataDir, ann)
			}},
	}

	for _, f := range feeds {
		if !f.conf.On() {
			logger.Info("watcher disabled", "watcher", f.name)
			continue
		}
		if f.channel == "" {
			logger.Info("watcher has no channel, skipping", "watcher", f.name)
			continue
		}
		runner := f.build(watcher.NewAnnouncer(s.ch, f.channel, s.roles))
		if err := s.sch.Every(f.name, f.conf.IntervalOr(f.fallback), runner.Poll); err != nil {
			return fmt.Errorf("schedule %s: %w", f.name, err)
		}
		s.runners = append(s.runners, runner)
	}
	return nil
}

// registerFeatures wires every interactive feature whose channel and
// dependencies are configured.
func (s *server) registerFeatures(router *command.Router) error {
	cfg := s.cfg
	poster, hasPoster := s.ch.(channel.Poster)

	var tavily *service.Tavily
	if sc := cfg.Services.Tavily; sc != nil && sc.APIKey != "" {
		tavily = service.NewTavily(sc.APIKey)
	}

	if id := cfg.Channels.Ask; id != "" {
		var asker *command.Asker
		if tavily != nil {
			asker = command.NewAsker(s.llm, tavily, s.prompts, s.ch)
		} else {
			asker = command.NewAsker(s.llm, nil, s.prompts, s.ch)
		}
		router.Listen(id, asker.Listener())
	}

	if id := cfg.Channels.Shopping; id != "" {
		shopping, err := command.NewShoppingList(s.llm, s.prompts, s.ch, filepath.Join(s.dataDir, "shopping_list.json"))
		if err != nil {
			return fmt.Errorf("shopping list: %w", err)
		}
		shopping.Register(router, id)
	}

	if id := cfg.Channels.Requests; id != "" && hasPoster {
		if sc := cfg.Services.Overseerr; sc != nil && sc.URL != "" {
			plexURL, plexServer := "", ""
			if p := cfg.Services.Plex; p != nil {
				plexURL, plexServer = p.URL, p.Token
			}
			media := command.NewMediaRequester(service.NewOverseerr(sc.URL, sc.APIKey), poster, plexURL, plexServer)
			media.Register(router, id)
			if err := s.sch.Every("media-poll", time.Minute, media.Poll); err != nil {
				return err
			}
		} else {
			logger.Warn("requests channel configured but overseerr is not")
		}
	}

	if id := cfg.Channels.Events; id != "" && hasPoster {
		if gcal := s.googleCalendar(); gcal != nil {
			var cal *command.CalendarInvites
			if tavily != nil {
				cal = command.NewCalendarInvites(gcal, s.llm, tavily, s.prompts, poster, s.loc)
			} else {
				cal = command.NewCalendarInvites(gcal, s.llm, nil, s.prompts, poster, s.loc)
			}
			cal.Register(router, id)
		} else {
			logger.Warn("events channel configured but google calendar is not")
		}
	}

	if id := cfg.Channels.Fun; id != "" && hasPoster {
		if imager, ok := s.llm.(provider.ImageGenerator); ok {
			command.NewColoringBook(imager, s.prompts, poster).Register(router, id)
		} else {
			logger.Warn("fun channel configured but provider cannot generate images", "provider", cfg.Providers.Default)
		}
	}

	if id := cfg.Channels.Birthdays; id != "" {
		birthdays, err := command.NewBirthdays(s.ch, id, s.loc, filepath.Join(s.dataDir, "birthdays.json"))
		if err != nil {
			return fmt.Errorf("birthdays: %w", err)
		}
		if cmdID := cfg.Channels.BirthdayCommands; cmdID != "" {
			birthdays.Register(router, cmdID)
		}
		if err := s.sch.Daily("birthdays", 6, 0, birthdays.CheckToday); err != nil {
			return err
		}
	}

	menu, err := command.NewMenuStore(filepath.Join(s.dataDir, "lunch_menu.json"))
	if err != nil {
		return fmt.Errorf("lunch menu: %w", err)
	}

	if logID := cfg.Discord.LogChannel; logID != "" {
		lunch := command.NewLunchMenu(menu, s.llm, s.prompts, s.ch, logID, s.loc)
		lunch.Register(router, logID)
		if err := s.sch.Daily("lunch-reminder", 6, 5, lunch.RemindIfNeeded); err != nil {
			return err
		}
	}

	if id := cfg.Channels.Briefing; id != "" {
		var weather *service.Weather
		if sc := cfg.Services.Weather; sc != nil && sc.APIKey != "" {
			weather = service.NewWeather(sc.APIKey, sc.Zip)
		}
		var briefing *command.Briefing
		if weather != nil {
			briefing = command.NewBriefing(weather, s.llm, s.prompts, menu, s.ch, id, s.loc)
		} else {
			briefing = command.NewBriefing(nil, s.llm, s.prompts, menu, s.ch, id, s.loc)
		}
		router.Command("briefing", id, briefing.Command())
		if err := s.sch.Daily("briefing", 6, 0, func(ctx context.Context) error {
			return briefing.Send(ctx, false)
		}); err != nil {
			return err
		}
	}

	if logID := cfg.Discord.LogChannel; logID != "" {
		admin := command.NewAdmin(s.ch, s.bus, s.stats, s.sch.Jobs)
		admin.Register(router, logID)

		if checker, ok := s.llm.(provider.BalanceChecker); ok {
			balance := command.NewBalanceReporter(checker, s.ch, logID)
			router.Command("balance", logID, balance.Command())
			if err := s.sch.Every("balance", 12*time.Hour, balance.Report); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *server) googleCalendar() *service.GoogleCalendar {
	sc := s.cfg.Services.GoogleCalendar
	if sc == nil || sc.ServiceAccountFile == "" || sc.CalendarID == "" {
		return nil
	}
	gcal, err := service.NewGoogleCalendar(sc.ServiceAccountFile, sc.CalendarID, s.cfg.Timezone)
	if err != nil {
		logger.Warn("google calendar unavailable", "err", err)
		return nil
	}
	return gcal
}

// stats snapshots every runner for the !status embed.
func (s *server) stats() []watch.Stats {
	out := make([]watch.Stats, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r.Stats())
	}
	return out
}

// forwardAlert republishes a warn-or-error log record on the bus.
func (s *server) forwardAlert(level slog.Level, msg string, args ...any) {
	evt, err := bus.NewEvent(bus.EventLogAlert, "logger", bus.LogAlertData{
		Level:   level.String(),
		Message: msg,
		Detail:  formatLogArgs(args),
	})
	if err != nil {
		return
	}
	s.bus.Publish(evt)
}

// subscribeLogAlerts mirrors bus log alerts into the Discord log channel.
func (s *server) subscribeLogAlerts() {
	logID := s.cfg.Discord.LogChannel
	if logID == "" {
		return
	}
	s.bus.Subscribe(bus.EventLogAlert, func(ctx context.Context, evt *bus.Event) {
		var data bus.LogAlertData
		if err := evt.ParseData(&data); err != nil {
			return
		}
		text := data.Message
		if data.Detail != "" {
			text += "  " + data.Detail
		}
		err := s.ch.Send(ctx, &channel.Response{
			ChannelID: logID,
			Text:      logAlertBlock(data.Level, text),
		})
		if err != nil {
			// Debug, not Warn: a failed relay must not publish another alert.
			logger.Debug("log alert relay failed", "err", err)
		}
	})
}

// subscribeRestart shuts the bot down when !restart asks for it. The
// process supervisor is expected to bring it back up.
func (s *server) subscribeRestart(cancel context.CancelFunc) {
	s.bus.Subscribe(bus.EventRestart, func(ctx context.Context, evt *bus.Event) {
		var data bus.RestartData
		if err := evt.ParseData(&data); err != nil {
			logger.Error("restart event unreadable", "err", err)
			return
		}
		logger.Info("restart requested, shutting down", "by", data.RequestedBy, "reason", data.Reason)
		cancel()
	})
}

// logAlertBlock fences an alert for Discord, truncated to fit one message.
func logAlertBlock(level, text string) string {
	const fence = "```"
	body := "[" + level + "] " + text
	max := 1990 - 2*len(fence) - 2
	if len(body) > max {
		body = body[:max]
	}
	return fence + "\n" + body + "\n" + fence
}

// formatLogArgs renders slog key-value pairs as "k=v k=v".
func formatLogArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v", args[len(args)-1])
	}
	return b.String()
}
