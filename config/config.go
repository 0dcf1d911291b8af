// Package config handles configuration loading and saving.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/linanwx/milo/logger"
)

const (
	configFileName = "config.yaml"
)

var configDirOverride string

// SetConfigDir overrides the config directory for the current process.
// Empty value clears the override.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// ConfigDir returns the directory holding config.yaml, .env, and by default
// the data directory. Defaults to ~/.milo.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".milo"), nil
}

// ConfigPath returns the full path of config.yaml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Config is the root configuration structure.
type Config struct {
	Timezone   string          `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	DataDir    string          `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`
	PromptsDir string          `json:"promptsDir,omitempty" yaml:"promptsDir,omitempty"`
	Logging    LoggingConfig   `json:"logging,omitempty" yaml:"logging,omitempty"`
	Discord    DiscordConfig   `json:"discord" yaml:"discord"`
	Channels   ChannelsConfig  `json:"channels" yaml:"channels"`
	Watchers   WatchersConfig  `json:"watchers,omitempty" yaml:"watchers,omitempty"`
	Providers  ProvidersConfig `json:"providers" yaml:"providers"`
	Services   ServicesConfig  `json:"services,omitempty" yaml:"services,omitempty"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Stdout  bool   `json:"stdout,omitempty" yaml:"stdout,omitempty"` // log to stdout
	File    string `json:"file,omitempty" yaml:"file,omitempty"`     // log file path
}

// DiscordConfig contains the bot connection settings.
type DiscordConfig struct {
	Token      string `json:"token" yaml:"token"`
	OwnerID    string `json:"ownerId,omitempty" yaml:"ownerId,omitempty"`       // may run owner-only commands
	LogChannel string `json:"logChannel,omitempty" yaml:"logChannel,omitempty"` // warnings, balance, admin commands
}

// ChannelsConfig maps each feature to its Discord channel ID (snowflake).
// An empty ID disables the feature that posts there.
type ChannelsConfig struct {
	Briefing         string `json:"briefing,omitempty" yaml:"briefing,omitempty"`
	Ask              string `json:"ask,omitempty" yaml:"ask,omitempty"`
	Fun              string `json:"fun,omitempty" yaml:"fun,omitempty"`
	Events           string `json:"events,omitempty" yaml:"events,omitempty"`
	Shopping         string `json:"shopping,omitempty" yaml:"shopping,omitempty"`
	Requests         string `json:"requests,omitempty" yaml:"requests,omitempty"`
	Roles            string `json:"roles,omitempty" yaml:"roles,omitempty"`
	AINews           string `json:"aiNews,omitempty" yaml:"aiNews,omitempty"`
	Minecraft        string `json:"minecraft,omitempty" yaml:"minecraft,omitempty"`
	Wow              string `json:"wow,omitempty" yaml:"wow,omitempty"`
	StarCitizen      string `json:"starCitizen,omitempty" yaml:"starCitizen,omitempty"`
	Nintendo         string `json:"nintendo,omitempty" yaml:"nintendo,omitempty"`
	SCYoutube        string `json:"scYoutube,omitempty" yaml:"scYoutube,omitempty"`
	Speeches         string `json:"speeches,omitempty" yaml:"speeches,omitempty"`
	Birthdays        string `json:"birthdays,omitempty" yaml:"birthdays,omitempty"`
	BirthdayCommands string `json:"birthdayCommands,omitempty" yaml:"birthdayCommands,omitempty"`
}

// WatcherConfig controls one feed watcher.
type WatcherConfig struct {
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"` // Go duration, e.g. "30m"
}

// On reports whether the watcher is enabled (default true).
func (w *WatcherConfig) On() bool {
	if w == nil || w.Enabled == nil {
		return true
	}
	return *w.Enabled
}

// IntervalOr parses the configured interval, falling back to d.
func (w *WatcherConfig) IntervalOr(d time.Duration) time.Duration {
	if w == nil || strings.TrimSpace(w.Interval) == "" {
		return d
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(w.Interval))
	if err != nil || parsed <= 0 {
		logger.Warn("invalid watcher interval, using default", "interval", w.Interval, "default", d)
		return d
	}
	return parsed
}

// WatchersConfig contains per-watcher settings.
type WatchersConfig struct {
	AINews    *WatcherConfig `json:"aiNews,omitempty" yaml:"aiNews,omitempty"`
	Minecraft *WatcherConfig `json:"minecraft,omitempty" yaml:"minecraft,omitempty"`
	Wow       *WatcherConfig `json:"wow,omitempty" yaml:"wow,omitempty"`
	SCPatch   *WatcherConfig `json:"scPatch,omitempty" yaml:"scPatch,omitempty"`
	RSIStatus *WatcherConfig `json:"rsiStatus,omitempty" yaml:"rsiStatus,omitempty"`
	Nintendo  *WatcherConfig `json:"nintendo,omitempty" yaml:"nintendo,omitempty"`
	SCYoutube *WatcherConfig `json:"scYoutube,omitempty" yaml:"scYoutube,omitempty"`
	Speeches  *WatcherConfig `json:"speeches,omitempty" yaml:"speeches,omitempty"`
}

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Default   string          `json:"default,omitempty" yaml:"default,omitempty"` // provider for summaries/answers
	NanoGPT   *ProviderConfig `json:"nanogpt,omitempty" yaml:"nanogpt,omitempty"`
	Anthropic *ProviderConfig `json:"anthropic,omitempty" yaml:"anthropic,omitempty"`
}

// ProviderConfig contains API credentials for a provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"` // optional custom base URL
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// ServicesConfig contains external service credentials.
type ServicesConfig struct {
	Weather        *WeatherServiceConfig  `json:"weather,omitempty" yaml:"weather,omitempty"`
	Tavily         *TavilyServiceConfig   `json:"tavily,omitempty" yaml:"tavily,omitempty"`
	Overseerr      *OverseerrConfig       `json:"overseerr,omitempty" yaml:"overseerr,omitempty"`
	Plex           *PlexConfig            `json:"plex,omitempty" yaml:"plex,omitempty"`
	GoogleCalendar *GoogleCalendarConfig  `json:"googleCalendar,omitempty" yaml:"googleCalendar,omitempty"`
}

// WeatherServiceConfig contains OpenWeatherMap settings.
type WeatherServiceConfig struct {
	APIKey string `json:"apiKey" yaml:"apiKey"`
	Zip    string `json:"zip" yaml:"zip"` // US zip code
}

// TavilyServiceConfig contains Tavily search settings.
type TavilyServiceConfig struct {
	APIKey string `json:"apiKey" yaml:"apiKey"`
}

// OverseerrConfig contains Overseerr settings.
type OverseerrConfig struct {
	URL    string `json:"url" yaml:"url"`
	APIKey string `json:"apiKey" yaml:"apiKey"`
}

// PlexConfig is used only to build "watch it here" links.
type PlexConfig struct {
	URL   string `json:"url" yaml:"url"`
	Token string `json:"token" yaml:"token"` // server machine identifier in web URLs
}

// GoogleCalendarConfig contains Google Calendar settings.
type GoogleCalendarConfig struct {
	CalendarID         string `json:"calendarId" yaml:"calendarId"`
	ServiceAccountFile string `json:"serviceAccountFile" yaml:"serviceAccountFile"`
}

// Load reads .env (if present) and config.yaml, expands ${ENV} references,
// and applies defaults. Missing config file is an error; callers may fall
// back to DefaultConfig.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	// .env keeps secrets out of config.yaml. Absence is fine.
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Load() // also honor a .env in the working directory

	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the config to config.yaml.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// DataPath resolves the data directory (seen sets, lists, menus).
func (c *Config) DataPath() (string, error) {
	return c.resolveDir(c.DataDir)
}

// PromptsPath resolves the prompt override directory.
func (c *Config) PromptsPath() (string, error) {
	return c.resolveDir(c.PromptsDir)
}

func (c *Config) resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	base, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, dir), nil
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	path, err := c.DataPath()
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0755)
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, using UTC", "timezone", c.Timezone, "err", err)
		return time.UTC
	}
	return loc
}

// BuildLoggerConfig converts the logging section into a logger.Config.
func (c *Config) BuildLoggerConfig() logger.Config {
	enabled := true
	if c.Logging.Enabled != nil {
		enabled = *c.Logging.Enabled
	}
	return logger.Config{
		Enabled: enabled,
		Level:   c.Logging.Level,
		Stdout:  c.Logging.Stdout,
		File:    c.Logging.File,
	}
}

// ProviderFor returns the credentials block for a named provider.
func (c *Config) ProviderFor(name string) *ProviderConfig {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nanogpt":
		return c.Providers.NanoGPT
	case "anthropic":
		return c.Providers.Anthropic
	}
	return nil
}

// Validate checks the parts the serve command cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required (set DISCORD_TOKEN in .env)")
	}
	name := c.Providers.Default
	pc := c.ProviderFor(name)
	if pc == nil {
		return fmt.Errorf("providers.%s is not configured", name)
	}
	if strings.TrimSpace(pc.APIKey) == "" {
		return fmt.Errorf("providers.%s.apiKey is required", name)
	}
	return nil
}
