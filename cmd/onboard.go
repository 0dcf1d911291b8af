package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/linanwx/milo/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize milo configuration",
	Long: `Walk through the initial setup and write config.yaml plus a .env file
holding the secrets. Channel IDs and the optional services are left for a
config.yaml edit afterwards.`,
	RunE: runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

// providerURLs maps provider names to their API key portal URLs.
var providerURLs = map[string]string{
	"nanogpt":   "https://nano-gpt.com/api",
	"anthropic": "https://console.anthropic.com",
}

func runOnboard(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists at:", configPath)
		fmt.Println("To reconfigure, edit the file directly or delete it first.")
		return nil
	}

	// --- interactive wizard ---

	var (
		token      string
		ownerID    string
		logChannel string
	)

	// Step 1: Discord connection
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				Description("Create a bot at https://discord.com/developers/applications and paste its token.").
				EchoMode(huh.EchoModePassword).
				Validate(requireValue("bot token")).
				Value(&token),
			huh.NewInput().
				Title("Owner user ID").
				Description("Your Discord user ID. Owner-only commands like !setuproles check it.").
				Value(&ownerID),
			huh.NewInput().
				Title("Log channel ID").
				Description("Channel for warnings, !status, and the balance report. Optional.").
				Value(&logChannel),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 2: select LLM provider
	var selectedProvider string
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose your LLM provider").
				Description("Powers the ask channel, briefings, and feed summaries.").
				Options(
					huh.NewOption("nanogpt (chat, images, balance) [Recommended]", "nanogpt"),
					huh.NewOption("anthropic (chat only)", "anthropic"),
				).
				Value(&selectedProvider),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 3: API key
	var apiKey string
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your "+selectedProvider+" API key").
				Description("Create one at "+providerURLs[selectedProvider]).
				EchoMode(huh.EchoModePassword).
				Validate(requireValue("API key")).
				Value(&apiKey),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 4: optional services
	var configureServices bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Configure weather and web search?").
				Description("Weather powers the morning briefing, Tavily powers ask-channel search. You can skip and fill in config.yaml later.").
				Value(&configureServices),
		),
	).Run()
	if err != nil {
		return err
	}

	var owmKey, owmZip, tavilyKey string
	if configureServices {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("OpenWeatherMap API key").
					Description("From https://openweathermap.org/api. Leave empty to skip weather.").
					Value(&owmKey),
				huh.NewInput().
					Title("US zip code for the forecast").
					Value(&owmZip),
				huh.NewInput().
					Title("Tavily API key").
					Description("From https://app.tavily.com. Leave empty to skip search.").
					Value(&tavilyKey),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// --- apply config ---

	// Secrets go into .env; config.yaml only carries ${VAR} references,
	// expanded at load time.
	env := map[string]string{"DISCORD_TOKEN": strings.TrimSpace(token)}

	cfg := config.DefaultConfig()
	cfg.Discord.Token = "${DISCORD_TOKEN}"
	cfg.Discord.OwnerID = strings.TrimSpace(ownerID)
	cfg.Discord.LogChannel = strings.TrimSpace(logChannel)
	cfg.Providers.Default = selectedProvider

	switch selectedProvider {
	case "nanogpt":
		cfg.Providers.NanoGPT.APIKey = "${NANOGPT_API_KEY}"
		env["NANOGPT_API_KEY"] = strings.TrimSpace(apiKey)
	case "anthropic":
		cfg.Providers.Anthropic = &config.ProviderConfig{APIKey: "${ANTHROPIC_API_KEY}"}
		env["ANTHROPIC_API_KEY"] = strings.TrimSpace(apiKey)
	}

	if k := strings.TrimSpace(owmKey); k != "" {
		cfg.Services.Weather = &config.WeatherServiceConfig{APIKey: "${OWM_API_KEY}", Zip: strings.TrimSpace(owmZip)}
		env["OWM_API_KEY"] = k
	}
	if k := strings.TrimSpace(tavilyKey); k != "" {
		cfg.Services.Tavily = &config.TavilyServiceConfig{APIKey: "${TAVILY_API_KEY}"}
		env["TAVILY_API_KEY"] = k
	}

	// --- create directories and files ---

	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	envPath := filepath.Join(configDir, ".env")
	if err := writeEnvFile(envPath, env); err != nil {
		return fmt.Errorf("write .env: %w", err)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Println()
	fmt.Println("milo initialized!")
	fmt.Println()
	fmt.Println("  Config:", configPath)
	fmt.Println("  Secrets:", envPath)
	fmt.Println("  Provider:", selectedProvider)
	fmt.Println()
	fmt.Println("Channel IDs are still empty. Add them under channels: in config.yaml,")
	fmt.Println("then run 'milo serve'.")
	return nil
}

func requireValue(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// writeEnvFile writes KEY=value lines, sorted so reruns diff cleanly.
func writeEnvFile(path string, env map[string]string) error {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(env[k])
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0600)
}
