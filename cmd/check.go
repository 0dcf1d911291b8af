package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/linanwx/milo/config"
	"github.com/linanwx/milo/logger"
	"github.com/linanwx/milo/prompt"
	"github.com/linanwx/milo/provider"
	"github.com/linanwx/milo/service"
	"github.com/linanwx/milo/watch"
	"github.com/linanwx/milo/watcher"
)

var checkCmd = &cobra.Command{
	Use:   "check <watcher>",
	Short: "Fetch one watcher's feed and print what it would post",
	Long: `Run a single fetch for one watcher and print the items a serve loop
would announce, without posting anything or marking items seen.

Watchers: ai-news, minecraft, wow, sc-patch, rsi-status, nintendo,
sc-youtube, speeches.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir, err := cfg.DataPath()
	if err != nil {
		return err
	}

	// The dry run only fetches; the LLM is consulted at announce time, so
	// a missing API key is fine here.
	llm, err := buildProvider(cfg)
	if err != nil {
		logger.Debug("provider unavailable for check", "err", err)
		llm = nil
	}

	runner, err := buildCheckRunner(args[0], llm, loadPrompts(cfg), dataDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	items, seeding, err := runner.Preview(ctx)
	if err != nil {
		return err
	}

	switch {
	case seeding:
		fmt.Printf("%s has no seen state yet; a serve loop would record %d item(s) silently:\n", runner.Name(), len(items))
	case len(items) == 0:
		fmt.Printf("%s: nothing new.\n", runner.Name())
		return nil
	default:
		fmt.Printf("%s would announce %d item(s):\n", runner.Name(), len(items))
	}

	for _, it := range items {
		line := "  - " + it.Title
		if it.Source != "" {
			line = "  - [" + it.Source + "] " + it.Title
		}
		if it.URL != "" {
			line += "  " + it.URL
		}
		fmt.Println(line)
	}
	return nil
}

// buildCheckRunner constructs one watcher with an unbound announcer.
// Preview never announces, so the announcer is never used.
func buildCheckRunner(name string, llm provider.Provider, prompts *prompt.Registry, dataDir string) (*watch.Runner, error) {
	ann := watcher.NewAnnouncer(nil, "", nil)
	switch name {
	case "ai-news":
		return watcher.NewAINews(llm, prompts, dataDir, ann), nil
	case "minecraft":
		return watcher.NewMinecraft(dataDir, ann), nil
	case "wow":
		return watcher.NewWowPatch(llm, prompts, ann), nil
	case "sc-patch":
		return watcher.NewSCPatch(service.NewSpectrum(), llm, prompts, ann), nil
	case "rsi-status":
		return watcher.NewRSIStatus(ann), nil
	case "nintendo":
		return watcher.NewNintendo(service.NewReddit(redditUserAgent), llm, prompts, ann), nil
	case "sc-youtube":
		return watcher.NewSCYoutube(service.NewYtDlp(), dataDir, ann), nil
	case "speeches":
		return watcher.NewSpeeches(service.NewYtDlp(), llm, prompts, dataDir, ann), nil
	}
	return nil, fmt.Errorf("unknown watcher %q", name)
}
