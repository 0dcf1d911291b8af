package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/config"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a one-off message to a Discord channel",
	Long: `Connect, deliver one message, and disconnect. Useful for testing
channel IDs and for announcements from shell scripts.`,
	RunE: runSend,
}

var (
	sendTo    string
	sendText  string
	sendTitle string
)

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Discord channel ID (defaults to the log channel)")
	sendCmd.Flags().StringVar(&sendText, "text", "", "message text (required)")
	sendCmd.Flags().StringVar(&sendTitle, "title", "", "wrap the text in an embed with this title")
	_ = sendCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(sendCmd)
}

func runSend(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord token not configured")
	}

	to := strings.TrimSpace(sendTo)
	if to == "" {
		to = strings.TrimSpace(cfg.Discord.LogChannel)
	}
	if to == "" {
		return fmt.Errorf("--to is required (no log channel configured as fallback)")
	}

	ch := channel.NewDiscordChannel(cfg.Discord.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	defer func() { _ = ch.Stop() }()

	resp := &channel.Response{ChannelID: to, Text: strings.TrimSpace(sendText)}
	if title := strings.TrimSpace(sendTitle); title != "" {
		resp = &channel.Response{
			ChannelID: to,
			Embed:     &channel.Embed{Title: title, Description: strings.TrimSpace(sendText)},
		}
	}

	if err := ch.Send(ctx, resp); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Println("Message sent to", to)
	return nil
}
