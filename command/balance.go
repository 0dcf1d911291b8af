package command

import (
	"context"
	"fmt"
	"time"

	"github.com/linanwx/milo/channel"
	"github.com/linanwx/milo/provider"
)

// lowBalanceUSD is where the balance embed turns red.
const lowBalanceUSD = 5.0

// BalanceReporter posts the provider's remaining credit to the log channel.
// The twelve-hour job and the !balance command share it.
type BalanceReporter struct {
	checker   provider.BalanceChecker
	ch        channel.Channel
	channelID string
}

// NewBalanceReporter creates the reporter. A nil checker or empty channelID
// turns Report into a no-op so wiring stays unconditional.
func NewBalanceReporter(checker provider.BalanceChecker, ch channel.Channel, channelID string) *BalanceReporter {
	return &BalanceReporter{checker: checker, ch: ch, channelID: channelID}
}

// Command returns the !balance handler.
func (b *BalanceReporter) Command() HandlerFunc {
	return func(ctx context.Context, _ *channel.Message, _ string) error {
		return b.Report(ctx)
	}
}

// Report fetches the balance and posts the embed.
func (b *BalanceReporter) Report(ctx context.Context) error {
	if b.checker == nil || b.channelID == "" {
		return nil
	}
	bal, err := b.checker.Balance(ctx)
	if err != nil {
		return fmt.Errorf("check balance: %w", err)
	}
	return b.ch.Send(ctx, &channel.Response{ChannelID: b.channelID, Embed: balanceEmbed(bal)})
}

func balanceEmbed(bal *provider.Balance) *channel.Embed {
	embed := &channel.Embed{
		Title:       "💰 NanoGPT Balance",
		Description: fmt.Sprintf("$%.2f remaining", bal.USD),
		Color:       colorGreen,
		Timestamp:   time.Now(),
	}
	if bal.USD < lowBalanceUSD {
		embed.Title = "⚠️ NanoGPT Balance Low"
		embed.Description += ", time to top up"
		embed.Color = colorRed
	}
	if bal.HasNano {
		embed.Fields = append(embed.Fields, channel.EmbedField{
			Name: "Nano", Value: fmt.Sprintf("%.4f Ӿ", bal.Nano), Inline: true,
		})
	}
	return embed
}
