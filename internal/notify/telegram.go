package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/render"
)

// TelegramNotifier sends alerts to one or more Telegram chats.
type TelegramNotifier struct {
	botToken string
	chatIDs  []string
	bot      *bot.Bot
}

// NewTelegramNotifier creates a Telegram notifier. With an empty token the
// notifier is a no-op.
func NewTelegramNotifier(botToken string, chatIDs []string) *TelegramNotifier {
	t := &TelegramNotifier{botToken: botToken, chatIDs: chatIDs}
	if botToken == "" {
		return t
	}

	b, err := bot.New(botToken, bot.WithSkipGetMe())
	if err != nil {
		log.Warn().Err(err).Msg("telegram_init_failed")
		return t
	}
	t.bot = b
	return t
}

// IsConfigured reports whether the notifier can deliver messages.
func (t *TelegramNotifier) IsConfigured() bool {
	return t.botToken != "" && len(t.chatIDs) > 0 && t.bot != nil
}

// Send delivers each alert to every configured chat. Per-chat failures are
// logged; Send fails only when no chat received the message.
func (t *TelegramNotifier) Send(ctx context.Context, alerts []model.Alert) error {
	if !t.IsConfigured() {
		return nil
	}

	for _, alert := range alerts {
		text := formatAlert(alert)

		delivered := 0
		var lastErr error
		for _, chatID := range t.chatIDs {
			_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   text,
			})
			if err != nil {
				log.Warn().Err(err).Str("chat_id", chatID).Msg("telegram_send_failed")
				lastErr = err
				continue
			}
			delivered++
		}
		if delivered == 0 && lastErr != nil {
			return fmt.Errorf("telegram delivery failed for all chats: %w", lastErr)
		}
	}
	return nil
}

// formatAlert renders an alert as a compact plain-text message.
func formatAlert(a model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", a.Severity, a.SignalType)
	fmt.Fprintf(&b, "Market: %s\n", a.Market.Question)
	fmt.Fprintf(&b, "%s\n", a.Description)

	switch d := a.Details.(type) {
	case model.LargeTradeDetails:
		fmt.Fprintf(&b, "Wallet: %s\n", render.FormatWallet(d.Wallet, 12))
		fmt.Fprintf(&b, "Size percentile: %.1f%%\n", d.Percentile)
		if d.TimeToResolutionHours != nil {
			fmt.Fprintf(&b, "Resolves in: %.1fh\n", *d.TimeToResolutionHours)
		}
	case model.VolumeAnomalyDetails:
		fmt.Fprintf(&b, "Z-score: %.1f, recent volume %s (%.1fx expected)\n",
			d.ZScore, render.FormatUSD(d.RecentVolumeUSD), d.VolumeMultiplier)
	case model.ClusterDetails:
		fmt.Fprintf(&b, "%d wallets, %d markets, %s total, coordination %.0f%%\n",
			d.ClusterSize, d.MarketsCount, render.FormatUSD(d.TotalVolumeUSD), d.CoordinationScore*100)
	}

	fmt.Fprintf(&b, "Detected: %s", a.Timestamp.Format("2006-01-02 15:04 UTC"))
	return b.String()
}
