package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"steward/internal/protocol"
	"steward/pkg/logging"
)

type TelegramNotifier struct {
	token  string
	chatID int64
	logger logging.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger logging.Logger) *TelegramNotifier {
	return &TelegramNotifier{token: token, chatID: chatID, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) IsConfigured() bool {
	return n.token != "" && n.chatID != 0
}

func (n *TelegramNotifier) Notify(ctx context.Context, report Report) error {
	bot, err := telebot.NewBot(telebot.Settings{Token: n.token})
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	_, err = bot.Send(telebot.ChatID(n.chatID), formatTelegramMessage(report))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func formatTelegramMessage(report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Check-in report (%s)\n\n", report.GeneratedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "✓ %d succeeded | ✗ %d failed\n", report.Succeeded, report.Failed)
	if report.BalanceChanged {
		b.WriteString("Balances changed since the previous run.\n")
	}
	b.WriteString("\n")

	for _, o := range report.Outcomes {
		b.WriteString(formatOutcomeLine(o))
	}
	return b.String()
}

func formatOutcomeLine(o protocol.Outcome) string {
	icon := "❌"
	if o.Success {
		icon = "✅"
	}
	line := fmt.Sprintf("%s [%s] %s\n    %s\n", icon, o.Platform.DisplayName(), o.Account, o.Message)
	if o.Balance != nil {
		line += fmt.Sprintf("    💰 $%.2f available, $%.2f used\n", o.Balance.Quota, o.Balance.Used)
	}
	return line
}
