// Package telegram sends a run summary via the Telegram Bot API.
// Messages use MarkdownV2 and delivery is retried with a linear backoff.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/cohortdecay/internal/models"
)

// curvePreview is how many pledge-years of the weighted curve a summary lists
const curvePreview = 8

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendRun sends the summary of a finished run
func (c *Client) SendRun(run *models.Run) error {
	msg := tgbotapi.NewMessage(c.chatID, formatRun(run))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatRun renders a run as a MarkdownV2 message
func formatRun(run *models.Run) string {
	var b strings.Builder

	b.WriteString("*Pledge reporting decay*\n\n")
	b.WriteString(fmt.Sprintf("Run: `%s`\n", escapeMarkdownV2(run.ID)))
	b.WriteString(fmt.Sprintf("Date: %s\n", escapeMarkdownV2(run.CreatedAt.Format("2006-01-02 15:04:05"))))
	b.WriteString(fmt.Sprintf("Cohorts: %d\n\n", len(run.Cohorts)))

	b.WriteString(fmt.Sprintf("Weighted decay from year %d: *%s*\n\n",
		run.CutoffIndex, escapeMarkdownV2(fmt.Sprintf("%.1f%%", run.CutoffDecay*100))))

	n := len(run.Curve.Values)
	if n > curvePreview {
		n = curvePreview
	}
	if n > 0 {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Weighted curve (reference %s):", run.ReferenceCohort)))
		b.WriteString("\n")
	}
	for i := 0; i < n; i++ {
		line := fmt.Sprintf("  year %d: %.1f%% (weight %.0f)", i, run.Curve.Values[i]*100, run.Curve.Weights[i])
		b.WriteString(escapeMarkdownV2(line))
		b.WriteString("\n")
	}
	if len(run.Curve.Values) > n {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("  ... %d more", len(run.Curve.Values)-n)))
		b.WriteString("\n")
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
