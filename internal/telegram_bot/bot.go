package telegram_bot

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/config"
	"github.com/k1tz03/Forkfall/internal/models"
)

// ForkResolver closes every open report on a fork.
type ForkResolver interface {
	ResolveFork(ctx context.Context, forkID uuid.UUID, terminal string, now time.Time) (int, error)
}

// sender is the subset of the Bot API the bot uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot posts auto-hidden forks to the moderator chat and applies the
// moderators' button presses.
type Bot struct {
	api     *tgbotapi.BotAPI
	send    sender
	chatID  int64
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewBot creates a new Telegram bot instance, or nil when notifications are disabled.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	tg := cfg.Moderation.Telegram
	if !tg.Enabled || tg.BotToken == "" {
		logger.Info("Telegram bot is disabled (moderation.telegram.enabled=false or token is empty)")
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPI(tg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:     botAPI,
		send:    botAPI,
		chatID:  tg.ModeratorChatID,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Start begins listening for updates from Telegram until ctx is done.
func (b *Bot) Start(ctx context.Context, resolver ForkResolver) error {
	if b == nil {
		return nil // Bot is disabled
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallbackQuery(ctx, resolver, update.CallbackQuery)
			} else if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}
}

// handleCallbackQuery processes "action:<fork_id>" and "dismiss:<fork_id>" presses.
func (b *Bot) handleCallbackQuery(ctx context.Context, resolver ForkResolver, query *tgbotapi.CallbackQuery) {
	b.logger.Info("Received callback query",
		zap.String("data", query.Data),
		zap.Int64("user_id", query.From.ID),
	)

	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.send.Request(callback); err != nil {
		b.logger.Error("Failed to send callback response", zap.Error(err))
	}

	if query.Message == nil || query.Message.Chat == nil || query.Message.Chat.ID != b.chatID {
		b.logger.Warn("Ignoring callback from outside the moderator chat", zap.Int64("user_id", query.From.ID))
		return
	}

	action, forkID, err := parseCallbackData(query.Data)
	if err != nil {
		b.logger.Error("Failed to parse callback data", zap.String("data", query.Data), zap.Error(err))
		b.sendMessage(b.chatID, "Could not process that button.")
		return
	}

	terminal := models.ReportStateDismissed
	if action == "action" {
		terminal = models.ReportStateActioned
	}

	resolved, err := resolver.ResolveFork(ctx, forkID, terminal, b.nowFunc())
	if err != nil {
		b.logger.Error("Failed to resolve fork reports", zap.String("fork_id", forkID.String()), zap.Error(err))
		b.sendMessage(b.chatID, "Failed to update reports for fork "+forkID.String())
		return
	}

	b.logger.Info("Fork reports resolved",
		zap.String("fork_id", forkID.String()),
		zap.String("state", terminal),
		zap.Int("reports", resolved),
		zap.Int64("moderator_id", query.From.ID),
	)

	responseMessage := fmt.Sprintf("%s by @%s (%d reports)", terminal, query.From.UserName, resolved)
	edit := tgbotapi.NewEditMessageText(
		query.Message.Chat.ID,
		query.Message.MessageID,
		query.Message.Text+"\n\n"+responseMessage,
	)
	if _, err := b.send.Send(edit); err != nil {
		b.logger.Error("Failed to edit message", zap.Error(err))
	}
}

func parseCallbackData(data string) (string, uuid.UUID, error) {
	action, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return "", uuid.Nil, fmt.Errorf("invalid format")
	}
	if action != "action" && action != "dismiss" {
		return "", uuid.Nil, fmt.Errorf("unknown action %q", action)
	}
	forkID, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid fork id: %w", err)
	}
	return action, forkID, nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	switch message.Command() {
	case "start", "help":
		b.sendMessage(message.Chat.ID, fmt.Sprintf(
			"Forkfall moderation bot.\n\n"+
				"Forks hidden by reports are posted to the moderator chat with two buttons:\n"+
				"Action - mark the reports actioned and lower the creator's trust\n"+
				"Dismiss - close the reports and restore visibility\n\n"+
				"This chat ID: %d", message.Chat.ID))
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help.")
	}
}

// NotifyHidden posts the hidden fork to the moderator chat.
func (b *Bot) NotifyHidden(_ context.Context, fork *models.Fork, reports []*models.Report) error {
	if b == nil {
		return fmt.Errorf("bot is disabled")
	}

	reasons := make(map[string]int)
	for _, r := range reports {
		reasons[r.Reason]++
	}
	var summary []string
	for _, reason := range []string{
		models.ReportReasonInappropriate, models.ReportReasonSpam, models.ReportReasonHarassment,
		models.ReportReasonHateSpeech, models.ReportReasonOther,
	} {
		if n := reasons[reason]; n > 0 {
			summary = append(summary, fmt.Sprintf("%s x%d", reason, n))
		}
	}

	text := fmt.Sprintf(
		"Fork hidden by reports\n\n"+
			"ID: %s\n"+
			"Lane: %s\n"+
			"Prompt: %s\n"+
			"Choices: %s / %s\n\n"+
			"Reports: %s",
		fork.ID, fork.Lane, preview(fork.Prompt, 150), fork.LeftLabel, fork.RightLabel, strings.Join(summary, ", "),
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Action", "action:"+fork.ID.String()),
			tgbotapi.NewInlineKeyboardButtonData("Dismiss", "dismiss:"+fork.ID.String()),
		),
	)

	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ReplyMarkup = keyboard

	if _, err := b.send.Send(msg); err != nil {
		b.logger.Error("Failed to send hidden fork notification",
			zap.Int64("chat_id", b.chatID),
			zap.String("fork_id", fork.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send notification: %w", err)
	}

	b.logger.Info("Hidden fork notification sent", zap.String("fork_id", fork.ID.String()))
	return nil
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// sendMessage is a helper to send a simple text message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.send.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
