package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/pkg/utils"
)

// Controller — срез движка, доступный боту. Бот никогда не торгует сам:
// управляющие команды встают в очередь движка и исполняются на проходе.
type Controller interface {
	Status() *domain.StatusSnapshot
	PnL() (realized, unrealized float64)
	Pause()
	Resume()
	ClearAttention(symbol string) error
	EnqueueManual(cmd *domain.ManualCommand) error
}

const maxCommandsPerSecond = 3

type Bot struct {
	api        *tgbotapi.BotAPI
	chatID     int64
	logger     *utils.Logger
	auth       *AuthManager
	controller Controller
}

// NewBot создает и авторизует телеграм-бота
func NewBot(token string, chatID int64, adminIDs string, controller Controller, logger *utils.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	return &Bot{
		api:        api,
		chatID:     chatID,
		logger:     logger,
		auth:       NewAuthManager(adminIDs),
		controller: controller,
	}, nil
}

// Start запускает обработку сообщений
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.SendMessage("🤖 PowerTrader started!\nUse /help to see available commands.")

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if update.Message.Chat.ID != b.chatID {
			b.logger.Warn("Unauthorized access attempt from chat ID: %d", update.Message.Chat.ID)
			continue
		}
		go b.handleMessage(update.Message)
	}
}

// SendMessage отправляет сообщение в рабочий чат
func (b *Bot) SendMessage(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send telegram message: %v", err)
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}

	userID := message.From.ID
	if err := b.auth.CheckRateLimit(userID, maxCommandsPerSecond); err != nil {
		b.SendMessage(fmt.Sprintf("⚠️ %v", err))
		return
	}

	args, err := ParseCommand(message.Text)
	if err != nil {
		b.SendMessage(fmt.Sprintf("❌ %v", err))
		return
	}
	b.logger.Info("Telegram command /%s from user %d", args.Command, userID)

	switch args.Command {
	case "start", "help":
		b.SendMessage(FormatHelp())

	case "status":
		b.SendMessage(FormatStatus(b.controller.Status()))

	case "positions":
		b.SendMessage(FormatPositions(b.controller.Status()))

	case "pnl":
		realized, unrealized := b.controller.PnL()
		b.SendMessage(FormatPnL(realized, unrealized))

	case "pause":
		if !b.requireAdmin(userID) {
			return
		}
		b.controller.Pause()
		b.SendMessage("⏸ Trading paused. Open positions are kept, no new orders will be placed.")

	case "resume":
		if !b.requireAdmin(userID) {
			return
		}
		b.controller.Resume()
		b.SendMessage("🚀 Trading resumed.")

	case "clear":
		if !b.requireAdmin(userID) {
			return
		}
		if err := b.controller.ClearAttention(args.Symbol); err != nil {
			b.SendMessage(fmt.Sprintf("❌ %v", err))
			return
		}
		b.SendMessage(fmt.Sprintf("✅ Attention flag cleared for %s", args.Symbol))

	case "buy":
		if !b.requireAdmin(userID) {
			return
		}
		cmd := &domain.ManualCommand{
			Action:    domain.ManualActionBuy,
			Symbol:    args.Symbol,
			AmountUSD: args.Amount,
		}
		if err := b.controller.EnqueueManual(cmd); err != nil {
			b.SendMessage(fmt.Sprintf("❌ %v", err))
			return
		}
		b.SendMessage(fmt.Sprintf("📨 Manual buy of %s for $%.2f queued for the next sweep", args.Symbol, args.Amount))

	case "sell":
		if !b.requireAdmin(userID) {
			return
		}
		cmd := &domain.ManualCommand{
			Action: domain.ManualActionSellAll,
			Symbol: args.Symbol,
		}
		if err := b.controller.EnqueueManual(cmd); err != nil {
			b.SendMessage(fmt.Sprintf("❌ %v", err))
			return
		}
		b.SendMessage(fmt.Sprintf("📨 Manual sell of the whole %s position queued for the next sweep", args.Symbol))
	}
}

func (b *Bot) requireAdmin(userID int64) bool {
	if b.auth.IsAdmin(userID) {
		return true
	}
	b.SendMessage("🚫 Admin permission required")
	return false
}
