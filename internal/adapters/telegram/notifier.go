package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/internal/adapters/config"
	"github.com/selivandex/regime-engine/pkg/logger"
	"github.com/selivandex/regime-engine/pkg/models"
)

// Notifier sends regime change alerts to the configured chat
type Notifier struct {
	api *tgbotapi.BotAPI
	cfg *config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api: bot,
		cfg: cfg,
	}, nil
}

// SendRegimeAlert notifies that the classified regime flipped for a pair
func (n *Notifier) SendRegimeAlert(symbol, timeframe string, from, to models.RegimeState, score float64) error {
	if !n.cfg.AlertOnRegimes {
		return nil
	}

	text := fmt.Sprintf(
		"%s *Regime change* %s %s\n`%s` → `%s`\nscore: %.3f\n%s",
		regimeEmoji(to),
		symbol,
		timeframe,
		from,
		to,
		score,
		time.Now().UTC().Format("2006-01-02 15:04 MST"),
	)

	msg := tgbotapi.NewMessage(n.cfg.ChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send regime alert: %w", err)
	}

	return nil
}

func regimeEmoji(state models.RegimeState) string {
	switch state {
	case models.RegimeStrongBull:
		return "🚀"
	case models.RegimeBull:
		return "📈"
	case models.RegimeBear:
		return "📉"
	case models.RegimeStrongBear:
		return "🔻"
	default:
		return "➖"
	}
}
