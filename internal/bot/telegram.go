package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/erarta/api.neucor.ai/internal/db"
	"github.com/erarta/api.neucor.ai/internal/ml"
	"github.com/erarta/api.neucor.ai/internal/payment"
	"github.com/erarta/api.neucor.ai/internal/profile"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

// Profile questionnaire states.
const (
	StateAge      = "age"
	StateGender   = "gender"
	StateHeight   = "height"
	StateWeight   = "weight"
	StateActivity = "activity"
	StateGoal     = "goal"
)

// profileSession tracks one user's progress through the /profile
// questionnaire. Sessions are in-process only; the collected fields are
// persisted in a single upsert at the end.
type profileSession struct {
	State  string
	Fields profile.Fields
}

type TelegramBot struct {
	bot        *tgbotapi.BotAPI
	db         *db.PostgresDB
	flow       *payment.Flow
	profiles   *profile.Service
	mlClient   *ml.Client
	logger     *logger.Logger
	sessions   map[int64]*profileSession
	stateMutex sync.RWMutex
}

func NewTelegramBot(token string, database *db.PostgresDB, flow *payment.Flow, profiles *profile.Service, mlClient *ml.Client, logger *logger.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Infow("Authorized on Telegram", "username", bot.Self.UserName)

	return &TelegramBot{
		bot:      bot,
		db:       database,
		flow:     flow,
		profiles: profiles,
		mlClient: mlClient,
		logger:   logger,
		sessions: make(map[int64]*profileSession),
	}, nil
}

// Start begins receiving updates from Telegram via polling.
func (t *TelegramBot) Start(ctx context.Context) error {
	t.logger.Info("Removing any existing webhook")
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: true,
	})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := t.bot.GetUpdatesChan(updateConfig)

	t.logger.Info("Started receiving Telegram updates")

	go t.handleUpdates(ctx, updates)

	return nil
}

// handleUpdates processes incoming updates, one goroutine per update.
// A panic in a handler is recovered and logged; a single bad event must
// never take the process down.
func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		go func(update tgbotapi.Update) {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Errorw("Recovered from panic while processing update",
						"update_id", update.UpdateID, "panic", r)
				}
			}()

			handlerCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
			defer cancel()

			switch {
			case update.PreCheckoutQuery != nil:
				t.handlePreCheckout(handlerCtx, update.PreCheckoutQuery)
			case update.Message != nil && update.Message.SuccessfulPayment != nil:
				t.handleSuccessfulPayment(handlerCtx, update.Message)
			case update.Message != nil && update.Message.IsCommand():
				t.handleCommand(handlerCtx, update.Message)
			case update.Message != nil && len(update.Message.Photo) > 0:
				t.handlePhoto(handlerCtx, update.Message)
			case update.Message != nil:
				t.handleMessage(handlerCtx, update.Message)
			case update.CallbackQuery != nil:
				t.handleCallbackQuery(handlerCtx, update.CallbackQuery)
			}
		}(update)
	}
}

// Stop gracefully shuts down the bot.
func (t *TelegramBot) Stop(ctx context.Context) error {
	t.bot.StopReceivingUpdates()

	// Allow time for in-flight handlers to complete
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

func (t *TelegramBot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Errorw("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (t *TelegramBot) replyWithKeyboard(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Errorw("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (t *TelegramBot) session(userID int64) (*profileSession, bool) {
	t.stateMutex.RLock()
	defer t.stateMutex.RUnlock()
	s, ok := t.sessions[userID]
	return s, ok
}

func (t *TelegramBot) setSession(userID int64, s *profileSession) {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	if s == nil {
		delete(t.sessions, userID)
		return
	}
	t.sessions[userID] = s
}
