package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/db"
	"github.com/erarta/api.neucor.ai/internal/models"
	"github.com/erarta/api.neucor.ai/internal/payment"
	"github.com/erarta/api.neucor.ai/internal/profile"
)

const genericFailure = "Sorry, something went wrong. Please try again later."

func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()
	chatID := message.Chat.ID
	telegramID := message.From.ID

	t.logger.Infow("Handling command", "command", command, "telegram_id", telegramID)

	switch command {
	case "start":
		t.handleStart(ctx, message)
	case "help":
		t.handleHelp(ctx, message)
	case "status":
		t.handleStatus(ctx, message)
	case "buy":
		t.handleBuy(ctx, message)
	case "daily":
		t.handleDaily(ctx, message)
	case "profile":
		t.handleProfileStart(ctx, message)
	case "language":
		t.handleLanguage(ctx, message)
	default:
		t.reply(chatID, "Unknown command. Use /help to see what I can do.")
	}
}

func (t *TelegramBot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	user, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{
		Language: message.From.LanguageCode,
	})
	if err != nil {
		t.logger.Errorw("Failed to get or create user", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	t.journal(ctx, user.ID, models.ActionStart, nil)

	t.reply(chatID, fmt.Sprintf(
		"Welcome! Send me a food photo and I'll estimate its calories, proteins, fats and carbs.\n\n"+
			"You have %d credits. Each photo analysis costs 1 credit.\n\n"+
			"Commands:\n"+
			"/profile - set up your profile for a daily calorie target\n"+
			"/daily - today's nutrition summary\n"+
			"/status - your account\n"+
			"/buy - buy more credits",
		user.CreditsRemaining))
}

func (t *TelegramBot) handleHelp(ctx context.Context, message *tgbotapi.Message) {
	if user, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{}); err == nil {
		t.journal(ctx, user.ID, models.ActionHelp, nil)
	}
	t.reply(message.Chat.ID,
		"Send a food photo to analyze it (1 credit per photo).\n\n"+
			"/profile - fill in your profile to get a personal daily calorie target\n"+
			"/daily - what you've eaten today\n"+
			"/status - credits and account info\n"+
			"/buy - buy credit packs\n"+
			"/language en|ru - change language")
}

func (t *TelegramBot) handleStatus(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	user, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{})
	if err != nil {
		t.logger.Errorw("Failed to load user for status", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	totalPaid := t.db.TotalPaid(ctx, user.ID)
	t.journal(ctx, user.ID, models.ActionStatus, nil)

	text := fmt.Sprintf("Credits remaining: %d\nTotal paid: %.2f", user.CreditsRemaining, totalPaid)

	if p, err := t.profiles.Get(ctx, user.ID); err == nil && p != nil && p.DailyCaloriesTarget > 0 {
		text += fmt.Sprintf("\nDaily calorie target: %d kcal", p.DailyCaloriesTarget)
	}

	t.reply(chatID, text)
}

func (t *TelegramBot) handleBuy(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	user, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{})
	if err != nil {
		t.logger.Errorw("Failed to load user for buy", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}
	t.journal(ctx, user.ID, models.ActionBuy, nil)

	basic := payment.Plans["basic"]
	pro := payment.Plans["pro"]
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s - %d credits (%.0f %s)", basic.Title, basic.Credits, basic.PriceMajor(), basic.Currency),
				"buy_basic"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s - %d credits (%.0f %s)", pro.Title, pro.Credits, pro.PriceMajor(), pro.Currency),
				"buy_pro"),
		),
	)

	t.replyWithKeyboard(chatID, "Choose a credit pack:", markup)
}

func (t *TelegramBot) handleDaily(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	user, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{})
	if err != nil {
		t.logger.Errorw("Failed to load user for daily summary", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	summary, err := t.db.DailySummary(ctx, user.ID, time.Now())
	if err != nil {
		t.logger.Errorw("Failed to build daily summary", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	t.journal(ctx, user.ID, models.ActionDaily, nil)

	if summary.FoodItemsCount == 0 {
		t.reply(chatID, "No food photos analyzed today yet. Send me one!")
		return
	}

	text := fmt.Sprintf(
		"Today (%s), %d meals:\n"+
			"Calories: %.1f kcal\n"+
			"Proteins: %.1f g\n"+
			"Fats: %.1f g\n"+
			"Carbs: %.1f g",
		summary.Date, summary.FoodItemsCount,
		summary.TotalCalories, summary.TotalProteins, summary.TotalFats, summary.TotalCarbs)

	if p, err := t.profiles.Get(ctx, user.ID); err == nil && p != nil && p.DailyCaloriesTarget > 0 {
		remaining := float64(p.DailyCaloriesTarget) - summary.TotalCalories
		text += fmt.Sprintf("\n\nTarget: %d kcal, remaining: %.1f kcal", p.DailyCaloriesTarget, remaining)
	}

	t.reply(chatID, text)
}

func (t *TelegramBot) handleLanguage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	lang := strings.TrimSpace(message.CommandArguments())

	err := t.db.UpdateUserLanguage(ctx, message.From.ID, lang)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			t.reply(chatID, "Supported languages: en, ru. Example: /language en")
			return
		}
		t.logger.Errorw("Failed to update language", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	t.reply(chatID, "Language updated.")
}

// handlePhoto runs a photo analysis: balance check, credit decrement,
// ML call, journal entry, and a reply with the day's running totals.
func (t *TelegramBot) handlePhoto(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	telegramID := message.From.ID

	user, err := t.db.GetOrCreateUser(ctx, telegramID, db.NewUserOptions{})
	if err != nil {
		t.logger.Errorw("Failed to load user for photo analysis", "telegram_id", telegramID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	if user.CreditsRemaining < 1 {
		t.reply(chatID, "You're out of credits. Use /buy to get more.")
		return
	}

	// Largest photo size is last in the slice.
	photo := message.Photo[len(message.Photo)-1]
	photoURL, err := t.bot.GetFileDirectURL(photo.FileID)
	if err != nil {
		t.logger.Errorw("Failed to resolve photo URL", "telegram_id", telegramID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	if _, err := t.db.DecrementCredits(ctx, telegramID, 1); err != nil {
		t.logger.Errorw("Failed to decrement credits", "telegram_id", telegramID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	t.reply(chatID, "Analyzing your photo...")

	kbzhu, err := t.mlClient.Analyze(ctx, telegramID, photoURL)
	if err != nil {
		t.logger.Errorw("Photo analysis failed", "telegram_id", telegramID, "error", err)
		t.reply(chatID, "Analysis failed, please try another photo.")
		return
	}

	entry := &models.LogEntry{
		UserID:     user.ID,
		ActionType: models.ActionPhotoAnalysis,
		PhotoURL:   photoURL,
		KBZHU:      kbzhu,
		ModelUsed:  t.mlClient.Model(),
	}
	if err := t.db.RecordAction(ctx, entry); err != nil {
		t.logger.Errorw("Failed to journal photo analysis", "telegram_id", telegramID, "error", err)
	}

	text := fmt.Sprintf(
		"Estimated nutrition:\n"+
			"Calories: %.1f kcal\n"+
			"Proteins: %.1f g\n"+
			"Fats: %.1f g\n"+
			"Carbs: %.1f g",
		kbzhu.Calories, kbzhu.Proteins, kbzhu.Fats, kbzhu.Carbohydrates)

	if summary, err := t.db.DailySummary(ctx, user.ID, time.Now()); err == nil {
		text += fmt.Sprintf("\n\nToday so far: %.1f kcal over %d meals",
			summary.TotalCalories, summary.FoodItemsCount)
	}

	t.reply(chatID, text)
}

// handleMessage routes shared contacts and free-form text; text outside
// a questionnaire session gets a hint instead of silence.
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Contact != nil {
		t.handleContact(ctx, message)
		return
	}

	session, ok := t.session(message.From.ID)
	if !ok {
		t.reply(message.Chat.ID, "Send me a food photo, or use /help to see the commands.")
		return
	}
	t.advanceProfileSession(ctx, message, session)
}

func (t *TelegramBot) handleContact(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if _, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{}); err != nil {
		t.logger.Errorw("Failed to load user for contact update", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	if err := t.db.UpdateUserContact(ctx, message.From.ID, "", message.Contact.PhoneNumber); err != nil {
		t.logger.Errorw("Failed to save contact", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	t.reply(chatID, "Thanks, your contact details are saved.")
}

func (t *TelegramBot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	t.logger.Infow("Received callback query", "telegram_id", callback.From.ID, "data", callback.Data)

	// Acknowledge to remove the loading state.
	if _, err := t.bot.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		t.logger.Errorw("Failed to answer callback", "error", err)
	}

	if planID, ok := strings.CutPrefix(callback.Data, "buy_"); ok {
		t.sendInvoice(ctx, callback.Message.Chat.ID, planID, callback.From.ID)
	}
}

func (t *TelegramBot) sendInvoice(ctx context.Context, chatID int64, planID string, telegramID int64) {
	// The payer must exist before pre-checkout validates them.
	if _, err := t.db.GetOrCreateUser(ctx, telegramID, db.NewUserOptions{}); err != nil {
		t.logger.Errorw("Failed to ensure user before invoice", "telegram_id", telegramID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	invoice, err := t.flow.Invoice(chatID, planID, telegramID)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrConfiguration):
			t.reply(chatID, "Payment system is not configured. Please contact support.")
		case errors.Is(err, apperror.ErrValidation):
			t.reply(chatID, "Invalid payment plan selected.")
		default:
			t.logger.Errorw("Failed to create invoice", "telegram_id", telegramID, "error", err)
			t.reply(chatID, "Failed to create payment. Please try again later.")
		}
		return
	}

	if _, err := t.bot.Send(invoice); err != nil {
		t.logger.Errorw("Failed to send invoice", "telegram_id", telegramID, "error", err)
		t.reply(chatID, "Failed to create payment. Please try again later.")
	}
}

func (t *TelegramBot) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	ok, reason := t.flow.PreCheckout(ctx, query.InvoicePayload, query.TotalAmount)

	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 ok,
		ErrorMessage:       reason,
	}
	if _, err := t.bot.Request(answer); err != nil {
		t.logger.Errorw("Failed to answer pre-checkout query", "telegram_id", query.From.ID, "error", err)
	}
}

func (t *TelegramBot) handleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) {
	pay := message.SuccessfulPayment
	chatID := message.Chat.ID

	result, err := t.flow.Settle(ctx, payment.Settlement{
		Payload:          pay.InvoicePayload,
		TotalAmount:      pay.TotalAmount,
		Currency:         pay.Currency,
		Gateway:          models.GatewayTelegram,
		ProviderChargeID: pay.ProviderPaymentChargeID,
		TelegramChargeID: pay.TelegramPaymentChargeID,
	})
	if err != nil {
		// The external charge is final: never claim overall failure here.
		t.logger.Errorw("Settlement failed after successful charge",
			"telegram_id", message.From.ID, "error", err)
		t.reply(chatID, "Payment was successful but there was an error adding credits. Please contact support.")
		return
	}
	if result == nil {
		// Malformed notification, already logged by the flow.
		return
	}

	t.reply(chatID, fmt.Sprintf(
		"Payment successful!\n\n"+
			"Plan: %s\n"+
			"Credits added: %d\n"+
			"Amount paid: %.2f %s\n"+
			"Total credits: %d\n\n"+
			"You can now continue analyzing your food photos!",
		result.Plan.Title, result.Plan.Credits, result.AmountMajor, pay.Currency, result.CreditsRemaining))
}

// ---- profile questionnaire ----

var activityKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("sedentary"),
		tgbotapi.NewKeyboardButton("lightly_active"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("moderately_active"),
		tgbotapi.NewKeyboardButton("very_active"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("extremely_active"),
	),
)

var goalKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("lose_weight"),
		tgbotapi.NewKeyboardButton("maintain_weight"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("gain_weight"),
	),
)

var genderKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("male"),
		tgbotapi.NewKeyboardButton("female"),
	),
)

func (t *TelegramBot) handleProfileStart(ctx context.Context, message *tgbotapi.Message) {
	t.setSession(message.From.ID, &profileSession{State: StateAge})
	t.replyWithKeyboard(message.Chat.ID,
		"Let's set up your profile. How old are you?",
		tgbotapi.NewRemoveKeyboard(true))
}

func (t *TelegramBot) advanceProfileSession(ctx context.Context, message *tgbotapi.Message, session *profileSession) {
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	switch session.State {
	case StateAge:
		age, err := strconv.Atoi(text)
		if err != nil || age < 10 || age > 120 {
			t.reply(chatID, "Please enter a valid age (for example, 30):")
			return
		}
		session.Fields.Age = age
		session.State = StateGender
		t.replyWithKeyboard(chatID, "What's your gender?", genderKeyboard)

	case StateGender:
		if text != "male" && text != "female" {
			t.replyWithKeyboard(chatID, "Please choose your gender with the buttons below.", genderKeyboard)
			return
		}
		session.Fields.Gender = text
		session.State = StateHeight
		t.replyWithKeyboard(chatID, "Your height in centimeters (for example, 175):", tgbotapi.NewRemoveKeyboard(true))

	case StateHeight:
		height, err := strconv.ParseFloat(text, 64)
		if err != nil || height < 50 || height > 250 {
			t.reply(chatID, "Please enter a valid height in centimeters (for example, 175):")
			return
		}
		session.Fields.HeightCm = height
		session.State = StateWeight
		t.reply(chatID, "Your weight in kilograms (for example, 70):")

	case StateWeight:
		weight, err := strconv.ParseFloat(text, 64)
		if err != nil || weight < 30 || weight > 300 {
			t.reply(chatID, "Please enter a valid weight in kilograms (for example, 70):")
			return
		}
		session.Fields.WeightKg = weight
		session.State = StateActivity
		t.replyWithKeyboard(chatID, "How active are you?", activityKeyboard)

	case StateActivity:
		session.Fields.ActivityLevel = text
		session.State = StateGoal
		t.replyWithKeyboard(chatID, "What's your goal?", goalKeyboard)

	case StateGoal:
		session.Fields.Goal = text
		t.setSession(message.From.ID, nil)
		t.finishProfile(ctx, message, session.Fields)

	default:
		t.setSession(message.From.ID, nil)
		t.reply(chatID, "Something went off track, please run /profile again.")
	}
}

func (t *TelegramBot) finishProfile(ctx context.Context, message *tgbotapi.Message, fields profile.Fields) {
	chatID := message.Chat.ID

	user, err := t.db.GetOrCreateUser(ctx, message.From.ID, db.NewUserOptions{})
	if err != nil {
		t.logger.Errorw("Failed to load user for profile save", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, genericFailure)
		return
	}

	result, created, err := t.profiles.Upsert(ctx, user.ID, fields)
	if err != nil {
		t.logger.Errorw("Failed to save profile", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, "Sorry, I couldn't save your profile. Please try again later.")
		return
	}

	t.journal(ctx, user.ID, models.ActionProfile, map[string]interface{}{"created": created})

	if result.CalculationWarning != nil {
		t.logger.Warnw("Profile saved without calorie target",
			"telegram_id", message.From.ID, "warning", result.CalculationWarning)
		t.replyWithKeyboard(chatID,
			"Profile saved, but I couldn't compute a calorie target from these values. "+
				"Check them with /profile.",
			tgbotapi.NewRemoveKeyboard(true))
		return
	}

	t.replyWithKeyboard(chatID, fmt.Sprintf(
		"Profile saved! Your daily calorie target is %d kcal.",
		result.Profile.DailyCaloriesTarget),
		tgbotapi.NewRemoveKeyboard(true))
}

// journal records an action-log entry, logging but not surfacing errors:
// the journal should never break a user-facing flow.
func (t *TelegramBot) journal(ctx context.Context, userID int64, actionType string, metadata map[string]interface{}) {
	err := t.db.RecordAction(ctx, &models.LogEntry{
		UserID:     userID,
		ActionType: actionType,
		Metadata:   metadata,
	})
	if err != nil {
		t.logger.Errorw("Failed to journal action", "user_id", userID, "action_type", actionType, "error", err)
	}
}
