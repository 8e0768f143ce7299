// Package payment orchestrates the three-phase credit purchase flow:
// invoice issuance, pre-checkout validation, and settlement.
package payment

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

// Ledger is the slice of the storage layer the flow needs. It is
// satisfied by *db.PostgresDB.
type Ledger interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	AddCredits(ctx context.Context, telegramID int64, count int) (*models.User, error)
	InsertPayment(ctx context.Context, payment *models.Payment) (bool, error)
	RecordAction(ctx context.Context, entry *models.LogEntry) error
}

type Flow struct {
	plans         map[string]Plan
	providerToken string
	ledger        Ledger
	logger        *logger.Logger
}

func NewFlow(providerToken string, ledger Ledger, l *logger.Logger) *Flow {
	return &Flow{
		plans:         Plans,
		providerToken: providerToken,
		ledger:        ledger,
		logger:        l,
	}
}

// Plan looks up a plan by id.
func (f *Flow) Plan(planID string) (Plan, bool) {
	plan, ok := f.plans[planID]
	return plan, ok
}

// Invoice builds the Telegram invoice for a plan. It fails with a
// configuration error when no payment provider token is set, and with a
// validation error for an unknown plan id.
func (f *Flow) Invoice(chatID int64, planID string, telegramID int64) (tgbotapi.InvoiceConfig, error) {
	if f.providerToken == "" {
		f.logger.Error("Payment provider token is not set")
		return tgbotapi.InvoiceConfig{}, apperror.NotConfigured("payment provider token")
	}

	plan, ok := f.plans[planID]
	if !ok {
		return tgbotapi.InvoiceConfig{}, apperror.ValidationFailed("plan_id", fmt.Sprintf("invalid payment plan %q", planID))
	}

	ref := PurchaseRef{PlanID: plan.ID, TelegramID: telegramID}

	// Receipt breakdown for the provider: a single line item, quantity 1,
	// amount in major units.
	providerData, _ := json.Marshal(map[string]interface{}{
		"receipt": map[string]interface{}{
			"items": []map[string]interface{}{
				{
					"description": plan.Description,
					"quantity":    1,
					"amount": map[string]interface{}{
						"value":    plan.Price / 100,
						"currency": plan.Currency,
					},
					"vat_code":        1,
					"payment_mode":    "full_payment",
					"payment_subject": "commodity",
				},
			},
			"tax_system_code": 1,
		},
	})

	invoice := tgbotapi.NewInvoice(
		chatID,
		plan.Title,
		plan.Description,
		ref.Encode(),
		f.providerToken,
		"buy-"+plan.ID,
		plan.Currency,
		[]tgbotapi.LabeledPrice{{Label: plan.Label(), Amount: plan.Price}},
	)
	invoice.ProviderData = string(providerData)

	f.logger.Infow("Created invoice", "telegram_id", telegramID, "plan_id", plan.ID, "price", plan.Price)
	return invoice, nil
}

// PreCheckout validates a purchase right before the provider commits
// funds. It is the last chance to reject: strict checks, no mutation.
func (f *Flow) PreCheckout(ctx context.Context, payload string, totalAmount int) (ok bool, reason string) {
	ref, err := ParsePayload(payload)
	if err != nil {
		return false, err.Error()
	}

	plan, found := f.plans[ref.PlanID]
	if !found {
		return false, "invalid payment plan"
	}

	if _, err := f.ledger.GetUserByTelegramID(ctx, ref.TelegramID); err != nil {
		return false, "user not found"
	}

	if totalAmount != plan.Price {
		return false, "invalid payment amount"
	}

	f.logger.Infow("Pre-checkout approved", "telegram_id", ref.TelegramID, "plan_id", ref.PlanID)
	return true, ""
}

// Settlement is a finalized payment notification from the provider.
// Amount is in minor currency units.
type Settlement struct {
	Payload          string
	TotalAmount      int
	Currency         string
	Gateway          string
	ProviderChargeID string
	TelegramChargeID string
}

// SettleResult reports what the settlement did. AlreadySettled means the
// charge id had been processed before and nothing changed.
type SettleResult struct {
	Plan             Plan
	CreditsRemaining int
	AmountMajor      float64
	AlreadySettled   bool
}

// Settle applies a finalized payment: records the payment row, grants
// credits, and journals the purchase.
//
// By the time this runs the external charge is final. A malformed payload
// or unknown plan is logged and dropped (nil, nil) rather than raised: a
// crash here would leave no record at all. Any storage failure after the
// charge returns an error the caller must present as "payment succeeded,
// contact support" — never as an outright failure.
//
// The payment row is inserted before credits are granted; its unique
// charge-id index makes redelivered notifications a no-op instead of a
// double credit grant.
func (f *Flow) Settle(ctx context.Context, s Settlement) (*SettleResult, error) {
	ref, err := ParsePayload(s.Payload)
	if err != nil {
		f.logger.Errorw("Ignoring settlement with malformed payload", "payload", s.Payload, "error", err)
		return nil, nil
	}

	plan, ok := f.plans[ref.PlanID]
	if !ok {
		f.logger.Errorw("Ignoring settlement with unknown plan", "plan_id", ref.PlanID, "telegram_id", ref.TelegramID)
		return nil, nil
	}

	gateway := s.Gateway
	if gateway == "" {
		gateway = models.GatewayTelegram
	}
	amountMajor := float64(s.TotalAmount) / 100

	user, err := f.ledger.GetUserByTelegramID(ctx, ref.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("resolving user for settlement: %w", err)
	}

	inserted, err := f.ledger.InsertPayment(ctx, &models.Payment{
		UserID:   user.ID,
		Amount:   amountMajor,
		Gateway:  gateway,
		Status:   models.PaymentSucceeded,
		ChargeID: s.ProviderChargeID,
	})
	if err != nil {
		return nil, fmt.Errorf("recording payment: %w", err)
	}
	if !inserted {
		f.logger.Infow("Settlement already applied, skipping credit grant",
			"telegram_id", ref.TelegramID, "charge_id", s.ProviderChargeID)
		return &SettleResult{
			Plan:             plan,
			CreditsRemaining: user.CreditsRemaining,
			AmountMajor:      amountMajor,
			AlreadySettled:   true,
		}, nil
	}

	updated, err := f.ledger.AddCredits(ctx, ref.TelegramID, plan.Credits)
	if err != nil {
		return nil, fmt.Errorf("adding credits after payment: %w", err)
	}

	logErr := f.ledger.RecordAction(ctx, &models.LogEntry{
		UserID:     user.ID,
		ActionType: models.ActionPaymentSuccess,
		Metadata: map[string]interface{}{
			"plan_id":                    plan.ID,
			"credits_added":              plan.Credits,
			"amount_paid":                amountMajor,
			"currency":                   s.Currency,
			"payment_charge_id":          s.TelegramChargeID,
			"provider_payment_charge_id": s.ProviderChargeID,
		},
	})
	if logErr != nil {
		// Credits and payment are already durable; the missing journal
		// entry is not worth alarming the user over.
		f.logger.Errorw("Failed to journal payment success", "telegram_id", ref.TelegramID, "error", logErr)
	}

	f.logger.Infow("Payment settled",
		"telegram_id", ref.TelegramID, "plan_id", plan.ID,
		"credits_added", plan.Credits, "credits_remaining", updated.CreditsRemaining)

	return &SettleResult{
		Plan:             plan,
		CreditsRemaining: updated.CreditsRemaining,
		AmountMajor:      amountMajor,
	}, nil
}
