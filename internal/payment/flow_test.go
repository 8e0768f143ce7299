package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

type fakeLedger struct {
	users       map[int64]*models.User
	payments    []models.Payment
	entries     []models.LogEntry
	nextID      int64
	failCredits error
	failPayment error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{users: make(map[int64]*models.User)}
}

func (l *fakeLedger) addUser(telegramID int64, credits int) *models.User {
	l.nextID++
	user := &models.User{ID: l.nextID, TelegramID: telegramID, CreditsRemaining: credits}
	l.users[telegramID] = user
	return user
}

func (l *fakeLedger) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	user, ok := l.users[telegramID]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	copied := *user
	return &copied, nil
}

func (l *fakeLedger) AddCredits(_ context.Context, telegramID int64, count int) (*models.User, error) {
	if l.failCredits != nil {
		return nil, l.failCredits
	}
	user, ok := l.users[telegramID]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	user.CreditsRemaining += count
	copied := *user
	return &copied, nil
}

func (l *fakeLedger) InsertPayment(_ context.Context, payment *models.Payment) (bool, error) {
	if l.failPayment != nil {
		return false, l.failPayment
	}
	if payment.ChargeID != "" {
		for _, existing := range l.payments {
			if existing.ChargeID == payment.ChargeID {
				return false, nil
			}
		}
	}
	payment.ID = int64(len(l.payments) + 1)
	l.payments = append(l.payments, *payment)
	return true, nil
}

func (l *fakeLedger) RecordAction(_ context.Context, entry *models.LogEntry) error {
	l.entries = append(l.entries, *entry)
	return nil
}

func newFlow(ledger Ledger) *Flow {
	return NewFlow("test-provider-token", ledger, logger.NewNop())
}

func TestInvoice_BuildsLabeledPrice(t *testing.T) {
	flow := newFlow(newFakeLedger())

	invoice, err := flow.Invoice(100, "basic", 42)
	require.NoError(t, err)

	assert.Equal(t, "credits_basic_42", invoice.Payload)
	assert.Equal(t, "RUB", invoice.Currency)
	require.Len(t, invoice.Prices, 1)
	assert.Equal(t, "20 credits", invoice.Prices[0].Label)
	assert.Equal(t, 9900, invoice.Prices[0].Amount)
	assert.Contains(t, invoice.ProviderData, `"value":99`)
}

func TestInvoice_NoProviderToken(t *testing.T) {
	flow := NewFlow("", newFakeLedger(), logger.NewNop())

	_, err := flow.Invoice(100, "basic", 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConfiguration))
}

func TestInvoice_UnknownPlan(t *testing.T) {
	flow := newFlow(newFakeLedger())

	_, err := flow.Invoice(100, "platinum", 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestPreCheckout_Approves(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	flow := newFlow(ledger)

	ok, reason := flow.PreCheckout(context.Background(), "credits_basic_42", 9900)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestPreCheckout_Rejections(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	flow := newFlow(ledger)

	cases := []struct {
		name    string
		payload string
		amount  int
	}{
		{"malformed prefix", "refund_basic_42", 9900},
		{"wrong part count", "credits_basic_42_x", 9900},
		{"unknown plan", "credits_platinum_42", 9900},
		{"unknown user", "credits_basic_999", 9900},
		{"amount mismatch", "credits_basic_42", 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := flow.PreCheckout(context.Background(), tc.payload, tc.amount)
			assert.False(t, ok)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestPreCheckout_DoesNotMutate(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 5)
	flow := newFlow(ledger)

	_, _ = flow.PreCheckout(context.Background(), "credits_basic_42", 9900)

	assert.Equal(t, 5, ledger.users[42].CreditsRemaining)
	assert.Empty(t, ledger.payments)
	assert.Empty(t, ledger.entries)
}

func settlement(chargeID string) Settlement {
	return Settlement{
		Payload:          "credits_basic_42",
		TotalAmount:      9900,
		Currency:         "RUB",
		ProviderChargeID: chargeID,
		TelegramChargeID: "tg-" + chargeID,
	}
}

func TestSettle_GrantsCreditsAndRecords(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 1)
	flow := newFlow(ledger)

	result, err := flow.Settle(context.Background(), settlement("ch-1"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.AlreadySettled)
	assert.Equal(t, 21, result.CreditsRemaining)
	assert.Equal(t, 99.0, result.AmountMajor)
	assert.Equal(t, 21, ledger.users[42].CreditsRemaining)

	require.Len(t, ledger.payments, 1)
	payment := ledger.payments[0]
	assert.Equal(t, models.GatewayTelegram, payment.Gateway)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.Equal(t, 99.0, payment.Amount)
	assert.Equal(t, "ch-1", payment.ChargeID)

	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	assert.Equal(t, models.ActionPaymentSuccess, entry.ActionType)
	assert.Equal(t, "basic", entry.Metadata["plan_id"])
	assert.Equal(t, 20, entry.Metadata["credits_added"])
	assert.Equal(t, "ch-1", entry.Metadata["provider_payment_charge_id"])
	assert.Equal(t, "tg-ch-1", entry.Metadata["payment_charge_id"])
}

func TestSettle_IdempotentPerChargeID(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	flow := newFlow(ledger)

	first, err := flow.Settle(context.Background(), settlement("ch-dup"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 20, first.CreditsRemaining)

	// At-least-once delivery: the same notification arrives again.
	second, err := flow.Settle(context.Background(), settlement("ch-dup"))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.AlreadySettled)

	assert.Equal(t, 20, ledger.users[42].CreditsRemaining)
	assert.Len(t, ledger.payments, 1)
}

func TestSettle_MalformedPayloadIsDropped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	flow := newFlow(ledger)

	s := settlement("ch-2")
	s.Payload = "garbage"
	result, err := flow.Settle(context.Background(), s)

	// Money already moved: log and return, never raise.
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, ledger.payments)
	assert.Equal(t, 0, ledger.users[42].CreditsRemaining)
}

func TestSettle_UnknownPlanIsDropped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	flow := newFlow(ledger)

	s := settlement("ch-3")
	s.Payload = "credits_platinum_42"
	result, err := flow.Settle(context.Background(), s)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestSettle_StorageFailureIsReported(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	ledger.failCredits = fmt.Errorf("connection reset")
	flow := newFlow(ledger)

	result, err := flow.Settle(context.Background(), settlement("ch-4"))

	// The charge is final; the caller must surface this as
	// "succeeded, contact support", never as plain failure.
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Len(t, ledger.payments, 1)
}

func TestSettle_StripeGateway(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addUser(42, 0)
	flow := newFlow(ledger)

	s := settlement("pi-1")
	s.Gateway = models.GatewayStripe
	result, err := flow.Settle(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, ledger.payments, 1)
	assert.Equal(t, models.GatewayStripe, ledger.payments[0].Gateway)
}
