package payment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/erarta/api.neucor.ai/internal/apperror"
)

// payloadPrefix is the literal first part of every purchase payload.
const payloadPrefix = "credits"

// PurchaseRef is the correlation token linking the invoice, pre-checkout
// and settlement phases of one purchase. On the wire it is a string of
// exactly three underscore-delimited parts: "credits_<plan>_<telegram id>".
type PurchaseRef struct {
	PlanID     string
	TelegramID int64
}

func (r PurchaseRef) Encode() string {
	return fmt.Sprintf("%s_%s_%d", payloadPrefix, r.PlanID, r.TelegramID)
}

// ParsePayload decodes a purchase payload. It enforces the exact
// three-part form; anything else is rejected with a validation error.
func ParsePayload(payload string) (PurchaseRef, error) {
	if !strings.HasPrefix(payload, payloadPrefix+"_") {
		return PurchaseRef{}, apperror.ValidationFailed("payload", "invalid payment payload")
	}

	parts := strings.Split(payload, "_")
	if len(parts) != 3 {
		return PurchaseRef{}, apperror.ValidationFailed("payload", "invalid payment payload format")
	}

	telegramID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || telegramID <= 0 {
		return PurchaseRef{}, apperror.ValidationFailed("payload", "invalid user id in payment payload")
	}

	if parts[1] == "" {
		return PurchaseRef{}, apperror.ValidationFailed("payload", "missing plan id in payment payload")
	}

	return PurchaseRef{PlanID: parts[1], TelegramID: telegramID}, nil
}
