package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erarta/api.neucor.ai/internal/apperror"
)

func TestPurchaseRef_RoundTrip(t *testing.T) {
	ref := PurchaseRef{PlanID: "basic", TelegramID: 391490}
	encoded := ref.Encode()
	assert.Equal(t, "credits_basic_391490", encoded)

	decoded, err := ParsePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, ref, decoded)
}

func TestParsePayload_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"wrong prefix", "refund_basic_42"},
		{"prefix only", "credits"},
		{"two parts", "credits_basic"},
		{"four parts", "credits_basic_42_extra"},
		{"missing plan", "credits__42"},
		{"non-numeric user", "credits_basic_abc"},
		{"negative user", "credits_basic_-5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayload(tc.payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
		})
	}
}
