package payment

import (
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"
)

// StripeClient sells credit plans through Stripe Checkout as the web
// alternative to native Telegram invoices.
type StripeClient struct {
	secretKey     string
	webhookSecret string
}

func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
	}
}

func (s *StripeClient) Configured() bool {
	return s.secretKey != ""
}

// CreateCheckoutSession creates a Stripe Checkout session for a credit
// plan. The purchase payload travels in ClientReferenceID so the webhook
// can settle through the same path as Telegram payments.
func (s *StripeClient) CreateCheckoutSession(plan Plan, telegramID int64, successURL, cancelURL string) (string, string, error) {
	if !s.Configured() {
		return "", "", fmt.Errorf("stripe secret key is not configured")
	}
	if stripe.Key != s.secretKey {
		stripe.Key = s.secretKey
	}

	ref := PurchaseRef{PlanID: plan.ID, TelegramID: telegramID}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(plan.Currency),
					UnitAmount: stripe.Int64(int64(plan.Price)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(plan.Title),
						Description: stripe.String(plan.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(ref.Encode()),
	}

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess.ID, sess.URL, nil
}

// VerifyWebhookSignature checks a Stripe webhook payload against its
// signature header.
func (s *StripeClient) VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("webhook secret is not configured")
	}
	return webhook.ConstructEvent(payload, sig, s.webhookSecret)
}
