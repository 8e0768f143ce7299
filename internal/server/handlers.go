package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v72"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/db"
	"github.com/erarta/api.neucor.ai/internal/models"
	"github.com/erarta/api.neucor.ai/internal/payment"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

// Store is the storage surface the facade needs; *db.PostgresDB
// satisfies it.
type Store interface {
	GetOrCreateUser(ctx context.Context, telegramID int64, opts db.NewUserOptions) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	DecrementCredits(ctx context.Context, telegramID int64, count int) (*models.User, error)
	AddCredits(ctx context.Context, telegramID int64, count int) (*models.User, error)
	InsertPayment(ctx context.Context, payment *models.Payment) (bool, error)
	RecordAction(ctx context.Context, entry *models.LogEntry) error
}

// Analyzer proxies photos to the external analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, userID int64, imageURL string) (*models.KBZHU, error)
	Model() string
}

type Handler struct {
	store    Store
	analyzer Analyzer
	stripe   *payment.StripeClient
	flow     *payment.Flow
	logger   *logger.Logger
}

func NewHandler(store Store, analyzer Analyzer, stripeClient *payment.StripeClient, flow *payment.Flow, l *logger.Logger) *Handler {
	return &Handler{
		store:    store,
		analyzer: analyzer,
		stripe:   stripeClient,
		flow:     flow,
		logger:   l,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type registerRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Country    string `json:"country,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TelegramID == 0 {
		writeError(w, http.StatusBadRequest, "telegram_id required")
		return
	}

	user, err := h.store.GetOrCreateUser(r.Context(), req.TelegramID, db.NewUserOptions{Country: req.Country})
	if err != nil {
		h.logger.Errorw("Registration failed", "telegram_id", req.TelegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type analyzeRequest struct {
	UserID    int64  `json:"user_id"`
	ImageURL  string `json:"image_url"`
	ModelUsed string `json:"model_used,omitempty"`
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 || req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "user_id and image_url required")
		return
	}

	user, err := h.store.GetUserByTelegramID(r.Context(), req.UserID)
	if err != nil || user.CreditsRemaining < 1 {
		writeError(w, http.StatusPaymentRequired, "Not enough credits")
		return
	}

	if _, err := h.store.DecrementCredits(r.Context(), req.UserID, 1); err != nil {
		h.logger.Errorw("Failed to decrement credits", "telegram_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to charge analysis")
		return
	}

	kbzhu, err := h.analyzer.Analyze(r.Context(), req.UserID, req.ImageURL)
	if err != nil {
		h.logger.Errorw("Analysis proxy failed", "telegram_id", req.UserID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	modelUsed := req.ModelUsed
	if modelUsed == "" {
		modelUsed = h.analyzer.Model()
	}
	logErr := h.store.RecordAction(r.Context(), &models.LogEntry{
		UserID:     user.ID,
		ActionType: models.ActionPhotoAnalysis,
		PhotoURL:   req.ImageURL,
		KBZHU:      kbzhu,
		ModelUsed:  modelUsed,
	})
	if logErr != nil {
		h.logger.Errorw("Failed to journal analysis", "telegram_id", req.UserID, "error", logErr)
	}

	writeJSON(w, http.StatusOK, kbzhu)
}

type buyCreditsRequest struct {
	UserID     int64  `json:"user_id"`
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// BuyCredits creates a Stripe Checkout session for a credit plan and
// returns the payment URL.
func (h *Handler) BuyCredits(w http.ResponseWriter, r *http.Request) {
	var req buyCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "user_id and plan_id required")
		return
	}

	if h.stripe == nil || !h.stripe.Configured() {
		writeError(w, http.StatusServiceUnavailable, "payment system is not configured")
		return
	}

	plan, ok := h.flow.Plan(req.PlanID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid payment plan")
		return
	}

	if _, err := h.store.GetOrCreateUser(r.Context(), req.UserID, db.NewUserOptions{}); err != nil {
		h.logger.Errorw("Failed to ensure user before checkout", "telegram_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to prepare checkout")
		return
	}

	sessionID, url, err := h.stripe.CreateCheckoutSession(plan, req.UserID, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.logger.Errorw("Failed to create checkout session", "telegram_id", req.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create checkout session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"url":        url,
	})
}

type addCreditsRequest struct {
	UserID   int64    `json:"user_id"`
	Count    int      `json:"count"`
	Amount   *float64 `json:"amount,omitempty"`
	Gateway  string   `json:"gateway,omitempty"`
	Status   string   `json:"status,omitempty"`
	ChargeID string   `json:"charge_id,omitempty"`
}

// AddCredits directly grants credits to an account, recording a payment
// row when amount details accompany the grant.
func (h *Handler) AddCredits(w http.ResponseWriter, r *http.Request) {
	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if req.Count == 0 {
		req.Count = 20
	}
	if req.Gateway == "" {
		req.Gateway = models.GatewayYookassa
	}
	if req.Status == "" {
		req.Status = models.PaymentSucceeded
	}

	user, err := h.store.AddCredits(r.Context(), req.UserID, req.Count)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Errorw("Failed to add credits", "telegram_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add credits")
		return
	}

	if req.Amount != nil {
		_, err := h.store.InsertPayment(r.Context(), &models.Payment{
			UserID:   user.ID,
			Amount:   *req.Amount,
			Gateway:  req.Gateway,
			Status:   req.Status,
			ChargeID: req.ChargeID,
		})
		if err != nil {
			h.logger.Errorw("Failed to record payment", "telegram_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "credits added but payment record failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, user)
}

// StripeWebhook settles completed checkout sessions through the same
// idempotent path as native Telegram payments.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if h.stripe == nil {
		writeError(w, http.StatusInternalServerError, "webhook not configured")
		return
	}

	event, err := h.stripe.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Errorw("Failed to verify stripe webhook signature", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			h.logger.Errorw("Failed to parse checkout session", "error", err)
			writeError(w, http.StatusBadRequest, "failed to parse event data")
			return
		}
		if session.ClientReferenceID == "" || session.PaymentIntent == nil {
			h.logger.Errorw("Checkout session missing reference or payment intent", "session_id", session.ID)
			writeError(w, http.StatusBadRequest, "incomplete checkout session")
			return
		}

		result, err := h.flow.Settle(r.Context(), payment.Settlement{
			Payload:          session.ClientReferenceID,
			TotalAmount:      int(session.AmountTotal),
			Currency:         string(session.Currency),
			Gateway:          models.GatewayStripe,
			ProviderChargeID: session.PaymentIntent.ID,
		})
		if err != nil {
			// Charge is final; report 200 so Stripe stops retrying and
			// leave recovery to support, matching the bot-side policy.
			h.logger.Errorw("Stripe settlement failed after charge",
				"session_id", session.ID, "error", err)
		} else if result != nil && result.AlreadySettled {
			h.logger.Infow("Stripe settlement redelivered, no-op", "session_id", session.ID)
		}

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err == nil {
			h.logger.Errorw("Stripe payment failed", "payment_id", intent.ID)
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}
