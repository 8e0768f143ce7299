package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/db"
	"github.com/erarta/api.neucor.ai/internal/models"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

type fakeStore struct {
	users    map[int64]*models.User
	payments []models.Payment
	entries  []models.LogEntry
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*models.User)}
}

func (s *fakeStore) GetOrCreateUser(_ context.Context, telegramID int64, _ db.NewUserOptions) (*models.User, error) {
	if user, ok := s.users[telegramID]; ok {
		copied := *user
		return &copied, nil
	}
	s.nextID++
	user := &models.User{ID: s.nextID, TelegramID: telegramID, CreditsRemaining: 3}
	s.users[telegramID] = user
	copied := *user
	return &copied, nil
}

func (s *fakeStore) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	user, ok := s.users[telegramID]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) DecrementCredits(_ context.Context, telegramID int64, count int) (*models.User, error) {
	user, ok := s.users[telegramID]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	user.CreditsRemaining -= count
	if user.CreditsRemaining < 0 {
		user.CreditsRemaining = 0
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) AddCredits(_ context.Context, telegramID int64, count int) (*models.User, error) {
	user, ok := s.users[telegramID]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	user.CreditsRemaining += count
	copied := *user
	return &copied, nil
}

func (s *fakeStore) InsertPayment(_ context.Context, payment *models.Payment) (bool, error) {
	s.payments = append(s.payments, *payment)
	return true, nil
}

func (s *fakeStore) RecordAction(_ context.Context, entry *models.LogEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

type fakeAnalyzer struct {
	kbzhu models.KBZHU
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ int64, _ string) (*models.KBZHU, error) {
	copied := a.kbzhu
	return &copied, nil
}

func (a *fakeAnalyzer) Model() string { return "openai" }

func newTestHandler(store Store) *Handler {
	return NewHandler(store, &fakeAnalyzer{
		kbzhu: models.KBZHU{Calories: 450, Proteins: 20, Fats: 15, Carbohydrates: 55},
	}, nil, nil, logger.NewNop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := postJSON(t, h.Register, map[string]interface{}{"telegram_id": 42, "country": "RU"})
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, int64(42), user.TelegramID)
	assert.Equal(t, 3, user.CreditsRemaining)
}

func TestRegister_MissingID(t *testing.T) {
	h := newTestHandler(newFakeStore())
	rec := postJSON(t, h.Register, map[string]interface{}{"country": "RU"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_DeductsCreditAndLogs(t *testing.T) {
	store := newFakeStore()
	_, err := store.GetOrCreateUser(context.Background(), 42, db.NewUserOptions{})
	require.NoError(t, err)
	h := newTestHandler(store)

	rec := postJSON(t, h.Analyze, map[string]interface{}{
		"user_id": 42, "image_url": "https://cdn.example/photo.jpg",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var kbzhu models.KBZHU
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kbzhu))
	assert.Equal(t, 450.0, kbzhu.Calories)

	assert.Equal(t, 2, store.users[42].CreditsRemaining)
	require.Len(t, store.entries, 1)
	assert.Equal(t, models.ActionPhotoAnalysis, store.entries[0].ActionType)
	assert.Equal(t, "https://cdn.example/photo.jpg", store.entries[0].PhotoURL)
}

func TestAnalyze_InsufficientCredits(t *testing.T) {
	store := newFakeStore()
	_, err := store.GetOrCreateUser(context.Background(), 42, db.NewUserOptions{})
	require.NoError(t, err)
	store.users[42].CreditsRemaining = 0
	h := newTestHandler(store)

	rec := postJSON(t, h.Analyze, map[string]interface{}{
		"user_id": 42, "image_url": "https://cdn.example/photo.jpg",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Empty(t, store.entries)
}

func TestAnalyze_UnknownUser(t *testing.T) {
	h := newTestHandler(newFakeStore())
	rec := postJSON(t, h.Analyze, map[string]interface{}{
		"user_id": 999, "image_url": "https://cdn.example/photo.jpg",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAddCredits_RecordsPayment(t *testing.T) {
	store := newFakeStore()
	_, err := store.GetOrCreateUser(context.Background(), 42, db.NewUserOptions{})
	require.NoError(t, err)
	h := newTestHandler(store)

	rec := postJSON(t, h.AddCredits, map[string]interface{}{
		"user_id": 42, "count": 20, "amount": 99.0, "charge_id": "yk-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, 23, user.CreditsRemaining)

	require.Len(t, store.payments, 1)
	assert.Equal(t, models.GatewayYookassa, store.payments[0].Gateway)
	assert.Equal(t, 99.0, store.payments[0].Amount)
}

func TestAddCredits_UnknownUser(t *testing.T) {
	h := newTestHandler(newFakeStore())
	rec := postJSON(t, h.AddCredits, map[string]interface{}{"user_id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuyCredits_StripeNotConfigured(t *testing.T) {
	h := newTestHandler(newFakeStore())
	rec := postJSON(t, h.BuyCredits, map[string]interface{}{"user_id": 42, "plan_id": "basic"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
