// internal/models/user.go
package models

import (
	"time"
)

type User struct {
	ID               int64     `json:"id"`
	TelegramID       int64     `json:"telegram_id"`
	CreditsRemaining int       `json:"credits_remaining"`
	Country          string    `json:"country,omitempty"`
	PhoneNumber      string    `json:"phone_number,omitempty"`
	Language         string    `json:"language,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Profile holds the physiological data behind the calorie target.
// DailyCaloriesTarget is derived, never user-supplied; zero means
// "not yet computable" rather than a real target.
type Profile struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	Age                 int       `json:"age,omitempty"`
	Gender              string    `json:"gender,omitempty"`
	HeightCm            float64   `json:"height_cm,omitempty"`
	WeightKg            float64   `json:"weight_kg,omitempty"`
	ActivityLevel       string    `json:"activity_level,omitempty"`
	Goal                string    `json:"goal,omitempty"`
	DietaryPreferences  []string  `json:"dietary_preferences,omitempty"`
	Allergies           []string  `json:"allergies,omitempty"`
	DailyCaloriesTarget int       `json:"daily_calories_target,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Payment struct {
	ID       int64   `json:"id"`
	UserID   int64   `json:"user_id"`
	Amount   float64 `json:"amount"` // major currency units, not kopecks
	Gateway  string  `json:"gateway"`
	Status   string  `json:"status"`
	ChargeID string  `json:"charge_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// KBZHU is the nutrition tuple attached to a photo analysis.
type KBZHU struct {
	Calories      float64 `json:"calories"`
	Proteins      float64 `json:"proteins"`
	Fats          float64 `json:"fats"`
	Carbohydrates float64 `json:"carbohydrates"`
}

type LogEntry struct {
	ID         int64                  `json:"id"`
	UserID     int64                  `json:"user_id"`
	ActionType string                 `json:"action_type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	PhotoURL   string                 `json:"photo_url,omitempty"`
	KBZHU      *KBZHU                 `json:"kbzhu,omitempty"`
	ModelUsed  string                 `json:"model_used,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Action types recorded in the logs table.
const (
	ActionStart          = "start"
	ActionHelp           = "help"
	ActionStatus         = "status"
	ActionBuy            = "buy"
	ActionPhotoAnalysis  = "photo_analysis"
	ActionProfile        = "profile"
	ActionDaily          = "daily"
	ActionPaymentSuccess = "payment_success"
)

// Payment gateways and statuses.
const (
	GatewayTelegram = "telegram_payments"
	GatewayYookassa = "yookassa"
	GatewayStripe   = "stripe"

	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentPending   = "pending"
)
