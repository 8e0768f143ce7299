// Package calorie computes daily calorie targets from physiological
// profiles using the Mifflin-St Jeor equation.
package calorie

import (
	"fmt"
	"math"
	"strings"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
)

// Activity multipliers applied to BMR to get total daily expenditure.
var activityMultipliers = map[string]float64{
	"sedentary":         1.2,
	"lightly_active":    1.375,
	"moderately_active": 1.55,
	"very_active":       1.725,
	"extremely_active":  1.9,
}

// Goal adjustments: 15% deficit to lose, 15% surplus to gain.
var goalAdjustments = map[string]float64{
	"lose_weight":     0.85,
	"gain_weight":     1.15,
	"maintain_weight": 1.0,
}

// RequiredFields are the profile fields the calculation depends on.
var RequiredFields = []string{"age", "gender", "height_cm", "weight_kg", "activity_level", "goal"}

// DailyTarget computes the daily calorie target for a profile.
//
// The result is rounded half-away-from-zero to the nearest integer.
// The function is deterministic and has no side effects, so it is safe
// to call concurrently without synchronization. All enum fields are
// matched case-insensitively.
func DailyTarget(p models.Profile) (int, error) {
	if err := checkRequired(p); err != nil {
		return 0, err
	}

	gender := strings.ToLower(p.Gender)
	activity := strings.ToLower(p.ActivityLevel)
	goal := strings.ToLower(p.Goal)

	var bmr float64
	switch gender {
	case "male":
		bmr = 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age) + 5
	case "female":
		bmr = 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age) - 161
	default:
		return 0, apperror.ValidationFailed("gender", "gender must be 'male' or 'female'")
	}

	multiplier, ok := activityMultipliers[activity]
	if !ok {
		return 0, apperror.ValidationFailed("activity_level", fmt.Sprintf("invalid activity level %q", p.ActivityLevel))
	}
	tdee := bmr * multiplier

	adjustment, ok := goalAdjustments[goal]
	if !ok {
		return 0, apperror.ValidationFailed("goal", "goal must be 'lose_weight', 'gain_weight', or 'maintain_weight'")
	}
	tdee *= adjustment

	return int(math.Round(tdee)), nil
}

func checkRequired(p models.Profile) error {
	missing := ""
	switch {
	case p.Age <= 0:
		missing = "age"
	case p.Gender == "":
		missing = "gender"
	case p.HeightCm <= 0:
		missing = "height_cm"
	case p.WeightKg <= 0:
		missing = "weight_kg"
	case p.ActivityLevel == "":
		missing = "activity_level"
	case p.Goal == "":
		missing = "goal"
	}
	if missing != "" {
		return apperror.ValidationFailed(missing, fmt.Sprintf("missing or invalid %s in profile data", missing))
	}
	return nil
}
