package calorie

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
)

func validProfile() models.Profile {
	return models.Profile{
		Age:           30,
		Gender:        "male",
		HeightCm:      180,
		WeightKg:      80,
		ActivityLevel: "sedentary",
		Goal:          "maintain_weight",
	}
}

func TestDailyTarget_ReferenceCase(t *testing.T) {
	// BMR = 10*80 + 6.25*180 - 5*30 + 5 = 1780
	// TDEE = 1780 * 1.2 = 2136, maintain_weight leaves it untouched.
	target, err := DailyTarget(validProfile())
	require.NoError(t, err)
	assert.Equal(t, 2136, target)
}

func TestDailyTarget_Deterministic(t *testing.T) {
	p := validProfile()
	first, err := DailyTarget(p)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := DailyTarget(p)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Greater(t, first, 0)
}

func TestDailyTarget_Female(t *testing.T) {
	p := validProfile()
	p.Gender = "female"
	// BMR = 10*80 + 6.25*180 - 5*30 - 161 = 1614
	// TDEE = 1614 * 1.2 = 1936.8 -> 1937
	target, err := DailyTarget(p)
	require.NoError(t, err)
	assert.Equal(t, 1937, target)
}

func TestDailyTarget_GoalAdjustments(t *testing.T) {
	lose := validProfile()
	lose.Goal = "lose_weight"
	target, err := DailyTarget(lose)
	require.NoError(t, err)
	assert.Equal(t, 1816, target) // 2136 * 0.85 = 1815.6

	gain := validProfile()
	gain.Goal = "gain_weight"
	target, err = DailyTarget(gain)
	require.NoError(t, err)
	assert.Equal(t, 2456, target) // 2136 * 1.15 = 2456.4
}

func TestDailyTarget_CaseInsensitiveEnums(t *testing.T) {
	p := validProfile()
	p.Gender = "Male"
	p.ActivityLevel = "SEDENTARY"
	p.Goal = "Maintain_Weight"
	target, err := DailyTarget(p)
	require.NoError(t, err)
	assert.Equal(t, 2136, target)
}

func TestDailyTarget_InvalidGender(t *testing.T) {
	p := validProfile()
	p.Gender = "other"
	_, err := DailyTarget(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "gender", appErr.Field)
}

func TestDailyTarget_InvalidActivityLevel(t *testing.T) {
	p := validProfile()
	p.ActivityLevel = "super_active"
	_, err := DailyTarget(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestDailyTarget_InvalidGoal(t *testing.T) {
	p := validProfile()
	p.Goal = "bulk"
	_, err := DailyTarget(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestDailyTarget_MissingFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*models.Profile)
		missing string
	}{
		{"age", func(p *models.Profile) { p.Age = 0 }, "age"},
		{"gender", func(p *models.Profile) { p.Gender = "" }, "gender"},
		{"height", func(p *models.Profile) { p.HeightCm = 0 }, "height_cm"},
		{"weight", func(p *models.Profile) { p.WeightKg = 0 }, "weight_kg"},
		{"activity", func(p *models.Profile) { p.ActivityLevel = "" }, "activity_level"},
		{"goal", func(p *models.Profile) { p.Goal = "" }, "goal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProfile()
			tc.mutate(&p)
			_, err := DailyTarget(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.missing, appErr.Field)
		})
	}
}

func TestDailyTarget_RoundsHalfAwayFromZero(t *testing.T) {
	// BMR = 10*70 + 6.25*170 - 5*25 + 5 = 1642.5
	// TDEE = 1642.5 * 1.2 = 1971.0, lose_weight: 1971 * 0.85 = 1675.35 -> 1675
	p := models.Profile{
		Age: 25, Gender: "male", HeightCm: 170, WeightKg: 70,
		ActivityLevel: "sedentary", Goal: "lose_weight",
	}
	target, err := DailyTarget(p)
	require.NoError(t, err)
	assert.Equal(t, 1675, target)
}
