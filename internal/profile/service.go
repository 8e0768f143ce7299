// Package profile manages user physiological profiles and keeps the
// derived daily calorie target in sync with them.
package profile

import (
	"context"

	"github.com/erarta/api.neucor.ai/internal/calorie"
	"github.com/erarta/api.neucor.ai/internal/models"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

// Repository is the storage surface the service needs. *db.PostgresDB
// satisfies it; tests use an in-memory fake.
type Repository interface {
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	InsertProfile(ctx context.Context, p *models.Profile) error
	UpdateProfile(ctx context.Context, p *models.Profile) error
}

// Fields is the user-supplied portion of a profile. Zero values mean
// "not provided"; the derived calorie target is never accepted here.
type Fields struct {
	Age                int
	Gender             string
	HeightCm           float64
	WeightKg           float64
	ActivityLevel      string
	Goal               string
	DietaryPreferences []string
	Allergies          []string
}

// Result is the outcome of a profile write. CalculationWarning is set
// when the profile was persisted but the calorie target could not be
// computed from it; the write itself still succeeded.
type Result struct {
	Profile            *models.Profile
	CalculationWarning error
}

type Service struct {
	repo   Repository
	logger *logger.Logger
}

func NewService(repo Repository, l *logger.Logger) *Service {
	return &Service{repo: repo, logger: l}
}

// Get returns the user's profile, or (nil, nil) when none exists.
func (s *Service) Get(ctx context.Context, userID int64) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// ValidateCompleteness reports whether all six required fields are set
// and which are missing. As a side effect it fills in the defaults for
// dietary preferences and allergies when absent; callers rely on that.
func ValidateCompleteness(fields *Fields) (bool, []string) {
	var missing []string
	if fields.Age <= 0 {
		missing = append(missing, "age")
	}
	if fields.Gender == "" {
		missing = append(missing, "gender")
	}
	if fields.HeightCm <= 0 {
		missing = append(missing, "height_cm")
	}
	if fields.WeightKg <= 0 {
		missing = append(missing, "weight_kg")
	}
	if fields.ActivityLevel == "" {
		missing = append(missing, "activity_level")
	}
	if fields.Goal == "" {
		missing = append(missing, "goal")
	}

	if fields.DietaryPreferences == nil {
		fields.DietaryPreferences = []string{"none"}
	}
	if fields.Allergies == nil {
		fields.Allergies = []string{"none"}
	}

	return len(missing) == 0, missing
}

// Create persists a new profile. When all six required fields are
// present the calorie target is computed and stored alongside; if the
// calculator rejects the values, the profile is persisted anyway without
// a target and the rejection is carried as a warning, not an error.
func (s *Service) Create(ctx context.Context, userID int64, fields Fields) (Result, error) {
	ValidateCompleteness(&fields)

	p := &models.Profile{UserID: userID}
	applyFields(p, fields)

	warning := s.recomputeTarget(p)

	if err := s.repo.InsertProfile(ctx, p); err != nil {
		return Result{}, err
	}

	return Result{Profile: p, CalculationWarning: warning}, nil
}

// Update merges the provided fields into the existing profile and
// applies the same target-recomputation rule as Create. A stale target
// is preserved, never guessed, when the merged profile is incomplete or
// invalid.
func (s *Service) Update(ctx context.Context, userID int64, fields Fields) (Result, error) {
	existing, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		return s.Create(ctx, userID, fields)
	}

	merged := *existing
	applyFields(&merged, fields)

	warning := s.recomputeTarget(&merged)

	if err := s.repo.UpdateProfile(ctx, &merged); err != nil {
		return Result{}, err
	}

	return Result{Profile: &merged, CalculationWarning: warning}, nil
}

// Upsert creates the profile when absent, otherwise merges the new
// fields over the stored ones (new values win). Identity and timestamp
// columns are not part of Fields, so they can never leak into the merge.
func (s *Service) Upsert(ctx context.Context, userID int64, fields Fields) (Result, bool, error) {
	existing, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return Result{}, false, err
	}

	if existing == nil {
		result, err := s.Create(ctx, userID, fields)
		return result, true, err
	}

	result, err := s.Update(ctx, userID, fields)
	return result, false, err
}

// recomputeTarget stores a fresh calorie target when the profile allows
// it. The returned warning is non-nil when computation was attempted or
// skipped because of invalid values; the old target (possibly zero) is
// left in place in that case.
func (s *Service) recomputeTarget(p *models.Profile) error {
	if !hasRequiredFields(p) {
		return nil
	}

	target, err := calorie.DailyTarget(*p)
	if err != nil {
		s.logger.Errorw("Failed to calculate daily calories", "user_id", p.UserID, "error", err)
		return err
	}

	p.DailyCaloriesTarget = target
	return nil
}

func hasRequiredFields(p *models.Profile) bool {
	return p.Age > 0 && p.Gender != "" && p.HeightCm > 0 && p.WeightKg > 0 &&
		p.ActivityLevel != "" && p.Goal != ""
}

func applyFields(p *models.Profile, fields Fields) {
	if fields.Age > 0 {
		p.Age = fields.Age
	}
	if fields.Gender != "" {
		p.Gender = fields.Gender
	}
	if fields.HeightCm > 0 {
		p.HeightCm = fields.HeightCm
	}
	if fields.WeightKg > 0 {
		p.WeightKg = fields.WeightKg
	}
	if fields.ActivityLevel != "" {
		p.ActivityLevel = fields.ActivityLevel
	}
	if fields.Goal != "" {
		p.Goal = fields.Goal
	}
	if fields.DietaryPreferences != nil {
		p.DietaryPreferences = fields.DietaryPreferences
	}
	if fields.Allergies != nil {
		p.Allergies = fields.Allergies
	}
}
