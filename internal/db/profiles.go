package db

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v4"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
)

const profileColumns = `id, user_id, age, gender, height_cm, weight_kg, activity_level, goal,
        dietary_preferences, allergies, daily_calories_target, created_at, updated_at`

// GetProfile returns the profile for an internal user id, or (nil, nil)
// when none exists yet. Absence is expected, not an error.
func (db *PostgresDB) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id = $1`

	var p models.Profile
	err := db.pool.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.Age, &p.Gender, &p.HeightCm, &p.WeightKg,
		&p.ActivityLevel, &p.Goal, &p.DietaryPreferences, &p.Allergies,
		&p.DailyCaloriesTarget, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Storage("get profile", err)
	}

	return &p, nil
}

// InsertProfile persists a new profile row.
func (db *PostgresDB) InsertProfile(ctx context.Context, p *models.Profile) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        INSERT INTO user_profiles
            (user_id, age, gender, height_cm, weight_kg, activity_level, goal,
             dietary_preferences, allergies, daily_calories_target)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at, updated_at`

	err := db.pool.QueryRow(ctx, query,
		p.UserID, p.Age, p.Gender, p.HeightCm, p.WeightKg, p.ActivityLevel, p.Goal,
		p.DietaryPreferences, p.Allergies, p.DailyCaloriesTarget,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return apperror.Storage("insert profile", err)
	}

	db.logger.Infow("Profile created", "user_id", p.UserID)
	return nil
}

// UpdateProfile overwrites the stored profile fields for a user.
func (db *PostgresDB) UpdateProfile(ctx context.Context, p *models.Profile) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        UPDATE user_profiles
        SET age = $2, gender = $3, height_cm = $4, weight_kg = $5,
            activity_level = $6, goal = $7, dietary_preferences = $8,
            allergies = $9, daily_calories_target = $10, updated_at = NOW()
        WHERE user_id = $1
        RETURNING id, created_at, updated_at`

	err := db.pool.QueryRow(ctx, query,
		p.UserID, p.Age, p.Gender, p.HeightCm, p.WeightKg, p.ActivityLevel, p.Goal,
		p.DietaryPreferences, p.Allergies, p.DailyCaloriesTarget,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("profile", strconv.FormatInt(p.UserID, 10))
	}
	if err != nil {
		return apperror.Storage("update profile", err)
	}

	db.logger.Infow("Profile updated", "user_id", p.UserID)
	return nil
}
