package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v4"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
)

const userColumns = `id, telegram_id, credits_remaining, country, phone_number, language, created_at, updated_at`

// NewUserOptions carries optional fields applied only at creation time.
// They are never applied retroactively to an existing user.
type NewUserOptions struct {
	Country     string
	PhoneNumber string
	Language    string
}

// startingCredits is granted to every user on first contact.
const startingCredits = 3

// GetOrCreateUser returns the user for a Telegram identity, creating the
// record with 3 free credits on first contact. Lookup wins over creation;
// a concurrent create is resolved by re-reading the existing row.
func (db *PostgresDB) GetOrCreateUser(ctx context.Context, telegramID int64, opts NewUserOptions) (*models.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	user, err := db.getUser(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	query := `
        INSERT INTO users (telegram_id, credits_remaining, country, phone_number, language)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (telegram_id) DO NOTHING
        RETURNING ` + userColumns

	var created models.User
	err = db.pool.QueryRow(ctx, query,
		telegramID, startingCredits, opts.Country, opts.PhoneNumber, opts.Language,
	).Scan(
		&created.ID, &created.TelegramID, &created.CreditsRemaining,
		&created.Country, &created.PhoneNumber, &created.Language,
		&created.CreatedAt, &created.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race to a concurrent create; the existing row wins.
		return db.getUser(ctx, telegramID)
	}
	if err != nil {
		return nil, apperror.Storage("create user", err)
	}

	db.logger.Infow("Created new user", "telegram_id", telegramID, "credits", startingCredits)
	return &created, nil
}

// GetUserByTelegramID returns the user or a not-found error.
func (db *PostgresDB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()
	return db.getUser(ctx, telegramID)
}

func (db *PostgresDB) getUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	var user models.User
	err := db.pool.QueryRow(ctx, query, telegramID).Scan(
		&user.ID, &user.TelegramID, &user.CreditsRemaining,
		&user.Country, &user.PhoneNumber, &user.Language,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	if err != nil {
		return nil, apperror.Storage("get user", err)
	}

	return &user, nil
}

// DecrementCredits atomically subtracts count credits, flooring at zero.
// The single conditional UPDATE is the per-user serialization point:
// concurrent decrements cannot interleave to a negative balance or lose
// an update, even across process instances.
func (db *PostgresDB) DecrementCredits(ctx context.Context, telegramID int64, count int) (*models.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        UPDATE users
        SET credits_remaining = GREATEST(credits_remaining - $2, 0), updated_at = NOW()
        WHERE telegram_id = $1
        RETURNING ` + userColumns

	return db.scanUserUpdate(ctx, query, telegramID, count)
}

// AddCredits atomically adds count credits to the user's balance.
func (db *PostgresDB) AddCredits(ctx context.Context, telegramID int64, count int) (*models.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        UPDATE users
        SET credits_remaining = credits_remaining + $2, updated_at = NOW()
        WHERE telegram_id = $1
        RETURNING ` + userColumns

	return db.scanUserUpdate(ctx, query, telegramID, count)
}

func (db *PostgresDB) scanUserUpdate(ctx context.Context, query string, telegramID int64, count int) (*models.User, error) {
	var user models.User
	err := db.pool.QueryRow(ctx, query, telegramID, count).Scan(
		&user.ID, &user.TelegramID, &user.CreditsRemaining,
		&user.Country, &user.PhoneNumber, &user.Language,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	if err != nil {
		return nil, apperror.Storage("update credits", err)
	}

	db.logger.Infow("Credits updated", "telegram_id", telegramID, "credits_remaining", user.CreditsRemaining)
	return &user, nil
}

// UpdateUserLanguage sets the user's preferred language ('en' or 'ru').
func (db *PostgresDB) UpdateUserLanguage(ctx context.Context, telegramID int64, language string) error {
	if language != "en" && language != "ru" {
		return apperror.ValidationFailed("language", fmt.Sprintf("invalid language code %q", language))
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET language = $2, updated_at = NOW() WHERE telegram_id = $1`,
		telegramID, language,
	)
	if err != nil {
		return apperror.Storage("update language", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	return nil
}

// UpdateUserContact sets country and/or phone number. Empty values are
// left untouched.
func (db *PostgresDB) UpdateUserContact(ctx context.Context, telegramID int64, country, phoneNumber string) error {
	if country == "" && phoneNumber == "" {
		return apperror.ValidationFailed("contact", "nothing to update")
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	tag, err := db.pool.Exec(ctx, `
        UPDATE users
        SET country = COALESCE(NULLIF($2, ''), country),
            phone_number = COALESCE(NULLIF($3, ''), phone_number),
            updated_at = NOW()
        WHERE telegram_id = $1`,
		telegramID, country, phoneNumber,
	)
	if err != nil {
		return apperror.Storage("update contact", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", strconv.FormatInt(telegramID, 10))
	}
	return nil
}
