package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
)

// RecordAction appends an entry to the action log. Photo-specific fields
// (photo URL, nutrition, model) are stored only when set. Storage errors
// propagate; the journal never drops entries silently.
func (db *PostgresDB) RecordAction(ctx context.Context, entry *models.LogEntry) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return apperror.Storage("marshal log metadata", err)
	}

	var kbzhuJSON []byte
	if entry.KBZHU != nil {
		kbzhuJSON, err = json.Marshal(entry.KBZHU)
		if err != nil {
			return apperror.Storage("marshal kbzhu", err)
		}
	}

	query := `
        INSERT INTO logs (user_id, action_type, metadata, photo_url, kbzhu, model_used)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, timestamp`

	err = db.pool.QueryRow(ctx, query,
		entry.UserID, entry.ActionType, metadataJSON, entry.PhotoURL, kbzhuJSON, entry.ModelUsed,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return apperror.Storage("insert log entry", err)
	}

	db.logger.Infow("Action logged", "user_id", entry.UserID, "action_type", entry.ActionType)
	return nil
}

// DailySummary aggregates the user's photo_analysis entries for the given
// day into nutrition totals. A day with no analyses yields zero totals.
func (db *PostgresDB) DailySummary(ctx context.Context, userID int64, date time.Time) (*models.DailySummary, error) {
	entries, err := db.photoAnalysesForDay(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	summary := models.SummarizeDay(date, entries)
	return &summary, nil
}

func (db *PostgresDB) photoAnalysesForDay(ctx context.Context, userID int64, date time.Time) ([]models.LogEntry, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(23*time.Hour + 59*time.Minute + 59*time.Second)

	query := `
        SELECT id, user_id, action_type, metadata, photo_url, kbzhu, model_used, timestamp
        FROM logs
        WHERE user_id = $1 AND action_type = $2 AND timestamp >= $3 AND timestamp < $4
        ORDER BY timestamp`

	rows, err := db.pool.Query(ctx, query, userID, models.ActionPhotoAnalysis, dayStart, dayEnd)
	if err != nil {
		return nil, apperror.Storage("query daily logs", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		var metadataJSON, kbzhuJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.ActionType,
			&metadataJSON, &entry.PhotoURL, &kbzhuJSON, &entry.ModelUsed, &entry.Timestamp,
		); err != nil {
			return nil, apperror.Storage("scan log entry", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				db.logger.Warnw("Skipping malformed log metadata", "log_id", entry.ID, "error", err)
			}
		}
		if len(kbzhuJSON) > 0 {
			var k models.KBZHU
			if err := json.Unmarshal(kbzhuJSON, &k); err != nil {
				db.logger.Warnw("Skipping malformed kbzhu payload", "log_id", entry.ID, "error", err)
			} else {
				entry.KBZHU = &k
			}
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Storage("iterate daily logs", err)
	}

	return entries, nil
}
