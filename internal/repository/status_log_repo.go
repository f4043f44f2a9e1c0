package repository

import (
	"context"

	"evcentral/internal/models"
)

// StatusLogRepository appends charger status audit rows.
type StatusLogRepository struct {
	db DB
}

// NewStatusLogRepository ctor.
func NewStatusLogRepository(db DB) *StatusLogRepository {
	return &StatusLogRepository{db: db}
}

// AppendStatus stores entry.
func (r *StatusLogRepository) AppendStatus(ctx context.Context, entry models.StatusLogEntry) error {
	const query = `
		INSERT INTO status_logs (charger_id, status, timestamp)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Exec(ctx, query, entry.ChargerID, entry.Status, entry.Timestamp)
	return err
}

// ListStatus returns the latest entries of a charger, newest first.
func (r *StatusLogRepository) ListStatus(ctx context.Context, chargerID string, limit int) ([]models.StatusLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, charger_id, status, timestamp
		FROM status_logs
		WHERE charger_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, chargerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.StatusLogEntry
	for rows.Next() {
		var e models.StatusLogEntry
		if err := rows.Scan(&e.ID, &e.ChargerID, &e.Status, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
