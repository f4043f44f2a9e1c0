package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"evcentral/internal/models"
)

// ChargerRepository manages charger persistence.
type ChargerRepository struct {
	db DB
}

// NewChargerRepository returns repository.
func NewChargerRepository(db DB) *ChargerRepository {
	return &ChargerRepository{db: db}
}

// CreateCharger inserts a new charger and fails with ErrAlreadyExists on a taken id.
func (r *ChargerRepository) CreateCharger(ctx context.Context, charger *models.Charger) error {
	const query = `
		INSERT INTO chargers (id, model, vendor, status, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if charger.LastSeen.IsZero() {
		charger.LastSeen = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, query,
		charger.ID,
		charger.Model,
		charger.Vendor,
		charger.Status,
		charger.LastSeen,
	).Scan(&charger.CreatedAt)
	if isUniqueViolation(err, "chargers_pkey") {
		return ErrAlreadyExists
	}
	return err
}

// UpsertCharger stores or updates charger metadata and status.
func (r *ChargerRepository) UpsertCharger(ctx context.Context, charger *models.Charger) error {
	const query = `
		INSERT INTO chargers (id, model, vendor, status, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			model = EXCLUDED.model,
			vendor = EXCLUDED.vendor,
			status = EXCLUDED.status,
			last_seen = EXCLUDED.last_seen
		RETURNING created_at
	`
	if charger.LastSeen.IsZero() {
		charger.LastSeen = time.Now().UTC()
	}
	return r.db.QueryRow(ctx, query,
		charger.ID,
		charger.Model,
		charger.Vendor,
		charger.Status,
		charger.LastSeen,
	).Scan(&charger.CreatedAt)
}

// UpdateChargerStatus changes status and last_seen.
func (r *ChargerRepository) UpdateChargerStatus(ctx context.Context, chargerID string, status models.ChargerStatus, lastSeen time.Time) error {
	const query = `
		UPDATE chargers
		SET status = $2,
		    last_seen = $3
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, chargerID, status, lastSeen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCharger returns the charger or ErrNotFound.
func (r *ChargerRepository) GetCharger(ctx context.Context, chargerID string) (*models.Charger, error) {
	const query = `
		SELECT id, model, vendor, status, last_seen, created_at
		FROM chargers
		WHERE id = $1
	`
	var c models.Charger
	err := r.db.QueryRow(ctx, query, chargerID).Scan(&c.ID, &c.Model, &c.Vendor, &c.Status, &c.LastSeen, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChargers returns all chargers ordered by id.
func (r *ChargerRepository) ListChargers(ctx context.Context) ([]models.Charger, error) {
	const query = `
		SELECT id, model, vendor, status, last_seen, created_at
		FROM chargers
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []models.Charger
	for rows.Next() {
		var c models.Charger
		if err := rows.Scan(&c.ID, &c.Model, &c.Vendor, &c.Status, &c.LastSeen, &c.CreatedAt); err != nil {
			return nil, err
		}
		chargers = append(chargers, c)
	}
	return chargers, rows.Err()
}
