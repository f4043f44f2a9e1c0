package repository

import (
	"context"
)

// OCPPLogRepository stores raw OCPP frames.
type OCPPLogRepository struct {
	db DB
}

// NewOCPPLogRepository ctor.
func NewOCPPLogRepository(db DB) *OCPPLogRepository {
	return &OCPPLogRepository{db: db}
}

// Save stores log entry. Payload is kept as text since malformed frames are logged too.
func (r *OCPPLogRepository) Save(ctx context.Context, chargerID, direction, action string, payload []byte) error {
	const query = `
		INSERT INTO ocpp_messages (charger_id, direction, action, payload)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, chargerID, direction, action, string(payload))
	return err
}
