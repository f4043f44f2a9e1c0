package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"evcentral/internal/models"
)

// AuthTagRepository reads authorization tags.
type AuthTagRepository struct {
	db DB
}

// NewAuthTagRepository ctor.
func NewAuthTagRepository(db DB) *AuthTagRepository {
	return &AuthTagRepository{db: db}
}

// GetAuthTag returns the tag or ErrNotFound.
func (r *AuthTagRepository) GetAuthTag(ctx context.Context, idTag string) (*models.AuthTag, error) {
	const query = `
		SELECT id_tag, name, charger_id, blocked
		FROM auth_tags
		WHERE id_tag = $1
	`
	var tag models.AuthTag
	err := r.db.QueryRow(ctx, query, idTag).Scan(&tag.IDTag, &tag.Name, &tag.ChargerID, &tag.Blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// PutAuthTag creates or replaces a tag.
func (r *AuthTagRepository) PutAuthTag(ctx context.Context, tag models.AuthTag) error {
	const query = `
		INSERT INTO auth_tags (id_tag, name, charger_id, blocked)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id_tag) DO UPDATE SET
			name = EXCLUDED.name,
			charger_id = EXCLUDED.charger_id,
			blocked = EXCLUDED.blocked
	`
	_, err := r.db.Exec(ctx, query, tag.IDTag, tag.Name, tag.ChargerID, tag.Blocked)
	return err
}
