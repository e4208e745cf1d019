package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

func (s *Store) GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	const query = `
SELECT kind, id, name, base_price_cents, status, created_at, updated_at
FROM resources
WHERE kind = $1 AND id = $2`

	var res model.Resource
	var k, status string
	err := s.queryRow(ctx, query, string(kind), id).
		Scan(&k, &res.ID, &res.Name, &res.BasePriceCents, &status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Resource{}, apperr.New(apperr.NotFound, "%s %s not found", kind, id)
	}
	if err != nil {
		return model.Resource{}, translate(err, "get resource")
	}
	res.Kind = model.ResourceKind(k)
	res.Status = model.ResourceStatus(status)
	return res, nil
}

func (s *Store) UpsertResource(ctx context.Context, res model.Resource) error {
	const query = `
INSERT INTO resources (kind, id, name, base_price_cents, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (kind, id) DO UPDATE
SET name = EXCLUDED.name,
    base_price_cents = EXCLUDED.base_price_cents,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at`

	_, err := s.exec(ctx, query,
		string(res.Kind), res.ID, res.Name, res.BasePriceCents, string(res.Status), res.CreatedAt, res.UpdatedAt)
	return translate(err, "upsert resource")
}
