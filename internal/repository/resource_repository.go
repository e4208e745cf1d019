package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// ResourceRepo provides data access to the resources table.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo returns a new ResourceRepo bound to the provided database.
func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

// GetResource fetches a resource by kind and id.  It returns an
// apperr.NotFound error when no row matches.
func (r *ResourceRepo) GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	var res model.Resource
	var k, status string
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT kind, id, name, base_price_cents, status, created_at, updated_at
		   FROM resources WHERE kind = ? AND id = ?`,
		string(kind), id,
	).Scan(&k, &res.ID, &res.Name, &res.BasePriceCents, &status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, apperr.New(apperr.NotFound, "%s %s not found", kind, id)
	}
	if err != nil {
		return model.Resource{}, translate(err, "get resource")
	}
	res.Kind = model.ResourceKind(k)
	res.Status = model.ResourceStatus(status)
	return res, nil
}

// UpsertResource inserts the resource or updates name, price and status of
// an existing one.  created_at is kept on update.
func (r *ResourceRepo) UpsertResource(ctx context.Context, res model.Resource) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO resources (kind, id, name, base_price_cents, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   name = VALUES(name),
		   base_price_cents = VALUES(base_price_cents),
		   status = VALUES(status),
		   updated_at = VALUES(updated_at)`,
		string(res.Kind), res.ID, res.Name, res.BasePriceCents, string(res.Status), res.CreatedAt, res.UpdatedAt,
	)
	return translate(err, "upsert resource")
}
