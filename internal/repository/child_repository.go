package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// ChildRepository resolves children and their class membership.
type ChildRepository struct {
	db *sqlx.DB
}

// NewChildRepository constructs a child repository.
func NewChildRepository(db *sqlx.DB) *ChildRepository {
	return &ChildRepository{db: db}
}

const childColumns = `id, name, class_id, class_name, parent_id, created_at`

// FindByID returns the child or sql.ErrNoRows.
func (r *ChildRepository) FindByID(ctx context.Context, id string) (*models.Child, error) {
	query := r.db.Rebind(`SELECT ` + childColumns + ` FROM children WHERE id = ?`)
	var child models.Child
	if err := r.db.GetContext(ctx, &child, query, id); err != nil {
		return nil, fmt.Errorf("find child %s: %w", id, err)
	}
	return &child, nil
}

// FindByIDs loads the requested children; missing ids are simply absent from the result.
func (r *ChildRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Child, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+childColumns+` FROM children WHERE id IN (?) ORDER BY name ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("build children lookup: %w", err)
	}
	var children []models.Child
	if err := r.db.SelectContext(ctx, &children, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find children: %w", err)
	}
	return children, nil
}

// ListByParent returns every child owned by the parent with the canonical class name when known.
func (r *ChildRepository) ListByParent(ctx context.Context, parentID string) ([]models.ChildSummary, error) {
	query := r.db.Rebind(`
SELECT c.id, c.name, c.class_id, COALESCE(cl.name, c.class_name) AS class_name
FROM children c
LEFT JOIN classes cl ON cl.id = c.class_id
WHERE c.parent_id = ?
ORDER BY c.name ASC`)
	var children []models.ChildSummary
	if err := r.db.SelectContext(ctx, &children, query, parentID); err != nil {
		return nil, fmt.Errorf("list children for parent: %w", err)
	}
	return children, nil
}
