package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// ClassRepository manages lookups for canonical classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class or sql.ErrNoRows.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := r.db.Rebind(`SELECT id, name, created_at FROM classes WHERE id = ?`)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, fmt.Errorf("find class %s: %w", id, err)
	}
	return &class, nil
}

// FindByName matches the canonical name exactly.
func (r *ClassRepository) FindByName(ctx context.Context, name string) (*models.Class, error) {
	query := r.db.Rebind(`SELECT id, name, created_at FROM classes WHERE name = ?`)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, name); err != nil {
		return nil, fmt.Errorf("find class by name %q: %w", name, err)
	}
	return &class, nil
}

// List returns all classes sorted by name.
func (r *ClassRepository) List(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, `SELECT id, name, created_at FROM classes ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}
