package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// StaffRepository resolves teachers, admins and the class a teacher owns.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository constructs a staff repository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// FindByID returns the staff member or sql.ErrNoRows.
func (r *StaffRepository) FindByID(ctx context.Context, id string) (*models.Staff, error) {
	query := r.db.Rebind(`SELECT id, name, email, role, class_id, class_name, created_at FROM staff WHERE id = ?`)
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, id); err != nil {
		return nil, fmt.Errorf("find staff %s: %w", id, err)
	}
	return &staff, nil
}
