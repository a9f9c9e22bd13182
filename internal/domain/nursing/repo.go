package nursing

import (
	"context"

	"github.com/google/uuid"
)

type DutyRepository interface {
	Create(ctx context.Context, d *Duty) error
	// List returns every duty, or only staffID's when it is non-nil.
	List(ctx context.Context, staffID *uuid.UUID, limit, offset int) ([]*Duty, int, error)
	SearchStaffNames(ctx context.Context, query string, limit int) ([]string, error)
}
