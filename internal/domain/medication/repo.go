package medication

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	// Create and Update return ErrMedicineExists on a duplicate name.
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	List(ctx context.Context, limit, offset int) ([]*Medicine, int, error)
	SearchNames(ctx context.Context, query string, limit int) ([]string, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	AddItem(ctx context.Context, item *PrescriptionItem) error
	// List returns prescriptions with their items, all or only staffID's.
	List(ctx context.Context, staffID *uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}
