package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BookingRepository interface {
	// Create returns ErrSlotAlreadyBooked when (staff, date, slot) is taken.
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	Delete(ctx context.Context, id uuid.UUID) error
	BookedSlots(ctx context.Context, staffID uuid.UUID, date time.Time) ([]string, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error)
	// ListByStaff filters by date when date is non-nil.
	ListByStaff(ctx context.Context, staffID uuid.UUID, date *time.Time, limit, offset int) ([]*Booking, int, error)
}
