// Package directory describes the read-only view of staff and patient
// records that clinical packages need. The identity package owns the data;
// cmd wires an adapter over it so domain packages never import each other.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

var ErrNotFound = errors.New("directory: record not found")

type Staff struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Username  string
	Role      auth.Role
	Approved  bool
	Available bool
}

// OnDuty reports whether the staff member may receive bookings, duties and
// admissions.
func (s *Staff) OnDuty() bool {
	return s.Approved && s.Available
}

type Patient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Username string
}

type Directory interface {
	StaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	StaffByUserID(ctx context.Context, userID uuid.UUID) (*Staff, error)
	PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	PatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
}
