package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomRepository interface {
	// Create returns ErrRoomExists when the number is taken.
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	List(ctx context.Context, limit, offset int) ([]*Room, int, error)
}

type AdmissionRepository interface {
	// Create returns ErrRoomOccupied when the room has an active admission.
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	ActiveForRoom(ctx context.Context, roomID uuid.UUID) (*Admission, error)
	// LatestForPatient prefers an active admission over closed ones.
	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error)
	// Discharge closes an active admission; a closed one yields
	// ErrAlreadyDischarged.
	Discharge(ctx context.Context, id uuid.UUID, at time.Time, charge float64) error
	List(ctx context.Context, active *bool, limit, offset int) ([]*Admission, int, error)
}

type DischargeRequestRepository interface {
	// Create returns ErrDischargeAlreadyRequested when the admission already
	// has a pending request.
	Create(ctx context.Context, r *DischargeRequest) error
	PendingForAdmission(ctx context.Context, admissionID uuid.UUID) (*DischargeRequest, error)
	CompletePending(ctx context.Context, admissionID uuid.UUID, at time.Time) (int64, error)
	List(ctx context.Context, status *DischargeStatus, limit, offset int) ([]*DischargeRequest, int, error)
}
