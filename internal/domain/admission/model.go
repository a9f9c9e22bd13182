package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/validation"
)

// MinDischargeCharge is the smallest charge a discharge may be finalized with.
const MinDischargeCharge = 1000.0

type Room struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Number    int       `db:"number" json:"number" validate:"gt=0"`
	RoomType  string    `db:"room_type" json:"room_type" validate:"max=50"`
	Charge    float64   `db:"charge" json:"charge" validate:"gte=0"`
	AC        bool      `db:"ac" json:"ac"`
	ICU       bool      `db:"icu" json:"icu"`
	Occupied  bool      `db:"occupied" json:"occupied"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Normalize defaults an empty room type to "general".
func (r *Room) Normalize() {
	r.RoomType = strings.TrimSpace(r.RoomType)
	if r.RoomType == "" {
		r.RoomType = "general"
	}
}

func (r *Room) Validate() error {
	r.Normalize()
	if err := validation.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Admission is a patient's occupancy of a room. It is active until
// DischargedAt is set.
type Admission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName  string     `db:"patient_name" json:"patient_name,omitempty"`
	RoomID       uuid.UUID  `db:"room_id" json:"room_id"`
	RoomNumber   int        `db:"room_number" json:"room_number,omitempty"`
	AdmittedBy   uuid.UUID  `db:"admitted_by" json:"admitted_by"`
	AdmittedAt   time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	Charge       *float64   `db:"charge" json:"charge,omitempty"`
}

func (a *Admission) Active() bool { return a.DischargedAt == nil }

type DischargeStatus string

const (
	DischargePending   DischargeStatus = "pending"
	DischargeCompleted DischargeStatus = "completed"
)

func ParseDischargeStatus(s string) (DischargeStatus, error) {
	switch DischargeStatus(strings.ToLower(strings.TrimSpace(s))) {
	case DischargePending:
		return DischargePending, nil
	case DischargeCompleted:
		return DischargeCompleted, nil
	}
	return "", fmt.Errorf("%w: status must be pending or completed", ErrInvalid)
}

// DischargeRequest notifies administrators that clinical staff consider a
// patient ready to leave.
type DischargeRequest struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	PatientName string          `db:"patient_name" json:"patient_name,omitempty"`
	AdmissionID uuid.UUID       `db:"admission_id" json:"admission_id"`
	RequestedBy uuid.UUID       `db:"requested_by" json:"requested_by"`
	Status      DischargeStatus `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}
