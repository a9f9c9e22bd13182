package nursing

import (
	"time"

	"github.com/google/uuid"
)

// Duty assigns a staff member to look after a patient.
type Duty struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StaffID     uuid.UUID `db:"staff_id" json:"staff_id"`
	StaffName   string    `db:"staff_name" json:"staff_name,omitempty"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name,omitempty"`
	AssignedAt  time.Time `db:"assigned_at" json:"assigned_at"`
}
