package emergency

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/validation"
)

// Case is a walk-in emergency treated by one staff member.
type Case struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName   string    `db:"patient_name" json:"patient_name,omitempty"`
	StaffID       uuid.UUID `db:"staff_id" json:"staff_id"`
	StaffName     string    `db:"staff_name" json:"staff_name,omitempty"`
	OccurredAt    time.Time `db:"occurred_at" json:"occurred_at"`
	Disease       string    `db:"disease" json:"disease"`
	Charge        float64   `db:"charge" json:"charge"`
	BillGenerated bool      `db:"bill_generated" json:"bill_generated"`
}

type CaseInput struct {
	PatientID  uuid.UUID  `json:"patient_id" validate:"required"`
	StaffID    uuid.UUID  `json:"staff_id" validate:"required"`
	Disease    string     `json:"disease" validate:"required,max=200"`
	Charge     float64    `json:"charge" validate:"gte=0"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

func (in *CaseInput) Normalize() {
	in.Disease = strings.TrimSpace(in.Disease)
}

func (in *CaseInput) Validate() error {
	in.Normalize()
	if err := validation.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
