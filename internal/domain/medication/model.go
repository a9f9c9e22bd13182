package medication

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/validation"
)

type Medicine struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=200"`
	Charge    float64   `db:"charge" json:"charge" validate:"gte=0"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (m *Medicine) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
}

func (m *Medicine) Validate() error {
	m.Normalize()
	return check(m)
}

func check(v interface{}) error {
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

type MedicinePatch struct {
	Name   *string  `json:"name,omitempty" validate:"omitnil,max=200"`
	Charge *float64 `json:"charge,omitempty" validate:"omitnil,gte=0"`
}

type Prescription struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	PatientID   uuid.UUID           `db:"patient_id" json:"patient_id"`
	PatientName string              `db:"patient_name" json:"patient_name,omitempty"`
	StaffID     uuid.UUID           `db:"staff_id" json:"staff_id"`
	StaffName   string              `db:"staff_name" json:"staff_name,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	Items       []*PrescriptionItem `json:"items"`
}

// Total is the sum of count times unit charge over all items.
func (p *Prescription) Total() float64 {
	var sum float64
	for _, it := range p.Items {
		sum += float64(it.Count) * it.Charge
	}
	return sum
}

type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"-"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName   string    `db:"medicine_name" json:"medicine_name,omitempty"`
	Charge         float64   `db:"charge" json:"charge"`
	Count          int       `db:"count" json:"count"`
}

type ItemInput struct {
	MedicineID uuid.UUID `json:"medicine_id" validate:"required"`
	Count      int       `json:"count" validate:"min=1"`
}

// PrescriptionInput names the prescribing staff member only when an admin
// writes on a doctor's behalf; doctors always prescribe as themselves.
type PrescriptionInput struct {
	PatientID uuid.UUID   `json:"patient_id" validate:"required"`
	StaffID   *uuid.UUID  `json:"staff_id,omitempty"`
	Items     []ItemInput `json:"items" validate:"min=1,dive"`
}

func (in *PrescriptionInput) Validate() error {
	return check(in)
}

// prescriptionView adds the computed total to the JSON form.
type prescriptionView struct {
	*Prescription
	Total float64 `json:"total"`
}
