package scheduling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/clock"
)

// Booking reserves one slot of one staff member on one date. Bookings are
// never updated, only created and deleted.
type Booking struct {
	ID        uuid.UUID `db:"id"`
	StaffID   uuid.UUID `db:"staff_id"`
	PatientID uuid.UUID `db:"patient_id"`
	Date      time.Time `db:"date"`
	Slot      string    `db:"slot"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`

	// Joined for listings.
	StaffName   string `db:"staff_name"`
	PatientName string `db:"patient_name"`
}

type bookingJSON struct {
	ID          uuid.UUID `json:"id"`
	StaffID     uuid.UUID `json:"staff_id"`
	StaffName   string    `json:"staff_name,omitempty"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name,omitempty"`
	Date        string    `json:"date"`
	Slot        string    `json:"slot"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalJSON renders Date as a plain calendar date.
func (b *Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingJSON{
		ID:          b.ID,
		StaffID:     b.StaffID,
		StaffName:   b.StaffName,
		PatientID:   b.PatientID,
		PatientName: b.PatientName,
		Date:        b.Date.Format(clock.DateLayout),
		Slot:        b.Slot,
		Reason:      b.Reason,
		CreatedAt:   b.CreatedAt,
	})
}

// hour returns the slot hour for ordering; unparsable labels sort last.
func (b *Booking) hour() int {
	s, err := ParseSlot(b.Slot)
	if err != nil {
		return 1 << 30
	}
	return s.Hour()
}

// AvailabilityResponse is the body of a slot query.
type AvailabilityResponse struct {
	StaffID uuid.UUID `json:"staff_id"`
	Date    string    `json:"date"`
	Slots   []string  `json:"slots"`
}
