package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/directory"
	"github.com/hms/hms/internal/platform/metrics"
)

// todayLimit caps the listing of a single day.
const todayLimit = 32

type Service struct {
	bookings  BookingRepository
	directory directory.Directory
	tx        db.Transactor
	clock     clock.Clock
	logger    zerolog.Logger
}

func NewService(bookings BookingRepository, dir directory.Directory, tx db.Transactor,
	clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{bookings: bookings, directory: dir, tx: tx, clock: clk, logger: logger}
}

func lookupErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// bookableStaff loads the staff member and requires them to be on duty.
func (s *Service) bookableStaff(ctx context.Context, staffID uuid.UUID) (*directory.Staff, error) {
	st, err := s.directory.StaffByID(ctx, staffID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !st.OnDuty() {
		return nil, ErrStaffUnavailable
	}
	return st, nil
}

// AvailableSlots returns the open slot labels of staffID on date in hour
// order. Past dates are not rejected; their grid is computed as usual.
func (s *Service) AvailableSlots(ctx context.Context, staffID uuid.UUID, date time.Time) ([]string, error) {
	if _, err := s.bookableStaff(ctx, staffID); err != nil {
		metrics.IncSlotQuery("rejected")
		return nil, err
	}
	booked, err := s.bookings.BookedSlots(ctx, staffID, date)
	if err != nil {
		return nil, err
	}
	metrics.IncSlotQuery("ok")
	return AvailableSlots(s.clock.Now(), date, booked), nil
}

// BookSlot reserves slot for patientID. Checks run in a fixed order and the
// first failure is returned; nothing is written unless all pass.
func (s *Service) BookSlot(ctx context.Context, staffID uuid.UUID, date time.Time, slot string,
	patientID uuid.UUID, reason string) (*Booking, error) {
	b, err := s.bookSlot(ctx, staffID, date, slot, patientID, reason)
	if err != nil {
		metrics.IncBooking(bookingOutcome(err))
		return nil, err
	}
	metrics.IncBooking("ok")
	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("staff_id", staffID.String()).
		Str("date", b.Date.Format(clock.DateLayout)).
		Str("slot", b.Slot).
		Msg("slot booked")
	return b, nil
}

func (s *Service) bookSlot(ctx context.Context, staffID uuid.UUID, date time.Time, label string,
	patientID uuid.UUID, reason string) (*Booking, error) {
	if _, err := s.bookableStaff(ctx, staffID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if clock.CompareDates(date, now) < 0 {
		return nil, ErrDateInPast
	}
	slot, err := ParseSlot(strings.TrimSpace(label))
	if err != nil {
		return nil, err
	}
	if clock.SameDate(date, now) && slot.Hour() <= now.Hour() {
		return nil, ErrSlotInPast
	}
	if _, err := s.directory.PatientByID(ctx, patientID); err != nil {
		return nil, lookupErr(err)
	}

	y, m, d := date.Date()
	b := &Booking{
		StaffID:   staffID,
		PatientID: patientID,
		Date:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Slot:      slot.Label(),
		Reason:    strings.TrimSpace(reason),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booked, err := s.bookings.BookedSlots(ctx, staffID, b.Date)
		if err != nil {
			return err
		}
		for _, l := range booked {
			if l == b.Slot {
				return ErrSlotAlreadyBooked
			}
		}
		// A concurrent insert that slips past the check above is rejected
		// by the unique constraint and surfaces as ErrSlotAlreadyBooked.
		return s.bookings.Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ParseDate reads a YYYY-MM-DD date in the service clock's location.
func (s *Service) ParseDate(v string) (time.Time, error) {
	d, err := clock.ParseDate(strings.TrimSpace(v), s.clock.Now().Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
	}
	return d, nil
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStaffUnavailable):
		return "staff_unavailable"
	case errors.Is(err, ErrDateInPast):
		return "date_in_past"
	case errors.Is(err, ErrSlotOutOfHours):
		return "out_of_hours"
	case errors.Is(err, ErrSlotInPast):
		return "slot_in_past"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "conflict"
	}
	return "error"
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// GetBookingFor returns the booking when caller is an admin, the booked
// patient, or the booked staff member.
func (s *Service) GetBookingFor(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin {
		return b, nil
	}
	if p, err := s.directory.PatientByUserID(ctx, caller.UserID); err == nil && p.ID == b.PatientID {
		return b, nil
	}
	if st, err := s.directory.StaffByUserID(ctx, caller.UserID); err == nil && st.ID == b.StaffID {
		return b, nil
	}
	return nil, ErrForbidden
}

func (s *Service) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.bookings.ListByPatient(ctx, patientID, limit, offset)
}

// ListBookingsByStaff lists a staff member's bookings, optionally for one
// date. Admins may name any staff record; doctors and nurses only their own,
// which is also the default when staffID is uuid.Nil.
func (s *Service) ListBookingsByStaff(ctx context.Context, caller auth.Principal, staffID uuid.UUID, date *time.Time, limit, offset int) ([]*Booking, int, error) {
	if !caller.IsAdmin || staffID == uuid.Nil {
		st, err := s.directory.StaffByUserID(ctx, caller.UserID)
		switch {
		case errors.Is(err, directory.ErrNotFound) && !caller.IsAdmin:
			return nil, 0, ErrForbidden
		case err != nil:
			return nil, 0, lookupErr(err)
		case staffID == uuid.Nil:
			staffID = st.ID
		case st.ID != staffID:
			return nil, 0, ErrForbidden
		}
	}
	return s.bookings.ListByStaff(ctx, staffID, date, limit, offset)
}

// PatientIDForUser resolves the patient record of a logged-in user.
func (s *Service) PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	p, err := s.directory.PatientByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, lookupErr(err)
	}
	return p.ID, nil
}

// TodayAppointments lists today's bookings of the calling doctor or nurse
// in slot order.
func (s *Service) TodayAppointments(ctx context.Context, caller auth.Principal) ([]*Booking, error) {
	if !caller.Role.IsStaff() {
		return nil, ErrForbidden
	}
	st, err := s.directory.StaffByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !st.OnDuty() {
		return nil, ErrStaffUnavailable
	}

	today := clock.Today(s.clock.Now())
	items, _, err := s.bookings.ListByStaff(ctx, st.ID, &today, todayLimit, 0)
	if err != nil {
		return nil, err
	}
	sortBySlot(items)
	return items, nil
}

func sortBySlot(items []*Booking) {
	sort.SliceStable(items, func(i, j int) bool {
		if c := clock.CompareDates(items[i].Date, items[j].Date); c != 0 {
			return c < 0
		}
		return items[i].hour() < items[j].hour()
	})
}

// CancelBooking deletes a booking. Only an admin or the booked patient may
// cancel.
func (s *Service) CancelBooking(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !caller.IsAdmin {
		p, err := s.directory.PatientByUserID(ctx, caller.UserID)
		if err != nil || p.ID != b.PatientID {
			return ErrForbidden
		}
	}
	if err := s.bookings.Delete(ctx, id); err != nil {
		return err
	}
	metrics.IncBookingCancelled()
	s.logger.Info().Str("booking_id", id.String()).Str("by", caller.UserID.String()).Msg("booking cancelled")
	return nil
}
