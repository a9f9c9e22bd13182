package scheduling

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/directory"
)

// -- Mock Repository --

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[uuid.UUID]*Booking)}
}

// Create enforces (staff, date, slot) uniqueness like the table constraint.
func (m *mockBookingRepo) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.StaffID == b.StaffID && clock.SameDate(existing.Date, b.Date) && existing.Slot == b.Slot {
			return ErrSlotAlreadyBooked
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	m.bookings[b.ID] = b
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *mockBookingRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *mockBookingRepo) BookedSlots(_ context.Context, staffID uuid.UUID, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var labels []string
	for _, b := range m.bookings {
		if b.StaffID == staffID && clock.SameDate(b.Date, date) {
			labels = append(labels, b.Slot)
		}
	}
	return labels, nil
}

func (m *mockBookingRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Booking
	for _, b := range m.bookings {
		if b.PatientID == patientID {
			result = append(result, b)
		}
	}
	return result, len(result), nil
}

func (m *mockBookingRepo) ListByStaff(_ context.Context, staffID uuid.UUID, date *time.Time, limit, offset int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Booking
	for _, b := range m.bookings {
		if b.StaffID != staffID {
			continue
		}
		if date != nil && !clock.SameDate(b.Date, *date) {
			continue
		}
		result = append(result, b)
	}
	return result, len(result), nil
}

func (m *mockBookingRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

type nopTx struct{}

func (nopTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// -- Fixtures --

// frozenNow is Monday 2024-06-10 10:30 UTC.
var frozenNow = time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *mockBookingRepo
	dir     *directory.Memory
	staff   *directory.Staff
	patient *directory.Patient
}

func newFixture(now time.Time) *fixture {
	dir := directory.NewMemory()
	repo := newMockBookingRepo()
	return &fixture{
		svc:     NewService(repo, dir, nopTx{}, clock.Fixed(now), zerolog.New(io.Discard)),
		repo:    repo,
		dir:     dir,
		staff:   dir.AddStaff("drsmith", auth.RoleDoctor, true, true),
		patient: dir.AddPatient("pat"),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return clock.DateOnly(y, m, d, time.UTC)
}

// -- Availability --

func TestService_AvailableSlots_StaffNotFound(t *testing.T) {
	f := newFixture(frozenNow)
	_, err := f.svc.AvailableSlots(context.Background(), uuid.New(), day(2024, 6, 11))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_StaffMustBeApprovedAndAvailable(t *testing.T) {
	tests := []struct {
		name                string
		approved, available bool
	}{
		{"unapproved", false, true},
		{"unavailable", true, false},
		{"neither", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(frozenNow)
			st := f.dir.AddStaff("drno", auth.RoleDoctor, tt.approved, tt.available)
			ctx := context.Background()

			if _, err := f.svc.AvailableSlots(ctx, st.ID, day(2024, 6, 11)); !errors.Is(err, ErrStaffUnavailable) {
				t.Errorf("AvailableSlots: expected ErrStaffUnavailable, got %v", err)
			}
			if _, err := f.svc.BookSlot(ctx, st.ID, day(2024, 6, 11), "14:00", f.patient.ID, "checkup"); !errors.Is(err, ErrStaffUnavailable) {
				t.Errorf("BookSlot: expected ErrStaffUnavailable, got %v", err)
			}
			if f.repo.count() != 0 {
				t.Error("expected no booking to be stored")
			}
		})
	}
}

func TestService_AvailableSlots_FutureDate(t *testing.T) {
	f := newFixture(frozenNow)
	got, err := f.svc.AvailableSlots(context.Background(), f.staff.ID, day(2024, 6, 12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, fullGrid) {
		t.Errorf("expected %v, got %v", fullGrid, got)
	}
}

func TestService_AvailableSlots_Today(t *testing.T) {
	f := newFixture(frozenNow)
	got, err := f.svc.AvailableSlots(context.Background(), f.staff.ID, day(2024, 6, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, label := range got {
		s, _ := ParseSlot(label)
		if s.Hour() <= frozenNow.Hour() {
			t.Errorf("label %s is not after the current hour", label)
		}
	}
	if len(got) != 8 {
		t.Errorf("expected 8 slots after 10:30, got %v", got)
	}
}

func TestService_AvailableSlots_Idempotent(t *testing.T) {
	f := newFixture(frozenNow)
	ctx := context.Background()
	f.svc.BookSlot(ctx, f.staff.ID, day(2024, 6, 11), "16:00", f.patient.ID, "")

	first, err := f.svc.AvailableSlots(ctx, f.staff.ID, day(2024, 6, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := f.svc.AvailableSlots(ctx, f.staff.ID, day(2024, 6, 11))
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated reads differ: %v vs %v", first, second)
	}
	if f.repo.count() != 1 {
		t.Error("reads must not change stored bookings")
	}
}

// -- Booking --

func TestService_BookSlot_ValidationOrder(t *testing.T) {
	yesterday := day(2024, 6, 9)
	today := day(2024, 6, 10)
	tomorrow := day(2024, 6, 11)

	tests := []struct {
		name string
		date time.Time
		slot string
		want error
	}{
		{"past date wins over bad slot", yesterday, "12:00", ErrDateInPast},
		{"past date", yesterday, "14:00", ErrDateInPast},
		{"lunch hour", tomorrow, "12:00", ErrSlotOutOfHours},
		{"before opening", tomorrow, "8:00", ErrSlotOutOfHours},
		{"after closing", tomorrow, "20:00", ErrSlotOutOfHours},
		{"not a label", tomorrow, "two pm", ErrSlotOutOfHours},
		{"out of hours wins over past slot", today, "8:00", ErrSlotOutOfHours},
		{"current hour", today, "10:00", ErrSlotInPast},
		{"earlier today", today, "9:00", ErrSlotInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(frozenNow)
			_, err := f.svc.BookSlot(context.Background(), f.staff.ID, tt.date, tt.slot, f.patient.ID, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if f.repo.count() != 0 {
				t.Error("failed booking must not write")
			}
		})
	}
}

func TestService_BookSlot_LaterToday(t *testing.T) {
	f := newFixture(frozenNow)
	b, err := f.svc.BookSlot(context.Background(), f.staff.ID, day(2024, 6, 10), "11:00", f.patient.ID, "headache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Slot != "11:00" || b.Reason != "headache" {
		t.Errorf("unexpected booking %+v", b)
	}
}

func TestService_BookSlot_CanonicalLabel(t *testing.T) {
	f := newFixture(frozenNow)
	b, err := f.svc.BookSlot(context.Background(), f.staff.ID, day(2024, 6, 11), "09:00", f.patient.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Slot != "9:00" {
		t.Errorf("expected stored label 9:00, got %s", b.Slot)
	}
}

func TestService_BookSlot_UnknownPatient(t *testing.T) {
	f := newFixture(frozenNow)
	_, err := f.svc.BookSlot(context.Background(), f.staff.ID, day(2024, 6, 11), "14:00", uuid.New(), "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_BookSlot_Conflict(t *testing.T) {
	f := newFixture(frozenNow)
	ctx := context.Background()
	date := day(2024, 6, 11)

	if _, err := f.svc.BookSlot(ctx, f.staff.ID, date, "14:00", f.patient.ID, "first"); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	other := f.dir.AddPatient("other")
	if _, err := f.svc.BookSlot(ctx, f.staff.ID, date, "14:00", other.ID, "second"); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Errorf("expected ErrSlotAlreadyBooked, got %v", err)
	}

	slots, _ := f.svc.AvailableSlots(ctx, f.staff.ID, date)
	for _, l := range slots {
		if l == "14:00" {
			t.Error("14:00 must no longer be available")
		}
	}
	if len(slots) != 9 {
		t.Errorf("expected 9 slots, got %v", slots)
	}

	// Another staff member's grid is unaffected.
	colleague := f.dir.AddStaff("drjones", auth.RoleDoctor, true, true)
	if _, err := f.svc.BookSlot(ctx, colleague.ID, date, "14:00", other.ID, ""); err != nil {
		t.Errorf("expected colleague booking to succeed, got %v", err)
	}
}

func TestService_BookSlot_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(frozenNow)
	date := day(2024, 6, 11)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		p := f.dir.AddPatient("racer")
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.BookSlot(context.Background(), f.staff.ID, date, "15:00", patientID, "")
			errs <- err
		}(p.ID)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotAlreadyBooked):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", n-1, ok, conflicts)
	}
}

func TestService_EndToEnd(t *testing.T) {
	f := newFixture(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	date := day(2024, 6, 10)

	slots, err := f.svc.AvailableSlots(ctx, f.staff.ID, date)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 10 {
		t.Fatalf("expected 10 labels, got %v", slots)
	}

	if _, err := f.svc.BookSlot(ctx, f.staff.ID, date, "15:00", f.patient.ID, "flu"); err != nil {
		t.Fatalf("BookSlot: %v", err)
	}

	slots, _ = f.svc.AvailableSlots(ctx, f.staff.ID, date)
	if len(slots) != 9 {
		t.Fatalf("expected 9 labels, got %v", slots)
	}
	for _, l := range slots {
		if l == "15:00" {
			t.Error("15:00 must be excluded")
		}
	}
}

// -- Listing & cancellation --

func TestService_TodayAppointments(t *testing.T) {
	f := newFixture(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()
	today := day(2024, 6, 10)
	for _, label := range []string{"16:00", "9:00", "13:00"} {
		if _, err := f.svc.BookSlot(ctx, f.staff.ID, today, label, f.patient.ID, ""); err != nil {
			t.Fatalf("BookSlot %s: %v", label, err)
		}
	}
	f.svc.BookSlot(ctx, f.staff.ID, day(2024, 6, 11), "10:00", f.patient.ID, "")

	caller := auth.Principal{UserID: f.staff.UserID, Role: auth.RoleDoctor}
	items, err := f.svc.TodayAppointments(ctx, caller)
	if err != nil {
		t.Fatalf("TodayAppointments: %v", err)
	}
	var got []string
	for _, b := range items {
		got = append(got, b.Slot)
	}
	if want := []string{"9:00", "13:00", "16:00"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestService_TodayAppointments_Rejections(t *testing.T) {
	f := newFixture(frozenNow)
	ctx := context.Background()

	patient := auth.Principal{UserID: f.patient.UserID, Role: auth.RolePatient}
	if _, err := f.svc.TodayAppointments(ctx, patient); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for patient, got %v", err)
	}

	off := f.dir.AddStaff("nurseoff", auth.RoleNurse, true, false)
	if _, err := f.svc.TodayAppointments(ctx, auth.Principal{UserID: off.UserID, Role: auth.RoleNurse}); !errors.Is(err, ErrStaffUnavailable) {
		t.Errorf("expected ErrStaffUnavailable, got %v", err)
	}

	if _, err := f.svc.TodayAppointments(ctx, auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound without staff record, got %v", err)
	}
}

func TestService_CancelBooking(t *testing.T) {
	f := newFixture(frozenNow)
	ctx := context.Background()
	b, _ := f.svc.BookSlot(ctx, f.staff.ID, day(2024, 6, 11), "14:00", f.patient.ID, "")

	stranger := f.dir.AddPatient("stranger")
	if err := f.svc.CancelBooking(ctx, auth.Principal{UserID: stranger.UserID, Role: auth.RolePatient}, b.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	owner := auth.Principal{UserID: f.patient.UserID, Role: auth.RolePatient}
	if err := f.svc.CancelBooking(ctx, owner, b.ID); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if err := f.svc.CancelBooking(ctx, owner, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second cancel, got %v", err)
	}

	// The slot is offered again.
	slots, _ := f.svc.AvailableSlots(ctx, f.staff.ID, day(2024, 6, 11))
	if len(slots) != 10 {
		t.Errorf("expected full grid after cancel, got %v", slots)
	}
}

func TestService_CancelBooking_Admin(t *testing.T) {
	f := newFixture(frozenNow)
	ctx := context.Background()
	b, _ := f.svc.BookSlot(ctx, f.staff.ID, day(2024, 6, 11), "14:00", f.patient.ID, "")

	admin := auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor, IsAdmin: true}
	if err := f.svc.CancelBooking(ctx, admin, b.ID); err != nil {
		t.Errorf("admin cancel: %v", err)
	}
}

func TestService_GetBookingFor(t *testing.T) {
	f := newFixture(frozenNow)
	ctx := context.Background()
	b, _ := f.svc.BookSlot(ctx, f.staff.ID, day(2024, 6, 11), "14:00", f.patient.ID, "")

	if _, err := f.svc.GetBookingFor(ctx, auth.Principal{UserID: f.staff.UserID, Role: auth.RoleDoctor}, b.ID); err != nil {
		t.Errorf("staff read: %v", err)
	}
	if _, err := f.svc.GetBookingFor(ctx, auth.Principal{UserID: f.patient.UserID, Role: auth.RolePatient}, b.ID); err != nil {
		t.Errorf("patient read: %v", err)
	}
	if _, err := f.svc.GetBookingFor(ctx, auth.Principal{UserID: uuid.New(), Role: auth.RolePatient}, b.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestService_ParseDate(t *testing.T) {
	f := newFixture(frozenNow)
	d, err := f.svc.ParseDate("2024-06-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !clock.SameDate(d, frozenNow) {
		t.Errorf("expected 2024-06-10, got %v", d)
	}
	if _, err := f.svc.ParseDate("10.06.2024"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
