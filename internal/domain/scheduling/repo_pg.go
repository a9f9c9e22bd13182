package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

const bookingSlotConstraint = "booking_staff_date_slot_key"

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const bookingCols = `b.id, b.staff_id, b.patient_id, b.date, b.slot, b.reason, b.created_at,
	su.username, pu.username`

const bookingFrom = ` FROM booking b
	JOIN staff s ON s.id = b.staff_id
	JOIN users su ON su.id = s.user_id
	JOIN patient p ON p.id = b.patient_id
	JOIN users pu ON pu.id = p.user_id`

// Slots sort by hour, not by label text.
const bookingOrder = ` ORDER BY b.date, split_part(b.slot, ':', 1)::int`

func (r *bookingRepoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.StaffID, &b.PatientID, &b.Date, &b.Slot, &b.Reason, &b.CreatedAt,
		&b.StaffName, &b.PatientName)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// dateArg strips time and zone so the DATE column receives the calendar
// date the caller meant.
func dateArg(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO booking (id, staff_id, patient_id, date, slot, reason)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		b.ID, b.StaffID, b.PatientID, dateArg(b.Date), b.Slot, b.Reason).Scan(&b.CreatedAt)
	if db.IsUniqueViolation(err, bookingSlotConstraint) {
		return ErrSlotAlreadyBooked
	}
	return err
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return r.scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+bookingFrom+` WHERE b.id = $1`, id))
}

func (r *bookingRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM booking WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bookingRepoPG) BookedSlots(ctx context.Context, staffID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT slot FROM booking WHERE staff_id = $1 AND date = $2`, staffID, dateArg(date))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *bookingRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking b WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + bookingCols + bookingFrom + ` WHERE ` + where + bookingOrder +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *bookingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return r.list(ctx, `b.patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *bookingRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID, date *time.Time, limit, offset int) ([]*Booking, int, error) {
	if date == nil {
		return r.list(ctx, `b.staff_id = $1`, []interface{}{staffID}, limit, offset)
	}
	return r.list(ctx, `b.staff_id = $1 AND b.date = $2`, []interface{}{staffID, dateArg(*date)}, limit, offset)
}
