package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

func notFound(err error) error {
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

// =========== Room Repository ===========

type roomRepoPG struct{ pool *pgxpool.Pool }

func NewRoomRepoPG(pool *pgxpool.Pool) RoomRepository { return &roomRepoPG{pool: pool} }

func (r *roomRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const roomCols = `r.id, r.number, r.room_type, r.charge, r.ac, r.icu,
	EXISTS (SELECT 1 FROM admission a WHERE a.room_id = r.id AND a.discharged_at IS NULL),
	r.created_at`

func (r *roomRepoPG) scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.Number, &rm.RoomType, &rm.Charge, &rm.AC, &rm.ICU, &rm.Occupied, &rm.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rm, nil
}

func (r *roomRepoPG) Create(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO room (id, number, room_type, charge, ac, icu)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		rm.ID, rm.Number, rm.RoomType, rm.Charge, rm.AC, rm.ICU).Scan(&rm.CreatedAt)
	if db.IsUniqueViolation(err, "room_number_key") {
		return ErrRoomExists
	}
	return err
}

func (r *roomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	return r.scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room r WHERE r.id = $1`, id))
}

func (r *roomRepoPG) List(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM room`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+roomCols+` FROM room r ORDER BY r.number LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Room
	for rows.Next() {
		rm, err := r.scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rm)
	}
	return items, total, rows.Err()
}

// =========== Admission Repository ===========

type admissionRepoPG struct{ pool *pgxpool.Pool }

func NewAdmissionRepoPG(pool *pgxpool.Pool) AdmissionRepository { return &admissionRepoPG{pool: pool} }

func (r *admissionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const admissionCols = `a.id, a.patient_id, u.username, a.room_id, rm.number, a.admitted_by,
	a.admitted_at, a.discharged_at, a.charge`

const admissionFrom = ` FROM admission a
	JOIN room rm ON rm.id = a.room_id
	JOIN patient p ON p.id = a.patient_id
	JOIN users u ON u.id = p.user_id`

func (r *admissionRepoPG) scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.RoomID, &a.RoomNumber, &a.AdmittedBy,
		&a.AdmittedAt, &a.DischargedAt, &a.Charge)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admission (id, patient_id, room_id, admitted_by)
		VALUES ($1,$2,$3,$4)
		RETURNING admitted_at`,
		a.ID, a.PatientID, a.RoomID, a.AdmittedBy).Scan(&a.AdmittedAt)
	if db.IsUniqueViolation(err, "admission_room_active_key") {
		return ErrRoomOccupied
	}
	return err
}

func (r *admissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+admissionFrom+` WHERE a.id = $1`, id))
}

func (r *admissionRepoPG) ActiveForRoom(ctx context.Context, roomID uuid.UUID) (*Admission, error) {
	return r.scanAdmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+admissionCols+admissionFrom+` WHERE a.room_id = $1 AND a.discharged_at IS NULL`, roomID))
}

func (r *admissionRepoPG) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error) {
	return r.scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+admissionFrom+`
		WHERE a.patient_id = $1
		ORDER BY (a.discharged_at IS NULL) DESC, a.admitted_at DESC
		LIMIT 1`, patientID))
}

func (r *admissionRepoPG) Discharge(ctx context.Context, id uuid.UUID, at time.Time, charge float64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission SET discharged_at = $2, charge = $3
		WHERE id = $1 AND discharged_at IS NULL`, id, at, charge)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyDischarged
	}
	return nil
}

func (r *admissionRepoPG) List(ctx context.Context, active *bool, limit, offset int) ([]*Admission, int, error) {
	where := ``
	if active != nil {
		if *active {
			where = ` WHERE a.discharged_at IS NULL`
		} else {
			where = ` WHERE a.discharged_at IS NOT NULL`
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admission a`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+admissionCols+admissionFrom+where+
		` ORDER BY a.admitted_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Admission
	for rows.Next() {
		a, err := r.scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Discharge Request Repository ===========

type dischargeRequestRepoPG struct{ pool *pgxpool.Pool }

func NewDischargeRequestRepoPG(pool *pgxpool.Pool) DischargeRequestRepository {
	return &dischargeRequestRepoPG{pool: pool}
}

func (r *dischargeRequestRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const requestCols = `d.id, d.patient_id, u.username, d.admission_id, d.requested_by, d.status,
	d.created_at, d.resolved_at`

const requestFrom = ` FROM discharge_request d
	JOIN patient p ON p.id = d.patient_id
	JOIN users u ON u.id = p.user_id`

func (r *dischargeRequestRepoPG) scanRequest(row pgx.Row) (*DischargeRequest, error) {
	var d DischargeRequest
	err := row.Scan(&d.ID, &d.PatientID, &d.PatientName, &d.AdmissionID, &d.RequestedBy, &d.Status,
		&d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *dischargeRequestRepoPG) Create(ctx context.Context, d *DischargeRequest) error {
	d.ID = uuid.New()
	if d.Status == "" {
		d.Status = DischargePending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO discharge_request (id, patient_id, admission_id, requested_by, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		d.ID, d.PatientID, d.AdmissionID, d.RequestedBy, d.Status).Scan(&d.CreatedAt)
	if db.IsUniqueViolation(err, "discharge_request_pending_key") {
		return ErrDischargeAlreadyRequested
	}
	return err
}

func (r *dischargeRequestRepoPG) PendingForAdmission(ctx context.Context, admissionID uuid.UUID) (*DischargeRequest, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+requestFrom+`
		WHERE d.admission_id = $1 AND d.status = 'pending'`, admissionID))
}

func (r *dischargeRequestRepoPG) CompletePending(ctx context.Context, admissionID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE discharge_request SET status = 'completed', resolved_at = $2
		WHERE admission_id = $1 AND status = 'pending'`, admissionID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *dischargeRequestRepoPG) List(ctx context.Context, status *DischargeStatus, limit, offset int) ([]*DischargeRequest, int, error) {
	where := ``
	var args []interface{}
	if status != nil {
		where = ` WHERE d.status = $1`
		args = append(args, *status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM discharge_request d`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := `SELECT ` + requestCols + requestFrom + where +
		fmt.Sprintf(` ORDER BY d.created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DischargeRequest
	for rows.Next() {
		d, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
