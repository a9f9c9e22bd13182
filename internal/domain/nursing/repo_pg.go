package nursing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type dutyRepoPG struct{ pool *pgxpool.Pool }

func NewDutyRepoPG(pool *pgxpool.Pool) DutyRepository { return &dutyRepoPG{pool: pool} }

func (r *dutyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const dutyCols = `d.id, d.staff_id, su.username, d.patient_id, pu.username, d.assigned_at`

const dutyFrom = ` FROM nurse_duty d
	JOIN staff s ON s.id = d.staff_id
	JOIN users su ON su.id = s.user_id
	JOIN patient p ON p.id = d.patient_id
	JOIN users pu ON pu.id = p.user_id`

func (r *dutyRepoPG) Create(ctx context.Context, d *Duty) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO nurse_duty (id, staff_id, patient_id)
		VALUES ($1,$2,$3)
		RETURNING assigned_at`,
		d.ID, d.StaffID, d.PatientID).Scan(&d.AssignedAt)
}

func (r *dutyRepoPG) List(ctx context.Context, staffID *uuid.UUID, limit, offset int) ([]*Duty, int, error) {
	var total int
	var rows pgx.Rows
	var err error
	if staffID == nil {
		if err = r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM nurse_duty`).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = r.conn(ctx).Query(ctx, `SELECT `+dutyCols+dutyFrom+
			` ORDER BY d.assigned_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		if err = r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM nurse_duty WHERE staff_id = $1`, *staffID).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = r.conn(ctx).Query(ctx, `SELECT `+dutyCols+dutyFrom+
			` WHERE d.staff_id = $1 ORDER BY d.assigned_at DESC LIMIT $2 OFFSET $3`, *staffID, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Duty
	for rows.Next() {
		var d Duty
		if err := rows.Scan(&d.ID, &d.StaffID, &d.StaffName, &d.PatientID, &d.PatientName, &d.AssignedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &d)
	}
	return items, total, rows.Err()
}

func (r *dutyRepoPG) SearchStaffNames(ctx context.Context, query string, limit int) ([]string, error) {
	q := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(query))
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT su.username`+dutyFrom+`
		WHERE su.username ILIKE $1
		ORDER BY su.username
		LIMIT $2`, "%"+q+"%", limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
