package medication

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

func likePattern(q string) string {
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(q))
	return "%" + q + "%"
}

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const medicineCols = `id, name, charge, created_at`

func (r *medicineRepoPG) scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	if err := row.Scan(&m.ID, &m.Name, &m.Charge, &m.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine (id, name, charge) VALUES ($1,$2,$3)
		RETURNING created_at`, m.ID, m.Name, m.Charge).Scan(&m.CreatedAt)
	if db.IsUniqueViolation(err, "medicine_name_key") {
		return ErrMedicineExists
	}
	return err
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE medicine SET name = $2, charge = $3 WHERE id = $1`, m.ID, m.Name, m.Charge)
	if db.IsUniqueViolation(err, "medicine_name_key") {
		return ErrMedicineExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medicineCols+` FROM medicine ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) SearchNames(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT name FROM medicine WHERE name ILIKE $1 ORDER BY name LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, staff_id) VALUES ($1,$2,$3)
		RETURNING created_at`, p.ID, p.PatientID, p.StaffID).Scan(&p.CreatedAt)
}

func (r *prescriptionRepoPG) AddItem(ctx context.Context, it *PrescriptionItem) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_item (id, prescription_id, medicine_id, count) VALUES ($1,$2,$3,$4)`,
		it.ID, it.PrescriptionID, it.MedicineID, it.Count)
	return err
}

const prescriptionSelect = `SELECT rx.id, rx.patient_id, pu.username, rx.staff_id, su.username, rx.created_at
	FROM prescription rx
	JOIN patient p ON p.id = rx.patient_id
	JOIN users pu ON pu.id = p.user_id
	JOIN staff s ON s.id = rx.staff_id
	JOIN users su ON su.id = s.user_id`

func (r *prescriptionRepoPG) List(ctx context.Context, staffID *uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	var rows pgx.Rows
	var err error
	if staffID == nil {
		if err = r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription`).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = r.conn(ctx).Query(ctx, prescriptionSelect+
			` ORDER BY rx.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		if err = r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE staff_id = $1`, *staffID).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = r.conn(ctx).Query(ctx, prescriptionSelect+
			` WHERE rx.staff_id = $1 ORDER BY rx.created_at DESC LIMIT $2 OFFSET $3`, *staffID, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}

	var items []*Prescription
	byID := make(map[uuid.UUID]*Prescription)
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.PatientID, &p.PatientName, &p.StaffID, &p.StaffName, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		p.Items = []*PrescriptionItem{}
		items = append(items, &p)
		byID[p.ID] = &p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(items) == 0 {
		return items, total, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	if err := r.loadItems(ctx, ids, byID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, ids []uuid.UUID, byID map[uuid.UUID]*Prescription) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.id, i.prescription_id, i.medicine_id, m.name, m.charge, i.count
		FROM prescription_item i
		JOIN medicine m ON m.id = i.medicine_id
		WHERE i.prescription_id = ANY($1)
		ORDER BY m.name`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName, &it.Charge, &it.Count); err != nil {
			return err
		}
		if p, ok := byID[it.PrescriptionID]; ok {
			p.Items = append(p.Items, &it)
		}
	}
	return rows.Err()
}
