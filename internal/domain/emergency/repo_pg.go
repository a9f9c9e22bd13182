package emergency

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository { return &caseRepoPG{pool: pool} }

func (r *caseRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const caseCols = `e.id, e.patient_id, pu.username, e.staff_id, su.username,
	e.occurred_at, e.disease, e.charge::float8, e.bill_generated`

const caseFrom = ` FROM emergency_case e
	JOIN patient p ON p.id = e.patient_id
	JOIN users pu ON pu.id = p.user_id
	JOIN staff s ON s.id = e.staff_id
	JOIN users su ON su.id = s.user_id`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.PatientID, &c.PatientName, &c.StaffID, &c.StaffName,
		&c.OccurredAt, &c.Disease, &c.Charge, &c.BillGenerated)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_case (id, patient_id, staff_id, occurred_at, disease, charge)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.PatientID, c.StaffID, c.OccurredAt, c.Disease, c.Charge)
	return err
}

func (r *caseRepoPG) List(ctx context.Context, limit, offset int) ([]*Case, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_case`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+caseCols+caseFrom+
		` ORDER BY e.occurred_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *caseRepoPG) SearchPatientNames(ctx context.Context, query string, limit int) ([]string, error) {
	q := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT pu.username`+caseFrom+`
		WHERE pu.username ILIKE $1
		ORDER BY pu.username
		LIMIT $2`, "%"+q+"%", limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
