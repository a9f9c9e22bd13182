package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrateLockKey is the advisory lock held for the whole of Up so two
// servers starting together do not race on the schema.
const migrateLockKey = 7300121

// Migration is one NNN_name.sql file.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

type appliedRow struct {
	Version   int       `db:"version"`
	Checksum  string    `db:"checksum"`
	AppliedAt time.Time `db:"applied_at"`
}

// Migrator applies migrations from files in version order and records them
// in the _migrations table.
type Migrator struct {
	pool  *pgxpool.Pool
	files fs.FS
}

func NewMigrator(pool *pgxpool.Pool, files fs.FS) *Migrator {
	return &Migrator{pool: pool, files: files}
}

// parseVersion extracts the numeric prefix of "001_hospital.sql".
func parseVersion(name string) (int, bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, false
	}
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	return v, err == nil
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// LoadMigrations reads the top level of the filesystem. Names without a
// numeric prefix are ignored; two files with the same version are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[int]Migration, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, ok := parseVersion(e.Name())
		if !ok {
			continue
		}
		if prev, dup := byVersion[v]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", v, prev.Name, e.Name())
		}
		body, err := fs.ReadFile(m.files, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		byVersion[v] = Migration{Version: v, Name: e.Name(), SQL: string(body), Checksum: checksum(string(body))}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		out = append(out, mig)
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

func (m *Migrator) applied(ctx context.Context, q Querier) ([]appliedRow, error) {
	if _, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			checksum    CHAR(64) NOT NULL DEFAULT '',
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("ensure _migrations: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT version, checksum, applied_at FROM _migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[appliedRow])
}

// Up applies every pending migration, each in its own transaction, and
// returns how many ran. It refuses to run when an applied file was edited.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLockKey); err != nil {
		return 0, fmt.Errorf("take migration lock: %w", err)
	}
	defer conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrateLockKey)

	rows, err := m.applied(ctx, conn)
	if err != nil {
		return 0, err
	}
	if err := verifyChecksums(migrations, rows); err != nil {
		return 0, err
	}

	done := 0
	for _, mig := range Pending(migrations, appliedTimes(rows)) {
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO _migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				mig.Version, mig.Name, mig.Checksum)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("migration %s: %w", mig.Name, err)
		}
		done++
	}
	return done, nil
}

// Status lists every known migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	rows, err := m.applied(ctx, m.pool)
	if err != nil {
		return nil, err
	}
	return BuildStatus(migrations, appliedTimes(rows)), nil
}

func appliedTimes(rows []appliedRow) map[int]time.Time {
	out := make(map[int]time.Time, len(rows))
	for _, r := range rows {
		out[r.Version] = r.AppliedAt
	}
	return out
}

// verifyChecksums fails when an applied migration's file no longer matches
// what was run. Rows recorded without a checksum are accepted.
func verifyChecksums(migrations []Migration, rows []appliedRow) error {
	sums := make(map[int]string, len(migrations))
	for _, mig := range migrations {
		sums[mig.Version] = mig.Checksum
	}
	for _, r := range rows {
		want, known := sums[r.Version]
		if !known || strings.TrimSpace(r.Checksum) == "" {
			continue
		}
		if want != strings.TrimSpace(r.Checksum) {
			return fmt.Errorf("migration %d was modified after it was applied", r.Version)
		}
	}
	return nil
}

// Pending keeps the migrations whose version has not been applied.
func Pending(migrations []Migration, applied map[int]time.Time) []Migration {
	return slices.DeleteFunc(slices.Clone(migrations), func(mig Migration) bool {
		_, ok := applied[mig.Version]
		return ok
	})
}

func BuildStatus(migrations []Migration, applied map[int]time.Time) []MigrationStatus {
	out := make([]MigrationStatus, len(migrations))
	for i, mig := range migrations {
		out[i] = MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			out[i].Applied = true
			out[i].AppliedAt = &at
		}
	}
	return out
}
