package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	// Saturated means every connection is checked out; booking and
	// admission transactions will queue.
	Saturated bool `json:"saturated"`
}

func statsOf(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		Saturated:     stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns(),
	}
}

// SchemaVersion is the highest applied migration, or 0 on a fresh database.
func SchemaVersion(ctx context.Context, q Querier) (int, error) {
	var v int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM _migrations`).Scan(&v)
	return v, err
}

// LivenessHandler answers /health without touching the database.
func LivenessHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": applicationName,
			"version": version,
		})
	}
}

// HealthHandler pings the database and reports pool usage plus the schema
// version so a deploy that skipped `migrate up` is visible.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := statsOf(pool)
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}
		body := map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		}
		if v, err := SchemaVersion(ctx, pool); err == nil {
			body["schema_version"] = v
		}
		return c.JSON(http.StatusOK, body)
	}
}
