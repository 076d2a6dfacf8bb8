package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is a dependency the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Pool       *PoolStats        `json:"pool,omitempty"`
}

// HealthHandler probes the database and any extra components (the session
// cache, for instance). Any failing component turns the response into a 503.
func HealthHandler(pool *pgxpool.Pool, extra map[string]Pinger) echo.HandlerFunc {
	var stats func() *PoolStats
	checks := map[string]Pinger{}
	if pool != nil {
		checks["database"] = pool
		stats = func() *PoolStats { return GetPoolStats(pool) }
	}
	for name, p := range extra {
		checks[name] = p
	}
	return healthHandler(checks, stats)
}

func healthHandler(checks map[string]Pinger, stats func() *PoolStats) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Status: "healthy", Components: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				report.Status = "unhealthy"
				report.Components[name] = err.Error()
				continue
			}
			report.Components[name] = "ok"
		}
		if stats != nil {
			report.Pool = stats()
		}

		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}
