package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus represents database health and connection pool statistics
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ms"`
	MaxOpenConns    int           `json:"max_open_conns"`
}

// Health checks database connectivity and returns connection pool statistics
func Health(ctx context.Context, pool *pgxpool.Pool) (*HealthStatus, error) {
	start := time.Now()

	if err := pool.Ping(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start),
		}, err
	}

	stats := pool.Stat()

	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: int(stats.TotalConns()),
		InUse:           int(stats.AcquiredConns()),
		Idle:            int(stats.IdleConns()),
		WaitCount:       stats.EmptyAcquireCount(),
		WaitDuration:    stats.AcquireDuration(),
		MaxOpenConns:    int(stats.MaxConns()),
	}, nil
}
