package services

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/datastore"
	"github.com/localnerve/moka/internal/utils"
	"go.uber.org/zap"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Mappers      int               `json:"mappers"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// Healthy reports whether every check passed
func (r HealthCheckResult) Healthy() bool {
	return r.Status == "healthy"
}

// HealthCheck checks the data store the worker currently serves from
func HealthCheck(ctx context.Context, cfg *config.Config, registry *datastore.Registry, logger *zap.SugaredLogger) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	db := registry.Database()
	if registry.Current() == nil {
		db = cfg.Database
	}

	// Check the database host is reachable before asking the pool
	if db.Host != "" {
		address := "tcp://" + net.JoinHostPort(db.Host, db.Port)
		if err := utils.PingService(address, 1500*time.Millisecond); err != nil {
			result.Status = "unhealthy"
			result.Database = "unreachable"
			result.Details["database_host_error"] = err.Error()
			result.ErrorMessage = fmt.Sprintf("Database host unreachable: %v", err)
			logger.Warnw("Health check failed - database host", "error", err)
			return result
		}
	}

	// Check database connectivity
	if err := registry.Ping(ctx); err != nil {
		result.Status = "unhealthy"
		result.Database = "unreachable"
		result.Details["database_ping_error"] = err.Error()
		result.ErrorMessage = fmt.Sprintf("Database ping failed: %v", err)
		logger.Warnw("Health check failed - database ping", "error", err)
		return result
	}

	result.Database = "ok"
	result.Mappers = len(registry.Mappers())
	result.Details["database_type"] = db.Type
	result.Details["database_name"] = db.Database

	logger.Debugw("Health check passed - all systems operational")

	return result
}
