package health

import (
	"context"
	"time"

	"umrah-backend/internal/interfaces"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HealthChecker struct {
	db     *pgxpool.Pool
	outbox interfaces.OutboxStore
}

type HealthStatus struct {
	Status   string         `json:"status"`
	Database DatabaseHealth `json:"database"`
	Outbox   OutboxHealth   `json:"outbox"`
}

type DatabaseHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

// OutboxHealth reports how far the poller is behind. A growing backlog with a
// healthy database means distribution or fan-out is stuck.
type OutboxHealth struct {
	Status  string `json:"status"`
	Backlog int64  `json:"backlog"`
}

// Backlog above this marks the outbox degraded.
const backlogThreshold = 1000

func NewHealthChecker(db *pgxpool.Pool, outbox interfaces.OutboxStore) *HealthChecker {
	return &HealthChecker{db: db, outbox: outbox}
}

func (h *HealthChecker) CheckBasic() HealthStatus {
	dbHealth := h.checkDatabase()
	outboxHealth := h.checkOutbox()

	status := "healthy"
	if dbHealth.Status != "healthy" || outboxHealth.Status == "unhealthy" {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:   status,
		Database: dbHealth,
		Outbox:   outboxHealth,
	}
}

func (h *HealthChecker) checkDatabase() DatabaseHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return DatabaseHealth{
			Status:       "unhealthy",
			ResponseTime: responseTime,
		}
	}

	return DatabaseHealth{
		Status:       "healthy",
		ResponseTime: responseTime,
	}
}

func (h *HealthChecker) checkOutbox() OutboxHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	backlog, err := h.outbox.Backlog(ctx)
	if err != nil {
		return OutboxHealth{Status: "unhealthy"}
	}
	status := "healthy"
	if backlog > backlogThreshold {
		status = "degraded"
	}
	return OutboxHealth{Status: status, Backlog: backlog}
}
