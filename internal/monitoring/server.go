// Package monitoring serves the ops surface on its own port: Prometheus
// metrics plus a JSON stats snapshot for the infrastructure dashboard.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/telemetry"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

type MonitoringServer struct {
	db     *pgxpool.Pool
	outbox interfaces.OutboxStore
	port   int
}

type StatsSnapshot struct {
	DatabaseStatus string  `json:"database_status"`
	ResponseTime   int64   `json:"response_time_ms"`
	OutboxBacklog  int64   `json:"outbox_backlog"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	MemoryUsed     string  `json:"memory_used"`
	MemoryTotal    string  `json:"memory_total"`
	DiskPercent    float64 `json:"disk_percent"`
	DiskUsed       string  `json:"disk_used"`
	DiskTotal      string  `json:"disk_total"`
}

func NewMonitoringServer(db *pgxpool.Pool, outbox interfaces.OutboxStore, port int) *MonitoringServer {
	return &MonitoringServer{db: db, outbox: outbox, port: port}
}

func (ms *MonitoringServer) Start() {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/stats", ms.statsHandler).Methods("GET")

	addr := fmt.Sprintf(":%d", ms.port)
	telemetry.Logger.Info("monitoring server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		telemetry.Logger.Error("monitoring server stopped", zap.Error(err))
	}
}

func (ms *MonitoringServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := ms.collect()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

func (ms *MonitoringServer) collect() StatsSnapshot {
	var snapshot StatsSnapshot

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := ms.db.Ping(ctx); err != nil {
		snapshot.DatabaseStatus = "unhealthy"
	} else {
		snapshot.DatabaseStatus = "healthy"
	}
	snapshot.ResponseTime = time.Since(start).Milliseconds()

	if backlog, err := ms.outbox.Backlog(ctx); err == nil {
		snapshot.OutboxBacklog = backlog
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemoryPercent = vm.UsedPercent
		snapshot.MemoryUsed = formatBytes(vm.Used)
		snapshot.MemoryTotal = formatBytes(vm.Total)
	}
	if du, err := disk.Usage("/"); err == nil {
		snapshot.DiskPercent = du.UsedPercent
		snapshot.DiskUsed = formatBytes(du.Used)
		snapshot.DiskTotal = formatBytes(du.Total)
	}

	return snapshot
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
