package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

const healthTimeout = 3 * time.Second

type healthResponse struct {
	Status     string    `json:"status"`
	Database   string    `json:"database"`
	ActiveJobs int       `json:"active_jobs"`
	TotalJobs  int       `json:"total_jobs"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Database:  "disabled",
		Version:   a.cfg.Version,
		Timestamp: a.now().UTC(),
	}
	if a.db != nil {
		if err := a.db.HealthCheck(r.Context(), healthTimeout); err != nil {
			a.logger.Warn("http.health.db_down", "error", err)
			resp.Status, resp.Database = "degraded", "unavailable"
		} else {
			resp.Database = "ok"
		}
	}
	for status, n := range a.jobs.Counts() {
		resp.TotalJobs += n
		if status == constants.JobStatusPending || status == constants.JobStatusProcessing {
			resp.ActiveJobs += n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// NewGRPCServer returns a gRPC server exposing only the standard health service and
// reflection for grpcurl. The overall status starts as SERVING.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)
	return srv, hs
}

// ProbeHealth flips the gRPC health status with the database ping until ctx ends.
func ProbeHealth(ctx context.Context, hs *health.Server, db Pinger, every time.Duration, logger *slog.Logger) {
	if db == nil {
		return
	}
	if every <= 0 {
		every = 15 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	last := healthpb.HealthCheckResponse_SERVING
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
		}
		next := healthpb.HealthCheckResponse_SERVING
		if err := db.HealthCheck(ctx, healthTimeout); err != nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if next != last {
			logger.Info("grpc.health.changed", "status", next.String())
			hs.SetServingStatus("", next)
			last = next
		}
	}
}
