// Package health implements liveness/readiness HTTP probes for the
// control plane process.
package health

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/meshcall/controlplane/internal/logging"
	"github.com/meshcall/controlplane/internal/statestore"
	"go.uber.org/zap"
)

// EngineChecker checks the health of the external media-engine process.
type EngineChecker interface {
	Check(ctx context.Context, addr string) string
}

// DefaultEngineChecker dials the media engine's gRPC health service
// (grpc_health_v1), the one gRPC surface this control plane still needs:
// an external readiness probe, not an RPC-shaped media-engine port.
type DefaultEngineChecker struct{}

func (c *DefaultEngineChecker) Check(ctx context.Context, addr string) string {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logging.Error(ctx, "failed to connect to media engine for health check", zap.Error(err), zap.String("addr", addr))
		return "unhealthy"
	}
	defer func() { _ = conn.Close() }()

	healthClient := healthpb.NewHealthClient(conn)
	resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		logging.Error(ctx, "media engine health check RPC failed", zap.Error(err))
		return "unhealthy"
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		logging.Warn(ctx, "media engine is not serving", zap.String("status", resp.Status.String()))
		return "unhealthy"
	}
	return "healthy"
}

// probeKey is the sentinel key Readiness probes the state store with.
// Any Store implementation answers Exists without needing a dedicated
// Ping method.
const probeKey = "__health__"

// Handler serves the liveness/readiness endpoints.
type Handler struct {
	store         statestore.Store
	engineAddr    string
	engineEnabled bool
	engineChecker EngineChecker
}

// NewHandler constructs a Handler. store may be nil when the state store
// is disabled (single-instance mode), in which case readiness always
// reports it healthy.
func NewHandler(store statestore.Store) *Handler {
	engineAddr := os.Getenv("MEDIA_ENGINE_ADDR")
	if engineAddr == "" {
		engineAddr = "localhost:50051"
	}
	enabled := os.Getenv("MEDIA_ENGINE_HEALTH_CHECK_ENABLED") != "false"

	return &Handler{
		store:         store,
		engineAddr:    engineAddr,
		engineEnabled: enabled,
		engineChecker: &DefaultEngineChecker{},
	}
}

type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live: 200 if the process is alive, no
// dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready: 200 only if every dependency this
// process needs is healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	stateStoreStatus := h.checkStateStore(ctx)
	checks["state_store"] = stateStoreStatus
	if stateStoreStatus != "healthy" {
		allHealthy = false
	}

	if h.engineEnabled {
		engineStatus := h.checkMediaEngine(ctx)
		checks["media_engine"] = engineStatus
		if engineStatus != "healthy" {
			allHealthy = false
		}
	}

	status, statusCode := "ready", http.StatusOK
	if !allHealthy {
		status, statusCode = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkStateStore(ctx context.Context) string {
	if h.store == nil {
		return "healthy"
	}
	if _, err := h.store.Exists(ctx, probeKey); err != nil {
		logging.Error(ctx, "state store health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkMediaEngine(ctx context.Context) string {
	if h.engineChecker == nil {
		return "unhealthy"
	}
	return h.engineChecker.Check(ctx, h.engineAddr)
}
