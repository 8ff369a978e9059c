// Command controlplane runs the SFU control plane's signaling and HTTP
// surface: the duplex WebSocket endpoint intents flow over, the
// POST /api/token credential issuer, and the health/metrics endpoints an
// operator points a load balancer and a scraper at.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/meshcall/controlplane/internal/auth"
	"github.com/meshcall/controlplane/internal/config"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/fanout"
	"github.com/meshcall/controlplane/internal/handlers"
	"github.com/meshcall/controlplane/internal/health"
	"github.com/meshcall/controlplane/internal/logging"
	"github.com/meshcall/controlplane/internal/mediaengine"
	"github.com/meshcall/controlplane/internal/metrics"
	"github.com/meshcall/controlplane/internal/middleware"
	"github.com/meshcall/controlplane/internal/ratelimit"
	"github.com/meshcall/controlplane/internal/roommgr"
	"github.com/meshcall/controlplane/internal/signaling"
	"github.com/meshcall/controlplane/internal/statestore"
	"github.com/meshcall/controlplane/internal/token"
	"github.com/meshcall/controlplane/internal/tracing"
)

const serviceName = "sfu-controlplane"

func main() {
	os.Exit(run())
}

// run returns the process exit code per spec §6: 0 normal, 1
// configuration failure, 2 engine/dependency failure at startup.
func run() int {
	for _, path := range []string{".env", "../../.env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		println("configuration error:", err.Error())
		return 1
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		println("failed to initialize logger:", err.Error())
		return 1
	}
	defer func() { _ = logging.GetLogger().Sync() }()

	ctx := context.Background()

	if collector := os.Getenv("OTEL_COLLECTOR_ADDR"); collector != "" {
		tp, err := tracing.InitTracer(ctx, serviceName, collector)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(ctx) }()
		}
	}

	store, err := newStateStore(ctx, cfg)
	if err != nil {
		logging.Error(ctx, "failed to initialize state store", zap.Error(err))
		return 2
	}
	defer func() { _ = store.Close() }()

	validator, err := newValidator(ctx, cfg)
	if err != nil {
		logging.Error(ctx, "failed to initialize credential validator", zap.Error(err))
		return 2
	}

	rooms := roommgr.NewRoomManager()
	defer rooms.CloseAll()

	calls := roommgr.NewCallManager(rooms, cfg.CallManager.AllowMultipleCalls, cfg.CallManager.CleanupInterval, cfg.CallManager.CleanupMaxAge)
	defer calls.Stop()

	sweepInterval := cfg.Adapter.CleanupInterval
	if !cfg.Adapter.EnableAutoCleanup {
		sweepInterval = 0
	}
	engine := mediaengine.NewLoopbackEngineClient()
	adapter := mediaengine.NewAdapter(engine, mediaengine.DefaultTimeouts, mediaengine.SweepConfig{
		Interval: sweepInterval,
		MaxAge:   cfg.Adapter.ResourceMaxAge,
	})
	defer adapter.StopSweeper()
	defer func() {
		if err := adapter.Close(context.Background()); err != nil {
			logging.Error(ctx, "failed to close media engine adapter cleanly", zap.Error(err))
		}
	}()

	fanoutEngine := fanout.NewEngine()

	deps := handlers.NewDeps(rooms, calls, adapter, fanoutEngine, validator, nil, store)
	registry := dispatch.NewRegistry()
	handlers.Register(registry, deps)

	issuer := token.NewIssuer(cfg)

	rl, err := ratelimit.NewRateLimiter(cfg, redisClientOf(store), validator)
	if err != nil {
		logging.Error(ctx, "failed to initialize rate limiter", zap.Error(err))
		return 2
	}

	healthHandler := health.NewHandler(store)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.HeaderXCorrelationID, "X-Api-Key", "X-Api-Secret")
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/api/health", healthHandler.Readiness)

	api := router.Group("/api")
	api.Use(rl.GlobalMiddleware())
	if issuer != nil {
		api.POST("/token", issuer.Handler)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     allowOriginChecker(corsConfig.AllowOrigins),
	}
	router.GET("/ws", func(c *gin.Context) {
		handleWebSocket(c, upgrader, rl, fanoutEngine, registry)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "control plane listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
	return 0
}

// handleWebSocket upgrades one HTTP request to the duplex signaling
// connection (spec §4.6) and wires it into the dispatch/fanout
// machinery until the peer disconnects.
func handleWebSocket(c *gin.Context, upgrader websocket.Upgrader, rl *ratelimit.RateLimiter, fanoutEngine *fanout.Engine, registry *dispatch.Registry) {
	if !rl.CheckWebSocket(c) {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	socketID := uuid.New().String()
	wsConn := signaling.NewConnection(conn, socketID, fanout.DefaultQMax, signaling.DefaultPingInterval)
	session := dispatch.NewSession(socketID, wsConn)
	worker := dispatch.NewWorker(session, registry, dispatch.DefaultQueueDepth)

	fanoutEngine.Register(wsConn)
	metrics.IncConnection()

	go wsConn.WritePump()
	go worker.Run()

	wsConn.ReadPump(func(intent signaling.Intent) {
		worker.Enqueue(intent)
	}, func() {
		if session.Joined {
			worker.Enqueue(signaling.Intent{Type: "leaveRoom", Payload: map[string]any{"type": "leaveRoom"}})
		}
		worker.Stop()
		fanoutEngine.Unregister(socketID)
		metrics.DecConnection()
	})
}

// allowOriginChecker restricts WebSocket upgrades the same way CORS
// restricts plain HTTP requests, since gorilla/websocket's CheckOrigin
// has no built-in allowlist support.
func allowOriginChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func newStateStore(ctx context.Context, cfg *config.Config) (statestore.Store, error) {
	if !cfg.StateStore.Enabled {
		return statestore.NewMemoryStore(time.Minute), nil
	}
	return statestore.NewRedisStore(ctx, cfg.StateStore.Addr(), cfg.StateStore.Password, cfg.StateStore.DB)
}

// newValidator picks the credential validator per cfg.Auth (component A):
// JWKS when an issuer domain is configured, HMAC when only a shared
// secret is, and the accept-all MockValidator when SkipAuth is set for
// local development.
func newValidator(ctx context.Context, cfg *config.Config) (auth.Validator, error) {
	switch {
	case cfg.Auth.SkipAuth:
		logging.Warn(ctx, "authentication disabled (SKIP_AUTH=true) - do not use in production")
		return &auth.MockValidator{}, nil
	case cfg.Auth.JWKSDomain != "":
		return auth.NewJWKSValidator(ctx, cfg.Auth.JWKSDomain, cfg.Auth.JWKSAudience)
	default:
		return auth.NewHMACValidator([]byte(cfg.Auth.JWTSecret), ""), nil
	}
}

// redisClientOf bridges the state store's implementation-specific client
// to the rate limiter's optional Redis backend: ratelimit falls back to
// an in-memory store when the state store is a MemoryStore rather than
// Redis.
func redisClientOf(store statestore.Store) *redis.Client {
	rs, ok := store.(*statestore.RedisStore)
	if !ok {
		return nil
	}
	return rs.Client()
}
