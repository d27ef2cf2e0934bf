package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/services"
	httphandlers "github.com/DiagVN/diag-video-call-ui-kit/internal/handlers/http"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/distributed"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/extensions"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/history"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/middleware"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/monitoring"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/rtc"
	wsbridge "github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/signal"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/simengine"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/config"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/logger"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: os.Getenv("CALLKIT_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("Failed to initialize tracing", "error", err)
	}

	health := monitoring.NewHealthChecker(nil)

	// Engine
	engineOpts := []simengine.Option{
		simengine.WithLogger(log.Named("engine")),
		simengine.WithVideoCodec(domain.Codec(cfg.RTC.Codec)),
	}

	var (
		redisClient *redis.Client
		redisHub    *distributed.RedisHub
	)
	if cfg.Redis.Enabled {
		redisClient, err = distributed.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Warnw("Redis unavailable, channels stay local to this process", "error", err)
		} else {
			redisHub = distributed.NewRedisHub(redisClient, log.Named("hub"))
			engineOpts = append(engineOpts, simengine.WithHub(redisHub))
			health.AddRedisCheck(redisClient, 10*time.Second, 2*time.Second)
			go func() {
				if err := redisHub.Run(ctx); err != nil && ctx.Err() == nil {
					log.Errorw("Redis hub stopped", "error", err)
				}
			}()
		}
	}

	var tokens httphandlers.TokenIssuer
	if cfg.Token.Secret != "" {
		issuer, err := simengine.NewTokenIssuer(cfg.Token.Secret, cfg.Token.TTL, nil)
		if err != nil {
			log.Fatalw("Failed to create token issuer", "error", err)
		}
		engineOpts = append(engineOpts, simengine.WithTokenIssuer(issuer))
		tokens = issuer
	}

	engine := simengine.New(engineOpts...)

	if path := cfg.Simulator.DevicesFile; path != "" {
		stopWatch, err := simengine.WatchDeviceFile(engine, path, log.Named("devices"))
		if err != nil {
			log.Fatalw("Failed to load device file", "path", path, "error", err)
		}
		defer stopWatch()
	}

	// Call stack
	bus := events.NewBus(log.Named("bus"))

	var reg prometheus.Registerer = prometheus.NewRegistry()
	if cfg.Monitoring.PrometheusEnabled {
		reg = prometheus.DefaultRegisterer
	}
	collector := monitoring.NewCollector(reg)
	collector.Attach(bus)
	defer collector.Detach()

	registry := extensions.NewRegistry(log,
		simengine.NewVirtualBackgroundExtension(),
		simengine.NewBeautyExtension(),
		simengine.NewDenoiserExtension(),
	)
	adapter := rtc.NewAdapter(engine, registry, bus, cfg.RTC, log, rtc.WithObserver(collector))

	store := services.NewCallStore(bus, adapter, log.Named("store"),
		services.WithErrorExpiry(cfg.Store.ErrorExpiry),
		services.WithTickInterval(cfg.Store.StatsInterval),
		services.WithTranscriptLimit(cfg.Store.TranscriptLimit),
	)
	if err := store.Init(ctx); err != nil {
		log.Fatalw("Failed to initialize call store", "error", err)
	}
	health.AddCallCheck(func() domain.CallState { return store.Snapshot().CallState }, 10*time.Second, time.Second)

	var (
		historyRepo ports.CallHistoryRepository
		historyDB   *gorm.DB
		recorder    *history.Recorder
	)
	if cfg.History.Enabled {
		historyDB, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Fatalw("Failed to open call history", "path", cfg.History.Path, "error", err)
		}
		repo := history.NewRepository(historyDB)
		recorder = history.NewRecorder(repo, nil, log.Named("history"))
		recorder.Attach(bus)
		health.AddHistoryCheck(repo, 30*time.Second, 2*time.Second)
		historyRepo = repo
	}

	health.StartBackgroundChecks(ctx)

	bridgeOpts := wsbridge.DefaultOptions()
	bridgeOpts.PingInterval = cfg.WebSocket.PingInterval
	bridgeOpts.PongTimeout = cfg.WebSocket.PongTimeout
	bridgeOpts.WriteTimeout = cfg.WebSocket.WriteTimeout
	bridgeOpts.SendBufferSize = cfg.WebSocket.SendBufferSize
	if cfg.RateLimiting.Enabled {
		bridgeOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		bridgeOpts.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	if n := cfg.RateLimiting.WebSocket.MaxMessageSizeBytes; n > 0 {
		bridgeOpts.MaxMessageSize = n
	}
	bridge := wsbridge.NewEventBridge(bus, store, bridgeOpts, log.Named("ws"))

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET("/health", health.Handler())
	router.GET("/ready", func(c *gin.Context) {
		if !health.IsReady(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": health.LastResults()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
		log.Infow("Prometheus metrics enabled", "path", cfg.Monitoring.MetricsPath)
	}
	router.GET("/ws", bridge.HandleWebSocket)

	api := router.Group("")
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	httphandlers.NewCallHandler(store, historyRepo, tokens).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting callkit server", "address", cfg.Server.Address, "redis", redisHub != nil, "history", cfg.History.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}
	bridge.Close()

	// Leaving emits call-ended, which the recorder persists.
	if st := store.Snapshot().CallState; st != domain.CallStateIdle && st != domain.CallStateEnded {
		if err := store.Leave(shutdownCtx); err != nil {
			log.Warnw("Failed to leave call during shutdown", "error", err)
		}
	}
	if err := store.Destroy(shutdownCtx); err != nil {
		log.Warnw("Failed to destroy call adapter", "error", err)
	}
	if recorder != nil {
		recorder.Detach()
	}

	cancel()
	if redisHub != nil {
		if err := redisHub.Close(); err != nil {
			log.Warnw("Error closing Redis hub", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warnw("Error closing Redis client", "error", err)
		}
	}
	if historyDB != nil {
		if sqlDB, err := historyDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Error shutting down tracer provider", "error", err)
	}

	log.Info("callkit server stopped")
}
