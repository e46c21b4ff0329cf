package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gt8004/gt8004-go/pkg/api"
	"github.com/gt8004/gt8004-go/pkg/cache"
	"github.com/gt8004/gt8004-go/pkg/config"
	"github.com/gt8004/gt8004-go/pkg/gt8004"
	"github.com/gt8004/gt8004-go/pkg/middleware"
	"github.com/gt8004/gt8004-go/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// 1. Load Config with hot reload
	cfgStore, err := config.LoadAndWatch(log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg := cfgStore.Get()

	// 2. Initialize Redis (if enabled)
	var rdb *cache.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to redis")
		}
		defer rdb.Close()
		log.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	// 3. Local archive of captured entries
	var store storage.Store
	var archiver middleware.Sink
	if cfg.Archive.Enabled && rdb != nil {
		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		redisStore := storage.NewRedisStore(rdb, retention)
		store = redisStore
		archiver = storage.NewArchiver(redisStore, log)
		log.Info().Int("retention_days", cfg.Archive.RetentionDays).Msg("entry archive enabled")
	}

	// 4. Telemetry logger
	agentCfg := cfg.Agent
	agentCfg.Logger = &log
	logger, err := gt8004.New(agentCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start gt8004 logger")
	}

	// 5. Chain Middleware (order matters!)
	// Inner-most: the agent's tools.
	var handler http.Handler = newTools(log, cfg.Capture.PaymentHeader)

	// Layer A: Telemetry capture
	handler = logger.Middleware(cfg.CaptureOptions(), archiver)(handler)

	// Layer B: Rate Limiter (distributed if Redis is available)
	limiter := middleware.NewRateLimiter(rdb, cfg.RateLimitSettings(), log)
	cfgStore.OnChange(func(c *config.Config) {
		limiter.SetLimit(c.RateLimitSettings())
	})
	handler = limiter.Middleware(handler)

	// Layer C: Access log (outer-most)
	handler = middleware.AccessLog(log)(handler)

	// 6. Setup HTTP Server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if cfg.Admin.Key != "" {
		api.NewAdminAPI(logger, store, cfg.Admin.Key).RegisterRoutes(mux)
		log.Info().Bool("archive", store != nil).Msg("admin API enabled at /admin/*")
	}

	mux.Handle("/", handler)

	server := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Start Server
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", cfg.Server.Port).
			Str("agent_id", cfg.Agent.AgentID).
			Str("endpoint", logger.Endpoint()).
			Msg("agent listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	// Stop accepting requests first so nothing is captured after the final flush.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := logger.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry close")
	}

	stats := logger.Stats()
	log.Info().
		Uint64("batches_sent", stats.BatchesSent).
		Uint64("batches_failed", stats.BatchesFailed).
		Int("dropped", stats.Buffered).
		Msg("stopped")
}
