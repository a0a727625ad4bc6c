// Command server runs the completion gateway: HTTP/SSE API, a task runner
// drained on demand via GET /run-tasks, and health/metrics endpoints, wired
// from internal/config.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/auth"
	"github.com/dorianinnovations/Server/internal/cache"
	"github.com/dorianinnovations/Server/internal/committer"
	"github.com/dorianinnovations/Server/internal/compressor"
	"github.com/dorianinnovations/Server/internal/config"
	"github.com/dorianinnovations/Server/internal/contextw"
	"github.com/dorianinnovations/Server/internal/health"
	"github.com/dorianinnovations/Server/internal/httpapi"
	"github.com/dorianinnovations/Server/internal/llm"
	"github.com/dorianinnovations/Server/internal/orchestrator"
	"github.com/dorianinnovations/Server/internal/ratelimit"
	"github.com/dorianinnovations/Server/internal/store"
	"github.com/dorianinnovations/Server/internal/tasks"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	db, err := store.Open(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	userCache := cache.New(redisClient, cfg.UserCacheTTL, logger)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenTTL)
	authService := auth.NewService(db, jwtManager, logger)
	authMiddleware := auth.NewMiddleware(jwtManager)

	llmClient := llm.NewClient(llm.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		APIKey:             cfg.Upstream.APIKey,
		InsecureSkipVerify: cfg.Upstream.InsecureSkipVerify,
		MaxIdleConns:       cfg.Upstream.MaxIdleConns,
		NoByteTimeout:      cfg.Upstream.NoByteTimeout,
	})

	dictionary, err := compressor.LoadDictionary(cfg.ModelsConfigPath)
	if err != nil {
		logger.Warn("failed to load model dictionary, C5 compression disabled", zap.Error(err))
		dictionary = nil
	}

	commit := committer.New(db, userCache, logger)

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRequests:  cfg.RateLimit.GlobalRequests,
		GlobalWindow:    cfg.RateLimit.GlobalWindow,
		CompletionRPM:   cfg.RateLimit.CompletionRPM,
		CompletionBurst: cfg.RateLimit.CompletionBurst,
		BypassLocalhost: cfg.RateLimit.BypassLocalhost,
	})
	go sweepRateLimiter(limiter, 2*cfg.RateLimit.GlobalWindow)

	orch := orchestrator.New(orchestrator.Deps{
		Store:      db,
		Cache:      userCache,
		LLM:        llmClient,
		Committer:  commit,
		Counter:    contextw.NewCounter(),
		Dictionary: dictionary,
		Logger:     logger,
		Model:      cfg.Upstream.Model,
	})

	taskRunner := tasks.New(db, logger, 10)
	tasks.RegisterDefaults(taskRunner)

	healthManager := health.NewManager(logger)
	healthManager.Register(health.PingFunc{CheckerName: "database", Fn: db.Ping})
	healthManager.Register(health.PingFunc{CheckerName: "llm_api", Fn: llmClient.Ping})

	handlers := httpapi.Handlers{
		Auth:       httpapi.NewAuthHandlers(authService),
		Completion: httpapi.NewCompletionHandlers(orch, limiter),
		Health:     httpapi.NewHealthHandlers(healthManager),
		Profile:    httpapi.NewProfileHandlers(db),
		Emotion:    httpapi.NewEmotionHandlers(db, userCache),
		Tasks:      httpapi.NewTaskHandlers(taskRunner),
	}

	router := httpapi.NewRouter(handlers, authMiddleware, limiter)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":9090", metricsMux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: completions stream over SSE
		IdleTimeout:  300 * time.Second,
	}

	go func() {
		logger.Info("gateway starting", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("gateway failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway forced to shutdown", zap.Error(err))
	}

	logger.Info("gateway stopped")
}

// sweepRateLimiter evicts identity buckets idle for longer than idleAfter
// on a fixed interval, bounding ratelimit.Limiter's bucket map for the life
// of the process (spec.md §4.9 gives no eviction schedule of its own).
func sweepRateLimiter(limiter *ratelimit.Limiter, idleAfter time.Duration) {
	ticker := time.NewTicker(idleAfter)
	defer ticker.Stop()
	for range ticker.C {
		limiter.Sweep(idleAfter)
	}
}
