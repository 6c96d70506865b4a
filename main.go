package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/friendhub/server/account"
	apirest "github.com/friendhub/server/api/rest"
	"github.com/friendhub/server/audit"
	"github.com/friendhub/server/cache"
	"github.com/friendhub/server/config"
	dbadapter "github.com/friendhub/server/db"
	"github.com/friendhub/server/metrics"
	"github.com/friendhub/server/model"
	"github.com/friendhub/server/plugin/hook"
	"github.com/friendhub/server/scheduler"
	"github.com/friendhub/server/social"
	"github.com/friendhub/server/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache ----
	c, err := cache.NewCache(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	})
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}
	defer c.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Events ----
	hooks := hook.NewHookCenter()

	auditSvc := audit.New(db, logger)
	auditSvc.Subscribe(hooks)
	defer auditSvc.Stop(context.Background())

	m := metrics.New()
	m.Subscribe(hooks)

	// ---- Tracing ----
	var tracing gin.HandlerFunc
	if cfg.Telemetry.Enabled {
		tp, err := telemetry.New(cfg.Telemetry, os.Stdout)
		if err != nil {
			logger.Fatal("telemetry init failed", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown", zap.Error(err))
			}
		}()
		tracing = tp.Middleware()
		logger.Info("Tracing enabled", zap.Float64("sample_rate", cfg.Telemetry.SampleRate))
	}

	// ---- Services ----
	accounts := account.NewService(db, c, cfg.Security, cfg.Presence, hooks, logger)
	socialSvc := social.NewService(db, hooks, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger, m)
	defer sched.Stop()
	scheduler.RegisterMaintenance(sched, cfg.Presence, cfg.Audit, accounts, auditSvc)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r, _ := apirest.NewRouter(apirest.Deps{
		Config:   cfg,
		DB:       db,
		Cache:    c,
		Logger:   logger,
		Accounts: accounts,
		Social:   socialSvc,
		Metrics:  m,
		Tracing:  tracing,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			zap.String("addr", srv.Addr),
			zap.String("base_url", cfg.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
}
