package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/todo-acl/pkg/api"
	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/config"
	"github.com/platinummonkey/todo-acl/pkg/middleware"
	"github.com/platinummonkey/todo-acl/pkg/observability"
	"github.com/platinummonkey/todo-acl/pkg/storage"
	"github.com/platinummonkey/todo-acl/pkg/storage/sqlstore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configFile := flag.String("config", "", "YAML configuration file (overrides TODOACL_CONFIG_FILE)")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("TODOACL_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Observability.Version == "" {
		cfg.Observability.Version = version
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("todo-acl exited with error")
	}
	logger.Info("todo-acl stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if cfg.SecretIsPlaceholder {
		logger.Warn("TODOACL_SECRET is not set; signing tokens with a placeholder secret")
	}

	// Database
	db, dialect, err := sqlstore.Open(ctx, cfg.Database.StorageConfig())
	if err != nil {
		return err
	}
	if err := sqlstore.Migrate(ctx, db, dialect, logger); err != nil {
		db.Close()
		return err
	}
	logger.WithField("driver", string(dialect)).Info("database ready")

	// Metrics
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
		if err := metrics.RegisterDBStats(db, "todo-acl"); err != nil {
			logger.WithError(err).Warn("failed to register database stats collector")
		}
	}

	// Redis is optional and only backs the shared login limiter
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Redis.StorageConfig())
		if err != nil {
			db.Close()
			return err
		}
		logger.Info("connected to redis")
	}

	// Stores
	var recorder storage.CacheRecorder
	if metrics != nil {
		recorder = metrics
	}
	users := storage.NewCachedUserStore(
		sqlstore.NewUserStore(db, dialect),
		cfg.Auth.UserCacheSize,
		cfg.Auth.UserCacheTTL,
		recorder,
	)
	todos := sqlstore.NewTodoStore(db, dialect)

	// Identity and access
	hasher := auth.NewBcryptHasher(cfg.Auth.HashCost)
	tokens, err := auth.NewTokenService(cfg.Auth.Secret,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithTokenIssuer(cfg.Auth.TokenIssuer),
		auth.WithClockSkew(cfg.Auth.ClockSkew),
	)
	if err != nil {
		db.Close()
		return err
	}
	resolver := auth.NewIdentityResolver(users, hasher, tokens)

	g, gctx := errgroup.WithContext(ctx)

	audit := auth.NewAuditLogger(logger.WithField("component", "audit"))
	pipelineOpts := []middleware.PipelineOption{
		middleware.WithLogger(logger),
		middleware.WithAuditLogger(audit),
		middleware.WithMetrics(metrics),
		middleware.WithTrustedProxyHeaders(cfg.Server.TrustProxyHeaders),
	}
	if cfg.RateLimit.Enabled {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			WindowDuration:    cfg.RateLimit.Window,
			BurstSize:         cfg.RateLimit.Burst,
		}
		if redisClient != nil {
			pipelineOpts = append(pipelineOpts, middleware.WithLimiter(
				middleware.NewDistributedRateLimiter(redisClient, limitCfg, "")))
		} else {
			limiter := middleware.NewRateLimiter(limitCfg)
			limiter.StartCleanup(gctx, logger)
			pipelineOpts = append(pipelineOpts, middleware.WithLimiter(limiter))
		}
	}
	pipeline := middleware.NewPipeline(resolver, pipelineOpts...)

	health := observability.NewHealthChecker(db, redisClient, cfg.Observability.Version)

	apiServer, err := api.NewServer(api.Deps{
		Users:        users,
		Todos:        todos,
		Hasher:       hasher,
		Resolver:     resolver,
		Pipeline:     pipeline,
		Audit:        audit,
		Logger:       logger,
		Metrics:      metrics,
		Health:       health,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Tracing:      cfg.Observability.TracingEnabled,
	})
	if err != nil {
		db.Close()
		return err
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     observability.NewOpsMux(health, metrics),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, opsServer)
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		return db.Close()
	})

	serve := func(name string, srv *http.Server) func() error {
		return func() error {
			logger.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		}
	}
	g.Go(serve("api", httpServer))
	g.Go(serve("ops", opsServer))
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}
