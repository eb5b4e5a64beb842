// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for the todo service.
//
// # Structured Logging
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//	logger.WithField("request_id", reqID).Warn("authentication failed")
//
// WithTraceContext adds trace_id and span_id when the context carries an
// OpenTelemetry span.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	metrics.RecordAuthAttempt("bearer", "success")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	status := checker.Check(ctx)
//
// The database is required for readiness; Redis is optional and only
// degrades the status.
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 15*time.Second, apiServer, opsServer)
//	sm.RegisterShutdownFunc("database", func(context.Context) error { return db.Close() })
//	err := sm.Shutdown(context.Background())
package observability
