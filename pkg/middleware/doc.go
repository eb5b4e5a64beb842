// Package middleware provides the request pipeline: authentication,
// capability checks and login throttling.
//
// # Pipeline
//
//	pipeline := middleware.NewPipeline(resolver,
//		middleware.WithMetrics(metrics),
//		middleware.WithLimiter(middleware.NewRateLimiter(nil)),
//	)
//	router.Handle("/api/todos", pipeline.Guard(auth.CapabilityRead, listHandler))
//
// Authenticate accepts "Basic base64(user:pass)" and "Bearer <token>" and
// stores an *auth.Identity in the request context. RequireCapability reads
// it back and asks the access gate. Guard composes both.
//
// # Rejections
//
//	missing or unsupported credentials  401 "authentication required"
//	bad credentials, token or user      401 "authentication failed"
//	capability not granted              403 "insufficient permissions"
//	anything else                       500 "internal server error"
//
// # Rate Limiting
//
// Basic sign-in attempts are throttled per client address. RateLimiter is
// an in-memory token bucket; DistributedRateLimiter is a Redis fixed window
// shared between instances. Limiter errors fail open.
//
// # Related Packages
//
//   - pkg/auth: identity resolution and the access gate
//   - pkg/contextkeys: identity and logger context keys
package middleware
