package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/contextkeys"
	"github.com/platinummonkey/todo-acl/pkg/httputil"
	"github.com/platinummonkey/todo-acl/pkg/observability"
)

// wwwAuthenticate advertises both accepted schemes on 401 responses
const wwwAuthenticate = `Basic realm="todo-acl", Bearer`

// Limiter keys are prefixed by the throttled action
const (
	ThrottleLogin  = "login"
	ThrottleSignup = "signup"
)

// IdentityResolver turns request credentials into users
type IdentityResolver interface {
	ResolveByCredentials(ctx context.Context, username, password string) (*auth.User, error)
	ResolveByToken(ctx context.Context, token string) (*auth.User, error)
}

// Pipeline authenticates requests, authorizes them against a capability and
// writes rejections
type Pipeline struct {
	resolver   IdentityResolver
	audit      *auth.AuditLogger
	metrics    *observability.Metrics
	limiter    Limiter
	logger     logrus.FieldLogger
	trustProxy bool
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets the fallback logger used when the request carries none
func WithLogger(logger logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAuditLogger sets the audit sink for rejections
func WithAuditLogger(audit *auth.AuditLogger) PipelineOption {
	return func(p *Pipeline) {
		p.audit = audit
	}
}

// WithMetrics records auth outcomes and throttled requests
func WithMetrics(metrics *observability.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithLimiter throttles Basic sign-in attempts and other throttled actions
func WithLimiter(limiter Limiter) PipelineOption {
	return func(p *Pipeline) {
		p.limiter = limiter
	}
}

// WithTrustedProxyHeaders keys throttling on X-Forwarded-For/X-Real-IP
// instead of the socket address
func WithTrustedProxyHeaders(trust bool) PipelineOption {
	return func(p *Pipeline) {
		p.trustProxy = trust
	}
}

// NewPipeline creates a request pipeline over resolver
func NewPipeline(resolver IdentityResolver, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		resolver: resolver,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.audit == nil {
		p.audit = auth.NewAuditLogger(p.logger)
	}
	return p
}

// requestScheme reports which supported scheme the Authorization header
// names, or "" when it names none
func requestScheme(r *http.Request) auth.Scheme {
	scheme, _, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	switch {
	case strings.EqualFold(scheme, "Basic"):
		return auth.SchemeBasic
	case strings.EqualFold(scheme, "Bearer"):
		return auth.SchemeBearer
	default:
		return ""
	}
}

// Identify resolves the caller of r without touching the response
func (p *Pipeline) Identify(r *http.Request) (*auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, auth.ErrUnauthenticated
	}

	switch requestScheme(r) {
	case auth.SchemeBasic:
		username, password, ok := r.BasicAuth()
		if !ok {
			return nil, auth.ErrInvalidCredentials
		}
		user, err := p.resolver.ResolveByCredentials(r.Context(), username, password)
		if err != nil {
			return nil, err
		}
		return auth.NewIdentity(user, auth.SchemeBasic), nil

	case auth.SchemeBearer:
		_, token, _ := strings.Cut(header, " ")
		user, err := p.resolver.ResolveByToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		return auth.NewIdentity(user, auth.SchemeBearer), nil

	default:
		return nil, auth.ErrUnauthenticated
	}
}

// Authenticate attaches the caller identity to the request context, or
// rejects the request
func (p *Pipeline) Authenticate(next http.Handler) http.Handler {
	return p.authenticate(true)(next)
}

// AuthenticateBasic is Authenticate restricted to credential login
func (p *Pipeline) AuthenticateBasic(next http.Handler) http.Handler {
	return p.authenticate(false)(next)
}

func (p *Pipeline) authenticate(allowBearer bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme := requestScheme(r)
			if scheme == auth.SchemeBearer && !allowBearer {
				p.Reject(w, r, auth.ErrUnauthenticated)
				return
			}
			// Credential login counts every attempt. Elsewhere Basic is only
			// checked up front and charged when the credentials are wrong.
			if scheme == auth.SchemeBasic && !p.check(w, r, ThrottleLogin, !allowBearer) {
				p.metrics.RecordAuthAttempt(string(scheme), observability.OutcomeLimited)
				return
			}

			id, err := p.Identify(r)
			if err != nil {
				if scheme == auth.SchemeBasic && allowBearer && errors.Is(err, auth.ErrInvalidCredentials) {
					p.chargeFailure(r, ThrottleLogin)
				}
				p.Reject(w, r, err)
				return
			}
			p.metrics.RecordAuthAttempt(string(id.Scheme), observability.OutcomeSuccess)

			ctx := contextkeys.WithIdentity(r.Context(), id)
			ctx = contextkeys.WithLogger(ctx, p.loggerFor(r).WithField("username", id.User.Username))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects requests whose identity lacks c
func (p *Pipeline) RequireCapability(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := contextkeys.GetIdentity(r.Context())
			if err := auth.AuthorizeIdentity(id, c); err != nil {
				p.Reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard authenticates the request and requires c before calling h
func (p *Pipeline) Guard(c auth.Capability, h http.Handler) http.Handler {
	return p.Authenticate(p.RequireCapability(c)(h))
}

// Throttle limits an unauthenticated action per client address
func (p *Pipeline) Throttle(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !p.check(w, r, action, true) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Reject writes the response for a pipeline error. Authentication failures
// share one body; the precise kind only reaches logs and metrics.
func (p *Pipeline) Reject(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.Kind(err)
	scheme := requestScheme(r)
	p.metrics.RecordAuthAttempt(string(scheme), kind)

	switch kind {
	case auth.KindUnauthenticated:
		p.auditRejection(r, auth.ActionAuthFailure, auth.StatusFailure, scheme, err)
		w.Header().Set("WWW-Authenticate", wwwAuthenticate)
		httputil.WriteUnauthorized(w, "authentication required")
	case auth.KindInvalidCredentials, auth.KindInvalidToken, auth.KindUserNotFound:
		p.auditRejection(r, auth.ActionAuthFailure, auth.StatusFailure, scheme, err)
		w.Header().Set("WWW-Authenticate", wwwAuthenticate)
		httputil.WriteUnauthorized(w, "authentication failed")
	case auth.KindAccessDenied:
		p.auditRejection(r, auth.ActionAccessDenied, auth.StatusDenied, scheme, err)
		httputil.WriteForbidden(w, "insufficient permissions")
	default:
		p.loggerFor(r).WithError(err).WithFields(logrus.Fields{
			"kind":   kind,
			"scheme": string(scheme),
		}).Error("identity pipeline failure")
		httputil.WriteInternalError(w)
	}
}

func (p *Pipeline) auditRejection(r *http.Request, action, status string, scheme auth.Scheme, err error) {
	event := &auth.AuditEvent{
		Action:    action,
		Status:    status,
		Kind:      auth.Kind(err),
		Username:  claimedUsername(r),
		Scheme:    scheme,
		Method:    r.Method,
		Path:      r.URL.Path,
		IPAddress: p.clientAddr(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
		Error:     err.Error(),
	}
	if logErr := p.audit.LogAction(r.Context(), event); logErr != nil {
		p.loggerFor(r).WithError(logErr).Warn("failed to write audit event")
	}
}

// claimedUsername is the name the caller presented, if any. It is only
// used for audit records.
func claimedUsername(r *http.Request) string {
	if id, ok := contextkeys.GetIdentity(r.Context()); ok && id.User != nil {
		return id.User.Username
	}
	if username, _, ok := r.BasicAuth(); ok {
		return username
	}
	return ""
}

// check consults the limiter for action, counting the attempt when consume
// is set. It writes the 429 itself and fails open when the limiter errors.
func (p *Pipeline) check(w http.ResponseWriter, r *http.Request, action string, consume bool) bool {
	if p.limiter == nil {
		return true
	}

	addr := p.clientAddr(r)
	key := action + ":" + addr
	var d Decision
	var err error
	if consume {
		d, err = p.limiter.Allow(r.Context(), key)
	} else {
		d, err = p.limiter.Status(r.Context(), key)
	}
	if err != nil {
		p.loggerFor(r).WithError(err).WithField("limiter", action).Warn("rate limiter unavailable, allowing request")
		return true
	}
	if d.Allowed {
		return true
	}

	p.metrics.RecordRateLimited(action)
	_ = p.audit.LogAction(r.Context(), &auth.AuditEvent{
		Action:    auth.ActionRateLimitExceeded,
		Status:    auth.StatusDenied,
		Method:    r.Method,
		Path:      r.URL.Path,
		IPAddress: addr,
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
	writeRateLimited(w, d)
	return false
}

// chargeFailure counts a rejected attempt against action
func (p *Pipeline) chargeFailure(r *http.Request, action string) {
	if p.limiter == nil {
		return
	}
	if _, err := p.limiter.Allow(r.Context(), action+":"+p.clientAddr(r)); err != nil {
		p.loggerFor(r).WithError(err).WithField("limiter", action).Warn("rate limiter unavailable, failure not counted")
	}
}

func (p *Pipeline) clientAddr(r *http.Request) string {
	if p.trustProxy {
		return auth.ClientIP(r)
	}
	return remoteHost(r)
}

func (p *Pipeline) loggerFor(r *http.Request) logrus.FieldLogger {
	if l, ok := r.Context().Value(contextkeys.LoggerKey).(logrus.FieldLogger); ok && l != nil {
		return l
	}
	return p.logger
}
