package auth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/todo-acl/pkg/observability"
)

// AuditEvent is a security audit record for an authentication or
// authorization decision
type AuditEvent struct {
	Action    string
	Status    string
	Kind      string
	Username  string
	Scheme    Scheme
	Method    string
	Path      string
	IPAddress string
	UserAgent string
	RequestID string
	Error     string
	CreatedAt time.Time
}

// AuditLogger writes audit events as structured log entries
type AuditLogger struct {
	logger logrus.FieldLogger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger logrus.FieldLogger) *AuditLogger {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &AuditLogger{logger: logger}
}

// LogAction logs an audit event
func (al *AuditLogger) LogAction(ctx context.Context, event *AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	fields := logrus.Fields{
		"audit":  true,
		"action": event.Action,
		"status": event.Status,
	}
	setIf := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	setIf("kind", event.Kind)
	setIf("username", event.Username)
	setIf("scheme", string(event.Scheme))
	setIf("method", event.Method)
	setIf("path", event.Path)
	setIf("ip", event.IPAddress)
	setIf("user_agent", event.UserAgent)
	setIf("request_id", event.RequestID)
	setIf("error", event.Error)

	entry := observability.WithTraceContext(ctx, al.logger).WithFields(fields)
	if event.Status == StatusSuccess {
		entry.Info("audit event")
	} else {
		entry.Warn("audit event")
	}
	return nil
}

// LogFromRequest creates an audit event from an HTTP request
func (al *AuditLogger) LogFromRequest(r *http.Request, action, status, username string, err error) error {
	event := &AuditEvent{
		Action:    action,
		Status:    status,
		Username:  username,
		Method:    r.Method,
		Path:      r.URL.Path,
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: r.Header.Get("X-Request-ID"),
	}
	if err != nil {
		event.Kind = Kind(err)
		event.Error = err.Error()
	}
	return al.LogAction(r.Context(), event)
}

// ClientIP returns the caller address, preferring proxy headers
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Common audit action constants
const (
	ActionUserSignup        = "user.signup"
	ActionUserList          = "user.list"
	ActionSignIn            = "auth.signin"
	ActionAuthFailure       = "auth.failure"
	ActionAccessDenied      = "auth.denied"
	ActionRateLimitExceeded = "ratelimit.exceeded"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)
