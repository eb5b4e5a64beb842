package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/contextkeys"
	"github.com/platinummonkey/todo-acl/pkg/httputil"
	"github.com/platinummonkey/todo-acl/pkg/middleware"
	"github.com/platinummonkey/todo-acl/pkg/observability"
	"github.com/platinummonkey/todo-acl/pkg/storage"
)

// maxUsernameLength matches the users.username column
const maxUsernameLength = 255

// AuthHandlers handles signup, sign-in and user listing
type AuthHandlers struct {
	users    storage.UserStore
	hasher   auth.PasswordHasher
	resolver *auth.IdentityResolver
	audit    *auth.AuditLogger
	metrics  *observability.Metrics
}

// NewAuthHandlers creates a new auth handlers instance. A nil audit logger
// discards audit events.
func NewAuthHandlers(users storage.UserStore, hasher auth.PasswordHasher, resolver *auth.IdentityResolver, audit *auth.AuditLogger, metrics *observability.Metrics) *AuthHandlers {
	if audit == nil {
		audit = auth.NewAuditLogger(nil)
	}
	return &AuthHandlers{
		users:    users,
		hasher:   hasher,
		resolver: resolver,
		audit:    audit,
		metrics:  metrics,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, pipeline *middleware.Pipeline) {
	router.Handle("/signup",
		pipeline.Throttle(middleware.ThrottleSignup)(http.HandlerFunc(h.signup))).Methods(http.MethodPost)
	router.Handle("/sign-in",
		pipeline.AuthenticateBasic(http.HandlerFunc(h.signIn))).Methods(http.MethodPost)
	router.Handle("/users",
		pipeline.Guard(auth.CapabilityDelete, http.HandlerFunc(h.listUsers))).Methods(http.MethodGet)
}

// SignupRequest is the body of POST /signup
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// SessionResponse carries a user and a fresh session token
type SessionResponse struct {
	User  *auth.User `json:"user"`
	Token string     `json:"token"`
}

// signup handles POST /signup
func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !httputil.ValidateAll(w,
		httputil.Required(req.Username, "username"),
		httputil.Required(req.Password, "password"),
		func() (bool, string) {
			return len(req.Username) <= maxUsernameLength, "username is too long"
		},
	) {
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, "role must be one of "+roleList())
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) || errors.Is(err, auth.ErrEmptyPassword) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		contextkeys.GetLogger(r.Context()).WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	user := &auth.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
	}
	if err := h.users.Insert(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			httputil.WriteConflict(w, "username already taken")
			return
		}
		contextkeys.GetLogger(r.Context()).WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	token, err := h.resolver.IssueToken(user)
	if err != nil {
		contextkeys.GetLogger(r.Context()).WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	h.metrics.RecordSignup()
	contextkeys.GetLogger(r.Context()).WithFields(logrus.Fields{
		"username": user.Username,
		"role":     string(user.Role),
	}).Info("user signed up")
	h.auditSuccess(r, auth.ActionUserSignup, user.Username)

	httputil.WriteCreated(w, SessionResponse{User: user, Token: token})
}

// signIn handles POST /sign-in. The pipeline has already verified the
// Basic credentials.
func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	id, ok := contextkeys.GetIdentity(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	token, err := h.resolver.IssueToken(id.User)
	if err != nil {
		contextkeys.GetLogger(r.Context()).WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	h.auditSuccess(r, auth.ActionSignIn, id.User.Username)
	httputil.WriteSuccess(w, SessionResponse{User: id.User, Token: token})
}

// listUsers handles GET /users
func (h *AuthHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		contextkeys.GetLogger(r.Context()).WithError(err).Error("failed to list users")
		httputil.WriteInternalError(w)
		return
	}

	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}

	if id, ok := contextkeys.GetIdentity(r.Context()); ok {
		h.auditSuccess(r, auth.ActionUserList, id.User.Username)
	}
	httputil.WriteSuccess(w, names)
}

func (h *AuthHandlers) auditSuccess(r *http.Request, action, username string) {
	if err := h.audit.LogFromRequest(r, action, auth.StatusSuccess, username, nil); err != nil {
		contextkeys.GetLogger(r.Context()).WithError(err).Warn("failed to write audit event")
	}
}

// roleList renders the accepted roles, e.g. "admin, editor, writer"
func roleList() string {
	names := make([]string, 0, len(auth.Roles()))
	for _, role := range auth.Roles() {
		names = append(names, string(role))
	}
	return strings.Join(names, ", ")
}
