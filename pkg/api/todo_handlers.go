package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/contextkeys"
	"github.com/platinummonkey/todo-acl/pkg/httputil"
	"github.com/platinummonkey/todo-acl/pkg/middleware"
	"github.com/platinummonkey/todo-acl/pkg/observability"
	"github.com/platinummonkey/todo-acl/pkg/storage"
)

// maxListLimit caps a single page of todos
const maxListLimit = 500

// TodoHandlers serves the todo collection
type TodoHandlers struct {
	todos   storage.TodoStore
	metrics *observability.Metrics
}

// NewTodoHandlers creates a new todo handlers instance
func NewTodoHandlers(todos storage.TodoStore, metrics *observability.Metrics) *TodoHandlers {
	return &TodoHandlers{todos: todos, metrics: metrics}
}

// RegisterRoutes registers the todo routes, each behind its capability
func (h *TodoHandlers) RegisterRoutes(router *mux.Router, pipeline *middleware.Pipeline) {
	todos := router.PathPrefix("/api/todos").Subrouter()

	todos.Handle("", pipeline.Guard(auth.CapabilityRead, http.HandlerFunc(h.listTodos))).Methods(http.MethodGet)
	todos.Handle("", pipeline.Guard(auth.CapabilityCreate, http.HandlerFunc(h.createTodo))).Methods(http.MethodPost)
	todos.Handle("/{id}", pipeline.Guard(auth.CapabilityRead, http.HandlerFunc(h.getTodo))).Methods(http.MethodGet)
	todos.Handle("/{id}", pipeline.Guard(auth.CapabilityUpdate, http.HandlerFunc(h.updateTodo))).Methods(http.MethodPut)
	todos.Handle("/{id}", pipeline.Guard(auth.CapabilityDelete, http.HandlerFunc(h.deleteTodo))).Methods(http.MethodDelete)
}

// CreateTodoRequest is the body of POST /api/todos
type CreateTodoRequest struct {
	Assignee    string `json:"assignee"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
	Completed   bool   `json:"completed"`
}

// listTodos handles GET /api/todos
func (h *TodoHandlers) listTodos(w http.ResponseWriter, r *http.Request) {
	completed, err := httputil.ParseQueryBoolPtr(r, "completed")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		httputil.WriteBadRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteBadRequest(w, "offset must be a non-negative integer")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	todos, err := h.todos.List(r.Context(), storage.TodoFilter{
		Assignee:  r.URL.Query().Get("assignee"),
		Completed: completed,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.internalError(w, r, "failed to list todos", err)
		return
	}

	h.metrics.RecordTodoOperation("list")
	httputil.WriteSuccess(w, todos)
}

// createTodo handles POST /api/todos
func (h *TodoHandlers) createTodo(w http.ResponseWriter, r *http.Request) {
	var req CreateTodoRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w,
		httputil.Required(req.Assignee, "assignee"),
		httputil.Required(req.Description, "description"),
		httputil.Required(req.Difficulty, "difficulty"),
	) {
		return
	}

	todo := &storage.Todo{
		Assignee:    req.Assignee,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Completed:   req.Completed,
	}
	if err := h.todos.Create(r.Context(), todo); err != nil {
		h.internalError(w, r, "failed to create todo", err)
		return
	}

	h.metrics.RecordTodoOperation("create")
	httputil.WriteCreated(w, todo)
}

// getTodo handles GET /api/todos/{id}
func (h *TodoHandlers) getTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	todo, err := h.todos.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "failed to get todo", err)
		return
	}

	h.metrics.RecordTodoOperation("get")
	httputil.WriteSuccess(w, todo)
}

// updateTodo handles PUT /api/todos/{id}
func (h *TodoHandlers) updateTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	// an empty body is an empty update and returns the todo as stored
	var update storage.TodoUpdate
	if err := httputil.ParseJSON(r, &update); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	todo, err := h.todos.Update(r.Context(), id, update)
	if err != nil {
		h.storeError(w, r, "failed to update todo", err)
		return
	}

	h.metrics.RecordTodoOperation("update")
	httputil.WriteSuccess(w, todo)
}

// deleteTodo handles DELETE /api/todos/{id}
func (h *TodoHandlers) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.todos.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, "failed to delete todo", err)
		return
	}

	h.metrics.RecordTodoOperation("delete")
	httputil.WriteNoContent(w)
}

// storeError maps ErrNotFound to 404 and everything else to 500
func (h *TodoHandlers) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFound(w, "todo not found")
		return
	}
	h.internalError(w, r, msg, err)
}

func (h *TodoHandlers) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	contextkeys.GetLogger(r.Context()).WithError(err).Error(msg)
	httputil.WriteInternalError(w)
}
