// Package httputil provides HTTP helpers shared by the todo API.
//
// # Response Helpers
//
// Every error body has the shape {"error": "<message>"}:
//
//	httputil.WriteJSON(w, http.StatusOK, todos)
//	httputil.WriteCreated(w, todo)
//	httputil.WriteBadRequest(w, "description is required")
//	httputil.WriteUnauthorized(w, "authentication failed")
//
// WriteInternalError never echoes the underlying error to the client.
//
// # Request Parsing
//
//	var req CreateTodoRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: authentication pipeline and rate limiting
package httputil
