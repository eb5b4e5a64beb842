// Package api provides the HTTP REST API of the todo service.
//
// # Routes
//
//	POST   /signup           create an account, returns {user, token}
//	POST   /sign-in          Basic credentials, returns {user, token}
//	GET    /users            usernames (delete capability)
//	GET    /api/todos        list todos (read)
//	POST   /api/todos        create a todo (create)
//	GET    /api/todos/{id}   fetch a todo (read)
//	PUT    /api/todos/{id}   partial update (update)
//	DELETE /api/todos/{id}   remove a todo (delete)
//
// Health checks and /metrics are mounted when a HealthChecker and Metrics
// are supplied. Successful signups, sign-ins and user listings are written
// to Deps.Audit, which defaults to an audit logger over Deps.Logger.
//
// # Usage
//
//	server, err := api.NewServer(api.Deps{
//		Users:    users,
//		Todos:    todos,
//		Hasher:   hasher,
//		Resolver: resolver,
//		Pipeline: pipeline,
//		Logger:   logger,
//		Metrics:  metrics,
//	})
//	http.ListenAndServe(":8080", server)
package api
