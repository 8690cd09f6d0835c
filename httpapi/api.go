// Package httpapi is the one-shot request surface. Mutations route
// through the same handlers and dispatcher as the realtime path, so a
// change made over HTTP fans out to connected clients all the same.
package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"taskhub/dispatch"
	"taskhub/errors"
	"taskhub/identity"
	"taskhub/logging"
	"taskhub/store"
	"taskhub/tasks"
)

// API serves /api/auth and /api/tasks.
type API struct {
	verifier   *identity.Verifier
	issuer     *identity.Issuer
	handlers   *tasks.Handlers
	dispatcher *dispatch.Dispatcher
	users      store.UserStore
	log        *logging.Logger
}

// New constructs the API over the given collaborators.
func New(verifier *identity.Verifier, issuer *identity.Issuer, handlers *tasks.Handlers, dispatcher *dispatch.Dispatcher, users store.UserStore, log *logging.Logger) *API {
	return &API{
		verifier:   verifier,
		issuer:     issuer,
		handlers:   handlers,
		dispatcher: dispatcher,
		users:      users,
		log:        log.WithComponent("httpapi"),
	}
}

// Router returns the route table behind a panic guard. Specific
// patterns win, so /api/tasks/stats takes precedence over
// /api/tasks/{id}.
func (a *API) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", a.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/auth/me", a.authed(a.handleMe))

	mux.HandleFunc("GET /api/tasks", a.authed(a.handleList))
	mux.HandleFunc("GET /api/tasks/stats", a.authed(a.handleStats))
	mux.HandleFunc("GET /api/tasks/{id}", a.authed(a.handleGet))
	mux.HandleFunc("POST /api/tasks", a.authed(a.handleCreate))
	mux.HandleFunc("PUT /api/tasks/{id}", a.authed(a.handleUpdate))
	mux.HandleFunc("DELETE /api/tasks/{id}", a.authed(a.handleDelete))

	return a.recovered(mux)
}

// recovered converts a handler panic into a generic internal-error
// response instead of a dropped connection. Detail goes to the log only.
func (a *API) recovered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.log.Error("handler_panic", map[string]interface{}{
					"path":  r.URL.Path,
					"panic": fmt.Sprintf("%v", rec),
				})
				fail(w, errors.FromCode(errors.CodeInternal))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authedHandler is a request handler with a verified actor.
type authedHandler func(http.ResponseWriter, *http.Request, *identity.Identity)

// authed gates a handler on token verification.
func (a *API) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := a.verifier.Verify(r.Context(), bearerFrom(r))
		if err != nil {
			fail(w, err)
			return
		}
		next(w, r, ident)
	}
}

func bearerFrom(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
