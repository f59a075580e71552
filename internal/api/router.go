package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/querybot/internal/dbtool"
	"github.com/kalambet/querybot/internal/metrics"
	"github.com/kalambet/querybot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Store is the persistence the Query Service needs.
type Store interface {
	GetUser(id int64) (storage.User, error)
	ListUsers() ([]storage.User, error)
	CreateUser(u storage.User) (storage.User, error)
	SaveQuery(q storage.Query) (storage.Query, error)
	ListQueries(userID int64) ([]storage.Query, error)
	ListReports(userID int64) ([]storage.Report, error)
	Ping(ctx context.Context) error
}

// Answerer turns a question into a result.
type Answerer interface {
	Answer(ctx context.Context, question string, userID int64) (dbtool.Answer, error)
}

type Deps struct {
	Store    Store
	Answerer Answerer
	Metrics  *metrics.Metrics // optional
	Logger   *slog.Logger     // optional
}

// NewQueryServiceHandler returns the reference Query Service: the HTTP API
// the conversation client talks to.
func NewQueryServiceHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests(deps.Metrics))

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/queries/ask", handleAsk(deps))
		r.Get("/queries/history", handleHistory(deps))
		r.Get("/users", handleListUsers(deps))
		r.Post("/users", handleCreateUser(deps))
		r.Get("/users/{id}/reports", handleListReports(deps))
	})

	return r
}

// countRequests records status codes by route pattern, so path parameters do
// not turn into label values.
func countRequests(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.Served(route, strconv.Itoa(status))
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Store.Ping(ctx); err != nil {
			httpError(w, http.StatusServiceUnavailable, "database unavailable: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// userIDParam reads a positive integer query parameter.
func userIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		return 0, fmt.Errorf("userId is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid userId %q", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
