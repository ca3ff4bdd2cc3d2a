package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"task-api/metrics"
)

func newRouter(srv *server, m *metrics.Metrics) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/task", srv.createTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks", srv.getTasks).Methods(http.MethodGet)
	r.HandleFunc("/task", srv.updateTask).Methods(http.MethodPut)
	r.HandleFunc("/task/{id}", srv.getTask).Methods(http.MethodGet)
	r.HandleFunc("/task/{id}", srv.deleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/register", srv.register).Methods(http.MethodPost)
	r.HandleFunc("/login", srv.login).Methods(http.MethodPost)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	r.Use(srv.recoverPanics, srv.logRequests)

	return corsPolicy().Handler(r)
}

// corsPolicy lets local front-ends (and file:// pages, which send the
// origin "null") call the API with credentials.
func corsPolicy() *cors.Cors {
	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return strings.HasPrefix(origin, "http://localhost") || origin == "null"
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodPut,
		},
		AllowedHeaders:   []string{"Authorization", "Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}

// recoverPanics answers 500 instead of dropping the connection. Store locks
// are released by their deferred unlocks while the panic unwinds.
func (s *server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panicked", "method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(rec))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
