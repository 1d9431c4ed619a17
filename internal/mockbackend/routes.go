package mockbackend

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)

	events := r.PathPrefix("/api/events").Subrouter()
	events.Use(s.requireAuth)
	events.HandleFunc("", s.handleListEvents).Methods(http.MethodGet)
	events.HandleFunc("", s.handleCreateEvent).Methods(http.MethodPost)
	events.HandleFunc("/tickets/{ticketId}", s.handleGetTicketByID).Methods(http.MethodGet)
	events.HandleFunc("/tickets/{ticketId}/attendance", s.handleMarkAttendance).Methods(http.MethodPut)
	events.HandleFunc("/{id}", s.handleGetEvent).Methods(http.MethodGet)
	events.HandleFunc("/{eventId}/tickets", s.handleCreateTicket).Methods(http.MethodPost)
	events.HandleFunc("/{eventId}/tickets/{ticketId}", s.handleGetTicket).Methods(http.MethodGet)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"lang", r.Header.Get("Accept-Language"),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
