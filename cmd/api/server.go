package main

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"outcomes/auth"
	"outcomes/logger"
	"outcomes/outcome"
)

const (
	headerTouchpointID = "TouchpointId"
	headerAPIMURL      = "apimurl"

	outcomesPath = "/customers/{customerId}/interactions/{interactionId}/actionplans/{actionplanId}/outcomes"
	outcomePath  = outcomesPath + "/{outcomeId}"
)

type ctxKey string

const (
	ctxKeyTouchpointID ctxKey = "touchpointId"
	ctxKeyLogger       ctxKey = "logger"
)

type outcomeService interface {
	List(ctx context.Context, scope outcome.Scope) ([]outcome.Outcome, error)
	Get(ctx context.Context, scope outcome.Scope, outcomeID string) (outcome.Outcome, error)
	Create(ctx context.Context, req outcome.CreateRequest) (outcome.Outcome, error)
	Patch(ctx context.Context, req outcome.PatchRequest) (outcome.Outcome, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the outcome service over HTTP.
type Server struct {
	outcomeService outcomeService
	tokens         *auth.Service
	db             pinger
	log            *logger.Logger
}

func NewServer(svc outcomeService, tokens *auth.Service, db pinger, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		outcomeService: svc,
		tokens:         tokens,
		db:             db,
		log:            log,
	}
}

// Handler builds the routed handler. PUT and DELETE are never registered,
// so the mux answers them with 405.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET "+outcomesPath, s.withTouchpoint(s.handleListOutcomes))
	mux.Handle("GET "+outcomePath, s.withTouchpoint(s.handleGetOutcome))
	mux.Handle("POST "+outcomesPath, s.withTouchpoint(s.handleCreateOutcome))
	mux.Handle("PATCH "+outcomePath, s.withTouchpoint(s.handlePatchOutcome))

	var h http.Handler = mux
	h = s.recoverMiddleware(h)
	h = s.accessLogMiddleware(h)
	return h
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withTouchpoint resolves the calling touchpoint and attaches it, together
// with a request scoped logger, to the request context.
func (s *Server) withTouchpoint(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		touchpointID := strings.TrimSpace(r.Header.Get(headerTouchpointID))

		if s.tokens != nil {
			resolved, err := s.tokens.ResolveTouchpoint(r.Header.Get("Authorization"), touchpointID)
			if err != nil {
				s.log.Warn("rejected token", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			touchpointID = resolved
		}

		if touchpointID == "" {
			writeError(w, http.StatusBadRequest, "unable to locate 'TouchpointId' in request header")
			return
		}

		reqLog := s.log.With("method", r.Method, "path", r.URL.Path, "touchpointId", touchpointID)
		ctx := context.WithValue(r.Context(), ctxKeyTouchpointID, touchpointID)
		ctx = context.WithValue(ctx, ctxKeyLogger, reqLog)
		next(w, r.WithContext(ctx))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func touchpointFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyTouchpointID).(string)
	return id
}

func (s *Server) requestLogger(ctx context.Context) *logger.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*logger.Logger); ok {
		return l
	}
	return s.log
}

// routeScope reads and validates the path ids shared by every outcome route.
func routeScope(r *http.Request) (outcome.Scope, string, bool) {
	scope := outcome.Scope{
		CustomerID:    r.PathValue("customerId"),
		InteractionID: r.PathValue("interactionId"),
		ActionPlanID:  r.PathValue("actionplanId"),
	}
	for _, id := range []string{scope.CustomerID, scope.InteractionID, scope.ActionPlanID} {
		if _, err := uuid.Parse(id); err != nil {
			return outcome.Scope{}, id, false
		}
	}
	return scope, "", true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
