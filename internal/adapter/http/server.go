package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultTop = 10
	maxTop     = 500
)

// SessionSource exposes the current session and readiness.
type SessionSource interface {
	sharedobs.ReadinessChecker
	Session() *pipeline.Session
}

// Server exposes health, readiness, metrics, and indicator query endpoints.
type Server struct {
	httpServer *http.Server
	sessions   SessionSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the probe, metrics and /v1 routes.
func NewServer(addr string, sessions SessionSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		sessions: sessions,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(sessions))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/status", s.withSession(s.handleStatus))
	mux.HandleFunc("GET /v1/indicators/{field}/{code}", s.withSession(s.handleIndicator))
	mux.HandleFunc("GET /v1/prosperity", s.withSession(s.handleProsperity))
	mux.HandleFunc("GET /v1/continents", s.withSession(s.handleContinents))
	mux.HandleFunc("GET /v1/gap", s.withSession(s.handleGap))
	mux.HandleFunc("GET /v1/compare", s.withSession(s.handleCompare))
	mux.HandleFunc("GET /v1/top", s.withSession(s.handleTop))
	mux.HandleFunc("GET /v1/distribution", s.withSession(s.handleDistribution))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *pipeline.Session)

// withSession pins one session for the whole request so a concurrent reload
// cannot mix snapshots within a response.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessions.Session()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no session loaded yet")
			return
		}
		h(w, r, sess)
	}
}

type statusResponse struct {
	SessionID  string                         `json:"session_id"`
	LoadedAt   time.Time                      `json:"loaded_at"`
	Years      []int                          `json:"years"`
	Stats      map[string]domain.ParseStats   `json:"stats"`
	Failures   map[string]string              `json:"failures"`
	Continents map[domain.ContinentSource]int `json:"continents"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, sess *pipeline.Session) {
	sharedobs.WriteJSON(w, http.StatusOK, statusResponse{
		SessionID:  sess.ID,
		LoadedAt:   sess.LoadedAt,
		Years:      sess.Years(),
		Stats:      sess.Stats,
		Failures:   sess.SourceFailures(),
		Continents: sess.Continents.Counts(),
	})
}

func (s *Server) handleIndicator(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) {
	field, code := r.PathValue("field"), r.PathValue("code")
	if sess.Index(field) == nil {
		if reason, ok := sess.Failures[field]; ok {
			writeError(w, http.StatusNotFound, "indicator unavailable: "+reason)
			return
		}
		writeError(w, http.StatusNotFound, "unknown indicator: "+field)
		return
	}

	var year *int
	if r.URL.Query().Has("year") {
		y, err := strconv.Atoi(r.URL.Query().Get("year"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = &y
	}

	o, ok := sess.Lookup(field, code, year)
	if !ok {
		writeError(w, http.StatusNotFound, "no observation for "+domain.NormalizeCode(code))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, o)
}

func (s *Server) handleProsperity(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) {
	year, ok := queryYear(w, r, sess)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"rows":     nonNil(sess.Prosperity(year)),
		"failures": sess.SourceFailures(),
	})
}

func (s *Server) handleContinents(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) {
	year, ok := queryYear(w, r, sess)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"groups":   nonNil(sess.ContinentSummary(year)),
		"failures": sess.SourceFailures(),
	})
}

func (s *Server) handleGap(w http.ResponseWriter, _ *http.Request, sess *pipeline.Session) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"rows":     nonNil(sess.ElectricityGap()),
		"failures": sess.SourceFailures(),
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, "both a and b are required")
		return
	}
	cmp := sess.Compare(a, b)
	if cmp.A == nil && cmp.B == nil {
		writeError(w, http.StatusNotFound, "neither code has adoption data")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) {
	n := defaultTop
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxTop {
			writeError(w, http.StatusBadRequest, "n must be between 1 and "+strconv.Itoa(maxTop))
			return
		}
		n = parsed
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"observations": nonNil(sess.TopAdopters(n)),
		"failures":     sess.SourceFailures(),
	})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) {
	year, ok := queryYear(w, r, sess)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"year":         year,
		"observations": nonNil(sess.Distribution(year)),
		"failures":     sess.SourceFailures(),
	})
}

// queryYear parses ?year=, defaulting to the most recent adoption year. It
// writes the error response itself and reports false on failure.
func queryYear(w http.ResponseWriter, r *http.Request, sess *pipeline.Session) (int, bool) {
	v := r.URL.Query().Get("year")
	if v == "" {
		y, ok := sess.DefaultYear()
		if !ok {
			writeError(w, http.StatusNotFound, "no adoption data loaded")
			return 0, false
		}
		return y, true
	}
	y, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return 0, false
	}
	return y, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
