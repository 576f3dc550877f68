package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ContinentsSource is the name the GeoJSON source is reported under.
const ContinentsSource = "continents"

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrPrimaryUnavailable means the adoption source failed to load, so the
// session was not swapped in.
var ErrPrimaryUnavailable = errors.New("primary source failed")

// Summary is what the engine publishes after each successful load.
type Summary struct {
	SessionID  string         `json:"session_id"`
	Year       int            `json:"year"`
	Continents []domain.Group `json:"continents"`
	Gap        []domain.Row   `json:"gap"`
}

// Publisher forwards session summaries downstream.
type Publisher interface {
	Publish(ctx context.Context, summary Summary) error
}

// Settings configures an Engine.
type Settings struct {
	Sources         []SourceSpec
	GeoJSON         string
	Parse           ParseOptions
	Concurrency     int
	RefreshInterval time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for session timestamps and sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPublisher sends a Summary after every successful load.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// Engine loads every source in parallel into immutable sessions and keeps the
// most recent good one available to readers.
type Engine struct {
	fetcher   Fetcher
	settings  Settings
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	publisher Publisher

	session atomic.Pointer[Session]
}

// New creates an Engine. The first source in settings is the primary.
func New(f Fetcher, settings Settings, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	e := &Engine{
		fetcher:  f,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the current session, or nil before the first good load.
func (e *Engine) Session() *Session {
	return e.session.Load()
}

// CheckReadiness returns nil once a session with adoption data is loaded.
func (e *Engine) CheckReadiness(_ context.Context) error {
	s := e.session.Load()
	if s == nil {
		return errors.New("no session loaded yet")
	}
	if s.Index(FieldInternet).Len() == 0 {
		return errors.New("session has no adoption data")
	}
	return nil
}

type sourceResult struct {
	index    *domain.Index
	stats    domain.ParseStats
	err      error
	duration time.Duration
}

// Load fetches and parses every source, waits for all of them, and swaps in
// the resulting session. Secondary failures degrade the session; a primary
// failure leaves the previous session in place and returns
// ErrPrimaryUnavailable alongside the discarded session.
func (e *Engine) Load(ctx context.Context) (*Session, error) {
	sources := e.settings.Sources
	results := make([]sourceResult, len(sources))
	var (
		continents    *domain.ContinentMap
		continentsErr error
	)

	var g errgroup.Group
	g.SetLimit(e.settings.Concurrency)
	for i, spec := range sources {
		g.Go(func() error {
			start := time.Now()
			ix, stats, err := LoadIndicator(ctx, e.fetcher, spec, e.settings.Parse)
			results[i] = sourceResult{index: ix, stats: stats, err: err, duration: time.Since(start)}
			return nil
		})
	}
	g.Go(func() error {
		continents, continentsErr = LoadContinents(ctx, e.fetcher, e.settings.GeoJSON)
		return nil
	})
	// Each goroutine records its own error in its result slot, so Wait is only
	// the barrier.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		LoadedAt:   e.clock.Now(),
		Indices:    make(map[string]*domain.Index, len(sources)),
		Continents: continents,
		Stats:      make(map[string]domain.ParseStats, len(sources)),
		Failures:   make(map[string]string),
	}
	for i, spec := range sources {
		e.record(s, spec, results[i])
	}
	if continentsErr != nil {
		s.Failures[ContinentsSource] = continentsErr.Error()
		e.logger.Warn("continent source degraded, using fallback table",
			"source", ContinentsSource, "kind", domain.ErrorKind(continentsErr), "error", continentsErr)
	}
	e.logger.Info("continents classified", "codes", continents.Len(),
		"geojson", continents.Counts()[domain.SourceGeoJSON],
		"fallback", continents.Counts()[domain.SourceFallback])

	if len(sources) > 0 {
		if primary := sources[0]; s.Indices[primary.Field] == nil {
			e.metrics.SessionLoads.WithLabelValues("error").Inc()
			return s, fmt.Errorf("%w: %s: %s", ErrPrimaryUnavailable, primary.Name, s.Failures[primary.Name])
		}
	}

	outcome := "ok"
	if len(s.Failures) > 0 {
		outcome = "degraded"
	}
	e.metrics.SessionLoads.WithLabelValues(outcome).Inc()
	e.session.Store(s)
	e.metrics.EngineReady.Set(1)
	e.logger.Info("session loaded", "session_id", s.ID, "outcome", outcome, "failures", len(s.Failures))
	return s, nil
}

func (e *Engine) record(s *Session, spec SourceSpec, r sourceResult) {
	kind := domain.ErrorKind(r.err)
	e.metrics.SourceLoads.WithLabelValues(spec.Name, kind).Inc()
	e.metrics.LoadDuration.WithLabelValues(spec.Name).Observe(r.duration.Seconds())
	e.metrics.RowsDropped.WithLabelValues(spec.Name).Add(float64(r.stats.Dropped))
	s.Stats[spec.Name] = r.stats

	if r.err != nil {
		s.Failures[spec.Name] = r.err.Error()
		e.logger.Warn("source failed",
			"source", spec.Name,
			"field", spec.Field,
			"kind", kind,
			"error", r.err,
		)
		return
	}
	e.metrics.RowsParsed.WithLabelValues(spec.Name).Add(float64(r.stats.Observations))
	s.Indices[spec.Field] = r.index
	e.logger.Info("source loaded",
		"source", spec.Name,
		"rows_read", r.stats.RowsRead,
		"observations", r.stats.Observations,
		"rows_dropped", r.stats.Dropped,
		"scaled", r.stats.Scaled,
		"codes", r.index.Len(),
		"duplicates", r.index.Duplicates(),
	)
	if n := r.index.Duplicates(); n > 0 {
		e.logger.Warn("repeated code and year pairs; tie-break follows read order",
			"source", spec.Name,
			"duplicates", n,
		)
	}
}

// Run loads a session, then reloads every RefreshInterval until the context is
// cancelled. A failed load is retried with exponential backoff. With no
// refresh interval the first good session is kept until shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		"sources", len(e.settings.Sources),
		"concurrency", e.settings.Concurrency,
		"refresh_interval", e.settings.RefreshInterval,
	)
	defer e.metrics.EngineReady.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err())
			return nil
		default:
		}

		s, err := e.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("session load failed", "error", err, "retry_in", backoff)
			if !e.sleep(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff
		e.publish(ctx, s)

		if e.settings.RefreshInterval <= 0 {
			<-ctx.Done()
			return nil
		}
		if !e.sleep(ctx, e.settings.RefreshInterval) {
			return nil
		}
		if p, ok := e.fetcher.(interface{ Purge() }); ok {
			p.Purge()
		}
	}
}

func (e *Engine) publish(ctx context.Context, s *Session) {
	if e.publisher == nil {
		return
	}
	summary := Summarize(s)
	if err := e.publisher.Publish(ctx, summary); err != nil {
		e.logger.Error("publish summary failed", "error", err, "session_id", s.ID)
		return
	}
	e.logger.Info("summary published", "session_id", s.ID,
		"continents", len(summary.Continents), "gap_rows", len(summary.Gap))
}

// Summarize builds the published view of a session for its most recent year.
func Summarize(s *Session) Summary {
	year, _ := s.DefaultYear()
	return Summary{
		SessionID:  s.ID,
		Year:       year,
		Continents: s.ContinentSummary(year),
		Gap:        s.ElectricityGap(),
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	return sleepWithContext(ctx, e.clock, d)
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
