// Package dataset owns the in-memory population and exposes the query, chart,
// comparison and append operations used by the service layer.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinytelemetry/cohortlens/internal/chart"
	"github.com/tinytelemetry/cohortlens/internal/facet"
	"github.com/tinytelemetry/cohortlens/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrDataUnavailable wraps a failure to read the upstream population.
	ErrDataUnavailable = errors.New("dataset: population data unavailable")
	// ErrNotReady is returned until the first successful rebuild.
	ErrNotReady = errors.New("dataset: population not loaded")
)

// Config holds optional collaborators for a Service.
type Config struct {
	// Writer persists appended records. When nil and the source also
	// implements model.PopulationWriter, the source is used.
	Writer model.PopulationWriter
	Logger *zap.Logger
}

// Stats describes the population currently served.
type Stats struct {
	Ready       bool          `json:"ready"`
	Records     int           `json:"records"`
	Generation  uint64        `json:"generation"`
	LastRebuild time.Time     `json:"lastRebuild"`
	RebuildTook time.Duration `json:"rebuildTook"`
}

// Service is the explicit context for one population: its store, where it is
// loaded from, and where appends are written.
type Service struct {
	store  *facet.Store
	source model.PopulationSource
	writer model.PopulationWriter
	logger *zap.Logger

	// mu serialises Rebuild and Append.
	mu sync.Mutex

	stateMu     sync.RWMutex
	ready       bool
	lastRebuild time.Time
	rebuildTook time.Duration
}

// NewService creates a service over source. No data is loaded until Rebuild.
func NewService(source model.PopulationSource, conf ...Config) *Service {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Writer == nil {
		if w, ok := source.(model.PopulationWriter); ok {
			cfg.Writer = w
		}
	}
	return &Service{
		store:  facet.NewStore(),
		source: source,
		writer: cfg.Writer,
		logger: cfg.Logger,
	}
}

// Rebuild reloads the population from the source. On failure the previous
// population stays live and the error wraps ErrDataUnavailable.
func (s *Service) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	records, err := s.source.LoadPopulation(ctx)
	if err != nil {
		s.logger.Error("dataset: rebuild failed, keeping previous population", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	snap := s.store.Load(records)
	took := time.Since(start)

	s.stateMu.Lock()
	s.ready = true
	s.lastRebuild = start
	s.rebuildTook = took
	s.stateMu.Unlock()

	s.logger.Info("dataset: rebuild finished",
		zap.Int("records", snap.Len()),
		zap.Uint64("generation", snap.Generation()),
		zap.Duration("took", took),
	)
	return nil
}

func (s *Service) snapshot() (*facet.Snapshot, error) {
	s.stateMu.RLock()
	ready := s.ready
	s.stateMu.RUnlock()
	if !ready {
		return nil, ErrNotReady
	}
	return s.store.Snapshot(), nil
}

// Query runs one faceted query against the current population.
func (s *Service) Query(spec facet.FilterSpec) (*facet.Result, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Query(spec)
}

// Chart runs a query and transforms it into display series.
func (s *Service) Chart(spec facet.FilterSpec) (*chart.Cohort, error) {
	res, err := s.Query(spec)
	if err != nil {
		return nil, err
	}
	return chart.Transform(res), nil
}

// Compare charts two cohorts against the same snapshot and compares them.
func (s *Service) Compare(baseline, comparator facet.FilterSpec) (*chart.Comparison, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return chart.Compare(snap, baseline, comparator)
}

// Append persists r upstream, then adds it to the in-memory population.
// Nothing changes in memory when the write fails.
func (s *Service) Append(ctx context.Context, r model.Record) error {
	if _, err := s.snapshot(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.ResetDerived()
	if s.writer != nil {
		if err := s.writer.InsertPeople(ctx, []model.Record{r}); err != nil {
			return fmt.Errorf("dataset: persist record: %w", err)
		}
	}
	snap := s.store.Append(r)
	s.logger.Debug("dataset: record appended",
		zap.Int("records", snap.Len()),
		zap.Uint64("generation", snap.Generation()),
	)
	return nil
}

// Stats reports on the population currently served.
func (s *Service) Stats() Stats {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	snap := s.store.Snapshot()
	return Stats{
		Ready:       s.ready,
		Records:     snap.Len(),
		Generation:  snap.Generation(),
		LastRebuild: s.lastRebuild,
		RebuildTook: s.rebuildTook,
	}
}
