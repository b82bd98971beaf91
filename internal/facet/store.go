package facet

import (
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/cohortlens/internal/model"
)

// Snapshot is an immutable view of the population and its index. Queries run
// against a snapshot, so a concurrent Load or Append never changes what an
// in-flight query sees.
type Snapshot struct {
	records    []model.Record
	columns    [numDimensions]*column
	generation uint64
}

func buildSnapshot(records []model.Record) *Snapshot {
	s := &Snapshot{records: records}
	for d := range numDimensions {
		s.columns[d] = newColumn(registry[d].group)
	}
	var buf []Key
	for i := range records {
		buf = indexRecord(&s.columns, uint32(i), &records[i], buf)
	}
	for _, c := range s.columns {
		c.seal()
	}
	return s
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// Record returns a copy of record i.
func (s *Snapshot) Record(i int) model.Record { return s.records[i].Clone() }

// Generation increases with every Load and Append on the owning store.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Query compiles spec and evaluates it against the snapshot.
func (s *Snapshot) Query(spec FilterSpec) (*Result, error) {
	filters, err := CompileFilters(spec)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(filters), nil
}

// Store holds the current population snapshot. Writers are serialised;
// readers never block.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

// NewStore returns a store holding an empty population.
func NewStore() *Store {
	s := &Store{}
	s.cur.Store(buildSnapshot(nil))
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot { return s.cur.Load() }

// Len returns the current record count.
func (s *Store) Len() int { return s.Snapshot().Len() }

// Query evaluates spec against the current snapshot.
func (s *Store) Query(spec FilterSpec) (*Result, error) {
	return s.Snapshot().Query(spec)
}

// Load replaces the population. The new index is built before it is
// published, so readers see either the old population or the new one.
func (s *Store) Load(records []model.Record) *Snapshot {
	owned := make([]model.Record, len(records))
	for i := range records {
		owned[i] = records[i].Clone()
		owned[i].ResetDerived()
	}
	next := buildSnapshot(owned)

	s.mu.Lock()
	defer s.mu.Unlock()
	next.generation = s.cur.Load().generation + 1
	s.cur.Store(next)
	return next
}

// Append adds one record with its derived counters zeroed.
func (s *Store) Append(r model.Record) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	rec := r.Clone()
	rec.ResetDerived()

	next := &Snapshot{
		// prev never reads past its own length, so sharing the backing array is safe.
		records:    append(prev.records, rec),
		generation: prev.generation + 1,
	}
	for d, c := range prev.columns {
		next.columns[d] = c.fork()
	}
	indexRecord(&next.columns, uint32(len(prev.records)), &next.records[len(prev.records)], nil)
	for _, c := range next.columns {
		c.seal()
	}
	s.cur.Store(next)
	return next
}
