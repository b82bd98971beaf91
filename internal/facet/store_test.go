package facet

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/cohortlens/internal/model"
)

func TestLoadResetsDerivedCountersAndCopies(t *testing.T) {
	records := samplePopulation()
	records[0].SelectedLTCs = 3
	records[1].SelectedFlags = 2

	s := NewStore()
	snap := s.Load(records)
	records[0].LTCs[0] = "mutated"

	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, uint64(1), snap.Generation())
	assert.Equal(t, 0, snap.Record(0).SelectedLTCs)
	assert.Equal(t, 0, snap.Record(1).SelectedFlags)
	assert.Equal(t, "Asthma", snap.Record(0).LTCs[0])
}

func TestLoadReplacesPopulation(t *testing.T) {
	s := loadedStore()
	s.Load(samplePopulation()[:1])

	res, err := s.Query(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, map[string]int{"P1": 1}, bucketsOf(res.Get(Practice).Values))
}

func TestAppendNovelValue(t *testing.T) {
	s := loadedStore()
	before := s.Snapshot()

	rec := model.Record{
		Neighbourhood: "E09", Practice: "P9", LTCs: []string{"Cancer"}, Sex: "M",
		CCG: "02G", LTCCount: "1", FlagCount: "0", Age: 5, Risk: 1, Deprivation: 1,
		Ward: "W9", CR: "3", CV: "c", SelectedLTCs: 7,
	}
	after := s.Append(rec)

	assert.Equal(t, 5, after.Len())
	assert.Equal(t, before.Generation()+1, after.Generation())
	assert.Equal(t, 0, after.Record(4).SelectedLTCs)

	res, err := s.Query(FilterSpec{"GPDimension": []any{"P9"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, map[string]int{"P1": 0, "P2": 0, "P3": 0, "P9": 1}, bucketsOf(res.Get(Practice).Values))
	assert.Equal(t, 1, bucketsOf(res.Get(ICP).Values)["West Lancs"])

	old, err := before.Query(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, old.Total)
	_, found := old.Get(Practice).Values.Lookup(StringKey("P9"))
	assert.False(t, found, "earlier snapshots must not see appended records")
	assert.Equal(t, 3, bucketsOf(old.Get(Conditions).Values)["Asthma"])
}

func TestAppendExistingValueLeavesOldSnapshot(t *testing.T) {
	s := loadedStore()
	before := s.Snapshot()

	s.Append(samplePopulation()[0])
	s.Append(samplePopulation()[0])

	old, err := before.Query(FilterSpec{"GPDimension": []any{"P1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, old.Total)

	cur, err := s.Query(FilterSpec{"GPDimension": []any{"P1"}})
	require.NoError(t, err)
	assert.Equal(t, 4, cur.Total)
	assert.Equal(t, 3, bucketsOf(cur.Get(Conditions).Values)["Asthma"])

	all, err := s.Query(nil)
	require.NoError(t, err)
	assert.Equal(t, 5, bucketsOf(all.Get(Conditions).Values)["Asthma"])
}

func TestConcurrentQueriesAndAppends(t *testing.T) {
	s := loadedStore()
	specs := []FilterSpec{
		nil,
		{"SexDimension": []any{"Male"}},
		{"AgeDimension": []any{[]any{0.0, 50.0}}},
		{"LTCsDimension": []any{"Asthma"}, "CCGDimension": []any{"02M"}},
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				snap := s.Snapshot()
				spec := specs[(w+i)%len(specs)]
				res, err := snap.Query(spec)
				if err != nil {
					errs <- err
					return
				}
				if got := res.Get(Sex).Values.Sum(); got != res.Total {
					errs <- fmt.Errorf("sex histogram sums to %d, total %d", got, res.Total)
					return
				}
				if spec == nil && res.Total != snap.Len() {
					errs <- fmt.Errorf("unfiltered total %d, snapshot holds %d", res.Total, snap.Len())
					return
				}
			}
		}()
	}
	for i := range 40 {
		rec := samplePopulation()[i%4]
		rec.Practice = fmt.Sprintf("N%d", i)
		s.Append(rec)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 44, s.Len())
}
