package facet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFiltersSkipsMissingNullAndUnknown(t *testing.T) {
	fs, err := CompileFilters(FilterSpec{
		"SexDimension": []any{"Male"},
		"AgeDimension": nil,
		"all":          []any{"anything"},
		"NoSuchColumn": 42,
		"WDimension":   []any{"W1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Active())

	_, ok := fs.Get(Age)
	assert.False(t, ok)
	f, ok := fs.Get(Sex)
	require.True(t, ok)
	d, bound := f.Dimension()
	assert.True(t, bound)
	assert.Equal(t, Sex, d)
}

func TestCompileFiltersRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		spec FilterSpec
		dim  string
	}{
		{"scalar instead of array", FilterSpec{"SexDimension": "Male"}, "SexDimension"},
		{"range bound not numeric", FilterSpec{"AgeDimension": []any{[]any{"old", 40.0}}}, "AgeDimension"},
		{"range with three bounds", FilterSpec{"RskDimension": []any{1.0, 2.0, 3.0}}, "RskDimension"},
		{"pair with one element", FilterSpec{"MatrixDimension": []any{[]any{"1"}}}, "MatrixDimension"},
		{"pair with numbers", FilterSpec{"MatrixDimension": []any{[]any{1.0, 2.0}}}, "MatrixDimension"},
		{"exact with object", FilterSpec{"GPDimension": []any{map[string]any{"a": 1}}}, "GPDimension"},
		{"intersect with empty composite", FilterSpec{"LTCs2Dimension": []any{[]any{}}}, "LTCs2Dimension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilters(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFilter))

			var fe *FilterError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.dim, fe.Dimension)
		})
	}
}

func TestRangeBoundShapes(t *testing.T) {
	for _, raw := range []any{
		[]any{30.0, 40.0},
		[]any{[]any{30.0, 40.0}},
		[]any{"30", "40 years"},
		[]int{30, 40},
		[]any{30.9, 40.2},
	} {
		f, err := compile(Age, raw)
		require.NoError(t, err, "%v", raw)
		low, high, ok := f.Bounds()
		require.True(t, ok)
		assert.Equal(t, 30, low)
		assert.Equal(t, 40, high)
		assert.True(t, f.Match(NumberKey(30)))
		assert.True(t, f.Match(NumberKey(40)))
		assert.False(t, f.Match(NumberKey(41)))
		assert.False(t, f.Match(StringKey("35")))
	}
}

func TestFivePlusCollapsesBothSides(t *testing.T) {
	raw := []any{"15"}
	f, err := compile(ConditionCount, raw)
	require.NoError(t, err)

	assert.True(t, f.Match(StringKey("5")))
	assert.True(t, f.Match(StringKey("25")))
	assert.False(t, f.Match(StringKey("1")))
	assert.Equal(t, []any{"15"}, raw, "caller's filter value must not be rewritten")
	assert.Equal(t, []any{"15"}, f.Raw())
}

func TestIntersectAcceptsValuesAndCompositeEntries(t *testing.T) {
	f, err := compile(Conditions, []any{"Asthma", []any{"COPD", "Diabetes"}})
	require.NoError(t, err)
	assert.True(t, f.Match(StringKey("Asthma")))
	assert.True(t, f.Match(StringKey("COPD")))
	assert.False(t, f.Match(StringKey("Diabetes")))

	sets, err := compile(ConditionSets, [][]string{{"COPD", "Asthma"}})
	require.NoError(t, err)
	assert.True(t, sets.Match(setKey([]string{"COPD", "Diabetes"})))
	assert.False(t, sets.Match(setKey([]string{"Asthma"})))
	assert.False(t, sets.Match(setKey(nil)))
}

func TestPairMatchesWholeTuple(t *testing.T) {
	f, err := compile(Matrix, []any{[]any{"1", "a"}, []any{"2", "b"}})
	require.NoError(t, err)
	assert.True(t, f.Match(ListKey("1", "a")))
	assert.True(t, f.Match(ListKey("2", "b")))
	assert.False(t, f.Match(ListKey("1", "b")))
	assert.False(t, f.Match(StringKey("1")))
}

func TestEmptyAcceptedSetMatchesNothing(t *testing.T) {
	f, err := compile(Sex, []any{})
	require.NoError(t, err)
	assert.False(t, f.Match(StringKey("Male")))
	assert.False(t, f.Match(StringKey("Female")))
}

func TestNewFilterDateRange(t *testing.T) {
	f, err := NewFilter(PredicateDateRange, "loaded", []any{"2024-01-01", "2024-01-31T23:59:59Z"})
	require.NoError(t, err)

	_, bound := f.Dimension()
	assert.False(t, bound)
	assert.True(t, f.Match(StringKey("2024-01-01")))
	assert.True(t, f.Match(StringKey("2024-01-31T08:00:00Z")))
	assert.False(t, f.Match(StringKey("2024-02-01")))
	assert.False(t, f.Match(StringKey("yesterday")))
	assert.False(t, f.Match(NumberKey(20240115)))

	_, err = NewFilter(PredicateDateRange, "loaded", []any{"soon", "2024-01-31"})
	var fe *FilterError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "loaded", fe.Dimension)
}

func TestRegistryPredicates(t *testing.T) {
	want := map[Dimension]PredicateKind{
		Neighbourhood:  PredicateExact,
		Conditions:     PredicateIntersect,
		ConditionSets:  PredicateIntersect,
		ConditionCount: PredicateFivePlus,
		Age:            PredicateRange,
		Risk:           PredicateRange,
		Matrix:         PredicatePair,
		FlagCount:      PredicateFivePlus,
	}
	for d, p := range want {
		assert.Equal(t, p, d.Predicate(), d.String())
	}

	for _, d := range Dimensions() {
		parsed, ok := ParseDimension(d.String())
		require.True(t, ok)
		assert.Equal(t, d, parsed)
	}
	_, ok := ParseDimension("all")
	assert.False(t, ok)

	combo, ok := Conditions.Combination()
	require.True(t, ok)
	assert.Equal(t, ConditionSets, combo)
	assert.True(t, ConditionSets.IsCombination())
	assert.True(t, Flags.MultiValued())
	assert.False(t, Sex.MultiValued())
}
