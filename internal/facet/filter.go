package facet

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedFilter is returned when a filter value does not fit its dimension's predicate.
var ErrMalformedFilter = errors.New("facet: malformed filter")

// FilterError describes a rejected filter entry.
// errors.Is(err, ErrMalformedFilter) holds for every FilterError.
type FilterError struct {
	Dimension string
	Reason    string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("facet: malformed filter for %s: %s", e.Dimension, e.Reason)
}

func (e *FilterError) Unwrap() error { return ErrMalformedFilter }

// FilterSpec maps dimension wire names to filter values as decoded from JSON
// (strings, float64 numbers, and nested []any). A nil value or a missing entry
// leaves the dimension unfiltered; unknown names are ignored.
type FilterSpec map[string]any

// Filter is one validated filter entry.
type Filter struct {
	dim       Dimension
	raw       any
	match     matcher
	low, high int
	bounded   bool
}

// Dimension returns the dimension the filter is bound to. Filters built with
// NewFilter report false.
func (f *Filter) Dimension() (Dimension, bool) { return f.dim, f.dim < numDimensions }

// Raw returns the filter value exactly as the caller supplied it.
func (f *Filter) Raw() any { return f.raw }

// Match reports whether a key of the filter's dimension passes.
func (f *Filter) Match(k Key) bool { return f.match(k) }

// Bounds returns the inclusive integer bound of a range filter.
func (f *Filter) Bounds() (low, high int, ok bool) { return f.low, f.high, f.bounded }

// Filters is a compiled filter specification indexed by dimension.
type Filters struct {
	byDim [numDimensions]*Filter
}

// Get returns the active filter on d.
func (fs *Filters) Get(d Dimension) (*Filter, bool) {
	if fs == nil || d >= numDimensions {
		return nil, false
	}
	f := fs.byDim[d]
	return f, f != nil
}

// Active returns the number of filtered dimensions.
func (fs *Filters) Active() int {
	n := 0
	for _, f := range fs.byDim {
		if f != nil {
			n++
		}
	}
	return n
}

// CompileFilters validates spec against the registry. Nothing is evaluated
// until every entry has been accepted.
func CompileFilters(spec FilterSpec) (*Filters, error) {
	fs := &Filters{}
	for d := range numDimensions {
		raw, ok := spec[dimensionNames[d]]
		if !ok || raw == nil {
			continue
		}
		f, err := compile(d, raw)
		if err != nil {
			return nil, err
		}
		fs.byDim[d] = f
	}
	return fs, nil
}

func compile(d Dimension, raw any) (*Filter, error) {
	f, err := compilePredicate(registry[d].predicate, d.String(), raw)
	if err != nil {
		return nil, err
	}
	f.dim = d
	return f, nil
}

// NewFilter compiles raw against a predicate kind for a field that is not part
// of the registry, such as a date column. name only labels errors.
func NewFilter(kind PredicateKind, name string, raw any) (*Filter, error) {
	f, err := compilePredicate(kind, name, raw)
	if err != nil {
		return nil, err
	}
	f.dim = numDimensions
	return f, nil
}

func compilePredicate(kind PredicateKind, name string, raw any) (*Filter, error) {
	fail := func(format string, args ...any) error {
		return &FilterError{Dimension: name, Reason: fmt.Sprintf(format, args...)}
	}
	items, ok := asSlice(raw)
	if !ok {
		return nil, fail("expected an array, got %T", raw)
	}
	f := &Filter{raw: raw}

	switch kind {
	case PredicateExact, PredicateFivePlus:
		keys := make([]Key, 0, len(items))
		for i, v := range items {
			k, ok := scalarKey(v)
			if !ok {
				return nil, fail("entry %d: expected string or number, got %T", i, v)
			}
			keys = append(keys, k)
		}
		if kind == PredicateFivePlus {
			f.match = matchFivePlus(keys)
		} else {
			f.match = matchExact(keys)
		}

	case PredicateIntersect:
		values := make([]string, 0, len(items))
		for i, v := range items {
			s, ok := leadingValue(v)
			if !ok {
				return nil, fail("entry %d: expected a value or an array led by one, got %T", i, v)
			}
			values = append(values, s)
		}
		f.match = matchIntersect(values)

	case PredicatePair:
		pairs := make([][2]string, 0, len(items))
		for i, v := range items {
			pair, ok := asSlice(v)
			if !ok || len(pair) != 2 {
				return nil, fail("entry %d: expected a two-element array", i)
			}
			a, okA := pair[0].(string)
			b, okB := pair[1].(string)
			if !okA || !okB {
				return nil, fail("entry %d: pair elements must be strings", i)
			}
			pairs = append(pairs, [2]string{a, b})
		}
		f.match = matchPair(pairs)

	case PredicateRange:
		bound, err := rangeBound(items)
		if err != nil {
			return nil, fail("%v", err)
		}
		low, okLow := parseIntBound(bound[0])
		high, okHigh := parseIntBound(bound[1])
		if !okLow || !okHigh {
			return nil, fail("range bounds must be integers, got %v and %v", bound[0], bound[1])
		}
		f.low, f.high, f.bounded = low, high, true
		f.match = matchRange(low, high)

	case PredicateDateRange:
		bound, err := rangeBound(items)
		if err != nil {
			return nil, fail("%v", err)
		}
		from, okFrom := dayBound(bound[0])
		to, okTo := dayBound(bound[1])
		if !okFrom || !okTo {
			return nil, fail("date bounds must start with YYYY-MM-DD, got %v and %v", bound[0], bound[1])
		}
		f.match = matchDateRange(from, to)

	default:
		return nil, fail("unsupported predicate %s", kind)
	}
	return f, nil
}

// asSlice accepts any slice or array value, which covers both decoded JSON
// ([]any) and filters built in Go ([]string, [][]string, []int...).
func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func scalarKey(v any) (Key, bool) {
	switch x := v.(type) {
	case string:
		return StringKey(x), true
	case float64:
		return NumberKey(x), true
	case float32:
		return NumberKey(float64(x)), true
	case int:
		return NumberKey(float64(x)), true
	case int32:
		return NumberKey(float64(x)), true
	case int64:
		return NumberKey(float64(x)), true
	}
	return Key{}, false
}

// leadingValue returns v itself when it is a string, or the first element of
// a composite-key entry.
func leadingValue(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	items, ok := asSlice(v)
	if !ok || len(items) == 0 {
		return "", false
	}
	s, ok := items[0].(string)
	return s, ok
}

// rangeBound accepts [low, high] or [[low, high]].
func rangeBound(items []any) ([2]any, error) {
	if len(items) == 1 {
		inner, ok := asSlice(items[0])
		if !ok {
			return [2]any{}, fmt.Errorf("expected two bounds, got one")
		}
		items = inner
	}
	if len(items) != 2 {
		return [2]any{}, fmt.Errorf("expected two bounds, got %d", len(items))
	}
	return [2]any{items[0], items[1]}, nil
}

var leadingInt = regexp.MustCompile(`^\s*[-+]?\d+`)

// parseIntBound truncates numbers and reads the integer prefix of strings.
func parseIntBound(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(math.Trunc(x)), true
	case float32:
		return parseIntBound(float64(x))
	case int:
		return x, true
	case int64:
		return int(x), true
	case string:
		m := leadingInt.FindString(x)
		if m == "" {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(m))
		return n, err == nil
	}
	return 0, false
}

func dayBound(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return parseDay(s)
}
