package facet

import (
	"encoding/json"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Bucket is one histogram entry.
type Bucket struct {
	Key   Key `json:"key"`
	Value int `json:"value"`
}

// Histogram lists every key of a dimension in ascending key order, including
// keys with a zero count under the current filters.
type Histogram []Bucket

// Clone returns an independent copy.
func (h Histogram) Clone() Histogram { return slices.Clone(h) }

// Sum adds up every bucket.
func (h Histogram) Sum() int {
	n := 0
	for _, b := range h {
		n += b.Value
	}
	return n
}

// Lookup returns the bucket for k.
func (h Histogram) Lookup(k Key) (Bucket, bool) {
	for _, b := range h {
		if b.Key.Equal(k) {
			return b, true
		}
	}
	return Bucket{}, false
}

// Top returns the bucket with the highest count. Ties go to the first key in
// histogram order; an empty histogram has no top.
func (h Histogram) Top() *Bucket {
	if len(h) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(h); i++ {
		if h[i].Value > h[best].Value {
			best = i
		}
	}
	b := h[best]
	return &b
}

// DimensionResult is the histogram of one dimension plus the filter applied to it.
type DimensionResult struct {
	Values Histogram
	Top    *Bucket
	// Filter echoes the caller's filter value; nil when unfiltered.
	Filter any
}

// Result is the outcome of one query.
type Result struct {
	Dimensions [numDimensions]DimensionResult
	Total      int
	Filters    *Filters
}

// Get returns the result for d.
func (r *Result) Get(d Dimension) DimensionResult { return r.Dimensions[d] }

type dimensionJSON struct {
	Values Histogram `json:"values"`
	Top    int       `json:"top"`
	TopKey *Key      `json:"topKey,omitempty"`
	Filts  any       `json:"filts"`
}

// MarshalJSON encodes the result keyed by dimension wire name, plus "all"
// carrying the selected record count.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, numDimensions+1)
	for d := range numDimensions {
		dr := r.Dimensions[d]
		values := dr.Values
		if values == nil {
			values = Histogram{}
		}
		j := dimensionJSON{Values: values, Filts: dr.Filter}
		if dr.Top != nil {
			j.Top = dr.Top.Value
			k := dr.Top.Key
			j.TopKey = &k
		}
		out[dimensionNames[d]] = j
	}
	out["all"] = map[string]int{"values": r.Total}
	return json.Marshal(out)
}

// evalContext holds the per-dimension pass sets of one query. Each query gets
// its own context, so concurrent queries never observe each other's filters.
type evalContext struct {
	snap   *Snapshot
	passes [numDimensions]*roaring.Bitmap
}

func newEvalContext(s *Snapshot) *evalContext {
	return &evalContext{snap: s}
}

// reset clears every dimension.
func (c *evalContext) reset() {
	for d := range c.passes {
		c.passes[d] = nil
	}
}

func (c *evalContext) apply(d Dimension, f *Filter) {
	col := c.snap.columns[d]
	var hits []*roaring.Bitmap
	for id, k := range col.keys {
		if f.match(k) {
			hits = append(hits, col.postings[id])
		}
	}
	c.passes[d] = roaring.FastOr(hits...)
}

// selection intersects every active pass set. nil means no dimension is filtered.
func (c *evalContext) selection() *roaring.Bitmap {
	var active []*roaring.Bitmap
	for _, p := range c.passes {
		if p != nil {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	default:
		return roaring.FastAnd(active...)
	}
}

func (c *evalContext) histogram(d Dimension, sel *roaring.Bitmap) Histogram {
	col := c.snap.columns[d]
	counts := make([]int, len(col.groups))
	for id, p := range col.postings {
		var n uint64
		if sel == nil {
			n = p.GetCardinality()
		} else {
			n = p.AndCardinality(sel)
		}
		counts[col.groupOf[id]] += int(n)
	}
	h := make(Histogram, len(col.order))
	for i, g := range col.order {
		h[i] = Bucket{Key: col.groups[g], Value: counts[g]}
	}
	return h
}

// Evaluate runs compiled filters against the snapshot. A filter on a
// dimension also narrows that dimension's own histogram.
func (s *Snapshot) Evaluate(fs *Filters) *Result {
	ctx := newEvalContext(s)
	ctx.reset()
	for d := range numDimensions {
		if f, ok := fs.Get(d); ok {
			ctx.apply(d, f)
		}
	}
	sel := ctx.selection()

	res := &Result{Filters: fs}
	if fs == nil {
		res.Filters = &Filters{}
	}
	for d := range numDimensions {
		h := ctx.histogram(d, sel)
		dr := DimensionResult{Values: h, Top: h.Top()}
		if f, ok := fs.Get(d); ok {
			dr.Filter = f.Raw()
		}
		res.Dimensions[d] = dr
	}
	if sel == nil {
		res.Total = s.Len()
	} else {
		res.Total = int(sel.GetCardinality())
	}
	return res
}
