// Package chart turns facet query results into display series and compares
// two cohorts series by series.
package chart

import (
	"slices"

	"github.com/tinytelemetry/cohortlens/internal/facet"
)

// Point is one display entry of a series.
type Point struct {
	Key   facet.Key `json:"key"`
	Value int       `json:"value"`
	Rate  float64   `json:"rate"`
}

// Series is the display form of one dimension.
type Series struct {
	Dimension facet.Dimension `json:"-"`
	Name      string          `json:"Name"`
	Data      []Point         `json:"Data"`
}

// Cohort is the charted view of one filtered population.
type Cohort struct {
	// Denominator is the sum of the sex histogram, the population baseline
	// used when cohorts are compared.
	Denominator int      `json:"denominator"`
	Data        []Series `json:"data"`
}

// Series returns the series for d.
func (c *Cohort) Series(d facet.Dimension) (Series, bool) {
	for _, s := range c.Data {
		if s.Dimension == d {
			return s, true
		}
	}
	return Series{}, false
}

// Transform builds the display series for every non-combination dimension of
// res. res is not modified.
func Transform(res *facet.Result) *Cohort {
	out := &Cohort{}
	for _, b := range res.Get(facet.Sex).Values {
		out.Denominator += b.Value
	}

	for _, d := range facet.Dimensions() {
		if d.IsCombination() {
			continue
		}
		h := res.Get(d).Values.Clone()
		if f, ok := res.Filters.Get(d); ok {
			mask(d, f, h)
		}

		var buckets facet.Histogram
		switch {
		case d.MultiValued():
			combo, _ := d.Combination()
			buckets = rollup(res.Get(combo).Values)
		case d == facet.Age:
			buckets = ageBands(h)
		case d == facet.Risk:
			buckets = riskBands(h)
		default:
			buckets = h
		}

		points := make([]Point, len(buckets))
		for i, b := range buckets {
			points[i] = Point{Key: b.Key, Value: b.Value, Rate: rate(b.Value, res.Total)}
		}
		if d != facet.Age {
			slices.Reverse(points)
		}
		out.Data = append(out.Data, Series{Dimension: d, Name: d.String(), Data: points})
	}
	return out
}

// mask zeroes the entries an active filter excludes. The engine has already
// narrowed the counts; masking makes excluded keys read as zero on the chart.
func mask(d facet.Dimension, f *facet.Filter, h facet.Histogram) {
	if low, high, ok := f.Bounds(); ok {
		for i := range h {
			if k := h[i].Key.Num(); k <= float64(low) || k > float64(high) {
				h[i].Value = 0
			}
		}
		return
	}
	if d.MultiValued() || d.Predicate() == facet.PredicatePair {
		return
	}
	// Match applies the dimension's predicate, so five-or-more filters mask
	// every key that collapses to "5", not only the literal filter values.
	for i := range h {
		if !f.Match(h[i].Key) {
			h[i].Value = 0
		}
	}
}

// rollup explodes combination keys into one entry per value, in the order
// values are first seen. A value shared by several combinations accumulates
// across all of them.
func rollup(combos facet.Histogram) facet.Histogram {
	var out facet.Histogram
	index := make(map[string]int)
	for _, b := range combos {
		for i := range b.Key.Len() {
			v := b.Key.At(i)
			if at, ok := index[v]; ok {
				out[at].Value += b.Value
				continue
			}
			index[v] = len(out)
			out = append(out, facet.Bucket{Key: facet.ListKey(v), Value: b.Value})
		}
	}
	return out
}

func rate(value, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(value) / float64(total)
}
