package chart

import (
	"encoding/json"
	"math"

	"github.com/tinytelemetry/cohortlens/internal/facet"
)

// chartNames maps dimensions to the display category a comparison table is
// filed under. Dimensions without an entry are left out of comparisons.
var chartNames = map[facet.Dimension]string{
	facet.Neighbourhood:  "neighbourhood-select-comp",
	facet.Practice:       "gp-map-leaflet-comp",
	facet.Conditions:     "ltc-chart-comp",
	facet.Flags:          "flags-chart-comp",
	facet.Sex:            "sex-chart-comp",
	facet.Mosaic:         "mosaic-chart-comp",
	facet.CCG:            "ccg-select-comp",
	facet.ConditionCount: "ltc-count-chart-comp",
	facet.Age:            "age-chart-comp",
	facet.Risk:           "risk-chart-comp",
	facet.Deprivation:    "imd-chart-comp",
	facet.Ward:           "ward-map-leaflet-comp",
	facet.Matrix:         "matrix-chart-comp",
}

// ChartName returns the display category of d.
func ChartName(d facet.Dimension) (string, bool) {
	name, ok := chartNames[d]
	return name, ok
}

// Ratio is comparator rate over baseline rate, as a percentage. A zero
// baseline rate yields NaN, which encodes as JSON null.
type Ratio float64

// Defined reports whether the ratio has a value.
func (r Ratio) Defined() bool { return !math.IsNaN(float64(r)) }

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined() || math.IsInf(float64(r), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

// Row pairs one baseline entry with the comparator entry at the same position.
type Row struct {
	Chart         string    `json:"chart"`
	Key           facet.Key `json:"key"`
	BaselineValue int       `json:"baselineValue"`
	BaselineRate  float64   `json:"baselineRate"`
	CompValue     int       `json:"compValue"`
	CompRate      float64   `json:"compRate"`
	Ratio         Ratio     `json:"ratio"`
}

// Table holds the rows of one chart category.
type Table struct {
	Chart string `json:"chartname"`
	Rows  []Row  `json:"chartdata"`
}

// Comparison is the outcome of comparing two cohorts.
type Comparison struct {
	Tables               []Table `json:"details"`
	BaselinePopulation   int     `json:"baselinePop"`
	ComparatorPopulation int     `json:"comparisonPop"`
}

// Compare queries and charts both cohorts against the same snapshot and
// compares them. Either spec failing to compile fails the comparison.
func Compare(snap *facet.Snapshot, baseline, comparator facet.FilterSpec) (*Comparison, error) {
	a, err := snap.Query(baseline)
	if err != nil {
		return nil, err
	}
	b, err := snap.Query(comparator)
	if err != nil {
		return nil, err
	}
	return CompareCohorts(Transform(a), Transform(b)), nil
}

// CompareCohorts pairs entries by position. Both cohorts must come from the
// same registry so their series line up; a comparator entry that is missing
// counts as zero.
func CompareCohorts(base, comp *Cohort) *Comparison {
	out := &Comparison{
		BaselinePopulation:   base.Denominator,
		ComparatorPopulation: comp.Denominator,
	}
	for i, bs := range base.Data {
		name, ok := chartNames[bs.Dimension]
		if !ok {
			continue
		}
		var cs Series
		if i < len(comp.Data) {
			cs = comp.Data[i]
		}
		table := Table{Chart: name, Rows: make([]Row, 0, len(bs.Data))}
		for j, bp := range bs.Data {
			var cp Point
			if j < len(cs.Data) {
				cp = cs.Data[j]
			}
			table.Rows = append(table.Rows, Row{
				Chart:         name,
				Key:           bp.Key,
				BaselineValue: bp.Value,
				BaselineRate:  bp.Rate,
				CompValue:     cp.Value,
				CompRate:      cp.Rate,
				Ratio:         ratio(cp.Rate, bp.Rate),
			})
		}
		out.Tables = append(out.Tables, table)
	}
	return out
}

func ratio(comp, base float64) Ratio {
	if base == 0 {
		return Ratio(math.NaN())
	}
	return Ratio(comp / base * 100)
}
