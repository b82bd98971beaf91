package model

// Record represents one individual in the population.
// It is the canonical type for the upstream store, the facet index, and the append API.
// JSON names follow the extract produced by the population database.
type Record struct {
	Neighbourhood string   `json:"l"`     // LSOA code
	Practice      string   `json:"gp"`    // GP practice code
	LTCs          []string `json:"ltcs"`  // long-term condition codes
	Flags         []string `json:"flags"` // flag codes
	Sex           string   `json:"sex"`   // "M" / "F"
	Mosaic        string   `json:"m"`     // mosaic segment, "undefined" when unknown
	CCG           string   `json:"ccg"`
	LTCCount      string   `json:"lcnt"` // textual, "5" may mean five or more
	FlagCount     string   `json:"fcnt"`
	Age           float64  `json:"age"`
	Risk          float64  `json:"rsk"`
	Deprivation   int      `json:"d"` // IMD decile
	Ward          string   `json:"w"`
	CR            string   `json:"cr"` // matrix row category
	CV            string   `json:"cv"` // matrix column category

	// Derived counters, zero at load.
	SelectedLTCs  int `json:"NoSelectedLtcs"`
	SelectedFlags int `json:"NoSelectedFlags"`
}

// Clone returns a copy that shares no slices with r.
func (r Record) Clone() Record {
	out := r
	if r.LTCs != nil {
		out.LTCs = append([]string(nil), r.LTCs...)
	}
	if r.Flags != nil {
		out.Flags = append([]string(nil), r.Flags...)
	}
	return out
}

// ResetDerived zeroes the counters that are owned by the selection logic.
func (r *Record) ResetDerived() {
	r.SelectedLTCs = 0
	r.SelectedFlags = 0
}
