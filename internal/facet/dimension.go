package facet

import (
	"fmt"
	"math"

	"github.com/tinytelemetry/cohortlens/internal/model"
)

// Dimension is one registered projection of a record. The set is closed: every
// value below numDimensions has a definition resolved once at package init.
type Dimension uint8

const (
	Neighbourhood Dimension = iota
	Practice
	Conditions
	ConditionSets
	Sex
	Mosaic
	CCG
	ICP
	ConditionCount
	Age
	Risk
	Deprivation
	Ward
	SelectedConditions
	Flags
	FlagSets
	FlagCount
	SelectedFlags
	Matrix

	numDimensions
)

// NumDimensions is the size of the registry.
const NumDimensions = int(numDimensions)

// Wire names as used by filter specifications and results.
var dimensionNames = [numDimensions]string{
	Neighbourhood:      "LDimension",
	Practice:           "GPDimension",
	Conditions:         "LTCsDimension",
	ConditionSets:      "LTCs2Dimension",
	Sex:                "SexDimension",
	Mosaic:             "MDimension",
	CCG:                "CCGDimension",
	ICP:                "ICPDimension",
	ConditionCount:     "LCntDimension",
	Age:                "AgeDimension",
	Risk:               "RskDimension",
	Deprivation:        "DDimension",
	Ward:               "WDimension",
	SelectedConditions: "numberSelLtc",
	Flags:              "FlagsDimension",
	FlagSets:           "Flags2Dimension",
	FlagCount:          "FCntDimension",
	SelectedFlags:      "numberSelFlag",
	Matrix:             "MatrixDimension",
}

var dimensionsByName = func() map[string]Dimension {
	m := make(map[string]Dimension, numDimensions)
	for d := range numDimensions {
		m[dimensionNames[d]] = d
	}
	return m
}()

func (d Dimension) String() string {
	if d >= numDimensions {
		return fmt.Sprintf("Dimension(%d)", uint8(d))
	}
	return dimensionNames[d]
}

// ParseDimension resolves a wire name. Unknown names report false.
func ParseDimension(name string) (Dimension, bool) {
	d, ok := dimensionsByName[name]
	return d, ok
}

// Dimensions returns every registered dimension in registry order.
func Dimensions() []Dimension {
	out := make([]Dimension, numDimensions)
	for d := range numDimensions {
		out[d] = d
	}
	return out
}

// Predicate returns the filter predicate kind bound to d.
func (d Dimension) Predicate() PredicateKind { return registry[d].predicate }

// MultiValued reports whether d exposes each value of a set-valued field as its own key.
func (d Dimension) MultiValued() bool { return registry[d].shape == shapeMulti }

// IsCombination reports whether d keys records by their whole value set.
func (d Dimension) IsCombination() bool { return registry[d].shape == shapeSet }

// Combination returns the combination dimension paired with a multi-valued primary.
func (d Dimension) Combination() (Dimension, bool) {
	switch d {
	case Conditions:
		return ConditionSets, true
	case Flags:
		return FlagSets, true
	}
	return 0, false
}

type keyShape uint8

const (
	shapeScalar keyShape = iota
	shapeMulti           // one key per value of a set field
	shapeSet             // one composite key per record
)

// definition is the declarative binding of a dimension.
type definition struct {
	shape     keyShape
	predicate PredicateKind
	// extract appends the raw keys of r to dst.
	extract func(r *model.Record, dst []Key) []Key
	// group maps a raw key to its histogram key; nil is identity.
	group func(Key) Key
}

var registry = func() [numDimensions]definition {
	var defs [numDimensions]definition
	for d := range numDimensions {
		defs[d] = define(d)
	}
	return defs
}()

func define(d Dimension) definition {
	switch d {
	case Neighbourhood:
		return scalar(PredicateExact, func(r *model.Record) Key { return StringKey(r.Neighbourhood) })
	case Practice:
		return scalar(PredicateExact, func(r *model.Record) Key { return StringKey(r.Practice) })
	case Conditions:
		return multi(func(r *model.Record) []string { return r.LTCs })
	case ConditionSets:
		return set(func(r *model.Record) []string { return r.LTCs })
	case Sex:
		return scalar(PredicateExact, func(r *model.Record) Key {
			if r.Sex == "M" {
				return StringKey("Male")
			}
			return StringKey("Female")
		})
	case Mosaic:
		return scalar(PredicateExact, func(r *model.Record) Key {
			if r.Mosaic == "undefined" || r.Mosaic == "" {
				return StringKey("U99")
			}
			return StringKey(r.Mosaic)
		})
	case CCG:
		return scalar(PredicateExact, func(r *model.Record) Key { return StringKey(r.CCG) })
	case ICP:
		return scalar(PredicateExact, func(r *model.Record) Key { return StringKey(CareSystem(r.CCG)) })
	case ConditionCount:
		return scalar(PredicateFivePlus, func(r *model.Record) Key { return StringKey(r.LTCCount) })
	case Age:
		def := scalar(PredicateRange, func(r *model.Record) Key { return NumberKey(r.Age) })
		def.group = floorKey
		return def
	case Risk:
		def := scalar(PredicateRange, func(r *model.Record) Key { return NumberKey(math.Min(100, r.Risk)) })
		def.group = floorKey
		return def
	case Deprivation:
		return scalar(PredicateExact, func(r *model.Record) Key { return NumberKey(float64(r.Deprivation)) })
	case Ward:
		return scalar(PredicateExact, func(r *model.Record) Key { return StringKey(r.Ward) })
	case SelectedConditions:
		return scalar(PredicateExact, func(r *model.Record) Key { return NumberKey(float64(r.SelectedLTCs)) })
	case Flags:
		return multi(func(r *model.Record) []string { return r.Flags })
	case FlagSets:
		return set(func(r *model.Record) []string { return r.Flags })
	case FlagCount:
		return scalar(PredicateFivePlus, func(r *model.Record) Key { return StringKey(r.FlagCount) })
	case SelectedFlags:
		return scalar(PredicateExact, func(r *model.Record) Key { return NumberKey(float64(r.SelectedFlags)) })
	case Matrix:
		return definition{
			shape:     shapeScalar,
			predicate: PredicatePair,
			extract: func(r *model.Record, dst []Key) []Key {
				return append(dst, ListKey(r.CR, r.CV))
			},
		}
	}
	panic(fmt.Sprintf("facet: no definition for dimension %d", d))
}

func scalar(p PredicateKind, fn func(r *model.Record) Key) definition {
	return definition{
		shape:     shapeScalar,
		predicate: p,
		extract: func(r *model.Record, dst []Key) []Key {
			return append(dst, fn(r))
		},
	}
}

func multi(field func(r *model.Record) []string) definition {
	return definition{
		shape:     shapeMulti,
		predicate: PredicateIntersect,
		extract: func(r *model.Record, dst []Key) []Key {
			for _, v := range field(r) {
				dst = append(dst, StringKey(v))
			}
			return dst
		},
	}
}

func set(field func(r *model.Record) []string) definition {
	return definition{
		shape:     shapeSet,
		predicate: PredicateIntersect,
		extract: func(r *model.Record, dst []Key) []Key {
			return append(dst, setKey(field(r)))
		},
	}
}

func floorKey(k Key) Key {
	if k.kind != KindNumber {
		return k
	}
	return NumberKey(math.Floor(k.num))
}

// CareSystem maps a CCG code to its integrated care partnership.
func CareSystem(ccg string) string {
	switch ccg {
	case "02M", "00R":
		return "Fylde Coast"
	case "02G":
		return "West Lancs"
	case "00Q", "01A":
		return "Pennine Lancashire"
	case "00X", "01E":
		return "Central Lancashire"
	case "01K":
		return "Morecambe Bay"
	default:
		return "Other"
	}
}
