package facet

import (
	"strings"
	"time"
)

// PredicateKind selects how a filter value is matched against dimension keys.
type PredicateKind uint8

const (
	// PredicateExact accepts keys that are members of the accepted set.
	PredicateExact PredicateKind = iota
	// PredicateIntersect accepts records whose value set meets the accepted set.
	PredicateIntersect
	// PredicatePair accepts composite pairs equal to one of the accepted pairs.
	PredicatePair
	// PredicateFivePlus is PredicateExact after collapsing anything containing "5" to "5".
	PredicateFivePlus
	// PredicateRange accepts numeric keys inside an inclusive integer bound.
	PredicateRange
	// PredicateDateRange accepts dates inside an inclusive day bound.
	PredicateDateRange
)

func (p PredicateKind) String() string {
	switch p {
	case PredicateExact:
		return "exact"
	case PredicateIntersect:
		return "intersect"
	case PredicatePair:
		return "pair"
	case PredicateFivePlus:
		return "five-plus"
	case PredicateRange:
		return "range"
	case PredicateDateRange:
		return "date-range"
	default:
		return "unknown"
	}
}

// matcher reports whether one dimension key passes a compiled filter.
type matcher func(k Key) bool

func matchExact(accepted []Key) matcher {
	set := make(map[string]struct{}, len(accepted))
	for _, k := range accepted {
		set[k.id()] = struct{}{}
	}
	return func(k Key) bool {
		_, ok := set[k.id()]
		return ok
	}
}

// matchIntersect handles both single values (primary dimensions) and
// composite value sets (combination dimensions).
func matchIntersect(values []string) matcher {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(k Key) bool {
		if k.kind == KindList {
			for _, v := range k.list {
				if _, ok := set[v]; ok {
					return true
				}
			}
			return false
		}
		_, ok := set[k.str]
		return k.kind == KindString && ok
	}
}

func matchPair(pairs [][2]string) matcher {
	return func(k Key) bool {
		if k.kind != KindList || len(k.list) != 2 {
			return false
		}
		for _, p := range pairs {
			if k.list[0] == p[0] && k.list[1] == p[1] {
				return true
			}
		}
		return false
	}
}

// collapseFivePlus maps any key whose text contains "5" to the "5" bucket.
func collapseFivePlus(k Key) Key {
	if k.kind != KindList && strings.Contains(k.Text(), "5") {
		return StringKey("5")
	}
	return k
}

func matchFivePlus(accepted []Key) matcher {
	normalized := make([]Key, len(accepted))
	for i, k := range accepted {
		normalized[i] = collapseFivePlus(k)
	}
	exact := matchExact(normalized)
	return func(k Key) bool {
		return exact(collapseFivePlus(k))
	}
}

func matchRange(low, high int) matcher {
	lo, hi := float64(low), float64(high)
	return func(k Key) bool {
		return k.kind == KindNumber && k.num >= lo && k.num <= hi
	}
}

const dayLayout = "2006-01-02"

// parseDay reads the first ten characters of s as a calendar day.
func parseDay(s string) (time.Time, bool) {
	if len(s) < len(dayLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dayLayout, s[:len(dayLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func matchDateRange(from, to time.Time) matcher {
	return func(k Key) bool {
		if k.kind != KindString {
			return false
		}
		day, ok := parseDay(k.str)
		if !ok {
			return false
		}
		return !day.Before(from) && !day.After(to)
	}
}
