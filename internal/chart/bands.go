package chart

import (
	"fmt"
	"strconv"

	"github.com/tinytelemetry/cohortlens/internal/facet"
)

const ageBandSize = 5

var riskCutoffs = [...]int{3, 4, 5, 10, 20}

// ageBands folds per-year counts into five-year bands closing at ages ending
// in 4 and 9. The last key always opens a trailing "<age> + " band holding
// whatever has not been emitted yet.
func ageBands(h facet.Histogram) facet.Histogram {
	var out facet.Histogram
	cum := 0
	for i, b := range h {
		cum += b.Value
		age := int(b.Key.Num())
		if age%ageBandSize == ageBandSize-1 {
			label := fmt.Sprintf("%d - %d", age-(ageBandSize-1), age)
			out = append(out, facet.Bucket{Key: facet.StringKey(label), Value: cum})
			cum = 0
		}
		if i == len(h)-1 {
			label := strconv.FormatFloat(b.Key.Num(), 'f', -1, 64) + " + "
			out = append(out, facet.Bucket{Key: facet.StringKey(label), Value: cum})
		}
	}
	return out
}

// riskBands folds risk scores into bands at riskCutoffs. Whenever a key
// crosses one or more cutoffs, the counts gathered so far close as
// "<= c" where c is the highest cutoff already reached (the first cutoff if
// none was). The remainder closes as "> c" for the highest cutoff reached.
func riskBands(h facet.Histogram) facet.Histogram {
	var out facet.Histogram
	cum, last := 0, 0
	for _, b := range h {
		n := cutoffsReached(b.Key.Num())
		if n > last {
			out = append(out, facet.Bucket{Key: facet.StringKey("<= " + strconv.Itoa(riskCutoffs[max(last, 1)-1])), Value: cum})
			cum = b.Value
		} else {
			cum += b.Value
		}
		last = n
	}
	if len(h) > 0 {
		label := "<= " + strconv.Itoa(riskCutoffs[0])
		if last > 0 {
			label = "> " + strconv.Itoa(riskCutoffs[last-1])
		}
		out = append(out, facet.Bucket{Key: facet.StringKey(label), Value: cum})
	}
	return out
}

func cutoffsReached(score float64) int {
	n := 0
	for _, c := range riskCutoffs {
		if float64(c) <= score {
			n++
		}
	}
	return n
}
