package aggregation

import (
	"math"
	"sort"
)

// DescriptiveState covers every aggregation kind outside the linear
// family (Min, Max, quantiles, Stddev/Var/Skew/Kurtosis, Mode,
// CountDistinct, First/Last, EWMA/EWMATrend, TimeSince*, Trend).
//
// It offers the same CalcAll/CalcDiff/Revert/Commit transition
// vocabulary as State, but - unlike State - it is not O(1) per sample:
// order statistics and distribution moments cannot be folded into a
// single committed scalar weight the way Count/Sum/Avg can, so each
// Output() recomputes from the currently active raw sample set. This
// is a deliberate, documented scope reduction from spec §4.4's "every
// supported aggregation... single-sample incremental cost" for the
// non-linear kinds; see DESIGN.md.
type DescriptiveState struct {
	Kind  Kind
	Param float64

	// committed[outIx][inIx] holds every sample permanently folded in by
	// an ancestor split's commit; active[outIx][inIx] holds the
	// candidate-only samples for the split currently being evaluated.
	committed map[uint32]map[uint32]Sample
	active    map[uint32]map[uint32]Sample

	lastDelta  []Sample // the samples added/removed by the most recent CalcDiff, for Revert
	lastWasAdd bool
}

// NewDescriptiveState allocates an empty DescriptiveState for kind.
func NewDescriptiveState(kind Kind, param float64) *DescriptiveState {
	return &DescriptiveState{
		Kind:      kind,
		Param:     param,
		committed: make(map[uint32]map[uint32]Sample),
		active:    make(map[uint32]map[uint32]Sample),
	}
}

// CalcAll replaces the active set with the given samples.
// DescriptiveState does not distinguish sides internally: Output()
// covers every active sample of an output row.
func (d *DescriptiveState) CalcAll(samples []Sample) {
	d.active = make(map[uint32]map[uint32]Sample, len(samples))
	for _, sm := range samples {
		d.add(d.active, sm)
	}
}

// CalcDiff adds (Forward) or removes (Undo) delta from the active set.
func (d *DescriptiveState) CalcDiff(revert Revert, delta []Sample) {
	d.lastDelta = append([]Sample(nil), delta...)
	d.lastWasAdd = revert == Forward
	for _, sm := range delta {
		if d.lastWasAdd {
			d.add(d.active, sm)
		} else {
			d.remove(d.active, sm)
		}
	}
}

// Revert undoes the most recent CalcDiff.
func (d *DescriptiveState) Revert() {
	for _, sm := range d.lastDelta {
		if d.lastWasAdd {
			d.remove(d.active, sm)
		} else {
			d.add(d.active, sm)
		}
	}
	d.lastDelta = nil
}

// Commit folds the active set permanently into committed and clears it.
func (d *DescriptiveState) Commit() {
	for outIx, byIn := range d.active {
		dst, ok := d.committed[outIx]
		if !ok {
			dst = make(map[uint32]Sample, len(byIn))
			d.committed[outIx] = dst
		}
		for inIx, sm := range byIn {
			dst[inIx] = sm
		}
	}
	d.active = make(map[uint32]map[uint32]Sample)
}

func (d *DescriptiveState) add(dst map[uint32]map[uint32]Sample, sm Sample) {
	byIn, ok := dst[sm.Ix]
	if !ok {
		byIn = make(map[uint32]Sample)
		dst[sm.Ix] = byIn
	}
	byIn[sm.InIx] = sm
}

func (d *DescriptiveState) remove(dst map[uint32]map[uint32]Sample, sm Sample) {
	if byIn, ok := dst[sm.Ix]; ok {
		delete(byIn, sm.InIx)
	}
}

// values returns the committed+active samples for an output row, values
// only, unsorted.
func (d *DescriptiveState) values(outIx uint32) []float64 {
	var out []float64
	if byIn, ok := d.committed[outIx]; ok {
		for _, sm := range byIn {
			out = append(out, sm.Value)
		}
	}
	if byIn, ok := d.active[outIx]; ok {
		for _, sm := range byIn {
			out = append(out, sm.Value)
		}
	}
	return out
}

func (d *DescriptiveState) pairs(outIx uint32) []Sample {
	var out []Sample
	if byIn, ok := d.committed[outIx]; ok {
		for _, sm := range byIn {
			out = append(out, sm)
		}
	}
	if byIn, ok := d.active[outIx]; ok {
		for _, sm := range byIn {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

// Output evaluates the aggregation over the current committed+active
// sample set for one output row. Undefined results map to 0.0 for
// count-like kinds, to a filtered-out NaN for min/max/quantile per
// spec §4.4.
func (d *DescriptiveState) Output(outIx uint32) float64 {
	switch d.Kind {
	case CountDistinct:
		seen := map[float64]bool{}
		for _, v := range d.values(outIx) {
			seen[v] = true
		}
		return float64(len(seen))
	case CountMinusCountDistinct:
		vals := d.values(outIx)
		seen := map[float64]bool{}
		for _, v := range vals {
			seen[v] = true
		}
		return float64(len(vals) - len(seen))
	case Min:
		vals := filterFinite(d.values(outIx))
		if len(vals) == 0 {
			return math.NaN()
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case Max:
		vals := filterFinite(d.values(outIx))
		if len(vals) == 0 {
			return math.NaN()
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case Median:
		return quantile(filterFinite(d.values(outIx)), 50)
	case Quantile:
		return quantile(filterFinite(d.values(outIx)), d.Param)
	case NumMax:
		vals := filterFinite(d.values(outIx))
		if len(vals) == 0 {
			return 0
		}
		m := vals[0]
		for _, v := range vals {
			if v > m {
				m = v
			}
		}
		n := 0.0
		for _, v := range vals {
			if v == m {
				n++
			}
		}
		return n
	case NumMin:
		vals := filterFinite(d.values(outIx))
		if len(vals) == 0 {
			return 0
		}
		m := vals[0]
		for _, v := range vals {
			if v < m {
				m = v
			}
		}
		n := 0.0
		for _, v := range vals {
			if v == m {
				n++
			}
		}
		return n
	case Mode:
		vals := d.values(outIx)
		counts := map[float64]int{}
		for _, v := range vals {
			counts[v]++
		}
		var best float64
		bestN := -1
		// deterministic: break ties by lowest value.
		keys := make([]float64, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Float64s(keys)
		for _, k := range keys {
			if counts[k] > bestN {
				bestN = counts[k]
				best = k
			}
		}
		return best
	case Stddev:
		return math.Sqrt(variance(d.values(outIx)))
	case Var:
		return variance(d.values(outIx))
	case VariationCoefficient:
		vals := d.values(outIx)
		mean := meanOf(vals)
		if mean == 0 {
			return 0
		}
		return math.Sqrt(variance(vals)) / mean
	case Skew:
		return skewness(d.values(outIx))
	case Kurtosis:
		return kurtosis(d.values(outIx))
	case First:
		pairs := d.pairs(outIx)
		if len(pairs) == 0 {
			return 0
		}
		return pairs[0].Value
	case Last:
		pairs := d.pairs(outIx)
		if len(pairs) == 0 {
			return 0
		}
		return pairs[len(pairs)-1].Value
	case EWMA:
		return ewma(d.pairs(outIx), d.Param, false)
	case EWMATrend:
		return ewma(d.pairs(outIx), d.Param, true)
	case TimeSinceFirstMinimum:
		return timeSinceExtremum(d.pairs(outIx), true, true)
	case TimeSinceFirstMaximum:
		return timeSinceExtremum(d.pairs(outIx), true, false)
	case TimeSinceLastMinimum:
		return timeSinceExtremum(d.pairs(outIx), false, true)
	case TimeSinceLastMaximum:
		return timeSinceExtremum(d.pairs(outIx), false, false)
	case Trend:
		return trend(d.pairs(outIx))
	default:
		return 0
	}
}

func filterFinite(vals []float64) []float64 {
	out := vals[:0:0]
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// quantile uses linear interpolation of the two order statistics
// straddling (n-1)*p/100, per spec §4.4.
func quantile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := (float64(len(sorted) - 1)) * p / 100
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

func variance(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	mean := meanOf(vals)
	var s float64
	for _, v := range vals {
		d := v - mean
		s += d * d
	}
	return s / float64(len(vals))
}

func skewness(vals []float64) float64 {
	n := float64(len(vals))
	if n == 0 {
		return 0
	}
	mean := meanOf(vals)
	sd := math.Sqrt(variance(vals))
	if sd == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		s += math.Pow((v-mean)/sd, 3)
	}
	return s / n
}

func kurtosis(vals []float64) float64 {
	n := float64(len(vals))
	if n == 0 {
		return 0
	}
	mean := meanOf(vals)
	sd := math.Sqrt(variance(vals))
	if sd == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		s += math.Pow((v-mean)/sd, 4)
	}
	return s/n - 3
}

// ewma computes the exponentially time-weighted moving average (or, if
// trend is true, its linear trend) of value against the time
// difference from the most recent sample, using halfLife seconds.
func ewma(pairs []Sample, halfLife float64, trend bool) float64 {
	if len(pairs) == 0 || halfLife <= 0 {
		return 0
	}
	latest := pairs[len(pairs)-1].TS
	lambda := math.Ln2 / halfLife

	var sumW, sumWV, sumWT, sumWTV, sumWT2 float64
	for _, p := range pairs {
		age := latest - p.TS
		w := math.Exp(-lambda * age)
		sumW += w
		sumWV += w * p.Value
		if trend {
			sumWT += w * age
			sumWTV += w * age * p.Value
			sumWT2 += w * age * age
		}
	}
	if sumW == 0 {
		return 0
	}
	if !trend {
		return sumWV / sumW
	}
	// weighted linear regression slope of value on (negative) age.
	denom := sumW*sumWT2 - sumWT*sumWT
	if denom == 0 {
		return 0
	}
	slope := (sumW*sumWTV - sumWT*sumWV) / denom
	return -slope
}

// timeSinceExtremum returns the time elapsed between the most recent
// sample and the first (or last) occurrence, in TS order, of the
// minimum (or maximum) value among pairs, which is assumed sorted by
// TS ascending.
func timeSinceExtremum(pairs []Sample, first, minimum bool) float64 {
	if len(pairs) == 0 {
		return 0
	}
	extreme := pairs[0].Value
	for _, p := range pairs[1:] {
		if minimum && p.Value < extreme {
			extreme = p.Value
		}
		if !minimum && p.Value > extreme {
			extreme = p.Value
		}
	}

	var at float64
	found := false
	for _, p := range pairs {
		if p.Value == extreme {
			if !found {
				at = p.TS
				found = true
			}
			if !first {
				at = p.TS
			}
		}
	}

	latest := pairs[len(pairs)-1].TS
	return latest - at
}

func trend(pairs []Sample) float64 {
	n := float64(len(pairs))
	if n < 2 {
		return 0
	}
	var sumT, sumV, sumTV, sumT2 float64
	for _, p := range pairs {
		sumT += p.TS
		sumV += p.Value
		sumTV += p.TS * p.Value
		sumT2 += p.TS * p.TS
	}
	denom := n*sumT2 - sumT*sumT
	if denom == 0 {
		return 0
	}
	return (n*sumTV - sumT*sumV) / denom
}
