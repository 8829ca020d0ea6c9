package fastprop

import (
	"math"
	"strings"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
)

// compiled is an AbstractFeature with its column references resolved
// once against a given (population, peripheral) pair, grounded on
// Aggregator::apply_aggregation's per-call column lookups hoisted out
// of the per-row loop.
type compiled struct {
	af       AbstractFeature
	input    *frame.Column // nil when InputCol == "" (plain COUNT) or DataUsed == Subfeature
	popCol   *frame.Column // SameUnit only
	peripTS  *frame.Column
	popTS    *frame.Column
	condCols []*frame.Column
	vocab    *Vocabulary // Text only
}

// Compile resolves every AbstractFeature in catalog against pop/perip,
// so Transform fails fast on a bad catalog entry instead of partway
// through evaluating rows.
func Compile(pop, perip *frame.DataFrame, catalog []AbstractFeature) ([]*compiled, error) {
	out := make([]*compiled, len(catalog))
	for i, af := range catalog {
		c := &compiled{af: af}

		if af.InputCol != "" && af.DataUsed != Subfeature {
			col, err := perip.Column(af.InputCol)
			if err != nil {
				return nil, err
			}
			c.input = col
		}

		if af.DataUsed == SameUnit {
			col, err := pop.Column(af.PopulationCol)
			if err != nil {
				return nil, err
			}
			c.popCol = col
		}

		if af.DataUsed == TimeWindow || af.Aggregation.ConsumesPairs() || af.Aggregation == aggregation.AvgTimeBetween {
			if cols := perip.ColumnsByRole(frame.RoleTimeStamp); len(cols) > 0 {
				c.peripTS = cols[0]
			}
			if cols := pop.ColumnsByRole(frame.RoleTimeStamp); len(cols) > 0 {
				c.popTS = cols[0]
			}
		}

		if af.DataUsed == Text {
			c.vocab = NewVocabulary()
		}

		for _, cond := range af.Conditions {
			col, err := perip.Column(cond.ColumnName)
			if err != nil {
				return nil, err
			}
			c.condCols = append(c.condCols, col)
		}

		out[i] = c
	}
	return out, nil
}

// Transform evaluates every compiled feature in the catalog over every
// population row's matches (spec §4.8's non-boosted path), producing
// one dense column per feature.
func Transform(pop *frame.DataFrame, matches []match.Match, subfeatureValues map[string][]float64, catalog []*compiled) (*frame.DataFrame, error) {
	groups := groupByOutput(matches, pop.NRows())

	values := make([][]float64, len(catalog))
	for i := range catalog {
		values[i] = make([]float64, pop.NRows())
	}

	memo := NewMemoization()
	for ixOutput, rowMatches := range groups {
		memo.Reset()
		for fi, c := range catalog {
			v, err := c.apply(ixOutput, rowMatches, subfeatureValues, memo)
			if err != nil {
				return nil, err
			}
			values[fi][ixOutput] = v
		}
	}

	out := frame.New(pop.Name + "_fastprop")
	for i, c := range catalog {
		if err := out.AddColumn(frame.NewFloatColumn(c.af.OutputCol, frame.RoleNumerical, frame.Float64, values[i])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// groupByOutput splits matches (already sorted by IxOutput, per package
// match's Build) into nRows contiguous sub-slices, one per population row.
func groupByOutput(matches []match.Match, nRows int) [][]match.Match {
	groups := make([][]match.Match, nRows)
	start := 0
	for start < len(matches) {
		ix := matches[start].IxOutput
		end := start + 1
		for end < len(matches) && matches[end].IxOutput == ix {
			end++
		}
		if int(ix) < nRows {
			groups[ix] = matches[start:end]
		}
		start = end
	}
	return groups
}

func (c *compiled) apply(ixOutput int, matches []match.Match, subfeatureValues map[string][]float64, memo *Memoization) (float64, error) {
	switch c.af.DataUsed {
	case Subfeature:
		vals, ok := subfeatureValues[c.af.InputCol]
		if !ok {
			return 0, errs.InvalidInput.New("fastprop: no subfeature column %q", c.af.InputCol)
		}
		if ixOutput >= len(vals) {
			return 0, nil
		}
		return vals[ixOutput], nil
	case Text:
		return c.applyText(matches), nil
	case Categorical:
		return c.applyCategorical(matches, memo), nil
	default:
		if c.af.Aggregation == aggregation.AvgTimeBetween {
			return c.applyAvgTimeBetween(ixOutput, matches, memo), nil
		}
		if c.af.Aggregation.ConsumesPairs() {
			return c.applyPairs(ixOutput, matches, memo), nil
		}
		return c.applyNumerical(ixOutput, matches, memo), nil
	}
}

func (c *compiled) conditionsPass(m match.Match) bool {
	for i, cond := range c.af.Conditions {
		col := c.condCols[i]
		if cond.Categorical {
			if col.Ints[m.IxInput] != cond.Category {
				return false
			}
			continue
		}
		v := columnValue(col, int(m.IxInput))
		if cond.Greater && !(v > cond.Threshold) {
			return false
		}
		if !cond.Greater && !(v <= cond.Threshold) {
			return false
		}
	}
	return true
}

func columnValue(col *frame.Column, row int) float64 {
	switch col.Kind {
	case frame.Int32, frame.CategoryID:
		return float64(col.Ints[row])
	default:
		return col.Floats[row]
	}
}

func (c *compiled) extractValue(ixOutput int, m match.Match) float64 {
	switch c.af.DataUsed {
	case SameUnit:
		return columnValue(c.input, int(m.IxInput)) - columnValue(c.popCol, ixOutput)
	case TimeWindow:
		if c.popTS == nil || c.peripTS == nil {
			return math.NaN()
		}
		return c.popTS.Floats[ixOutput] - c.peripTS.Floats[m.IxInput]
	default:
		if c.input == nil {
			return 1 // plain COUNT: every match contributes one unit
		}
		return columnValue(c.input, int(m.IxInput))
	}
}

func (c *compiled) applyNumerical(ixOutput int, matches []match.Match, memo *Memoization) float64 {
	vals := memo.memorizeNumerical(c.af, func() []float64 {
		out := make([]float64, 0, len(matches))
		for _, m := range matches {
			if !c.conditionsPass(m) {
				continue
			}
			v := c.extractValue(ixOutput, m)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out = append(out, v)
		}
		return out
	})

	if c.af.Aggregation.IsLinear() {
		return aggregateLinear(vals, c.af.Aggregation)
	}

	ds := aggregation.NewDescriptiveState(c.af.Aggregation, c.af.Param)
	samples := make([]aggregation.Sample, len(vals))
	for i, v := range vals {
		samples[i] = aggregation.Sample{Ix: 0, InIx: uint32(i), Value: v}
	}
	ds.CalcAll(samples)
	return ds.Output(0)
}

func aggregateLinear(vals []float64, kind aggregation.Kind) float64 {
	switch kind {
	case aggregation.Count:
		return float64(len(vals))
	case aggregation.Sum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s
	case aggregation.Avg:
		if len(vals) == 0 {
			return 0
		}
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	default:
		return 0
	}
}

// applyAvgTimeBetween mirrors Aggregator::calc_avg_time_between: the
// average spacing between the peripheral-side time stamps of the
// matches surviving this feature's conditions.
func (c *compiled) applyAvgTimeBetween(ixOutput int, matches []match.Match, memo *Memoization) float64 {
	if c.peripTS == nil {
		return 0
	}
	vals := memo.memorizeNumerical(c.af, func() []float64 {
		out := make([]float64, 0, len(matches))
		for _, m := range matches {
			if !c.conditionsPass(m) {
				continue
			}
			ts := c.peripTS.Floats[m.IxInput]
			if math.IsNaN(ts) || math.IsInf(ts, 0) {
				continue
			}
			out = append(out, ts)
		}
		return out
	})
	if len(vals) <= 1 {
		return 0
	}
	min, max := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return (max - min) / float64(len(vals)-1)
}

// applyPairs handles the first/last family: (timestamp, value) pairs,
// rebased to ts_output - ts_input for every kind but First/Last, per
// Aggregator::apply_first_last.
func (c *compiled) applyPairs(ixOutput int, matches []match.Match, memo *Memoization) float64 {
	pairs := memo.memorizePairs(c.af, func() []pair {
		out := make([]pair, 0, len(matches))
		for _, m := range matches {
			if !c.conditionsPass(m) {
				continue
			}
			v := c.extractValue(ixOutput, m)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			ts := math.NaN()
			if c.peripTS != nil {
				ts = c.peripTS.Floats[m.IxInput]
			}
			out = append(out, pair{TS: ts, Value: v})
		}
		return out
	})

	rebased := pairs
	if c.af.Aggregation != aggregation.First && c.af.Aggregation != aggregation.Last && c.popTS != nil {
		outTS := c.popTS.Floats[ixOutput]
		rebased = make([]pair, len(pairs))
		for i, p := range pairs {
			rebased[i] = pair{TS: outTS - p.TS, Value: p.Value}
		}
	}

	ds := aggregation.NewDescriptiveState(c.af.Aggregation, c.af.Param)
	samples := make([]aggregation.Sample, len(rebased))
	for i, p := range rebased {
		samples[i] = aggregation.Sample{Ix: 0, InIx: uint32(i), Value: p.Value, TS: p.TS}
	}
	ds.CalcAll(samples)
	return ds.Output(0)
}

// applyCategorical handles COUNT DISTINCT / COUNT MINUS COUNT DISTINCT
// over a categorical column, or (when CategoricalValue >= 0) a count of
// matches whose category equals that value, per
// Aggregator::aggregate_categorical_range / apply_categorical.
func (c *compiled) applyCategorical(matches []match.Match, memo *Memoization) float64 {
	codes := memo.memorizeNumerical(c.af, func() []float64 {
		out := make([]float64, 0, len(matches))
		for _, m := range matches {
			if !c.conditionsPass(m) {
				continue
			}
			code := c.input.Ints[m.IxInput]
			if code < 0 {
				continue
			}
			out = append(out, float64(code))
		}
		return out
	})

	if c.af.CategoricalValue >= 0 {
		var n float64
		for _, v := range codes {
			if int32(v) == c.af.CategoricalValue {
				n++
			}
		}
		return n
	}

	seen := map[int32]bool{}
	for _, v := range codes {
		seen[int32(v)] = true
	}
	switch c.af.Aggregation {
	case aggregation.CountDistinct:
		return float64(len(seen))
	case aggregation.CountMinusCountDistinct:
		return float64(len(codes) - len(seen))
	default:
		return float64(len(codes))
	}
}

// applyText tokenizes the peripheral text column for each surviving
// match and aggregates word counts - COUNT DISTINCT gives the vocabulary
// size, COUNT the total token count, per spec §4.8's "word-count-based
// aggregators".
func (c *compiled) applyText(matches []match.Match) float64 {
	seen := map[int32]bool{}
	total := 0
	for _, m := range matches {
		if !c.conditionsPass(m) {
			continue
		}
		for _, tok := range c.input.Strings[m.IxInput] {
			code := c.vocab.code(strings.ToLower(tok))
			seen[code] = true
			total++
		}
	}
	switch c.af.Aggregation {
	case aggregation.CountDistinct:
		return float64(len(seen))
	default:
		return float64(total)
	}
}
