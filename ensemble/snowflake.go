package ensemble

import (
	"math"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/placeholder"
)

// Subfeature is a fixed {avg, sum} aggregate computed directly over a
// snowflake peripheral's own children (spec §4.6): unlike a boosted
// Feature, it carries no learned weight - it recomputes the same
// deterministic aggregation.State aggregation at fit and transform
// time, and exists purely to hand the outer ensemble an extra numeric
// input column (tree.Subfeature, spec §4.5 GLOSSARY).
type Subfeature struct {
	Peripheral string
	ValueCol   string // "" means "count of matches" (no value column needed)
	Kind       aggregation.Kind
}

// fitSubfeatures discovers, for each grandchild of node, a representative
// numeric value column and records the {avg, sum} subfeature pair. There
// is nothing to "fit" beyond that choice: Subfeature.Transform recomputes
// the aggregation from scratch against whatever frames it is given.
func fitSubfeatures(node *frame.DataFrame, peripherals map[string]*frame.DataFrame, parent *placeholder.Placeholder) ([]Subfeature, error) {
	var out []Subfeature
	for _, grandchild := range parent.Children {
		perip, ok := peripherals[grandchild.Name]
		if !ok {
			continue
		}
		matches, err := match.Build(node, perip, grandchild, nil)
		if err != nil {
			return nil, err
		}
		_, numericValues, err := buildSources(node, perip, matches.Slice(), nil)
		if err != nil {
			return nil, err
		}

		valueCol := ""
		for name := range numericValues {
			valueCol = name
			break
		}

		for _, kind := range snowflakeKinds {
			out = append(out, Subfeature{Peripheral: grandchild.Name, ValueCol: valueCol, Kind: kind})
		}
	}
	return out, nil
}

// evalSubfeatureColumns recomputes every subfeature in subs against
// node (their shared population frame) and its own peripherals,
// keyed the way buildSources expects for projection onto matches.
func evalSubfeatureColumns(node *frame.DataFrame, peripherals map[string]*frame.DataFrame, parent *placeholder.Placeholder, subs []Subfeature) (map[string][]float64, error) {
	out := make(map[string][]float64, len(subs))
	for _, sf := range subs {
		grandchild := findChild(parent, sf.Peripheral)
		grandPerip := peripherals[sf.Peripheral]
		if grandchild == nil || grandPerip == nil {
			continue
		}
		values, err := sf.Transform(node, grandPerip, grandchild)
		if err != nil {
			return nil, err
		}
		out[sf.Peripheral+"."+sf.Kind.String()] = values
	}
	return out, nil
}

// Transform recomputes s against the given population/peripheral
// frames, returning one value per population row.
func (s Subfeature) Transform(pop, perip *frame.DataFrame, node *placeholder.Placeholder) ([]float64, error) {
	matches, err := match.Build(pop, perip, node, nil)
	if err != nil {
		return nil, err
	}

	var valueCol *frame.Column
	if s.ValueCol != "" {
		valueCol, err = perip.Column(s.ValueCol)
		if err != nil {
			return nil, err
		}
	}

	samples := make([]aggregation.Sample, matches.Len())
	for i := 0; i < matches.Len(); i++ {
		m := matches.At(i)
		v := 1.0
		if valueCol != nil {
			if valueCol.Kind == frame.Int32 {
				v = float64(valueCol.Ints[m.IxInput])
			} else {
				v = valueCol.Floats[m.IxInput]
			}
		}
		samples[i] = aggregation.Sample{Ix: m.IxOutput, InIx: m.IxInput, Value: v}
	}

	state := aggregation.NewState(s.Kind, pop.NRows(), false)
	if err := state.CalcAll(aggregation.Forward, math.NaN(), samples, nil); err != nil {
		return nil, err
	}

	out := make([]float64, pop.NRows())
	for ix := range out {
		out[ix] = state.Output(uint32(ix))
	}
	return out, nil
}
