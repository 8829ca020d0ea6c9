package ensemble

import (
	"fmt"

	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/placeholder"
)

// Transform assembles the dense feature matrix spec §4.6 describes:
// for every learned Feature, rebuild its match set against the given
// frames, ask the tree for its numerical output column, and append it.
// Safe for concurrent use - e is never mutated after Fit returns.
func (e *Ensemble) Transform(pop *frame.DataFrame, peripherals map[string]*frame.DataFrame) (*frame.DataFrame, error) {
	out := frame.New(pop.Name + "_features")

	for _, feature := range e.Features {
		perip, ok := peripherals[feature.Peripheral]
		if !ok {
			return nil, errs.InvalidInput.New("ensemble: no peripheral frame for %q", feature.Peripheral)
		}
		child := findChild(e.Placeholder, feature.Peripheral)
		if child == nil {
			return nil, errs.InvalidInput.New("ensemble: placeholder has no child %q", feature.Peripheral)
		}

		matches, err := match.Build(pop, perip, child, nil)
		if err != nil {
			return nil, err
		}

		subfeatureColumns, err := e.evalSubfeatures(perip, peripherals, child)
		if err != nil {
			return nil, err
		}

		sources, _, err := buildSources(pop, perip, matches.Slice(), subfeatureColumns)
		if err != nil {
			return nil, err
		}

		values := feature.Tree.Transform(feature.Kind, pop.NRows(), matches.Slice(), sources)
		name := fmt.Sprintf("%s__%s__%s", feature.Peripheral, feature.Kind, feature.ValueCol)
		if err := out.AddColumn(frame.NewFloatColumn(name, frame.RoleNumerical, frame.Float64, values)); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// evalSubfeatures recomputes e.Subfeatures[child.Name] against perip and
// its own children, in the same shape buildSources expects at fit time.
func (e *Ensemble) evalSubfeatures(perip *frame.DataFrame, peripherals map[string]*frame.DataFrame, child *placeholder.Placeholder) (map[string][]float64, error) {
	subs, ok := e.Subfeatures[child.Name]
	if !ok {
		return nil, nil
	}
	return evalSubfeatureColumns(perip, peripherals, child, subs)
}
