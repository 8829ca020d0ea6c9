package ensemble

import (
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/tree"
)

// buildSources projects every population and peripheral column relevant
// to split search onto the dense per-match arrays tree.ColumnSource
// needs, aligned position-for-position with matches. numericValues
// holds one entry per peripheral numerical column, keyed by name - the
// candidate pool drawn from when the outer loop's "random root-column
// pick" (spec §4.6) chooses which column a tree aggregates.
// subfeatureColumns maps a subfeature's display name to its values,
// aligned one-per-row of perip (not one-per-match) - buildSources
// projects them onto matches the same way it does an ordinary
// peripheral numerical column.
func buildSources(pop, perip *frame.DataFrame, matches []match.Match, subfeatureColumns map[string][]float64) (sources []tree.ColumnSource, numericValues map[string][]float64, err error) {
	numericValues = make(map[string][]float64)

	project := func(col *frame.Column, fromPopulation bool) error {
		switch col.Role {
		case frame.RoleNumerical, frame.RoleDiscrete:
			values := make([]float64, len(matches))
			for i, m := range matches {
				idx := int(m.IxInput)
				if fromPopulation {
					idx = int(m.IxOutput)
				}
				if col.Kind == frame.Int32 {
					values[i] = float64(col.Ints[idx])
				} else {
					values[i] = col.Floats[idx]
				}
			}
			used := tree.PeripheralNumerical
			if fromPopulation {
				used = tree.PopulationNumerical
			} else if col.Role == frame.RoleDiscrete {
				used = tree.PeripheralDiscrete
			}
			sources = append(sources, tree.ColumnSource{DataUsed: used, Name: col.Name, Values: values})
			if !fromPopulation {
				numericValues[col.Name] = values
			}
		case frame.RoleCategorial:
			cats := make([]int32, len(matches))
			for i, m := range matches {
				idx := int(m.IxInput)
				if fromPopulation {
					idx = int(m.IxOutput)
				}
				cats[i] = col.Ints[idx]
			}
			used := tree.PeripheralCategorical
			if fromPopulation {
				used = tree.PopulationCategorical
			}
			sources = append(sources, tree.ColumnSource{DataUsed: used, Name: col.Name, Categories: cats})
		}
		return nil
	}

	for _, col := range perip.Columns() {
		if err := project(col, false); err != nil {
			return nil, nil, err
		}
	}
	for _, col := range pop.Columns() {
		if err := project(col, true); err != nil {
			return nil, nil, err
		}
	}

	// Same-unit columns: a peripheral numerical column whose Unit matches
	// a population numerical column's Unit is also exposed tagged
	// tree.SameUnit under "<col>#same_unit". The source carries the
	// peripheral values only; no population value enters the condition.
	popUnits := make(map[string]bool)
	for _, col := range pop.Columns() {
		if col.Role == frame.RoleNumerical && col.Unit != "" {
			popUnits[col.Unit] = true
		}
	}
	for _, col := range perip.Columns() {
		if col.Role == frame.RoleNumerical && col.Unit != "" && popUnits[col.Unit] {
			values := numericValues[col.Name]
			if values != nil {
				sources = append(sources, tree.ColumnSource{DataUsed: tree.SameUnit, Name: col.Name + "#same_unit", Values: values})
			}
		}
	}

	for name, perRow := range subfeatureColumns {
		values := make([]float64, len(matches))
		for i, m := range matches {
			values[i] = perRow[m.IxInput]
		}
		sources = append(sources, tree.ColumnSource{DataUsed: tree.Subfeature, Name: name, Values: values})
		numericValues[name] = values
	}

	return sources, numericValues, nil
}
