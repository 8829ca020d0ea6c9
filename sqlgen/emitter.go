package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relboost/relboost/ensemble"
)

// Plan is the full sequence of statements ToSQL emits for one fitted
// Ensemble, in execution order, per spec §4.9.
type Plan struct {
	Statements []Statement
}

// String concatenates every statement's SQL, blank-line separated -
// the form a CLI or file-export path would write out.
func (p Plan) String() string {
	parts := make([]string, len(p.Statements))
	for i, s := range p.Statements {
		parts[i] = "-- " + s.Label + "\n" + s.SQL
	}
	return strings.Join(parts, "\n\n")
}

// ToSQL renders a fitted ensemble as a self-contained SQL script:
// staging DDL and indexes for the population table plus every
// peripheral a feature reads from, one CTE per feature mirroring its
// committed tree, and a final FEATURES table joining them all by the
// population join key - the spec §4.9 contract.
func ToSQL(d Dialect, pop Schema, peripherals map[string]Schema, e *ensemble.Ensemble) (Plan, error) {
	var plan Plan

	plan.Statements = append(plan.Statements, StagingTableDDL(d, pop))
	plan.Statements = append(plan.Statements, CreateIndices(d, pop)...)
	for _, s := range peripherals {
		plan.Statements = append(plan.Statements, StagingTableDDL(d, s))
		plan.Statements = append(plan.Statements, CreateIndices(d, s)...)
	}

	popJoinKey := "id"
	if len(pop.JoinKeys) > 0 {
		popJoinKey = pop.JoinKeys[0]
	}

	cteNames := make([]string, 0, len(e.Features))
	outputCols := make([]string, 0, len(e.Features))

	var ctes []string
	for i, f := range e.Features {
		cteName := fmt.Sprintf("feature_%d", i)
		outputCol := featureName(f, i)

		stmt, err := FeatureCTE(d, "p", popJoinKey, f, cteName, outputCol)
		if err != nil {
			return Plan{}, err
		}
		ctes = append(ctes, stmt.SQL)
		cteNames = append(cteNames, cteName)
		outputCols = append(outputCols, outputCol)
	}

	var b strings.Builder
	b.WriteString("WITH ")
	b.WriteString(strings.Join(ctes, ",\n"))
	b.WriteString("\nSELECT ")
	b.WriteString(d.Quote("p") + "." + d.Quote(popJoinKey))
	for i, col := range outputCols {
		fmt.Fprintf(&b, ",\n  %s.%s AS %s", d.Quote(cteNames[i]), d.Quote(col), d.Quote(col))
	}
	fmt.Fprintf(&b, "\nFROM %s AS %s\n", d.Quote(pop.TableName), d.Quote("p"))
	for i, name := range cteNames {
		fmt.Fprintf(&b, "LEFT JOIN %s ON %s.%s = %s.%s\n",
			d.Quote(name), d.Quote(name), d.Quote("rowid"), d.Quote("p"), d.Quote(popJoinKey))
		_ = i
	}
	b.WriteString(";")

	plan.Statements = append(plan.Statements, Statement{Label: "features", SQL: b.String()})
	return plan, nil
}

// featureName derives the FEATURES table column name for feature i,
// mirroring SQLite3Generator.cpp's demangle_colname convention of
// combining aggregation kind, value column and peripheral name.
func featureName(f ensemble.Feature, i int) string {
	parts := []string{f.Kind.String(), f.Peripheral}
	if f.ValueCol != "" {
		parts = append(parts, f.ValueCol)
	}
	parts = append(parts, strconv.Itoa(i))
	return strings.Join(parts, "__")
}
