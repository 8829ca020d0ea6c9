package sqlgen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/tree"
)

// Statement is one emitted DDL/DML statement, grouped so callers can
// log or execute them in order.
type Statement struct {
	Label string // human-readable purpose, e.g. "staging:orders"
	SQL   string
}

// Schema is the minimal per-table shape the emitter needs: the column
// names/kinds a CREATE TABLE and its indexes are built from. Deliberately
// narrower than frame.DataFrame so this package has no import-time
// dependency on how the source frame was populated.
type Schema struct {
	TableName  string
	Columns    []ColumnDef
	JoinKeys   []string
	TimeStamps []string
}

// ColumnDef names one staging-table column and its SQL type.
type ColumnDef struct {
	Name string
	SQL  string // e.g. "DOUBLE PRECISION", "BIGINT", "TEXT"
}

// StagingTableDDL emits the CREATE TABLE statement spec §4.9 requires
// per peripheral/population frame: columns cast to their SQL type,
// time stamps rebased to epoch seconds by the ingestion side (this
// emitter only declares the column, per SQLite3Generator.cpp's
// create_table), grounded on SQLite3Generator.cpp's demangle_colname
// and column-type dispatch.
func StagingTableDDL(d Dialect, s Schema) Statement {
	var b strings.Builder
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", d.Quote(s.TableName))
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", d.Quote(s.TableName))
	for i, c := range s.Columns {
		comma := ","
		if i == len(s.Columns)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "  %s %s%s\n", d.Quote(c.Name), c.SQL, comma)
	}
	b.WriteString(");")
	return Statement{Label: "staging:" + s.TableName, SQL: b.String()}
}

// CreateIndices emits one DROP INDEX IF EXISTS + CREATE INDEX pair per
// join-key and time-stamp column, per SQLite3Generator::create_indices.
func CreateIndices(d Dialect, s Schema) []Statement {
	var out []Statement
	emit := func(col string) {
		name := s.TableName + "__" + col
		sql := fmt.Sprintf("DROP INDEX IF EXISTS %s;\nCREATE INDEX %s ON %s (%s);",
			d.Quote(name), d.Quote(name), d.Quote(s.TableName), d.Quote(col))
		out = append(out, Statement{Label: "index:" + name, SQL: sql})
	}
	for _, c := range s.JoinKeys {
		emit(c)
	}
	for _, c := range s.TimeStamps {
		emit(c)
	}
	return out
}

// FeatureCTE emits one common-table expression per Feature: a per-row
// CASE expression walking the committed split tree down to a leaf
// weight, aggregated by the feature's Kind and grouped by the
// population join key - the SQL equivalent of Tree.Transform, grounded
// on SQLMaker.cpp's condition_greater/condition_smaller plus the final
// aggregation() wrapper in SQLite3Generator.cpp.
func FeatureCTE(d Dialect, popAlias, popJoinKey string, f ensemble.Feature, cteName, outputCol string) (Statement, error) {
	t := f.Tree
	if t == nil || len(t.Nodes) == 0 {
		return Statement{}, errs.InvalidInput.New("sqlgen: feature has no tree")
	}

	expr, err := leafExpr(d, t, t.Root, f.Peripheral)
	if err != nil {
		return Statement{}, err
	}

	agg := aggregationSQL(f.Kind, "t."+d.Quote("__leaf_weight"))

	var b strings.Builder
	fmt.Fprintf(&b, "%s AS (\n", d.Quote(cteName))
	fmt.Fprintf(&b, "  SELECT %s.%s AS %s, %s AS %s\n",
		d.Quote(popAlias), d.Quote(popJoinKey), d.Quote("rowid"), agg, d.Quote(outputCol))
	fmt.Fprintf(&b, "  FROM %s\n", d.Quote(popAlias))
	fmt.Fprintf(&b, "  JOIN (SELECT *, %s AS %s FROM %s) t ON t.%s = %s.%s\n",
		expr, d.Quote("__leaf_weight"), d.Quote(f.Peripheral), d.Quote(popJoinKey), d.Quote(popAlias), d.Quote(popJoinKey))
	fmt.Fprintf(&b, "  GROUP BY %s.%s\n", d.Quote(popAlias), d.Quote(popJoinKey))
	b.WriteString(")")

	return Statement{Label: "feature:" + cteName, SQL: b.String()}, nil
}

func aggregationSQL(kind aggregation.Kind, colExpr string) string {
	switch kind {
	case aggregation.Count:
		return "COUNT(" + colExpr + ")"
	case aggregation.Sum:
		return "SUM(" + colExpr + ")"
	default:
		return "AVG(" + colExpr + ")"
	}
}

// leafExpr recursively renders node idx as a SQL CASE expression,
// bottoming out at scalar leaf weights. A relmt linear leaf (non-empty
// LinearWeights) is not rendered: it yields an InvalidInput error.
func leafExpr(d Dialect, t *tree.Tree, idx int, peripheralAlias string) (string, error) {
	node := t.Nodes[idx]
	if node.IsLeaf {
		if len(node.LinearWeights) > 0 {
			return "", errs.InvalidInput.New("sqlgen: relmt linear leaves are not yet emittable to SQL")
		}
		return strconv.FormatFloat(node.Weight, 'g', -1, 64), nil
	}

	cond, err := splitCondition(d, node.Split, peripheralAlias)
	if err != nil {
		return "", err
	}
	greater, err := leafExpr(d, t, node.Greater, peripheralAlias)
	if err != nil {
		return "", err
	}
	smaller, err := leafExpr(d, t, node.Smaller, peripheralAlias)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)", cond, greater, smaller), nil
}

// splitCondition renders one committed Split as a boolean SQL
// predicate, grounded on SQLMaker::condition_greater's dispatch by
// data_used.
func splitCondition(d Dialect, s tree.Split, peripheralAlias string) (string, error) {
	switch s.DataUsed {
	case tree.PopulationCategorical, tree.PeripheralCategorical:
		return fmt.Sprintf("%s IN %s", columnRef(d, peripheralAlias, s), categoryList(s.Categories)), nil
	case tree.SameUnit:
		name := strings.TrimSuffix(s.ColumnName, "#same_unit")
		col := d.Quote(peripheralAlias) + "." + d.Quote(name)
		return fmt.Sprintf("%s > %s", col, formatFloat(s.CriticalValue)), nil
	case tree.TimeWindow:
		return "", errs.InvalidInput.New("sqlgen: time-window splits are not yet emittable to SQL")
	default:
		return fmt.Sprintf("%s > %s", columnRef(d, peripheralAlias, s), formatFloat(s.CriticalValue)), nil
	}
}

func columnRef(d Dialect, peripheralAlias string, s tree.Split) string {
	switch s.DataUsed {
	case tree.PopulationNumerical, tree.PopulationDiscrete, tree.PopulationCategorical:
		return d.Quote("p") + "." + d.Quote(s.ColumnName)
	case tree.Subfeature:
		return d.Quote("sf") + "." + d.Quote(s.ColumnName)
	default:
		return d.Quote(peripheralAlias) + "." + d.Quote(s.ColumnName)
	}
}

func categoryList(cats map[int32]bool) string {
	ids := make([]int32, 0, len(cats))
	for c := range cats {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, c := range ids {
		parts[i] = strconv.Itoa(int(c))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
