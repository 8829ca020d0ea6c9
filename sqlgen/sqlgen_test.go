package sqlgen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/optim"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/sqlgen"
	"github.com/relboost/relboost/tree"
)

func fitTestEnsemble(t *testing.T) *ensemble.Ensemble {
	t.Helper()

	pop := frame.New("population")
	require.NoError(t, pop.AddColumn(frame.NewIntColumn("id", frame.RoleJoinKey, []int32{0, 1, 2}, nil)))

	perip := frame.New("peripheral")
	require.NoError(t, perip.AddColumn(frame.NewIntColumn("pop_id", frame.RoleJoinKey, []int32{0, 0, 1, 2, 2, 2}, nil)))
	require.NoError(t, perip.AddColumn(frame.NewFloatColumn("amount", frame.RoleNumerical, frame.Float64, []float64{1, 2, 5, 10, 20, 30})))
	perip.CreateIndices()

	root := &placeholder.Placeholder{Name: "population"}
	child := &placeholder.Placeholder{
		Name:         "peripheral",
		JoinKeysUsed: []placeholder.JoinKeyPair{{PopulationColumn: "id", PeripheralColumn: "pop_id"}},
	}
	root.Children = []*placeholder.Placeholder{child}
	require.NoError(t, placeholder.Validate(root))

	in := ensemble.FitInput{
		Population:  pop,
		Peripherals: map[string]*frame.DataFrame{"peripheral": perip},
		Placeholder: root,
		Target:      []float64{1, 2, 3},
		TargetNames: []string{"y"},
		Hyper: ensemble.Hyperparams{
			NumFeatures:   2,
			NumCandidates: 2,
			Shrinkage:     0.3,
			Loss:          optim.SquaredError,
			Seed:          7,
			Tree: tree.Hyperparams{
				MaxDepth: 1, MinSamplesLeaf: 1, GridFactor: 2,
				MinLossReduction: -1e9, RegLambda: 0.1, MaxStep: 5, ShareConditions: 1,
			},
		},
	}
	ens, err := ensemble.Fit(in)
	require.NoError(t, err)
	require.NotEmpty(t, ens.Features)
	return ens
}

func schemas() (sqlgen.Schema, map[string]sqlgen.Schema) {
	pop := sqlgen.Schema{
		TableName: "population",
		Columns:   []sqlgen.ColumnDef{{Name: "id", SQL: "BIGINT"}},
		JoinKeys:  []string{"id"},
	}
	perip := sqlgen.Schema{
		TableName: "peripheral",
		Columns: []sqlgen.ColumnDef{
			{Name: "pop_id", SQL: "BIGINT"},
			{Name: "amount", SQL: "DOUBLE PRECISION"},
		},
		JoinKeys: []string{"pop_id"},
	}
	return pop, map[string]sqlgen.Schema{"peripheral": perip}
}

func TestToSQLEmitsOneCTEPerFeature(t *testing.T) {
	require := require.New(t)
	ens := fitTestEnsemble(t)
	pop, peripherals := schemas()

	plan, err := sqlgen.ToSQL(sqlgen.ANSI{}, pop, peripherals, ens)
	require.NoError(err)
	require.NotEmpty(plan.Statements)

	out := plan.String()
	require.Contains(out, "CREATE TABLE")
	require.Contains(out, "CASE WHEN")
	require.Contains(out, `WITH "feature_0"`)
	require.Equal(len(ens.Features), strings.Count(out, "LEFT JOIN")) // each feature CTE is joined once
}

func TestDialectsQuoteDifferently(t *testing.T) {
	require := require.New(t)
	require.Equal(`"amount"`, sqlgen.ANSI{}.Quote("amount"))
	require.Equal(`[amount]`, sqlgen.SQLServer{}.Quote("amount"))
	require.Equal("sqlite", sqlgen.SQLite{}.Name())
	require.Equal("postgres", sqlgen.Postgres{}.Name())
	require.Contains(sqlgen.Oracle{}.LimitClause(10), "ROWNUM")
	require.Contains(sqlgen.SQLServer{}.LimitClause(10), "FETCH NEXT")
}

func TestTimeStampDiffVariesByDialect(t *testing.T) {
	require := require.New(t)
	require.Contains(sqlgen.Postgres{}.TimeStampDiff("a", "b"), "EXTRACT")
	require.Contains(sqlgen.Oracle{}.TimeStampDiff("a", "b"), "86400")
	require.Contains(sqlgen.SQLServer{}.TimeStampDiff("a", "b"), "DATEDIFF")
}
