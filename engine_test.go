package relboost_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	relboost "github.com/relboost/relboost"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/rpc"
	"github.com/relboost/relboost/sqlgen"
)

func buildEngineFixture(t *testing.T) (*frame.DataFrame, map[string]*frame.DataFrame, *placeholder.Placeholder) {
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

	return pop, map[string]*frame.DataFrame{"peripheral": perip}, root
}

func TestEngineFitTransformToSQL(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildEngineFixture(t)

	eng, err := relboost.New(relboost.Config{})
	require.NoError(err)
	defer eng.Close()

	hyper := relboost.DefaultHyperparams()
	hyper.NumFeatures = 2
	hyper.MaxDepth = 1
	hyper.MinNumSamples = 1

	ctx := context.Background()

	checkResp := eng.Check(rpc.CheckRequest{Placeholder: root, Peripherals: peripherals, Hyper: hyper})
	require.True(checkResp.OK, checkResp.Problems)

	fitResp, err := eng.Fit(ctx, rpc.FitRequest{
		Population:  pop,
		Peripherals: peripherals,
		Placeholder: root,
		Target:      []float64{1, 2, 3},
		TargetNames: []string{"y"},
		Hyper:       hyper,
	})
	require.NoError(err)
	require.Greater(fitResp.NumFeatures, 0)

	transformResp, err := eng.Transform(ctx, rpc.TransformRequest{
		EnsembleID:  fitResp.EnsembleID,
		Population:  pop,
		Peripherals: peripherals,
	})
	require.NoError(err)
	require.Equal(pop.NRows(), transformResp.Features.NRows())
	require.Equal(fitResp.NumFeatures, transformResp.Features.NCols())

	sqlResp, err := eng.ToSQL(rpc.ToSQLRequest{
		EnsembleID: fitResp.EnsembleID,
		Dialect:    sqlgen.ANSI{},
		PopulationSchema: sqlgen.Schema{
			TableName: "population",
			Columns:   []sqlgen.ColumnDef{{Name: "id", SQL: "BIGINT"}},
			JoinKeys:  []string{"id"},
		},
		PeripheralSchemas: map[string]sqlgen.Schema{
			"peripheral": {
				TableName: "peripheral",
				Columns: []sqlgen.ColumnDef{
					{Name: "pop_id", SQL: "BIGINT"},
					{Name: "amount", SQL: "DOUBLE PRECISION"},
				},
				JoinKeys: []string{"pop_id"},
			},
		},
	})
	require.NoError(err)
	require.NotEmpty(sqlResp.Plan.Statements)
}

// cancelAfterNChecks is a context.Context whose Err() reports live for
// its first n checks, then behaves as cancelled - a deterministic stand
// in for "the caller cancels partway through a running Fit" that
// doesn't depend on timing a real goroutine.
type cancelAfterNChecks struct {
	context.Context
	n   int32
	hit int32
}

func (c *cancelAfterNChecks) Err() error {
	if atomic.AddInt32(&c.hit, 1) > c.n {
		return context.Canceled
	}
	return nil
}

func TestEngineFitCancelledMidFeatureReturnsInterruptedAndLeavesRegistryEmpty(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildEngineFixture(t)

	eng, err := relboost.New(relboost.Config{})
	require.NoError(err)
	defer eng.Close()

	hyper := relboost.DefaultHyperparams()
	hyper.NumFeatures = 3 // several features, so the cancellation fires after the first is committed
	hyper.MaxDepth = 1
	hyper.MinNumSamples = 1

	// Engine.Fit's own pre-call check consumes the first Err() call; the
	// outer ensemble.Fit per-feature loop consumes one more per feature,
	// so n=2 lets the pre-call check and the first feature's checkpoint
	// pass (that feature gets committed), then cancels at the second
	// feature's checkpoint - proving the interruption is observed
	// mid-fit, not only before Fit starts.
	ctx := &cancelAfterNChecks{Context: context.Background(), n: 2}

	_, err = eng.Fit(ctx, rpc.FitRequest{
		Population:  pop,
		Peripherals: peripherals,
		Placeholder: root,
		Target:      []float64{1, 2, 3},
		TargetNames: []string{"y"},
		Hyper:       hyper,
	})
	require.Error(err)
	require.True(errs.Interrupted.Is(err))

	require.Empty(eng.ListEnsembles().EnsembleIDs)
}

func TestEngineFitIsDeterministicAcrossCalls(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildEngineFixture(t)

	hyper := relboost.DefaultHyperparams()
	hyper.NumFeatures = 2
	hyper.MaxDepth = 1
	hyper.MinNumSamples = 1
	hyper.SamplingFactor = 0 // spec invariant 3: sampling_factor=0 uses all rows, deterministically
	hyper.Seed = 11

	ctx := context.Background()

	run := func() *frame.DataFrame {
		eng, err := relboost.New(relboost.Config{})
		require.NoError(err)
		defer eng.Close()

		fitResp, err := eng.Fit(ctx, rpc.FitRequest{
			Population: pop, Peripherals: peripherals, Placeholder: root,
			Target: []float64{1, 2, 3}, TargetNames: []string{"y"}, Hyper: hyper,
		})
		require.NoError(err)

		out, err := eng.Transform(ctx, rpc.TransformRequest{EnsembleID: fitResp.EnsembleID, Population: pop, Peripherals: peripherals})
		require.NoError(err)
		return out.Features
	}

	a, b := run(), run()
	require.Equal(a.NCols(), b.NCols())
	for i := 0; i < a.NCols(); i++ {
		require.Equal(a.Columns()[i].Floats, b.Columns()[i].Floats)
	}
}

func TestEngineSaveLoadRoundTrip(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildEngineFixture(t)

	dir := t.TempDir()
	eng, err := relboost.New(relboost.Config{StorePath: filepath.Join(dir, "ensembles.db")})
	require.NoError(err)
	defer eng.Close()

	hyper := relboost.DefaultHyperparams()
	hyper.NumFeatures = 1
	hyper.MaxDepth = 1
	hyper.MinNumSamples = 1

	fitResp, err := eng.Fit(context.Background(), rpc.FitRequest{
		Population: pop, Peripherals: peripherals, Placeholder: root,
		Target: []float64{1, 2, 3}, TargetNames: []string{"y"}, Hyper: hyper,
	})
	require.NoError(err)

	_, err = eng.SaveEnsemble(rpc.SaveEnsembleRequest{EnsembleID: fitResp.EnsembleID, Hyper: hyper, PopulationSchema: pop.ToSchema()})
	require.NoError(err)

	loadResp, err := eng.LoadEnsemble(rpc.LoadEnsembleRequest{EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
	require.Equal(fitResp.NumFeatures, loadResp.NumFeatures)

	_, err = eng.DeleteEnsemble(rpc.DeleteEnsembleRequest{EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
}
