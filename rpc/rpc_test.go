package rpc_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/hyperparams"
	"github.com/relboost/relboost/persistence"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/rpc"
)

func buildFrames(t *testing.T) (*frame.DataFrame, map[string]*frame.DataFrame, *placeholder.Placeholder) {
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

func fitHyper() hyperparams.Hyperparams {
	h := hyperparams.Default()
	h.NumFeatures = 2
	h.MaxDepth = 1
	h.MinNumSamples = 1
	return h
}

func TestCheckRejectsMissingPeripheral(t *testing.T) {
	_, _, root := buildFrames(t)
	resp := rpc.Check(rpc.CheckRequest{Placeholder: root, Peripherals: nil, Hyper: fitHyper()})
	require.False(t, resp.OK)
	require.NotEmpty(t, resp.Problems)
}

func TestFitTransformAndImportances(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildFrames(t)
	s := rpc.NewState(nil)

	fitResp, err := s.Fit(context.Background(), rpc.FitRequest{
		Population:  pop,
		Peripherals: peripherals,
		Placeholder: root,
		Target:      []float64{1, 2, 3},
		TargetNames: []string{"y"},
		Hyper:       fitHyper(),
	})
	require.NoError(err)
	require.NotEmpty(fitResp.EnsembleID)
	require.Greater(fitResp.NumFeatures, 0)

	tResp, err := s.Transform(rpc.TransformRequest{EnsembleID: fitResp.EnsembleID, Population: pop, Peripherals: peripherals})
	require.NoError(err)
	require.Equal(pop.NRows(), tResp.Features.NRows())

	ci, err := rpc.ColumnImportances(s, rpc.ColumnImportancesRequest{EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
	require.NotNil(ci.Importances)

	fi, err := rpc.FeatureImportances(s, rpc.FeatureImportancesRequest{EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
	require.Equal(fitResp.NumFeatures, len(fi.Importances))

	fc, err := rpc.FeatureCorrelations(s, rpc.FeatureCorrelationsRequest{EnsembleID: fitResp.EnsembleID, Population: pop, Peripherals: peripherals})
	require.NoError(err)
	require.Equal(len(fc.Names), len(fc.Matrix))
	for i := range fc.Matrix {
		require.InDelta(1.0, fc.Matrix[i][i], 1e-9)
	}
}

func TestDeployAndCopyPipeline(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildFrames(t)
	s := rpc.NewState(nil)

	fitResp, err := s.Fit(context.Background(), rpc.FitRequest{
		Population: pop, Peripherals: peripherals, Placeholder: root,
		Target: []float64{1, 2, 3}, TargetNames: []string{"y"}, Hyper: fitHyper(),
	})
	require.NoError(err)

	_, err = s.Deploy(rpc.DeployRequest{Alias: "production", EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
	resolved, err := s.ResolveAlias("production")
	require.NoError(err)
	require.Equal(fitResp.EnsembleID, resolved)

	copyResp, err := s.CopyPipeline(rpc.CopyPipelineRequest{SourceID: fitResp.EnsembleID})
	require.NoError(err)
	require.NotEqual(fitResp.EnsembleID, copyResp.NewEnsembleID)

	ids := s.ListEnsembles(rpc.ListEnsemblesRequest{}).EnsembleIDs
	require.Len(ids, 2)
}

func TestSaveLoadDeleteEnsembleThroughStore(t *testing.T) {
	require := require.New(t)
	pop, peripherals, root := buildFrames(t)

	dir := t.TempDir()
	store, err := persistence.Open(filepath.Join(dir, "ensembles.db"))
	require.NoError(err)
	defer store.Close()

	s := rpc.NewState(store)
	fitResp, err := s.Fit(context.Background(), rpc.FitRequest{
		Population: pop, Peripherals: peripherals, Placeholder: root,
		Target: []float64{1, 2, 3}, TargetNames: []string{"y"}, Hyper: fitHyper(),
	})
	require.NoError(err)

	_, err = s.SaveEnsemble(rpc.SaveEnsembleRequest{
		EnsembleID:       fitResp.EnsembleID,
		Hyper:            fitHyper(),
		PopulationSchema: pop.ToSchema(),
	})
	require.NoError(err)

	loadResp, err := s.LoadEnsemble(rpc.LoadEnsembleRequest{EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
	require.Equal(fitResp.NumFeatures, loadResp.NumFeatures)

	_, err = s.DeleteEnsemble(rpc.DeleteEnsembleRequest{EnsembleID: fitResp.EnsembleID})
	require.NoError(err)
}

func TestROCAndPRAndLiftCurves(t *testing.T) {
	require := require.New(t)
	scores := []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4}
	labels := []float64{1, 1, 0, 1, 0, 0}

	roc, err := rpc.ROCCurve(rpc.ROCCurveRequest{Scores: scores, Labels: labels})
	require.NoError(err)
	require.Greater(roc.AUC, 0.0)
	require.LessOrEqual(roc.AUC, 1.0)

	pr, err := rpc.PrecisionRecallCurve(rpc.PrecisionRecallCurveRequest{Scores: scores, Labels: labels})
	require.NoError(err)
	require.NotEmpty(pr.Points)
	require.Equal(1.0, pr.Points[len(pr.Points)-1].Recall)

	lift, err := rpc.LiftCurve(rpc.LiftCurveRequest{Scores: scores, Labels: labels, NumBins: 3})
	require.NoError(err)
	require.Len(lift.Points, 3)
	require.InDelta(1.0, lift.Points[2].PopulationShare, 1e-9)
}
