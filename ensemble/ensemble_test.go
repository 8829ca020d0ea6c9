package ensemble_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/optim"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/tree"
)

// buildPopPerip is spec.md scenario S1 (COUNT over a join key) with a
// regression target added so the ensemble has something to boost.
func buildPopPerip(t *testing.T) (*frame.DataFrame, *frame.DataFrame, []float64) {
	t.Helper()

	pop := frame.New("population")
	require.NoError(t, pop.AddColumn(frame.NewIntColumn("id", frame.RoleJoinKey, []int32{0, 1, 2}, nil)))

	perip := frame.New("peripheral")
	require.NoError(t, perip.AddColumn(frame.NewIntColumn("pop_id", frame.RoleJoinKey, []int32{0, 0, 1, 2, 2, 2}, nil)))
	require.NoError(t, perip.AddColumn(frame.NewFloatColumn("amount", frame.RoleNumerical, frame.Float64, []float64{1, 2, 5, 10, 20, 30})))
	perip.CreateIndices()

	target := []float64{1, 2, 3}
	return pop, perip, target
}

func TestFitAndTransformProducesFeatureMatrix(t *testing.T) {
	require := require.New(t)

	pop, perip, target := buildPopPerip(t)

	root := &placeholder.Placeholder{Name: "population"}
	child := &placeholder.Placeholder{
		Name:         "peripheral",
		JoinKeysUsed: []placeholder.JoinKeyPair{{PopulationColumn: "id", PeripheralColumn: "pop_id"}},
	}
	root.Children = []*placeholder.Placeholder{child}
	require.NoError(placeholder.Validate(root))

	in := ensemble.FitInput{
		Population:  pop,
		Peripherals: map[string]*frame.DataFrame{"peripheral": perip},
		Placeholder: root,
		Target:      target,
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
	require.NoError(err)
	require.NotEmpty(ens.Features)

	out, err := ens.Transform(pop, map[string]*frame.DataFrame{"peripheral": perip})
	require.NoError(err)
	require.Equal(pop.NRows(), out.NRows())
	require.Equal(len(ens.Features), out.NCols())
}

// TestFitCandidatePoolIsDeterministicAcrossThreadCounts pins the
// candidate pool's composition to Hyper.Seed alone: fitting the same
// input with NumThreads=1 (one goroutine, no reduction) and
// NumThreads=4 (several goroutines reduced via concurrency.AllReduceScalar)
// must pick the same winning candidate and produce the same transform
// output, regardless of how the pool was partitioned across goroutines.
func TestFitCandidatePoolIsDeterministicAcrossThreadCounts(t *testing.T) {
	require := require.New(t)
	pop, perip, target := buildPopPerip(t)

	root := &placeholder.Placeholder{Name: "population"}
	child := &placeholder.Placeholder{
		Name:         "peripheral",
		JoinKeysUsed: []placeholder.JoinKeyPair{{PopulationColumn: "id", PeripheralColumn: "pop_id"}},
	}
	root.Children = []*placeholder.Placeholder{child}
	require.NoError(placeholder.Validate(root))

	fitWith := func(numThreads int) *ensemble.Ensemble {
		in := ensemble.FitInput{
			Population:  pop,
			Peripherals: map[string]*frame.DataFrame{"peripheral": perip},
			Placeholder: root,
			Target:      target,
			TargetNames: []string{"y"},
			Hyper: ensemble.Hyperparams{
				NumFeatures:   2,
				NumCandidates: 8,
				NumThreads:    numThreads,
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
		require.NoError(err)
		return ens
	}

	single := fitWith(1)
	parallel := fitWith(4)

	require.Equal(len(single.Features), len(parallel.Features))
	for i := range single.Features {
		require.Equal(single.Features[i].Kind, parallel.Features[i].Kind)
		require.Equal(single.Features[i].ValueCol, parallel.Features[i].ValueCol)
	}

	singleOut, err := single.Transform(pop, map[string]*frame.DataFrame{"peripheral": perip})
	require.NoError(err)
	parallelOut, err := parallel.Transform(pop, map[string]*frame.DataFrame{"peripheral": perip})
	require.NoError(err)
	for i := range singleOut.Columns() {
		require.Equal(singleOut.Columns()[i].Floats, parallelOut.Columns()[i].Floats)
	}
}
