package tree_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/tree"
)

func TestFitSplitsOnSeparatingColumn(t *testing.T) {
	require := require.New(t)

	// 4 output rows, one match each; a peripheral numerical column that
	// perfectly separates rows with high gradient from rows with low
	// gradient, so the split search should find it and improve on the
	// single-leaf baseline.
	matches := []match.Match{
		{IxOutput: 0, IxInput: 0},
		{IxOutput: 1, IxInput: 1},
		{IxOutput: 2, IxInput: 2},
		{IxOutput: 3, IxInput: 3},
	}
	aggValues := []float64{1, 1, 1, 1}
	sources := []tree.ColumnSource{{
		DataUsed: tree.PeripheralNumerical,
		Name:     "amount",
		Values:   []float64{1, 2, 100, 101},
	}}

	ctx := &tree.Context{
		Hyper: tree.Hyperparams{
			MaxDepth:         3,
			MinSamplesLeaf:   1,
			GridFactor:       2,
			MinLossReduction: -1e9, // accept any improving split for this test
			RegLambda:        0.1,
			MaxStep:          10,
			ShareConditions:  1,
		},
		G:     []float64{-1, -1, 1, 1},
		H:     []float64{1, 1, 1, 1},
		State: aggregation.NewState(aggregation.Count, 4, false),
		RNG:   rand.New(rand.NewSource(1)),
	}

	tr, err := tree.Fit(ctx, matches, aggValues, sources)
	require.NoError(err)
	require.NotEmpty(tr.Nodes)

	root := tr.Nodes[tr.Root]
	require.False(root.IsLeaf, "expected the separating column to produce a split")
	require.Equal(tree.PeripheralNumerical, root.Split.DataUsed)

	out := tr.Transform(aggregation.Count, 4, matches, sources)
	require.Len(out, 4)
}

func TestFitStopsAtMaxDepth(t *testing.T) {
	require := require.New(t)

	matches := []match.Match{{IxOutput: 0}, {IxOutput: 1}}
	aggValues := []float64{1, 1}
	sources := []tree.ColumnSource{{DataUsed: tree.PeripheralNumerical, Values: []float64{1, 2}}}

	ctx := &tree.Context{
		Hyper: tree.Hyperparams{MaxDepth: 0, MinSamplesLeaf: 1, GridFactor: 1, RegLambda: 1, MaxStep: 1},
		G:     []float64{1, -1},
		H:     []float64{1, 1},
		State: aggregation.NewState(aggregation.Count, 2, false),
	}

	tr, err := tree.Fit(ctx, matches, aggValues, sources)
	require.NoError(err)
	require.Len(tr.Nodes, 1)
	require.True(tr.Nodes[tr.Root].IsLeaf)
}

func TestFitCategoricalSplit(t *testing.T) {
	require := require.New(t)

	matches := []match.Match{{IxOutput: 0}, {IxOutput: 1}, {IxOutput: 2}, {IxOutput: 3}}
	aggValues := []float64{1, 1, 1, 1}
	sources := []tree.ColumnSource{{
		DataUsed:   tree.PeripheralCategorical,
		Name:       "category",
		Categories: []int32{0, 0, 1, 1},
	}}

	ctx := &tree.Context{
		Hyper: tree.Hyperparams{
			MaxDepth: 2, MinSamplesLeaf: 1, GridFactor: 1,
			MinLossReduction: -1e9, RegLambda: 0.1, MaxStep: 10, ShareConditions: 1,
		},
		G:     []float64{-1, -1, 1, 1},
		H:     []float64{1, 1, 1, 1},
		State: aggregation.NewState(aggregation.Count, 4, false),
	}

	tr, err := tree.Fit(ctx, matches, aggValues, sources)
	require.NoError(err)
	require.False(tr.Nodes[tr.Root].IsLeaf)
	require.True(tr.Nodes[tr.Root].Split.DataUsed.IsCategorical())
}
