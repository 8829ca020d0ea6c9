package fastprop_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/fastprop"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/placeholder"
)

func buildFrames(t *testing.T) (*frame.DataFrame, *frame.DataFrame, *placeholder.Placeholder) {
	t.Helper()

	pop := frame.New("population")
	require.NoError(t, pop.AddColumn(frame.NewIntColumn("id", frame.RoleJoinKey, []int32{0, 1, 2}, nil)))

	perip := frame.New("peripheral")
	require.NoError(t, perip.AddColumn(frame.NewIntColumn("pop_id", frame.RoleJoinKey, []int32{0, 0, 1, 2, 2, 2}, nil)))
	require.NoError(t, perip.AddColumn(frame.NewFloatColumn("amount", frame.RoleNumerical, frame.Float64, []float64{1, 2, 5, 10, 20, 30})))
	perip.CreateIndices()

	node := &placeholder.Placeholder{
		Name:         "peripheral",
		JoinKeysUsed: []placeholder.JoinKeyPair{{PopulationColumn: "id", PeripheralColumn: "pop_id"}},
	}
	return pop, perip, node
}

func TestTransformCountAndSum(t *testing.T) {
	require := require.New(t)
	pop, perip, node := buildFrames(t)

	matches, err := match.Build(pop, perip, node, nil)
	require.NoError(err)

	catalog := []fastprop.AbstractFeature{
		{Aggregation: aggregation.Count, DataUsed: fastprop.Numerical, Peripheral: "peripheral", OutputCol: "count"},
		{Aggregation: aggregation.Sum, DataUsed: fastprop.Numerical, Peripheral: "peripheral", InputCol: "amount", OutputCol: "sum_amount"},
		{Aggregation: aggregation.Max, DataUsed: fastprop.Numerical, Peripheral: "peripheral", InputCol: "amount", OutputCol: "max_amount"},
	}

	compiled, err := fastprop.Compile(pop, perip, catalog)
	require.NoError(err)

	out, err := fastprop.Transform(pop, matches.Slice(), nil, compiled)
	require.NoError(err)
	require.Equal(3, out.NCols())
	require.Equal(3, out.NRows())

	countCol, err := out.Column("count")
	require.NoError(err)
	require.Equal([]float64{2, 1, 3}, countCol.Floats)

	sumCol, err := out.Column("sum_amount")
	require.NoError(err)
	require.Equal([]float64{3, 5, 60}, sumCol.Floats)

	maxCol, err := out.Column("max_amount")
	require.NoError(err)
	require.Equal([]float64{2, 5, 30}, maxCol.Floats)
}

func TestTransformRowWithNoMatchesYieldsNaNForMin(t *testing.T) {
	require := require.New(t)
	_, perip, node := buildFrames(t)

	pop := frame.New("population")
	require.NoError(pop.AddColumn(frame.NewIntColumn("id", frame.RoleJoinKey, []int32{0, 1, 2, 99}, nil)))

	matches, err := match.Build(pop, perip, node, nil)
	require.NoError(err)

	catalog := []fastprop.AbstractFeature{
		{Aggregation: aggregation.Min, DataUsed: fastprop.Numerical, Peripheral: "peripheral", InputCol: "amount", OutputCol: "min_amount"},
	}
	compiled, err := fastprop.Compile(pop, perip, catalog)
	require.NoError(err)

	out, err := fastprop.Transform(pop, matches.Slice(), nil, compiled)
	require.NoError(err)
	minCol, err := out.Column("min_amount")
	require.NoError(err)
	require.Equal(4, len(minCol.Floats))
	require.True(math.IsNaN(minCol.Floats[3])) // DescriptiveState's Min over no samples is NaN
}
