package match_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/placeholder"
)

// TestBuildCountScenario is spec.md scenario S1: population keys
// [a,b,a], peripheral keys [a,a,b,a,c], no time stamps.
func TestBuildCountScenario(t *testing.T) {
	require := require.New(t)

	enc := frame.NewEncoding()
	a, b, c := enc.Encode("a"), enc.Encode("b"), enc.Encode("c")

	pop := frame.New("population")
	require.NoError(pop.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, []int32{a, b, a}, enc)))

	perip := frame.New("peripheral")
	require.NoError(perip.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, []int32{a, a, b, a, c}, enc)))
	perip.CreateIndices()

	p := &placeholder.Placeholder{
		Name:         "peripheral",
		JoinKeysUsed: []placeholder.JoinKeyPair{{PopulationColumn: "jk", PeripheralColumn: "jk"}},
	}

	matches, err := match.Build(pop, perip, p, nil)
	require.NoError(err)

	counts := make([]int, 3)
	for i := 0; i < matches.Len(); i++ {
		counts[matches.At(i).IxOutput]++
	}
	require.Equal([]int{3, 1, 3}, counts)
	_ = c
}

// TestBuildTimeWindowScenario is spec.md scenario S2.
func TestBuildTimeWindowScenario(t *testing.T) {
	require := require.New(t)

	enc := frame.NewEncoding()
	k := enc.Encode("k")

	pop := frame.New("population")
	require.NoError(pop.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, []int32{k, k}, enc)))
	require.NoError(pop.AddColumn(frame.NewFloatColumn("ts", frame.RoleTimeStamp, frame.TimeStampFloat, []float64{10, 20})))

	perip := frame.New("peripheral")
	require.NoError(perip.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, []int32{k, k, k, k, k}, enc)))
	require.NoError(perip.AddColumn(frame.NewFloatColumn("ts", frame.RoleTimeStamp, frame.TimeStampFloat, []float64{5, 9, 11, 15, 19})))
	perip.CreateIndices()

	p := &placeholder.Placeholder{
		Name:           "peripheral",
		JoinKeysUsed:   []placeholder.JoinKeyPair{{PopulationColumn: "jk", PeripheralColumn: "jk"}},
		TimeStampsUsed: "ts",
	}

	matches, err := match.Build(pop, perip, p, nil)
	require.NoError(err)

	groups := map[uint32][]uint32{}
	for i := 0; i < matches.Len(); i++ {
		m := matches.At(i)
		groups[m.IxOutput] = append(groups[m.IxOutput], m.IxInput)
	}
	require.Equal(2, len(groups[0]))
	require.Equal(4, len(groups[1]))
}

func TestBuildDropsZeroWeightRows(t *testing.T) {
	require := require.New(t)

	enc := frame.NewEncoding()
	k := enc.Encode("k")

	pop := frame.New("population")
	require.NoError(pop.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, []int32{k, k}, enc)))

	perip := frame.New("peripheral")
	require.NoError(perip.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, []int32{k, k}, enc)))
	perip.CreateIndices()

	p := &placeholder.Placeholder{
		JoinKeysUsed: []placeholder.JoinKeyPair{{PopulationColumn: "jk", PeripheralColumn: "jk"}},
	}

	matches, err := match.Build(pop, perip, p, []float32{0, 1})
	require.NoError(err)
	for i := 0; i < matches.Len(); i++ {
		require.EqualValues(1, matches.At(i).IxOutput)
	}
}
