package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/frame"
)

func TestAddColumnRowCountMismatch(t *testing.T) {
	require := require.New(t)

	df := frame.New("population")
	require.NoError(df.AddColumn(frame.NewFloatColumn("x", frame.RoleNumerical, frame.Float64, []float64{1, 2, 3})))

	err := df.AddColumn(frame.NewFloatColumn("y", frame.RoleNumerical, frame.Float64, []float64{1, 2}))
	require.Error(err)
}

func TestAddColumnReplacesExisting(t *testing.T) {
	require := require.New(t)

	df := frame.New("population")
	require.NoError(df.AddColumn(frame.NewFloatColumn("x", frame.RoleNumerical, frame.Float64, []float64{1, 2, 3})))
	require.NoError(df.AddColumn(frame.NewFloatColumn("x", frame.RoleNumerical, frame.Float64, []float64{4, 5, 6})))

	col, err := df.Column("x")
	require.NoError(err)
	require.Equal([]float64{4, 5, 6}, col.Floats)
	require.Equal(1, df.NCols())
}

func TestColumnNotFoundNamesTheColumn(t *testing.T) {
	require := require.New(t)

	df := frame.New("population")
	_, err := df.Column("missing")
	require.Error(err)
	require.Contains(err.Error(), "missing")
}

func TestCreateIndicesIdempotentAndCommutesWithClone(t *testing.T) {
	require := require.New(t)

	enc := frame.NewEncoding()
	keys := []int32{enc.Encode("a"), enc.Encode("b"), enc.Encode("a")}

	df := frame.New("peripheral")
	require.NoError(df.AddColumn(frame.NewIntColumn("jk", frame.RoleJoinKey, keys, enc)))

	df.CreateIndices()
	first := df.IndexLookup("jk", keys[0])

	df.CreateIndices()
	second := df.IndexLookup("jk", keys[0])
	require.Equal(first, second)

	clonedThenIndexed := df.Clone("clone1")
	clonedThenIndexed.CreateIndices()

	indexedThenCloned := df.Clone("clone2")

	require.Equal(clonedThenIndexed.IndexLookup("jk", keys[0]), indexedThenCloned.IndexLookup("jk", keys[0]))
}

func TestWhereProducesView(t *testing.T) {
	require := require.New(t)

	df := frame.New("population")
	require.NoError(df.AddColumn(frame.NewFloatColumn("x", frame.RoleNumerical, frame.Float64, []float64{1, 2, 3, 4})))

	filtered, err := df.Where([]bool{true, false, true, false})
	require.NoError(err)
	require.True(filtered.IsView())
	require.Equal(2, filtered.NRows())

	col, err := filtered.Column("x")
	require.NoError(err)
	require.Equal([]float64{1, 3}, col.Floats)
}

func TestPersistRoundTripFloatColumn(t *testing.T) {
	require := require.New(t)

	col := frame.NewFloatColumn("x", frame.RoleNumerical, frame.Float64, []float64{1.5, -2.25, 0, 3.75})
	col.Unit = "seconds"

	data := frame.EncodeColumn(col)
	decoded, err := frame.DecodeColumn(data, frame.Float64, frame.RoleNumerical, nil)
	require.NoError(err)

	require.Equal(col.Floats, decoded.Floats)
	require.Equal(col.Name, decoded.Name)
	require.Equal(col.Unit, decoded.Unit)
}

func TestPersistRoundTripStringBagColumn(t *testing.T) {
	require := require.New(t)

	col := frame.NewStringBagColumn("notes", frame.RoleText, [][]string{{"hello", "world"}, {}, {"single"}})

	data := frame.EncodeColumn(col)
	decoded, err := frame.DecodeColumn(data, frame.StringBag, frame.RoleText, nil)
	require.NoError(err)
	require.Equal(col.Strings, decoded.Strings)
}

func TestDecodeCorruptedColumnErrors(t *testing.T) {
	require := require.New(t)

	_, err := frame.DecodeColumn([]byte{1, 2, 3}, frame.Float64, frame.RoleNumerical, nil)
	require.Error(err)
}
