package persistence_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/hashstructure"
	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/hyperparams"
	"github.com/relboost/relboost/persistence"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/tree"
)

func sampleEnsemble() *ensemble.Ensemble {
	return &ensemble.Ensemble{
		ID:          "ens-1",
		Placeholder: &placeholder.Placeholder{Name: "population"},
		TargetNames: []string{"y"},
		Features: []ensemble.Feature{
			{
				Tree: &tree.Tree{
					Nodes: []tree.Node{{IsLeaf: true, Weight: 0.5, Greater: -1, Smaller: -1}},
					Root:  0,
				},
				Kind:       aggregation.Sum,
				ValueCol:   "amount",
				Peripheral: "peripheral",
			},
		},
		Subfeatures: map[string][]ensemble.Subfeature{
			"peripheral": {{Peripheral: "grandchild", ValueCol: "qty", Kind: aggregation.Avg}},
		},
	}
}

func TestDocumentRoundTripsThroughJSON(t *testing.T) {
	require := require.New(t)
	e := sampleEnsemble()
	hp := hyperparams.Default()

	popSchema := frame.Schema{Name: "population", Columns: []frame.ColumnSchema{{Name: "id", Kind: frame.Float64}}}
	doc := persistence.FromEnsemble(e, popSchema, nil, hp, false)

	data, err := doc.Marshal()
	require.NoError(err)

	back, err := persistence.Unmarshal(data)
	require.NoError(err)

	h1, err := hashstructure.Hash(doc, nil)
	require.NoError(err)
	h2, err := hashstructure.Hash(back, nil)
	require.NoError(err)
	require.Equal(h1, h2)
}

func TestStoreSaveLoadDeleteList(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	store, err := persistence.Open(filepath.Join(dir, "ensembles.db"))
	require.NoError(err)
	defer store.Close()

	e := sampleEnsemble()
	doc := persistence.FromEnsemble(e, frame.Schema{}, nil, hyperparams.Default(), false)

	require.NoError(store.Save("ens-1", doc))

	ids, err := store.List()
	require.NoError(err)
	require.Equal([]string{"ens-1"}, ids)

	back, err := store.Load("ens-1")
	require.NoError(err)
	require.Equal(doc.TargetNames, back.TargetNames)
	require.Equal(len(doc.Features), len(back.Features))

	require.NoError(store.Delete("ens-1"))
	_, err = store.Load("ens-1")
	require.Error(err)
}

func TestLoadMissingPopulationSchemaMarksPreSchemaSnapshot(t *testing.T) {
	require := require.New(t)
	doc, err := persistence.Unmarshal([]byte(`{"version":1,"targets":["y"]}`))
	require.NoError(err)
	require.Nil(doc.PopulationSchema)
}

func TestOpenCreatesParentFileOnce(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ensembles.db")

	store, err := persistence.Open(path)
	require.NoError(err)
	require.NoError(store.Close())

	_, err = os.Stat(path)
	require.NoError(err)
}
