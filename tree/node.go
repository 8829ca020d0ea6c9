package tree

import (
	"math"
	"sort"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/linalg"
	"github.com/relboost/relboost/match"
)

// Node is one decision-tree node, stored by index in Tree.Nodes (an
// arena rather than a pointer tree, so the tree can be serialized and
// walked without dealing with cycles or lifetimes).
type Node struct {
	Depth  int
	IsLeaf bool
	Split  Split

	// Greater/Smaller index into Tree.Nodes; -1 means "no child" (leaf).
	Greater int
	Smaller int

	Weight        float64   // LeafScalar
	LinearWeights []float64 // LeafLinear: one coefficient per LinearColumns entry
	LinearColumns []int     // ColumnSource indices LinearWeights pairs with
}

// Tree is a single boosted feature: a tree of conditions over one
// (population, peripheral) match set, grounded on
// original_source/.../autosql/decisiontrees/DecisionTreeNode.hpp.
type Tree struct {
	Nodes []Node
	Root  int
}

// Fit grows a tree from matches, scoring candidate splits with ctx and
// folding chosen leaf weights into ctx.State as it commits each split,
// exactly as spec §4.5 describes ("pick best candidate ... commit it,
// partition samples, recurse").
func Fit(ctx *Context, matches []match.Match, aggValues []float64, sources []ColumnSource) (*Tree, error) {
	t := &Tree{}
	idxs := make([]int32, len(matches))
	for i := range idxs {
		idxs[i] = int32(i)
	}
	root, err := t.fit(ctx, matches, aggValues, sources, idxs, 0, math.NaN())
	if err != nil {
		return nil, err
	}
	t.Root = root
	return t, nil
}

func (t *Tree) newNode(depth int) int {
	t.Nodes = append(t.Nodes, Node{Depth: depth, Greater: -1, Smaller: -1})
	return len(t.Nodes) - 1
}

func (t *Tree) fit(ctx *Context, matches []match.Match, aggValues []float64, sources []ColumnSource, idxs []int32, depth int, oldWeight float64) (int, error) {
	if depth >= ctx.Hyper.MaxDepth || len(idxs) < 2*ctx.Hyper.MinSamplesLeaf {
		return t.makeLeaf(ctx, matches, aggValues, sources, idxs, depth, oldWeight)
	}

	best, err := t.search(ctx, matches, aggValues, sources, idxs)
	if err != nil {
		return -1, err
	}
	if best == nil || best.gain < ctx.Hyper.MinLossReduction {
		return t.makeLeaf(ctx, matches, aggValues, sources, idxs, depth, oldWeight)
	}

	greater, smaller := partition(sources, idxs, best.split)
	if len(greater) < ctx.Hyper.MinSamplesLeaf || len(smaller) < ctx.Hyper.MinSamplesLeaf {
		return t.makeLeaf(ctx, matches, aggValues, sources, idxs, depth, oldWeight)
	}

	side1, side2 := samplesFor(matches, aggValues, greater), samplesFor(matches, aggValues, smaller)
	if err := ctx.State.CalcAll(aggregation.Forward, oldWeight, side1, side2); err != nil {
		return -1, err
	}
	gain, w1, w2 := ctx.evaluate()
	_ = gain
	ctx.State.Commit(0, oldWeight, w1, w2)

	nodeIdx := t.newNode(depth)
	t.Nodes[nodeIdx].Split = best.split

	greaterIdx, err := t.fit(ctx, matches, aggValues, sources, greater, depth+1, w1)
	if err != nil {
		return -1, err
	}
	smallerIdx, err := t.fit(ctx, matches, aggValues, sources, smaller, depth+1, w2)
	if err != nil {
		return -1, err
	}
	t.Nodes[nodeIdx].Greater = greaterIdx
	t.Nodes[nodeIdx].Smaller = smallerIdx
	return nodeIdx, nil
}

func (t *Tree) makeLeaf(ctx *Context, matches []match.Match, aggValues []float64, sources []ColumnSource, idxs []int32, depth int, oldWeight float64) (int, error) {
	nodeIdx := t.newNode(depth)
	t.Nodes[nodeIdx].IsLeaf = true

	weight := oldWeight
	if math.IsNaN(weight) {
		// Root with no split at all: score this single leaf directly
		// from the gradients of the rows it covers.
		var g, h float64
		seen := map[uint32]bool{}
		for _, i := range idxs {
			ix := matches[i].IxOutput
			if seen[ix] {
				continue
			}
			seen[ix] = true
			g += ctx.G[ix]
			h += ctx.H[ix]
		}
		weight = clip(-g/(h+ctx.Hyper.RegLambda), ctx.Hyper.MaxStep)
	}
	t.Nodes[nodeIdx].Weight = weight

	if ctx.Hyper.LeafKind == LeafLinear && len(ctx.Hyper.LinearColumns) > 0 {
		lw, err := fitLinearLeaf(ctx, matches, aggValues, sources, idxs, weight)
		if err == nil {
			t.Nodes[nodeIdx].LinearWeights = lw
			t.Nodes[nodeIdx].LinearColumns = ctx.Hyper.LinearColumns
		}
		// A singular system (e.g. too few rows) just falls back to the
		// scalar weight already stored above.
	}

	return nodeIdx, nil
}

// fitLinearLeaf solves the relmt linear-leaf variant: a weighted least
// squares regression of each row's gradient onto Hyper.LinearColumns,
// ridge-regularized by RegLambda, via package linalg.
func fitLinearLeaf(ctx *Context, matches []match.Match, aggValues []float64, sources []ColumnSource, idxs []int32, intercept float64) ([]float64, error) {
	cols := ctx.Hyper.LinearColumns
	k := len(cols)
	x := make([][]float64, 0, len(idxs))
	y := make([]float64, 0, len(idxs))
	w := make([]float64, 0, len(idxs))
	seen := map[uint32]bool{}

	for _, i := range idxs {
		ix := matches[i].IxOutput
		if seen[ix] {
			continue
		}
		seen[ix] = true
		row := make([]float64, k)
		for j, c := range cols {
			row[j] = sources[c].Values[i]
		}
		x = append(x, row)
		y = append(y, ctx.G[ix]+intercept*ctx.H[ix])
		w = append(w, ctx.H[ix])
	}
	if len(x) <= k {
		return nil, errs.InvalidInput.New("tree: too few rows for a linear leaf")
	}
	return linalg.WeightedLeastSquares(x, y, w, ctx.Hyper.RegLambda)
}

type candidate struct {
	split Split
	gain  float64
}

// search tries every eligible column (subsampled by ShareConditions)
// and returns the best split found, or nil if none beats the parent.
func (t *Tree) search(ctx *Context, matches []match.Match, aggValues []float64, sources []ColumnSource, idxs []int32) (*candidate, error) {
	var best *candidate

	for colIdx, src := range sources {
		if ctx.RNG != nil && ctx.Hyper.ShareConditions > 0 && ctx.Hyper.ShareConditions < 1 {
			if ctx.RNG.Float64() >= ctx.Hyper.ShareConditions {
				continue
			}
		}

		var cand *candidate
		var err error
		if src.DataUsed.IsCategorical() {
			cand, err = t.searchCategorical(ctx, matches, aggValues, idxs, colIdx, src)
		} else {
			cand, err = t.searchNumeric(ctx, matches, aggValues, idxs, colIdx, src)
		}
		if err != nil {
			return nil, err
		}
		if cand != nil && (best == nil || cand.gain > best.gain) {
			best = cand
		}
	}
	return best, nil
}

// searchNumeric grid-searches critical values over a grid of size
// max(GridFactor*sqrt(n), 1), per spec §4.5.
func (t *Tree) searchNumeric(ctx *Context, matches []match.Match, aggValues []float64, idxs []int32, colIdx int, src ColumnSource) (*candidate, error) {
	n := len(idxs)
	sorted := append([]int32(nil), idxs...)
	sort.SliceStable(sorted, func(a, b int) bool { return src.Values[sorted[a]] < src.Values[sorted[b]] })

	numGrid := int(math.Max(ctx.Hyper.GridFactor*math.Sqrt(float64(n)), 1))
	step := n / (numGrid + 1)
	if step < 1 {
		step = 1
	}

	var best *candidate
	for cut := step; cut < n; cut += step {
		critical := src.Values[sorted[cut-1]]
		if cut < n && src.Values[sorted[cut]] == critical {
			continue // grid point falls inside a run of equal values
		}

		smaller := sorted[:cut]
		greater := sorted[cut:]
		if len(smaller) < ctx.Hyper.MinSamplesLeaf || len(greater) < ctx.Hyper.MinSamplesLeaf {
			continue
		}

		side1, side2 := samplesFor(matches, aggValues, greater), samplesFor(matches, aggValues, smaller)
		if err := ctx.State.CalcAll(aggregation.Forward, math.NaN(), side1, side2); err != nil {
			return nil, err
		}
		gain, _, _ := ctx.evaluate()
		ctx.State.ResetCandidate()

		if best == nil || gain > best.gain {
			best = &candidate{gain: gain, split: Split{
				DataUsed: src.DataUsed, ColumnIndex: colIdx, ColumnName: src.Name, CriticalValue: critical,
			}}
		}
	}
	return best, nil
}

// searchCategorical greedily grows the "greater" side's category set,
// adding whichever remaining category most improves the gain each
// round, stopping when no addition helps.
func (t *Tree) searchCategorical(ctx *Context, matches []match.Match, aggValues []float64, idxs []int32, colIdx int, src ColumnSource) (*candidate, error) {
	present := map[int32]bool{}
	for _, i := range idxs {
		present[src.Categories[i]] = true
	}

	chosen := map[int32]bool{}
	var best *candidate

	for round := 0; round < len(present); round++ {
		var roundBestCat int32 = -2
		var roundBest *candidate

		for cat := range present {
			if chosen[cat] {
				continue
			}
			trial := make(map[int32]bool, len(chosen)+1)
			for c := range chosen {
				trial[c] = true
			}
			trial[cat] = true

			var greater, smaller []int32
			for _, i := range idxs {
				if trial[src.Categories[i]] {
					greater = append(greater, i)
				} else {
					smaller = append(smaller, i)
				}
			}
			if len(greater) < ctx.Hyper.MinSamplesLeaf || len(smaller) < ctx.Hyper.MinSamplesLeaf {
				continue
			}

			side1, side2 := samplesFor(matches, aggValues, greater), samplesFor(matches, aggValues, smaller)
			if err := ctx.State.CalcAll(aggregation.Forward, math.NaN(), side1, side2); err != nil {
				return nil, err
			}
			gain, _, _ := ctx.evaluate()
			ctx.State.ResetCandidate()

			if roundBest == nil || gain > roundBest.gain {
				roundBest = &candidate{gain: gain, split: Split{
					DataUsed: src.DataUsed, ColumnIndex: colIdx, ColumnName: src.Name, Categories: trial,
				}}
				roundBestCat = cat
			}
		}

		if roundBest == nil || (best != nil && roundBest.gain <= best.gain) {
			break
		}
		best = roundBest
		chosen[roundBestCat] = true
	}

	return best, nil
}

func partition(sources []ColumnSource, idxs []int32, split Split) (greater, smaller []int32) {
	for _, i := range idxs {
		if split.test(sources, i) {
			greater = append(greater, i)
		} else {
			smaller = append(smaller, i)
		}
	}
	return
}

func samplesFor(matches []match.Match, aggValues []float64, idxs []int32) []aggregation.Sample {
	out := make([]aggregation.Sample, len(idxs))
	for k, i := range idxs {
		m := matches[i]
		out[k] = aggregation.Sample{Ix: m.IxOutput, InIx: m.IxInput, Value: aggValues[i]}
	}
	return out
}

// Transform evaluates the tree over a (possibly different) match set,
// producing one value per population row by aggregating each row's
// per-match leaf weight with the Kind the tree was fit under (Count,
// Sum or Avg - the families spec §4.5 folds into the leaf formula).
func (t *Tree) Transform(kind aggregation.Kind, nOutputs int, matches []match.Match, sources []ColumnSource) []float64 {
	sum := make([]float64, nOutputs)
	count := make([]float64, nOutputs)

	for i := range matches {
		ix := matches[i].IxOutput
		w := t.leafWeight(sources, int32(i))
		sum[int(ix)] += w
		count[int(ix)]++
	}

	out := make([]float64, nOutputs)
	for ix := 0; ix < nOutputs; ix++ {
		switch kind {
		case aggregation.Count:
			out[ix] = count[ix]
		case aggregation.Sum:
			out[ix] = sum[ix]
		default: // Avg and everything else folded through the scalar leaf
			if count[ix] == 0 {
				out[ix] = 0
			} else {
				out[ix] = sum[ix] / count[ix]
			}
		}
	}
	return out
}

func (t *Tree) leafWeight(sources []ColumnSource, i int32) float64 {
	idx := t.Root
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf {
			if len(node.LinearWeights) > 0 {
				var w float64
				for j, col := range node.LinearColumns {
					w += node.LinearWeights[j] * sources[col].Values[i]
				}
				return w
			}
			return node.Weight
		}
		if node.Split.test(sources, i) {
			idx = node.Greater
		} else {
			idx = node.Smaller
		}
	}
}
