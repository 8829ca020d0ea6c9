package tree

import (
	"math/rand"

	"github.com/relboost/relboost/aggregation"
)

// LeafKind selects the leaf weight representation: a single scalar
// (the ordinary gradient-boosting leaf) or the relmt linear variant,
// where the leaf instead holds a small linear model over a fixed set
// of numeric columns.
type LeafKind int

const (
	LeafScalar LeafKind = iota
	LeafLinear
)

// Hyperparams bundles the split-proposer knobs named in spec §6 that
// matter to a single tree's fit.
type Hyperparams struct {
	MaxDepth         int
	MinSamplesLeaf   int
	GridFactor       float64 // candidate grid size = max(GridFactor*sqrt(n), 1)
	MinLossReduction float64
	RegLambda        float64
	MaxStep          float64
	ShareConditions  float64 // probability a given column is considered at all, in (0,1]
	LeafKind         LeafKind
	// LinearColumns names the ColumnSource indices relmt's linear leaf
	// regresses against; unused unless LeafKind == LeafLinear.
	LinearColumns []int
}

// Context is the state shared by every node of one tree's fit: the
// per-output-row gradients/Hessians from the current boosting round,
// the aggregation State used to score candidate splits, and the
// hyperparameters and RNG governing the search.
type Context struct {
	Hyper Hyperparams

	G, H  []float64 // indexed by population row (match.Match.IxOutput)
	State *aggregation.State

	RNG *rand.Rand
}

func clip(v, max float64) float64 {
	if max <= 0 {
		return v
	}
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// evaluate scores the candidate currently loaded into ctx.State
// (via CalcAll), returning the gain from splitting versus not, and the
// two children's leaf weights.
func (ctx *Context) evaluate() (gain, w1, w2 float64) {
	var G1, H1, G2, H2 float64
	s := ctx.State
	for ix := range s.Indices {
		c1 := s.Count1[ix]
		c2 := s.Count2[ix]
		total := c1 + c2
		if total == 0 {
			continue
		}
		f1 := c1 / total
		f2 := c2 / total
		g := ctx.G[ix]
		h := ctx.H[ix]
		G1 += g * f1
		H1 += h * f1
		G2 += g * f2
		H2 += h * f2
	}

	lambda := ctx.Hyper.RegLambda
	w1 = clip(-G1/(H1+lambda), ctx.Hyper.MaxStep)
	w2 = clip(-G2/(H2+lambda), ctx.Hyper.MaxStep)

	parentG, parentH := G1+G2, H1+H2
	gain = (G1*G1)/(H1+lambda) + (G2*G2)/(H2+lambda) - (parentG*parentG)/(parentH+lambda)
	return gain, w1, w2
}
