// Package ensemble implements the tree-ensemble driver described in
// spec §4.6: the gradient-boosting outer loop that fits one tree per
// feature, plus the fixed {avg, sum} snowflake sub-ensemble pair for
// peripherals that are themselves joined to further peripherals.
package ensemble

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/concurrency"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/match"
	"github.com/relboost/relboost/optim"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/tree"
)

// snowflakeKinds is Open Question (ii), resolved per spec.md §9: the
// subfeature aggregation pair a nested peripheral's sub-ensemble
// computes is fixed at exactly {avg, sum}, never a configurable set.
var snowflakeKinds = [2]aggregation.Kind{aggregation.Avg, aggregation.Sum}

// Feature is one learned tree, paired with the aggregation kind and
// root peripheral column it folds its leaves through.
type Feature struct {
	Tree       *tree.Tree
	Kind       aggregation.Kind
	ValueCol   string // peripheral numerical column the tree aggregates
	Peripheral string
}

// Ensemble is a fitted FittedEnsemble (spec §3): immutable once Fit
// returns, safe for concurrent Transform calls.
type Ensemble struct {
	ID string

	Placeholder *placeholder.Placeholder
	TargetNames []string

	Features []Feature

	// Subfeatures holds the fixed {avg, sum} subfeature pair (Open
	// Question ii) for every grandchild of a snowflake peripheral (spec
	// §4.6), keyed by the immediate peripheral's placeholder name.
	Subfeatures map[string][]Subfeature
}

// Hyperparams bundles the outer-loop knobs spec §6 names.
type Hyperparams struct {
	NumFeatures    int
	NumCandidates  int
	Shrinkage      float64
	SamplingFactor float64
	Loss           optim.Loss
	Seed           int64
	AllowedKinds   []aggregation.Kind // nil means {Count, Sum, Avg}
	Tree           tree.Hyperparams

	// NumThreads sizes the goroutine pool fitCandidatePool partitions
	// the candidate tree pool across (spec §4.6/§4.7's "fit all pool
	// members in parallel ... reduce to the largest loss-reduction");
	// <= 1 runs the pool on a single goroutine.
	NumThreads int
}

// FitInput bundles everything one Fit call needs: the population frame,
// its target column, every peripheral frame keyed by placeholder name,
// and the join-tree describing how they relate.
type FitInput struct {
	Population  *frame.DataFrame
	Peripherals map[string]*frame.DataFrame
	Placeholder *placeholder.Placeholder
	Target      []float64
	TargetNames []string
	Hyper       Hyperparams

	// Ctx, if non-nil, is checked once per feature (spec §8 S6's "a fit
	// cancelled mid-feature returns Interrupted and leaves the engine
	// pre-call-equivalent"): a single-goroutine concurrency.Communicator
	// turns the observed cancellation into the same errs.Interrupted a
	// multi-goroutine Checkpoint failure would produce, so the outer
	// loop's interruption path is the collective-cancellation primitive
	// package concurrency defines rather than a bare ctx.Err() check.
	// Nil means "never cancel", matching context.Background() callers.
	Ctx context.Context
}

func defaultKinds() []aggregation.Kind {
	return []aggregation.Kind{aggregation.Count, aggregation.Sum, aggregation.Avg}
}

func findChild(p *placeholder.Placeholder, name string) *placeholder.Placeholder {
	for _, c := range p.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Fit runs the gradient-boosting outer loop spec §4.6 describes: refresh
// sample weights, reset residuals, fit a small candidate pool per
// feature in parallel, keep the best, shrink it into yhat_old, repeat.
func Fit(in FitInput) (*Ensemble, error) {
	if in.Population == nil {
		return nil, errs.InvalidInput.New("ensemble: nil population frame")
	}
	if err := placeholder.Validate(in.Placeholder); err != nil {
		return nil, err
	}

	log := logrus.WithField("component", "ensemble")

	generatedID, err := uuid.NewV4()
	if err != nil {
		return nil, errs.InvalidInput.Wrap(err, "ensemble: generating id")
	}
	id := generatedID.String()
	ens := &Ensemble{
		ID:          id,
		Placeholder: in.Placeholder,
		TargetNames: in.TargetNames,
		Subfeatures: make(map[string][]Subfeature),
	}

	rootRng := rand.New(rand.NewSource(in.Hyper.Seed))

	criterion, err := optim.New(in.Hyper.Loss, in.Target, in.Hyper.SamplingFactor, rootRng.Float64)
	if err != nil {
		return nil, err
	}
	criterion.Init(nil)

	kinds := in.Hyper.AllowedKinds
	if len(kinds) == 0 {
		kinds = defaultKinds()
	}

	ctx := in.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	cancelComm := concurrency.NewCommunicator(1)

	for _, child := range in.Placeholder.Children {
		perip, ok := in.Peripherals[child.Name]
		if !ok {
			return nil, errs.InvalidInput.New("ensemble: no peripheral frame for %q", child.Name)
		}

		var subfeatureColumns map[string][]float64
		if child.IsSnowflake() {
			subs, err := fitSubfeatures(perip, in.Peripherals, child)
			if err != nil {
				return nil, err
			}
			ens.Subfeatures[child.Name] = subs

			subfeatureColumns, err = evalSubfeatureColumns(perip, in.Peripherals, child, subs)
			if err != nil {
				return nil, err
			}
		}

		for f := 0; f < in.Hyper.NumFeatures; f++ {
			if err := ctx.Err(); err != nil {
				return nil, cancelComm.Checkpoint(nil, false)
			}

			sampleWeights := criterion.MakeSampleWeights()
			matches, err := match.Build(in.Population, perip, child, sampleWeights)
			if err != nil {
				return nil, err
			}
			if matches.Len() == 0 {
				continue
			}

			sources, numericValues, err := buildSources(in.Population, perip, matches.Slice(), subfeatureColumns)
			if err != nil {
				return nil, err
			}

			best, bestScore := fitCandidatePool(in.Hyper, in.Population.NRows(), matches, sources, numericValues, kinds, criterion, rootRng)
			if best == nil {
				continue
			}

			best.Peripheral = child.Name
			predictions := best.Tree.Transform(best.Kind, in.Population.NRows(), matches.Slice(), sources)
			rate := criterion.UpdateYHatOld(sampleWeights, predictions, in.Hyper.Shrinkage)
			log.WithFields(logrus.Fields{
				"feature": f, "peripheral": child.Name, "kind": best.Kind,
				"gain": bestScore, "rate": rate,
			}).Debug("committed feature")

			ens.Features = append(ens.Features, *best)
		}
	}

	return ens, nil
}

// candidateDraw is one candidate tree's root pick, fixed before any
// goroutine starts so the outcome does not depend on thread count or
// scheduling order (spec §4.6's "deterministic function of the reduced
// statistics given a fixed seed", §4.5's Ordering guarantee (iii)).
type candidateDraw struct {
	valueCol string
	kind     aggregation.Kind
	seed     int64
}

// chunkBounds splits n items as evenly as possible across numThreads
// ranks, rank-th chunk first, matching Communicator's "fixed pool of
// cooperating goroutines" model (concurrency.Communicator's own doc
// comment) rather than a work-stealing queue.
func chunkBounds(n, numThreads, rank int) (lo, hi int) {
	base := n / numThreads
	rem := n % numThreads
	lo = rank*base + min(rank, rem)
	hi = lo + base
	if rank < rem {
		hi++
	}
	return lo, hi
}

// fitCandidatePool fits Hyper.NumCandidates trees, partitioned across
// Hyper.NumThreads goroutines via a concurrency.Communicator, and
// returns whichever produced the largest potential loss reduction -
// spec §4.6's "fit all pool members in parallel and keep the one whose
// root produced the largest loss-reduction" and §4.5's "the winner of
// all_reduce(max-loss-reduction, ties by lexicographic tuple) is the
// global winner". Each rank fits its own chunk of candidates against
// its own aggregation.State (never shared across goroutines), then
// every rank's best local score is combined with AllReduceScalar so
// every goroutine agrees on the pool's winning score before any one of
// them reports its Feature back.
func fitCandidatePool(hyper Hyperparams, nOutputs int, matches *match.Matches, sources []tree.ColumnSource, numericValues map[string][]float64, kinds []aggregation.Kind, criterion *optim.Criterion, rng *rand.Rand) (*Feature, float64) {
	if len(numericValues) == 0 {
		return nil, 0
	}
	names := make([]string, 0, len(numericValues))
	for name := range numericValues {
		names = append(names, name)
	}
	sort.Strings(names) // fixed iteration order: map order would make rng.Intn draws nondeterministic

	numCandidates := hyper.NumCandidates
	if numCandidates < 1 {
		numCandidates = 1
	}

	draws := make([]candidateDraw, numCandidates)
	for c := 0; c < numCandidates; c++ {
		draws[c] = candidateDraw{
			valueCol: names[rng.Intn(len(names))],
			kind:     kinds[rng.Intn(len(kinds))],
			seed:     rng.Int63(),
		}
	}

	numThreads := hyper.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}
	if numThreads > numCandidates {
		numThreads = numCandidates
	}

	comm := concurrency.NewCommunicator(numThreads)

	var mu sync.Mutex
	bestIdx := -1
	var best *Feature
	var bestScore float64

	var wg sync.WaitGroup
	for rank := 0; rank < numThreads; rank++ {
		lo, hi := chunkBounds(numCandidates, numThreads, rank)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()

			localIdx := -1
			var localBest *Feature
			localScore := math.Inf(-1)

			for c := lo; c < hi; c++ {
				d := draws[c]
				ctx := &tree.Context{
					Hyper: hyper.Tree,
					G:     criterion.G(),
					H:     criterion.H(),
					State: aggregation.NewState(d.kind, nOutputs, false),
					RNG:   rand.New(rand.NewSource(d.seed)),
				}

				t, err := tree.Fit(ctx, matches.Slice(), numericValues[d.valueCol], sources)
				if err != nil {
					continue
				}

				predictions := t.Transform(d.kind, nOutputs, matches.Slice(), sources)
				score := criterion.PotentialGain(nil, predictions)
				if localBest == nil || score > localScore {
					localBest = &Feature{Tree: t, Kind: d.kind, ValueCol: d.valueCol}
					localScore = score
					localIdx = c
				}
			}

			globalMax := concurrency.AllReduceScalar(comm, nil, localScore, func(a, b float64) float64 {
				if b > a {
					return b
				}
				return a
			})

			if localBest == nil || localScore != globalMax {
				return
			}
			mu.Lock()
			if bestIdx == -1 || localIdx < bestIdx {
				bestIdx, best, bestScore = localIdx, localBest, localScore
			}
			mu.Unlock()
		}(lo, hi)
	}
	wg.Wait()

	return best, bestScore
}
