package aggregation

import (
	"math"

	"github.com/relboost/relboost/errs"
)

// Revert selects whether CalcAll/CalcDiff builds a fresh candidate
// (Forward) or undoes one (Revert), mirroring the C++ enums::Revert tag
// threaded through calc_all/calc_diff in the original engine.
type Revert bool

const (
	Forward Revert = false
	Undo    Revert = true
)

// Sample is one (output index, value) contribution to the aggregation,
// produced by the split proposer's above/below partitioning of Matches.
// InIx identifies the peripheral row the sample came from, so
// DescriptiveState can remove exactly this contribution on deactivate.
// TS is populated only for pair-consuming kinds (first/last/EWMA/trend/
// time-since); State (the linear family) ignores it.
type Sample struct {
	Ix    uint32
	InIx  uint32
	Value float64
	TS    float64
}

// State is the per-output-row sufficient-statistics vector for the
// linear aggregation family (Count, Sum, Avg, AvgTimeBetween), grounded
// on original_source/src/relboost/Avg.cpp. It implements four of
// spec §4.4's eight per-row transitions - CalcAll, CalcDiff, Revert and
// Commit - at single-sample incremental cost. activate_from_above/below
// and deactivate_from_above/below are not exposed as separate methods:
// every caller in this port (tree's split search) rebuilds a candidate
// from scratch per grid point via CalcAll rather than sliding the
// boundary one row at a time, so CalcAll's two input slices (side1 =
// rows activated from above the cut, side2 = rows activated from below
// it) already perform the bulk activate_from_above/below work, and
// Commit/ResetCandidate perform the matching bulk deactivate. See
// DESIGN.md's aggregation entry for the scope reduction this implies
// for match.Match.Active.
//
// Invariant (spec §8.1): after Commit, every Count1[i] == Count2[i] == 0
// and Indices is empty.
type State struct {
	Kind Kind
	N    int // number of output rows

	AllowNullWeights bool

	CountCommitted  []float64
	Count1          []float64
	Count2          []float64
	SumCommitted    []float64 // only meaningful for Sum/Avg
	Sum1            []float64
	Sum2            []float64
	Eta1            []float64
	Eta2            []float64
	EtaOld          []float64
	Eta1_2Null      []float64
	Eta2_1Null      []float64
	WFixed1         []float64
	WFixed2         []float64
	WFixedCommitted []float64

	NumSamples1 float64
	NumSamples2 float64

	Indices        map[uint32]bool
	IndicesCurrent map[uint32]bool

	// revertState is a snapshot of the rows touched by the most recent
	// CalcDiff, taken immediately before the diff was applied, so Revert
	// can restore them bit-identically without re-deriving the math.
	revertState map[uint32]rowSnapshot
}

type rowSnapshot struct {
	count1, count2         float64
	sum1, sum2             float64
	eta1, eta2, etaOld     float64
	eta1_2Null, eta2_1Null float64
	wFixed1, wFixed2       float64
}

// NewState allocates a zeroed State for nOutputs rows.
func NewState(kind Kind, nOutputs int, allowNullWeights bool) *State {
	return &State{
		Kind:             kind,
		N:                nOutputs,
		AllowNullWeights: allowNullWeights,
		CountCommitted:   make([]float64, nOutputs),
		Count1:           make([]float64, nOutputs),
		Count2:           make([]float64, nOutputs),
		SumCommitted:     make([]float64, nOutputs),
		Sum1:             make([]float64, nOutputs),
		Sum2:             make([]float64, nOutputs),
		Eta1:             make([]float64, nOutputs),
		Eta2:             make([]float64, nOutputs),
		EtaOld:           make([]float64, nOutputs),
		Eta1_2Null:       make([]float64, nOutputs),
		Eta2_1Null:       make([]float64, nOutputs),
		WFixed1:          make([]float64, nOutputs),
		WFixed2:          make([]float64, nOutputs),
		WFixedCommitted:  make([]float64, nOutputs),
		Indices:          make(map[uint32]bool),
		IndicesCurrent:   make(map[uint32]bool),
	}
}

// Activate recomputes the NULL-weight boundary vectors for every row
// currently in Indices, following Avg::activate: when the opposite side
// has zero committed+candidate weight, the fallback fraction is zero;
// otherwise w_fixed is rescaled by the committed/total ratio.
func (s *State) Activate() {
	for ix := range s.Indices {
		denom1 := s.CountCommitted[ix] + s.Count1[ix]
		if denom1 == 0 {
			s.Eta1_2Null[ix] = 0
			s.WFixed1[ix] = 0
		} else {
			s.Eta1_2Null[ix] = s.Count1[ix] / denom1
			s.WFixed1[ix] = s.WFixedCommitted[ix] * s.CountCommitted[ix] / denom1
		}

		denom2 := s.CountCommitted[ix] + s.Count2[ix]
		if denom2 == 0 {
			s.Eta2_1Null[ix] = 0
			s.WFixed2[ix] = 0
		} else {
			s.Eta2_1Null[ix] = s.Count2[ix] / denom2
			s.WFixed2[ix] = s.WFixedCommitted[ix] * s.CountCommitted[ix] / denom2
		}
	}
}

// CalcAll recomputes every statistic from scratch for a fresh
// candidate split whose side-1 samples are side1 and side-2 samples
// are side2 (samples on neither side are simply not passed).
// oldWeight is the parent's already-committed leaf weight, or NaN if
// this is the tree's root.
func (s *State) CalcAll(revert Revert, oldWeight float64, side1, side2 []Sample) error {
	if len(s.Indices) != 0 || len(s.IndicesCurrent) != 0 {
		return errs.InvalidInput.New("CalcAll requires a freshly committed state")
	}

	s.NumSamples1 = 0
	s.NumSamples2 = 0

	hasOldWeight := !math.IsNaN(oldWeight)

	for _, sm := range side2 {
		s.touch(sm.Ix)
		if hasOldWeight {
			s.Eta2[sm.Ix] += 1.0 / s.CountCommitted[sm.Ix]
		}
		s.Count2[sm.Ix]++
		s.Sum2[sm.Ix] += sm.Value
		s.NumSamples2++
	}
	for _, sm := range side1 {
		s.touch(sm.Ix)
		if hasOldWeight {
			s.Eta1[sm.Ix] += 1.0 / s.CountCommitted[sm.Ix]
		}
		s.Count1[sm.Ix]++
		s.Sum1[sm.Ix] += sm.Value
		s.NumSamples1++
	}

	for ix := range s.Indices {
		if hasOldWeight {
			s.EtaOld[ix] = s.Count1[ix] + s.Count2[ix]
		} else {
			s.EtaOld[ix] = 0
		}
	}

	if s.AllowNullWeights {
		s.Activate()
	}

	return nil
}

func (s *State) touch(ix uint32) {
	s.Indices[ix] = true
	s.IndicesCurrent[ix] = true
}

// CalcDiff moves the split boundary, transferring the contribution of
// the given delta samples from side 2 into side 1 (Forward) or from
// side 1 back into side 2 (Undo) - the incremental move used when the
// split proposer slides the candidate boundary by a handful of
// samples instead of rebuilding the whole candidate from scratch.
func (s *State) CalcDiff(revert Revert, oldWeight float64, delta []Sample) {
	s.IndicesCurrent = make(map[uint32]bool, len(delta))
	s.revertState = make(map[uint32]rowSnapshot, len(delta))
	hasOldWeight := !math.IsNaN(oldWeight)

	for _, sm := range delta {
		ix := sm.Ix
		if _, ok := s.revertState[ix]; !ok {
			s.revertState[ix] = rowSnapshot{
				count1: s.Count1[ix], count2: s.Count2[ix],
				sum1: s.Sum1[ix], sum2: s.Sum2[ix],
				eta1: s.Eta1[ix], eta2: s.Eta2[ix], etaOld: s.EtaOld[ix],
				eta1_2Null: s.Eta1_2Null[ix], eta2_1Null: s.Eta2_1Null[ix],
				wFixed1: s.WFixed1[ix], wFixed2: s.WFixed2[ix],
			}
		}
		s.Indices[ix] = true
		s.IndicesCurrent[ix] = true

		var etaDelta float64
		if hasOldWeight {
			etaDelta = 1.0 / s.CountCommitted[ix]
		}

		if revert == Forward {
			s.Count2[ix]--
			s.Sum2[ix] -= sm.Value
			s.Count1[ix]++
			s.Sum1[ix] += sm.Value
			s.Eta2[ix] -= etaDelta
			s.Eta1[ix] += etaDelta
		} else {
			s.Count1[ix]--
			s.Sum1[ix] -= sm.Value
			s.Count2[ix]++
			s.Sum2[ix] += sm.Value
			s.Eta1[ix] -= etaDelta
			s.Eta2[ix] += etaDelta
		}
	}

	if s.AllowNullWeights {
		s.activateIndices(s.IndicesCurrent)
	}
}

func (s *State) activateIndices(idx map[uint32]bool) {
	for ix := range idx {
		denom1 := s.CountCommitted[ix] + s.Count1[ix]
		if denom1 == 0 {
			s.Eta1_2Null[ix] = 0
			s.WFixed1[ix] = 0
		} else {
			s.Eta1_2Null[ix] = s.Count1[ix] / denom1
			s.WFixed1[ix] = s.WFixedCommitted[ix] * s.CountCommitted[ix] / denom1
		}
		denom2 := s.CountCommitted[ix] + s.Count2[ix]
		if denom2 == 0 {
			s.Eta2_1Null[ix] = 0
			s.WFixed2[ix] = 0
		} else {
			s.Eta2_1Null[ix] = s.Count2[ix] / denom2
			s.WFixed2[ix] = s.WFixedCommitted[ix] * s.CountCommitted[ix] / denom2
		}
	}
}

// Revert undoes the most recent CalcDiff, restoring every touched row's
// fields bit-identically to their pre-diff values (spec §8 S4).
func (s *State) Revert(oldWeight float64) {
	for ix, snap := range s.revertState {
		s.Count1[ix] = snap.count1
		s.Count2[ix] = snap.count2
		s.Sum1[ix] = snap.sum1
		s.Sum2[ix] = snap.sum2
		s.Eta1[ix] = snap.eta1
		s.Eta2[ix] = snap.eta2
		s.EtaOld[ix] = snap.etaOld
		s.Eta1_2Null[ix] = snap.eta1_2Null
		s.Eta2_1Null[ix] = snap.eta2_1Null
		s.WFixed1[ix] = snap.wFixed1
		s.WFixed2[ix] = snap.wFixed2
	}
	s.IndicesCurrent = make(map[uint32]bool)
	s.revertState = nil
}

// Commit folds the chosen (w1, w2) leaf weights into WFixedCommitted and
// zeroes the candidate deltas. Per spec §8.1, after Commit every Count1
// and Count2 entry is zero and Indices is empty.
func (s *State) Commit(oldIntercept float64, oldWeight float64, w1, w2 float64) {
	for ix := range s.Indices {
		s.CountCommitted[ix] += s.Count1[ix] + s.Count2[ix]
		s.SumCommitted[ix] += s.Sum1[ix] + s.Sum2[ix]

		switch {
		case s.Count1[ix] > 0 && s.Count2[ix] == 0:
			s.WFixedCommitted[ix] = w1
		case s.Count2[ix] > 0 && s.Count1[ix] == 0:
			s.WFixedCommitted[ix] = w2
		case s.Count1[ix] > 0 && s.Count2[ix] > 0:
			// A row with samples on both sides of a split it didn't
			// itself pass through (can happen for ancestor-committed
			// rows revisited by a sibling node): blend by count.
			total := s.Count1[ix] + s.Count2[ix]
			s.WFixedCommitted[ix] = (w1*s.Count1[ix] + w2*s.Count2[ix]) / total
		}

		s.Count1[ix] = 0
		s.Count2[ix] = 0
		s.Sum1[ix] = 0
		s.Sum2[ix] = 0
		s.Eta1[ix] = 0
		s.Eta2[ix] = 0
	}
	s.Indices = make(map[uint32]bool)
	s.IndicesCurrent = make(map[uint32]bool)
	s.revertState = nil
}

// ResetCandidate abandons the current candidate (uncommitted) state
// without folding anything into WFixedCommitted - used by the split
// proposer between candidates that lose to a better one, so the next
// CalcAll starts from a clean slate.
func (s *State) ResetCandidate() {
	for ix := range s.Indices {
		s.Count1[ix] = 0
		s.Count2[ix] = 0
		s.Sum1[ix] = 0
		s.Sum2[ix] = 0
		s.Eta1[ix] = 0
		s.Eta2[ix] = 0
		s.EtaOld[ix] = 0
		s.Eta1_2Null[ix] = 0
		s.Eta2_1Null[ix] = 0
	}
	s.Indices = make(map[uint32]bool)
	s.IndicesCurrent = make(map[uint32]bool)
	s.revertState = nil
}

// Output returns the current aggregation value for output row ix,
// folding in committed + any still-active candidate contribution
// (used by package ensemble's snowflake subfeature Transform).
func (s *State) Output(ix uint32) float64 {
	count := s.CountCommitted[ix] + s.Count1[ix] + s.Count2[ix]
	sum := s.SumCommitted[ix] + s.Sum1[ix] + s.Sum2[ix]
	switch s.Kind {
	case Count:
		return count
	case Sum:
		return sum
	case Avg, AvgTimeBetween:
		if count == 0 {
			return 0
		}
		return sum / count
	default:
		return 0
	}
}
