// Package match implements the match index described in spec §4.2: for
// a (population, peripheral) pair, enumerate the (ix_output, ix_input)
// row pairs that satisfy the placeholder's join-key equalities and
// time-stamp window.
package match

import (
	"sort"

	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/placeholder"
)

// Match is one qualifying (population row, peripheral row) pair.
//
// Active mirrors spec §3's per-match activation flag (the bit
// activate_from_above/below and deactivate_from_above/below flip in the
// original engine). This port's split search (package tree) never
// mutates it: it rebuilds each grid candidate's side1/side2 row sets
// directly from the split test rather than sliding a persistent
// boundary match-by-match, so no call site ever needs to flip a single
// match's activation state in place - see DESIGN.md's aggregation
// entry.
type Match struct {
	IxOutput     uint32
	IxInput      uint32
	SampleWeight float32
	Active       bool
}

// Matches is the dense set of matches for one (population, peripheral)
// pair, in IxOutput order (ties on IxOutput broken by IxInput, which is
// itself assigned in peripheral row order - the deterministic tie-break
// spec §4.2 requires).
type Matches struct {
	rows []Match
}

// Len returns the number of matches.
func (m *Matches) Len() int { return len(m.rows) }

// At returns the i'th match.
func (m *Matches) At(i int) Match { return m.rows[i] }

// Slice returns the underlying slice; callers that sort it by a split
// column must keep IxOutput order stable within ties via a stable sort.
func (m *Matches) Slice() []Match { return m.rows }

// Range returns the contiguous slice [lo, hi).
func (m *Matches) Range(lo, hi int) []Match { return m.rows[lo:hi] }

// Build enumerates matches for a single placeholder edge: population
// rows on one side, peripheral rows on the other, joined on p's
// JoinKeysUsed and filtered by its time-stamp window. Matches for rows
// with zero sample weight are dropped. Complexity is
// O(|population| x avg-matches-per-output): the peripheral's per-join-key
// index is used instead of a Cartesian scan.
func Build(pop, perip *frame.DataFrame, p *placeholder.Placeholder, sampleWeights []float32) (*Matches, error) {
	out := &Matches{}

	var popTS, peripLowerTS, peripUpperTS *frame.Column
	if p.TimeStampsUsed != "" {
		var err error
		if peripLowerTS, err = perip.Column(p.TimeStampsUsed); err != nil {
			return nil, err
		}
	}
	if p.UpperTimeStampsUsed != "" {
		var err error
		if peripUpperTS, err = perip.Column(p.UpperTimeStampsUsed); err != nil {
			return nil, err
		}
	}
	if peripLowerTS != nil || peripUpperTS != nil {
		// The population side of the window is always its designated
		// time-stamp-role column; spec §3 treats "the population time
		// stamp" as a single implicit value per row.
		cols := pop.ColumnsByRole(frame.RoleTimeStamp)
		if len(cols) > 0 {
			popTS = cols[0]
		}
	}

	popKeyCols := make([]*frame.Column, len(p.JoinKeysUsed))
	peripKeyCols := make([]*frame.Column, len(p.JoinKeysUsed))
	for i, jk := range p.JoinKeysUsed {
		var err error
		if popKeyCols[i], err = pop.Column(jk.PopulationColumn); err != nil {
			return nil, err
		}
		if peripKeyCols[i], err = perip.Column(jk.PeripheralColumn); err != nil {
			return nil, err
		}
	}

	nPop := pop.NRows()
	for ixOutput := 0; ixOutput < nPop; ixOutput++ {
		if sampleWeights != nil && ixOutput < len(sampleWeights) && sampleWeights[ixOutput] == 0 {
			continue
		}

		// Candidate peripheral rows: intersect the index lookups of
		// every join-key pair, starting from the most selective column
		// (the first one, per the placeholder's declared order).
		candidates := perip.IndexLookup(p.JoinKeysUsed[0].PeripheralColumn, popKeyCols[0].Ints[ixOutput])
		if len(candidates) == 0 {
			continue
		}

		var outTS float64
		hasOutTS := popTS != nil
		if hasOutTS {
			outTS = popTS.Floats[ixOutput]
		}

		for _, ixInput32 := range candidates {
			ixInput := int(ixInput32)

			matched := true
			for k := 1; k < len(p.JoinKeysUsed); k++ {
				if popKeyCols[k].Ints[ixOutput] != peripKeyCols[k].Ints[ixInput] {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}

			if hasOutTS && peripLowerTS != nil {
				if !(peripLowerTS.Floats[ixInput] <= outTS) {
					continue
				}
			}
			if hasOutTS && peripUpperTS != nil {
				if !(outTS < peripUpperTS.Floats[ixInput]) {
					continue
				}
			}

			w := float32(1)
			if sampleWeights != nil && ixOutput < len(sampleWeights) {
				w = sampleWeights[ixOutput]
			}
			if w == 0 {
				continue
			}

			out.rows = append(out.rows, Match{
				IxOutput:     uint32(ixOutput),
				IxInput:      ixInput32,
				SampleWeight: w,
			})
		}
	}

	// Matches are already grouped by IxOutput (outer loop order); within
	// an IxOutput group, sort by IxInput to get the deterministic
	// peripheral-row-id tie-break spec §4.2 requires for equal time stamps.
	sort.SliceStable(out.rows, func(i, j int) bool {
		if out.rows[i].IxOutput != out.rows[j].IxOutput {
			return out.rows[i].IxOutput < out.rows[j].IxOutput
		}
		return out.rows[i].IxInput < out.rows[j].IxInput
	})

	return out, nil
}
