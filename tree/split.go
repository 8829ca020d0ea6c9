// Package tree implements the decision-tree node and split proposer
// described in spec §4.5: a boosted feature is one tree over a single
// (population, peripheral) match set, whose leaves carry a weight
// folded back into the match set's aggregation state (package
// aggregation) via the gradient-boosting leaf formula
// w = -sum(g)/(sum(h)+lambda), clipped to [-max_step, max_step].
package tree

// DataUsed names the column family a Split tests, mirroring
// DecisionTreeNode.hpp's categorical_data_used/categories_used split
// between "what kind of column did this condition come from".
type DataUsed int

const (
	PopulationNumerical DataUsed = iota
	PopulationDiscrete
	PopulationCategorical
	PeripheralNumerical
	PeripheralDiscrete
	PeripheralCategorical
	SameUnit
	TimeWindow
	Subfeature
)

// IsCategorical reports whether the split tests set membership
// (Categories) rather than a numeric critical value.
func (d DataUsed) IsCategorical() bool {
	return d == PopulationCategorical || d == PeripheralCategorical
}

// Split is one node's condition: "column > critical value" for numeric
// families, or "category is in Categories" for categorical ones.
// ApplyFromAbove records, for a reloaded tree, which side a row with a
// missing value in ColumnIndex would have been routed to at fit time.
type Split struct {
	DataUsed       DataUsed
	ColumnIndex    int
	ColumnName     string
	CriticalValue  float64
	Categories     map[int32]bool
	ApplyFromAbove bool
}

// test reports whether match i (indexing into the Sources given to
// Fit/Transform) goes to the "greater" child.
func (s *Split) test(sources []ColumnSource, i int32) bool {
	src := sources[s.ColumnIndex]
	if s.DataUsed.IsCategorical() {
		return s.Categories[src.Categories[i]]
	}
	return src.Values[i] > s.CriticalValue
}

// ColumnSource is one candidate split column, its values aligned
// position-for-position with the Matches slice a Tree was built from.
type ColumnSource struct {
	DataUsed   DataUsed
	Name       string
	Values     []float64 // numeric families
	Categories []int32   // categorical families; -1 == NULL
}
