// Package fastprop implements the non-boosted propositionalization
// path described in spec §4.8: a fixed catalog of AbstractFeatures is
// evaluated directly against match sets, with no split search and no
// learned weights - the counterpart to package ensemble/tree's boosted
// path, and the package that exercises aggregation.DescriptiveState's
// full kind catalog end to end (see DESIGN.md's aggregation entry).
package fastprop

import "github.com/relboost/relboost/aggregation"

// DataUsed names the column family an AbstractFeature reads from,
// mirroring tree.DataUsed's categories but adding Text (fastprop is the
// only path that propositionalizes text columns, per spec §4.8) and
// dropping the population/peripheral split tree.DataUsed makes - a
// fastprop feature always reads a peripheral-side column relative to
// one fixed population.
type DataUsed int

const (
	Numerical DataUsed = iota
	Discrete
	Categorical
	Text
	SameUnit
	TimeWindow
	Subfeature
)

// Condition is one per-match predicate an AbstractFeature can be
// restricted by, grounded on Aggregator::apply_condition.
type Condition struct {
	ColumnName  string
	Categorical bool
	Category    int32   // tested when Categorical
	Threshold   float64 // tested when !Categorical
	Greater     bool    // true: value > Threshold; false: value <= Threshold
}

// AbstractFeature is one catalog entry spec §4.8 describes:
// {aggregation, data_used, input_col, output_col, categorical_value?, conditions}.
type AbstractFeature struct {
	Aggregation      aggregation.Kind
	Param            float64 // Quantile percentile / EWMA half-life, as aggregation.Kind needs
	DataUsed         DataUsed
	Peripheral       string
	InputCol         string // value column read from the peripheral frame ("" for COUNT)
	PopulationCol    string // population-side column, only read when DataUsed == SameUnit
	OutputCol        string // name given to the produced feature
	CategoricalValue int32  // >=0: count matches whose InputCol category equals this value
	Conditions       []Condition
}
