package fastprop

import (
	"strconv"
	"strings"

	"github.com/relboost/relboost/aggregation"
)

// pair is one (timestamp, value) sample for the first/last family,
// grounded on Memoization.hpp's std::pair<Float, Float> cache entries.
type pair struct {
	TS    float64
	Value float64
}

// memoKey is the subset of AbstractFeature's fields Memoization.hpp's
// is_same compares - deliberately excluding Aggregation (apart from
// whether it extracts time stamps instead of values), so that two
// catalog entries differing only in aggregation (e.g. avg vs sum over
// the same column and conditions) share one extraction.
type memoKey struct {
	dataUsed         DataUsed
	peripheral       string
	inputCol         string
	populationCol    string
	timeStamps       bool // AvgTimeBetween extracts time stamps, not values
	categoricalValue int32
	conditions       string // conditions rendered to a comparable string
}

func keyOf(af AbstractFeature) memoKey {
	return memoKey{
		dataUsed:         af.DataUsed,
		peripheral:       af.Peripheral,
		inputCol:         af.InputCol,
		populationCol:    af.PopulationCol,
		timeStamps:       af.Aggregation == aggregation.AvgTimeBetween,
		categoricalValue: af.CategoricalValue,
		conditions:       renderConditions(af.Conditions),
	}
}

// renderConditions serializes every field of each Condition, matching
// Memoization.hpp's conditions_match (full per-condition equality, not
// just which columns are involved).
func renderConditions(conds []Condition) string {
	if len(conds) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range conds {
		b.WriteString(c.ColumnName)
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(c.Categorical))
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(int64(c.Category), 10))
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(c.Threshold, 'g', -1, 64))
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(c.Greater))
		b.WriteByte(';')
	}
	return b.String()
}

// Memoization caches the most recent numerical range or pair range
// extracted for one row's matches, keyed by the AbstractFeature fields
// that determine the extraction (not the aggregation itself), per
// Memoization.hpp. A row's catalog evaluation should construct one
// Memoization and call Reset between rows.
type Memoization struct {
	numericalKey *memoKey
	numerical    []float64

	pairsKey *memoKey
	pairs    []pair
}

// NewMemoization returns an empty cache.
func NewMemoization() *Memoization {
	return &Memoization{}
}

// Reset clears both cached extractions, forcing the next feature
// evaluated to re-extract - called between output rows.
func (m *Memoization) Reset() {
	m.numericalKey = nil
	m.numerical = nil
	m.pairsKey = nil
	m.pairs = nil
}

// memorizeNumerical returns the cached extraction for af if the cache
// key matches, else calls extract and caches its result.
func (m *Memoization) memorizeNumerical(af AbstractFeature, extract func() []float64) []float64 {
	key := keyOf(af)
	if m.numericalKey != nil && *m.numericalKey == key {
		return m.numerical
	}
	m.numerical = extract()
	m.numericalKey = &key
	return m.numerical
}

// memorizePairs returns the cached pair extraction for af if the cache
// key matches, else calls extract and caches its result.
func (m *Memoization) memorizePairs(af AbstractFeature, extract func() []pair) []pair {
	key := keyOf(af)
	if m.pairsKey != nil && *m.pairsKey == key {
		return m.pairs
	}
	m.pairs = extract()
	m.pairsKey = &key
	return m.pairs
}
