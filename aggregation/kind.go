package aggregation

import "time"

// Kind enumerates every aggregation variant spec §4.4 lists.
type Kind int

const (
	Count Kind = iota
	CountDistinct
	CountMinusCountDistinct
	Sum
	Avg
	AvgTimeBetween
	Min
	Max
	Median
	Mode
	NumMax
	NumMin
	Quantile // Param holds the percentile in (0,100), e.g. Q1 -> 1, Q99 -> 99
	Stddev
	Var
	VariationCoefficient
	Skew
	Kurtosis
	First
	Last
	EWMA      // Param holds the half-life in seconds
	EWMATrend // Param holds the half-life in seconds
	TimeSinceFirstMinimum
	TimeSinceFirstMaximum
	TimeSinceLastMinimum
	TimeSinceLastMaximum
	Trend
)

var kindNames = map[Kind]string{
	Count: "count", CountDistinct: "count_distinct", CountMinusCountDistinct: "count_minus_count_distinct",
	Sum: "sum", Avg: "avg", AvgTimeBetween: "avg_time_between",
	Min: "min", Max: "max", Median: "median", Mode: "mode", NumMax: "num_max", NumMin: "num_min",
	Quantile: "quantile", Stddev: "stddev", Var: "var", VariationCoefficient: "variation_coefficient",
	Skew: "skew", Kurtosis: "kurtosis", First: "first", Last: "last",
	EWMA: "ewma", EWMATrend: "ewma_trend",
	TimeSinceFirstMinimum: "time_since_first_minimum", TimeSinceFirstMaximum: "time_since_first_maximum",
	TimeSinceLastMinimum: "time_since_last_minimum", TimeSinceLastMaximum: "time_since_last_maximum",
	Trend: "trend",
}

// String returns the lower_snake_case name spec.md §4.4 and the SQL
// emitter (package sqlgen) use for this kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Half-life presets for the EWMA_* / EWMA_TREND_* families named in spec §4.4.
var (
	HalfLife1Second = time.Second.Seconds()
	HalfLife1Minute = time.Minute.Seconds()
	HalfLife1Hour   = time.Hour.Seconds()
	HalfLife1Day    = (24 * time.Hour).Seconds()
	HalfLife7Days   = (7 * 24 * time.Hour).Seconds()
	HalfLife30Days  = (30 * 24 * time.Hour).Seconds()
	HalfLife90Days  = (90 * 24 * time.Hour).Seconds()
	HalfLife365Days = (365 * 24 * time.Hour).Seconds()
)

// IsLinear reports whether the kind is handled by the fully incremental
// State machine (count/sum/mean-type identities foldable into a single
// committed scalar weight). All other kinds are descriptive statistics
// handled by DescriptiveState, which recomputes from the active raw
// sample set on every transition - correct, but not O(1) per sample;
// see DESIGN.md for the rationale.
func (k Kind) IsLinear() bool {
	switch k {
	case Count, Sum, Avg, AvgTimeBetween:
		return true
	default:
		return false
	}
}

// ConsumesPairs reports whether the kind consumes (timestamp, value)
// pairs rather than a bare scalar value stream (spec §4.4).
func (k Kind) ConsumesPairs() bool {
	switch k {
	case First, Last,
		EWMA, EWMATrend,
		TimeSinceFirstMinimum, TimeSinceFirstMaximum,
		TimeSinceLastMinimum, TimeSinceLastMaximum,
		Trend:
		return true
	default:
		return false
	}
}
