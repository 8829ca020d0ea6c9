package frame

import (
	"github.com/spf13/cast"

	"github.com/relboost/relboost/errs"
)

// RawColumn is one column of heterogeneously-typed input values -
// what a CSV reader or a database driver hands back before it is
// coerced into one of Column's fixed-type slices (spec §4.1's column
// types apply from ingestion onward, not just to already-typed data).
type RawColumn struct {
	Name   string
	Unit   string
	Role   Role
	Kind   Kind
	Values []interface{}

	// Encoding is required when Kind is CategoryID or Role is
	// RoleJoinKey, shared across every RawColumn ingested against the
	// same dictionary so population and peripheral frames agree on
	// what a code means.
	Encoding *Encoding
}

// NewColumnFromValues coerces a RawColumn's heterogeneous values into
// a typed Column, following the teacher's own "be liberal in what a
// driver hands you" stance on database values (ints arriving as
// int64, floats as string, etc.) by reaching for spf13/cast rather
// than hand-rolling a type switch per source type.
func NewColumnFromValues(rc RawColumn) (*Column, error) {
	switch rc.Kind {
	case Float64, TimeStampFloat:
		out := make([]float64, len(rc.Values))
		for i, v := range rc.Values {
			f, err := cast.ToFloat64E(v)
			if err != nil {
				return nil, errs.InvalidInput.Wrap(err, "frame: column "+rc.Name+" row "+itoa(i))
			}
			out[i] = f
		}
		return &Column{Name: rc.Name, Unit: rc.Unit, Role: rc.Role, Kind: rc.Kind, Floats: out}, nil

	case Int32:
		out := make([]int32, len(rc.Values))
		for i, v := range rc.Values {
			n, err := cast.ToInt32E(v)
			if err != nil {
				return nil, errs.InvalidInput.Wrap(err, "frame: column "+rc.Name+" row "+itoa(i))
			}
			out[i] = n
		}
		return &Column{Name: rc.Name, Unit: rc.Unit, Role: rc.Role, Kind: Int32, Ints: out}, nil

	case CategoryID:
		if rc.Encoding == nil {
			return nil, errs.InvalidInput.New("frame: column " + rc.Name + " is CategoryID but has no Encoding")
		}
		out := make([]int32, len(rc.Values))
		for i, v := range rc.Values {
			if v == nil {
				out[i] = -1
				continue
			}
			s, err := cast.ToStringE(v)
			if err != nil {
				return nil, errs.InvalidInput.Wrap(err, "frame: column "+rc.Name+" row "+itoa(i))
			}
			out[i] = rc.Encoding.Encode(s)
		}
		return &Column{Name: rc.Name, Unit: rc.Unit, Role: rc.Role, Kind: CategoryID, Ints: out, Encoding: rc.Encoding}, nil

	case StringBag:
		out := make([][]string, len(rc.Values))
		for i, v := range rc.Values {
			switch tv := v.(type) {
			case nil:
				out[i] = nil
			case []string:
				out[i] = tv
			default:
				s, err := cast.ToStringE(v)
				if err != nil {
					return nil, errs.InvalidInput.Wrap(err, "frame: column "+rc.Name+" row "+itoa(i))
				}
				out[i] = []string{s}
			}
		}
		return &Column{Name: rc.Name, Unit: rc.Unit, Role: rc.Role, Kind: StringBag, Strings: out}, nil

	default:
		return nil, errs.InvalidInput.New("frame: unknown column kind for " + rc.Name)
	}
}

// NewDataFrameFromRows builds a DataFrame from a row-oriented source:
// cols names each column once (order fixed), rows is one []interface{}
// per record in cols' column order. This is the ingestion path a CSV
// or database reader feeds into the engine, as opposed to the
// already-typed NewFloatColumn/NewIntColumn/NewStringBagColumn
// constructors package aggregation/ensemble/rpc build fixtures with
// directly.
func NewDataFrameFromRows(name string, cols []RawColumn, rows [][]interface{}) (*DataFrame, error) {
	values := make([][]interface{}, len(cols))
	for _, row := range rows {
		if len(row) != len(cols) {
			return nil, errs.InvalidInput.New("frame: row has " + itoa(len(row)) + " values, expected " + itoa(len(cols)))
		}
		for i, v := range row {
			values[i] = append(values[i], v)
		}
	}

	df := New(name)
	for i, rc := range cols {
		rc.Values = values[i]
		col, err := NewColumnFromValues(rc)
		if err != nil {
			return nil, err
		}
		if err := df.AddColumn(col); err != nil {
			return nil, err
		}
	}
	df.CreateIndices()
	return df, nil
}
