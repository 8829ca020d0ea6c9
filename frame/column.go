// Package frame implements the typed column store and data frame
// described in spec §4.1: columns of a fixed semantic type, grouped by
// role into a DataFrame, with join-key indices and a byte-level
// persistence format.
package frame

import "github.com/relboost/relboost/errs"

// Kind is the semantic type of a column's values.
type Kind int

const (
	// Float64 holds arbitrary numerical values.
	Float64 Kind = iota
	// Int32 holds discrete integer values.
	Int32
	// CategoryID holds dictionary-encoded values; -1 means NULL.
	CategoryID
	// TimeStampFloat holds seconds-since-epoch values.
	TimeStampFloat
	// StringBag holds free-form text.
	StringBag
)

func (k Kind) String() string {
	switch k {
	case Float64:
		return "Float64"
	case Int32:
		return "Int32"
	case CategoryID:
		return "CategoryID"
	case TimeStampFloat:
		return "TimeStampFloat"
	case StringBag:
		return "StringBag"
	default:
		return "Unknown"
	}
}

// Role partitions the columns of a DataFrame.
type Role string

const (
	RoleJoinKey    Role = "join_key"
	RoleTimeStamp  Role = "time_stamp"
	RoleCategorial Role = "categorical"
	RoleNumerical  Role = "numerical"
	RoleDiscrete   Role = "discrete"
	RoleTarget     Role = "target"
	RoleText       Role = "text"
	RoleUnused     Role = "unused"
)

// Encoding is a shared dictionary mapping category/join-key strings to
// stable int32 codes, so that a population frame and its peripherals
// agree on what a given code means.
type Encoding struct {
	forward map[string]int32
	reverse []string
}

// NewEncoding returns an empty, ready-to-use Encoding.
func NewEncoding() *Encoding {
	return &Encoding{forward: make(map[string]int32)}
}

// Encode returns the stable code for s, allocating a new one if s has
// not been seen before.
func (e *Encoding) Encode(s string) int32 {
	if code, ok := e.forward[s]; ok {
		return code
	}
	code := int32(len(e.reverse))
	e.forward[s] = code
	e.reverse = append(e.reverse, s)
	return code
}

// Lookup returns the code for s without allocating one; ok is false if
// s has never been encoded.
func (e *Encoding) Lookup(s string) (code int32, ok bool) {
	code, ok = e.forward[s]
	return
}

// String returns the string a code was encoded from.
func (e *Encoding) String(code int32) (string, bool) {
	if code < 0 || int(code) >= len(e.reverse) {
		return "", false
	}
	return e.reverse[code], true
}

// Len returns the number of distinct codes in the dictionary.
func (e *Encoding) Len() int { return len(e.reverse) }

// Column is a single typed, named vector of values.
//
// Exactly one of Floats/Ints/Strings holds Len() values depending on
// Kind; this mirrors the teacher's role-tagged, single-purpose column
// getters rather than a boxed interface{} slice, so the hot aggregation
// loops in package aggregation can range over []float64 directly.
type Column struct {
	Name     string
	Unit     string
	Kind     Kind
	Role     Role
	Encoding *Encoding // shared dictionary; nil unless Kind==CategoryID or Role==RoleJoinKey

	Floats  []float64  // Float64, TimeStampFloat
	Ints    []int32    // Int32, CategoryID (-1 == NULL)
	Strings [][]string // StringBag: each row is a bag of tokens
}

// Len returns the row count of the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Float64, TimeStampFloat:
		return len(c.Floats)
	case Int32, CategoryID:
		return len(c.Ints)
	case StringBag:
		return len(c.Strings)
	default:
		return 0
	}
}

// NewFloatColumn builds a Float64 or TimeStampFloat column.
func NewFloatColumn(name string, role Role, kind Kind, values []float64) *Column {
	return &Column{Name: name, Role: role, Kind: kind, Floats: values}
}

// NewIntColumn builds an Int32 or, given an Encoding, a CategoryID column.
func NewIntColumn(name string, role Role, values []int32, enc *Encoding) *Column {
	kind := Int32
	if enc != nil {
		kind = CategoryID
	}
	return &Column{Name: name, Role: role, Kind: kind, Ints: values, Encoding: enc}
}

// NewStringBagColumn builds a StringBag (text) column.
func NewStringBagColumn(name string, role Role, values [][]string) *Column {
	return &Column{Name: name, Role: role, Kind: StringBag, Strings: values}
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Unit: c.Unit, Kind: c.Kind, Role: c.Role, Encoding: c.Encoding}
	if c.Floats != nil {
		out.Floats = append([]float64(nil), c.Floats...)
	}
	if c.Ints != nil {
		out.Ints = append([]int32(nil), c.Ints...)
	}
	if c.Strings != nil {
		out.Strings = make([][]string, len(c.Strings))
		for i, bag := range c.Strings {
			out.Strings[i] = append([]string(nil), bag...)
		}
	}
	return out
}

// Where returns a new column containing only the rows for which mask is
// true, preserving order.
func (c *Column) Where(mask []bool) (*Column, error) {
	if len(mask) != c.Len() {
		return nil, errs.InvalidInput.New("mask length does not match column length")
	}
	out := &Column{Name: c.Name, Unit: c.Unit, Kind: c.Kind, Role: c.Role, Encoding: c.Encoding}
	switch c.Kind {
	case Float64, TimeStampFloat:
		for i, keep := range mask {
			if keep {
				out.Floats = append(out.Floats, c.Floats[i])
			}
		}
	case Int32, CategoryID:
		for i, keep := range mask {
			if keep {
				out.Ints = append(out.Ints, c.Ints[i])
			}
		}
	case StringBag:
		for i, keep := range mask {
			if keep {
				out.Strings = append(out.Strings, c.Strings[i])
			}
		}
	}
	return out, nil
}
