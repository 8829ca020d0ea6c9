package frame

import (
	"sort"
	"time"

	"github.com/relboost/relboost/errs"
)

// DataFrame is an ordered collection of columns, partitioned by role,
// plus a per-join-key index mapping encoded key -> sorted row positions.
//
// Invariant: every column of a non-empty frame has the same row count;
// LastChange strictly increases on any mutation (spec §3 DataFrame).
type DataFrame struct {
	Name       string
	columns    []*Column
	byName     map[string]int               // name -> index into columns
	indices    map[string]map[int32][]int32 // join-key column name -> code -> sorted row positions
	LastChange time.Time

	// view is true when this frame borrows another frame's column
	// slices (e.g. the result of Where); owner frames may append/mutate
	// freely, views must Clone before mutating in place.
	view bool
}

// New returns an empty, owning DataFrame.
func New(name string) *DataFrame {
	return &DataFrame{
		Name:       name,
		byName:     make(map[string]int),
		indices:    make(map[string]map[int32][]int32),
		LastChange: time.Now(),
	}
}

// IsView reports whether the frame borrows columns rather than owning them.
func (df *DataFrame) IsView() bool { return df.view }

// NRows returns the frame's row count, or 0 if it has no columns.
func (df *DataFrame) NRows() int {
	if len(df.columns) == 0 {
		return 0
	}
	return df.columns[0].Len()
}

// NCols returns the number of columns.
func (df *DataFrame) NCols() int { return len(df.columns) }

func (df *DataFrame) touch() { df.LastChange = time.Now() }

// AddColumn appends col to the frame, replacing any existing column of
// the same name. The new column's row count must match the frame's
// existing row count unless the frame is currently empty.
func (df *DataFrame) AddColumn(col *Column) error {
	if n := df.NRows(); n > 0 && col.Len() != n && len(df.columns) > 0 {
		return errs.InvalidInput.New("column " + col.Name + " has " +
			itoa(col.Len()) + " rows, frame has " + itoa(n))
	}
	if idx, ok := df.byName[col.Name]; ok {
		df.columns[idx] = col
	} else {
		df.byName[col.Name] = len(df.columns)
		df.columns = append(df.columns, col)
	}
	if col.Role == RoleJoinKey {
		df.buildIndex(col)
	}
	df.touch()
	return nil
}

// RemoveColumn drops the named column from the frame.
func (df *DataFrame) RemoveColumn(name string) error {
	idx, ok := df.byName[name]
	if !ok {
		return errs.NotFound.New("column " + name)
	}
	df.columns = append(df.columns[:idx], df.columns[idx+1:]...)
	delete(df.byName, name)
	delete(df.indices, name)
	for n, i := range df.byName {
		if i > idx {
			df.byName[n] = i - 1
		}
	}
	df.touch()
	return nil
}

// Column returns the named column, erroring with NotFound naming the
// requested column if it is absent.
func (df *DataFrame) Column(name string) (*Column, error) {
	idx, ok := df.byName[name]
	if !ok {
		return nil, errs.NotFound.New("column " + name)
	}
	return df.columns[idx], nil
}

// ColumnByRole returns the num'th column (0-indexed) with the given role.
func (df *DataFrame) ColumnByRole(role Role, num int) (*Column, error) {
	seen := 0
	for _, c := range df.columns {
		if c.Role == role {
			if seen == num {
				return c, nil
			}
			seen++
		}
	}
	return nil, errs.NotFound.New("column with role " + string(role) + " at index " + itoa(num))
}

// ColumnsByRole returns every column with the given role, in frame order.
func (df *DataFrame) ColumnsByRole(role Role) []*Column {
	var out []*Column
	for _, c := range df.columns {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// Columns returns all columns in frame order.
func (df *DataFrame) Columns() []*Column {
	return append([]*Column(nil), df.columns...)
}

// Append concatenates other's rows onto df's matching columns. Column
// sets must match by name exactly.
func (df *DataFrame) Append(other *DataFrame) error {
	if len(df.columns) != len(other.columns) {
		return errs.InvalidInput.New("append: column count mismatch")
	}
	for _, c := range df.columns {
		oc, err := other.Column(c.Name)
		if err != nil {
			return err
		}
		if oc.Kind != c.Kind {
			return errs.InvalidInput.New("append: kind mismatch for column " + c.Name)
		}
		switch c.Kind {
		case Float64, TimeStampFloat:
			c.Floats = append(c.Floats, oc.Floats...)
		case Int32, CategoryID:
			c.Ints = append(c.Ints, oc.Ints...)
		case StringBag:
			c.Strings = append(c.Strings, oc.Strings...)
		}
	}
	df.CreateIndices()
	df.touch()
	return nil
}

// SortByKey permutes every column according to perm, where perm[i] is
// the source row that should end up at position i.
func (df *DataFrame) SortByKey(perm []int32) error {
	if len(perm) != df.NRows() {
		return errs.InvalidInput.New("sort permutation length mismatch")
	}
	for _, c := range df.columns {
		switch c.Kind {
		case Float64, TimeStampFloat:
			out := make([]float64, len(perm))
			for i, p := range perm {
				out[i] = c.Floats[p]
			}
			c.Floats = out
		case Int32, CategoryID:
			out := make([]int32, len(perm))
			for i, p := range perm {
				out[i] = c.Ints[p]
			}
			c.Ints = out
		case StringBag:
			out := make([][]string, len(perm))
			for i, p := range perm {
				out[i] = c.Strings[p]
			}
			c.Strings = out
		}
	}
	df.CreateIndices()
	df.touch()
	return nil
}

// Where returns a new, borrowed-column view frame containing only rows
// for which mask is true.
func (df *DataFrame) Where(mask []bool) (*DataFrame, error) {
	out := New(df.Name + "_view")
	out.view = true
	for _, c := range df.columns {
		nc, err := c.Where(mask)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(nc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Clone returns a deep, owning copy of the frame under a new name.
func (df *DataFrame) Clone(newName string) *DataFrame {
	out := New(newName)
	for _, c := range df.columns {
		// AddColumn cannot fail here: the cloned columns always have a
		// consistent row count with one another.
		_ = out.AddColumn(c.Clone())
	}
	return out
}

// buildIndex rebuilds the sorted-position index for a single join-key column.
func (df *DataFrame) buildIndex(col *Column) {
	idx := make(map[int32][]int32, col.Len())
	for pos, code := range col.Ints {
		idx[code] = append(idx[code], int32(pos))
	}
	df.indices[col.Name] = idx
}

// CreateIndices rebuilds every join-key index. Idempotent: calling it
// twice in a row produces the same index, and it commutes with Clone
// (cloning before or after CreateIndices yields identical indices).
func (df *DataFrame) CreateIndices() {
	for _, c := range df.columns {
		if c.Role == RoleJoinKey {
			df.buildIndex(c)
		}
	}
}

// IndexLookup returns the sorted row positions in column name whose
// encoded value equals code.
func (df *DataFrame) IndexLookup(name string, code int32) []int32 {
	idx, ok := df.indices[name]
	if !ok {
		return nil
	}
	return idx[code]
}

// Schema is the exported shape of a DataFrame: names, roles, kinds and
// units, with no data. Used for `ColumnImportances`-style introspection
// and for the SQL emitter's staging-table DDL.
type Schema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

// ColumnSchema describes a single column without its data.
type ColumnSchema struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	Kind Kind   `json:"kind"`
	Role Role   `json:"role"`
}

// ToSchema exports the frame's column metadata.
func (df *DataFrame) ToSchema() Schema {
	s := Schema{Name: df.Name}
	for _, c := range df.columns {
		s.Columns = append(s.Columns, ColumnSchema{Name: c.Name, Unit: c.Unit, Kind: c.Kind, Role: c.Role})
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// sortPermutation returns the permutation that sorts rows by the given
// int32 key column ascending, breaking ties by original row position -
// used by match-index construction to guarantee deterministic ordering.
func sortPermutation(keys []int32) []int32 {
	perm := make([]int32, len(keys))
	for i := range perm {
		perm[i] = int32(i)
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return keys[perm[i]] < keys[perm[j]]
	})
	return perm
}
