// Package placeholder implements the declarative population/peripheral
// join-tree described in spec §3: for each peripheral child, which join
// keys and time-stamp bounds apply, and how it propositionalizes.
package placeholder

import "github.com/relboost/relboost/errs"

// Propositionalization selects whether a child is evaluated through the
// boosted tree path or the fast-propositionalization path (spec §4.8).
type Propositionalization int

const (
	// Tree routes the child through decision-tree split search.
	Tree Propositionalization = iota
	// FastProp routes the child through the abstract-feature catalog.
	FastProp
)

// JoinKeyPair names one equality condition between a population column
// and a peripheral column.
type JoinKeyPair struct {
	PopulationColumn string
	PeripheralColumn string
}

// Placeholder is one node of the join tree: a peripheral table joined
// to its parent, with its own children recursively.
type Placeholder struct {
	Name string

	JoinKeysUsed []JoinKeyPair

	// TimeStampsUsed names the peripheral lower-bound time-stamp column;
	// empty means no lower bound is enforced.
	TimeStampsUsed string
	// UpperTimeStampsUsed names the optional peripheral upper-bound
	// time-stamp column.
	UpperTimeStampsUsed string

	AllowLaggedTargets   bool
	Propositionalization Propositionalization

	Children []*Placeholder
}

// Validate checks the join tree has no cycles and that every join-key
// pair names both sides. It walks the tree once, depth first.
func Validate(root *Placeholder) error {
	seen := make(map[*Placeholder]bool)
	var walk func(p *Placeholder, ancestors map[*Placeholder]bool) error
	walk = func(p *Placeholder, ancestors map[*Placeholder]bool) error {
		if ancestors[p] {
			return errs.InvalidInput.New("placeholder cycle detected at " + p.Name)
		}
		if len(p.JoinKeysUsed) == 0 {
			return errs.InvalidInput.New("placeholder " + p.Name + " has no join keys")
		}
		for _, jk := range p.JoinKeysUsed {
			if jk.PopulationColumn == "" || jk.PeripheralColumn == "" {
				return errs.InvalidInput.New("placeholder " + p.Name + " has an incomplete join-key pair")
			}
		}
		seen[p] = true
		next := make(map[*Placeholder]bool, len(ancestors)+1)
		for k := range ancestors {
			next[k] = true
		}
		next[p] = true
		for _, child := range p.Children {
			if err := walk(child, next); err != nil {
				return err
			}
		}
		return nil
	}
	if root == nil {
		return errs.InvalidInput.New("nil placeholder root")
	}
	// The root itself is permitted to have no join keys: it describes
	// the population, not a join.
	seenRoot := make(map[*Placeholder]bool)
	for _, child := range root.Children {
		if err := walk(child, seenRoot); err != nil {
			return err
		}
	}
	return nil
}

// IsSnowflake reports whether p has grandchildren, i.e. its placeholder
// subtree has depth > 1 and therefore needs sub-ensembles (spec §4.6).
func (p *Placeholder) IsSnowflake() bool {
	for _, child := range p.Children {
		if len(child.Children) > 0 {
			return true
		}
	}
	return false
}

// IsSelfJoin reports whether this placeholder's peripheral is the
// population itself (name equality is the declarative signal; actual
// frame identity is resolved by the caller). Neither IsSelfJoin nor
// Validate checks that a self-join has a non-empty TimeStampsUsed; an
// unbounded self-join matches every row against itself.
func (p *Placeholder) IsSelfJoin(populationName string) bool {
	return p.Name == populationName
}
