package query

import "github.com/raffchen/inventory/internal/domain"

// Condition is a compiled, type-checked predicate over one record kind. Storage
// backends either render it (SQL) or evaluate it in process with Match.
type Condition interface {
	condition()
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	CompareEq  CompareOp = "="
	CompareNe  CompareOp = "<>"
	CompareLt  CompareOp = "<"
	CompareGt  CompareOp = ">"
	CompareLte CompareOp = "<="
	CompareGte CompareOp = ">="
)

// MatchMode selects how a text pattern is anchored.
type MatchMode int

const (
	MatchContains MatchMode = iota
	MatchPrefix
	MatchSuffix
)

// Comparison is `field <op> value`.
type Comparison struct {
	Field domain.Field
	Op    CompareOp
	Value any
}

// Membership is `field IN (values)`, or NOT IN when Negate is set.
type Membership struct {
	Field  domain.Field
	Values []any
	Negate bool
}

// Interval is `low <= field <= high`, or `field < low OR field > high` when Negate is set.
type Interval struct {
	Field  domain.Field
	Low    any
	High   any
	Negate bool
}

// TextMatch is a case-insensitive pattern match. With several fields the matches are
// OR-ed together; Negate applies to the combined result.
type TextMatch struct {
	Fields  []domain.Field
	Mode    MatchMode
	Pattern string
	Negate  bool
}

// NullCheck is `field IS NULL`, or IS NOT NULL when Negate is set.
type NullCheck struct {
	Field  domain.Field
	Negate bool
}

// Conjunction is the logical AND of its children.
type Conjunction struct {
	Children []Condition
}

// Disjunction is the logical OR of its children.
type Disjunction struct {
	Children []Condition
}

func (Comparison) condition()  {}
func (Membership) condition()  {}
func (Interval) condition()    {}
func (TextMatch) condition()   {}
func (NullCheck) condition()   {}
func (Conjunction) condition() {}
func (Disjunction) condition() {}

// Live is the soft-delete visibility condition.
func Live() Condition {
	field, _ := domain.SystemField(domain.FieldDeletedAt)
	return NullCheck{Field: field}
}

// AllOf ANDs the non-nil conditions, collapsing trivial cases.
func AllOf(conds ...Condition) Condition {
	var kept []Condition
	for _, c := range conds {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Conjunction{Children: kept}
}
