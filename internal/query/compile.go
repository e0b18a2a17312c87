package query

import (
	"encoding/json"
	"fmt"

	"github.com/raffchen/inventory/internal/domain"
)

var comparisonOps = map[domain.FilterOperator]CompareOp{
	domain.OpEq:  CompareEq,
	domain.OpNe:  CompareNe,
	domain.OpLt:  CompareLt,
	domain.OpGt:  CompareGt,
	domain.OpLte: CompareLte,
	domain.OpGte: CompareGte,
}

type textOp struct {
	mode   MatchMode
	negate bool
}

var textOps = map[domain.FilterOperator]textOp{
	domain.OpContains:    {mode: MatchContains},
	domain.OpNContains:   {mode: MatchContains, negate: true},
	domain.OpStartsWith:  {mode: MatchPrefix},
	domain.OpNStartsWith: {mode: MatchPrefix, negate: true},
	domain.OpEndsWith:    {mode: MatchSuffix},
	domain.OpNEndsWith:   {mode: MatchSuffix, negate: true},
}

// CompileAll compiles a top-level filter list, AND-ing the expressions in order.
// An empty list compiles to a nil condition.
func CompileAll(kind *domain.Kind, exprs []domain.FilterExpression) (Condition, error) {
	conds := make([]Condition, 0, len(exprs))
	for _, expr := range exprs {
		cond, err := Compile(kind, expr)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return AllOf(conds...), nil
}

// Compile turns one filter expression into a condition against kind. It is pure:
// every field, operator and value is checked here so that a bad request never reaches
// the store.
func Compile(kind *domain.Kind, expr domain.FilterExpression) (Condition, error) {
	switch {
	case expr.Leaf != nil && expr.Logical == nil:
		return compileLeaf(kind, *expr.Leaf)
	case expr.Logical != nil && expr.Leaf == nil:
		return compileLogical(kind, *expr.Logical)
	}
	return nil, fmt.Errorf("%w: expression must be either a comparison or a logical group", domain.ErrInvalidFilterValue)
}

func compileLogical(kind *domain.Kind, node domain.FilterLogical) (Condition, error) {
	if node.Operator != domain.OpAnd && node.Operator != domain.OpOr {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperator, node.Operator)
	}
	if len(node.Children) == 0 {
		return nil, fmt.Errorf("%w: %q group needs at least one child", domain.ErrInvalidFilterValue, node.Operator)
	}

	children := make([]Condition, 0, len(node.Children))
	for _, child := range node.Children {
		cond, err := Compile(kind, child)
		if err != nil {
			return nil, err
		}
		children = append(children, cond)
	}

	if node.Operator == domain.OpOr {
		return Disjunction{Children: children}, nil
	}
	return Conjunction{Children: children}, nil
}

func compileLeaf(kind *domain.Kind, leaf domain.FilterLeaf) (Condition, error) {
	if leaf.Field == domain.WildcardField {
		return compileWildcard(kind, leaf)
	}

	field, ok := kind.Lookup(leaf.Field)
	if !ok || !field.Filterable {
		return nil, fmt.Errorf("%w: %s has no filterable field %q", domain.ErrInvalidFilterField, kind.Name, leaf.Field)
	}

	if op, ok := comparisonOps[leaf.Operator]; ok {
		raw, err := scalar(leaf)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			switch op {
			case CompareEq:
				return NullCheck{Field: field}, nil
			case CompareNe:
				return NullCheck{Field: field, Negate: true}, nil
			}
			return nil, fmt.Errorf("%w: %q cannot compare against null", domain.ErrInvalidFilterValue, leaf.Operator)
		}
		value, err := coerce(field, raw)
		if err != nil {
			return nil, err
		}
		return Comparison{Field: field, Op: op, Value: value}, nil
	}

	if t, ok := textOps[leaf.Operator]; ok {
		// Timestamps have no text form both stores render alike.
		if field.Type == domain.FieldTypeTimestamp {
			return nil, fmt.Errorf("%w: %q on timestamp field %s", domain.ErrUnsupportedOperator, leaf.Operator, field.Name)
		}
		raw, err := scalar(leaf)
		if err != nil {
			return nil, err
		}
		pattern, err := patternText(field, raw)
		if err != nil {
			return nil, err
		}
		return TextMatch{Fields: []domain.Field{field}, Mode: t.mode, Pattern: pattern, Negate: t.negate}, nil
	}

	switch leaf.Operator {
	case domain.OpIn, domain.OpNin:
		if !leaf.Value.IsList {
			return nil, fmt.Errorf("%w: %q on %s needs a list value", domain.ErrInvalidFilterValue, leaf.Operator, field.Name)
		}
		values := make([]any, 0, len(leaf.Value.List))
		for _, raw := range leaf.Value.List {
			value, err := coerce(field, raw)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
		return Membership{Field: field, Values: values, Negate: leaf.Operator == domain.OpNin}, nil

	case domain.OpBetween, domain.OpNBetween:
		if !leaf.Value.IsList || len(leaf.Value.List) != 2 {
			return nil, fmt.Errorf("%w: %q on %s needs exactly two values", domain.ErrInvalidFilterValue, leaf.Operator, field.Name)
		}
		low, err := coerce(field, leaf.Value.List[0])
		if err != nil {
			return nil, err
		}
		high, err := coerce(field, leaf.Value.List[1])
		if err != nil {
			return nil, err
		}
		return Interval{Field: field, Low: low, High: high, Negate: leaf.Operator == domain.OpNBetween}, nil

	case domain.OpNull:
		return NullCheck{Field: field}, nil
	case domain.OpNNull:
		return NullCheck{Field: field, Negate: true}, nil
	}

	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperator, leaf.Operator)
}

// compileWildcard ignores the operator and searches every text field of the kind.
func compileWildcard(kind *domain.Kind, leaf domain.FilterLeaf) (Condition, error) {
	raw, err := scalar(leaf)
	if err != nil {
		return nil, err
	}
	fields := kind.SearchableFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no text fields to search", domain.ErrInvalidFilterField, kind.Name)
	}
	pattern, err := patternText(domain.Field{Name: domain.WildcardField, Type: domain.FieldTypeText}, raw)
	if err != nil {
		return nil, err
	}
	return TextMatch{Fields: fields, Mode: MatchContains, Pattern: pattern}, nil
}

func scalar(leaf domain.FilterLeaf) (any, error) {
	if leaf.Value.IsList {
		return nil, fmt.Errorf("%w: %q on %s needs a single value", domain.ErrInvalidFilterValue, leaf.Operator, leaf.Field)
	}
	return leaf.Value.Scalar, nil
}

func coerce(field domain.Field, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: null is not allowed for %s here", domain.ErrInvalidFilterValue, field.Name)
	}
	value, err := field.Coerce(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilterValue, err)
	}
	return value, nil
}

// patternText is the literal text a pattern operator searches for. Non-text fields
// are matched against their canonical text form, so numbers are accepted as well.
func patternText(field domain.Field, raw any) (string, error) {
	switch typed := raw.(type) {
	case string:
		return typed, nil
	case json.Number:
		if field.Type != domain.FieldTypeText {
			return typed.String(), nil
		}
	case int64, int, float64:
		if field.Type != domain.FieldTypeText {
			return fmt.Sprint(typed), nil
		}
	}
	return "", fmt.Errorf("%w: pattern for %s must be text, got %v", domain.ErrInvalidFilterValue, field.Name, raw)
}
