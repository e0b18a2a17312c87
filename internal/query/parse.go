package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/raffchen/inventory/internal/domain"
)

// wireExpression is one element of the filter array as the admin UI sends it: a leaf
// carries field/operator/value, a logical node carries operator and its children in value.
type wireExpression struct {
	Field    *string         `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

// ParseFilter decodes the `filter` query parameter. Two shapes are accepted: an array of
// expressions, or the older flat object mapping field names to values (strings become a
// contains match, lists an `in`, everything else an equality). Empty input means no filter.
func ParseFilter(raw string) ([]domain.FilterExpression, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "{") {
		return parseLegacyFilter([]byte(raw))
	}

	var wire []json.RawMessage
	if err := decodeJSON([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: filter must be a JSON array: %v", domain.ErrInvalidFilterValue, err)
	}

	exprs := make([]domain.FilterExpression, 0, len(wire))
	for _, item := range wire {
		expr, err := parseExpression(item)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

func parseExpression(raw json.RawMessage) (domain.FilterExpression, error) {
	var w wireExpression
	if err := decodeJSON(raw, &w); err != nil {
		return domain.FilterExpression{}, fmt.Errorf("%w: %v", domain.ErrInvalidFilterValue, err)
	}

	op := domain.FilterOperator(strings.ToLower(w.Operator))
	if w.Field == nil {
		if op != domain.OpAnd && op != domain.OpOr {
			return domain.FilterExpression{}, fmt.Errorf("%w: %q without a field", domain.ErrUnsupportedOperator, w.Operator)
		}
		var children []json.RawMessage
		if err := decodeJSON(w.Value, &children); err != nil {
			return domain.FilterExpression{}, fmt.Errorf("%w: %q needs a list of expressions", domain.ErrInvalidFilterValue, op)
		}
		node := &domain.FilterLogical{Operator: op}
		for _, child := range children {
			expr, err := parseExpression(child)
			if err != nil {
				return domain.FilterExpression{}, err
			}
			node.Children = append(node.Children, expr)
		}
		return domain.FilterExpression{Logical: node}, nil
	}

	value, err := parseValue(w.Value)
	if err != nil {
		return domain.FilterExpression{}, err
	}
	return domain.Leaf(*w.Field, op, value), nil
}

// parseValue decides once whether a leaf value is a scalar or a list.
func parseValue(raw json.RawMessage) (domain.FilterValue, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.ScalarValue(nil), nil
	}
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return domain.FilterValue{}, fmt.Errorf("%w: %v", domain.ErrInvalidFilterValue, err)
	}
	switch typed := v.(type) {
	case []any:
		for _, item := range typed {
			if !isScalar(item) {
				return domain.FilterValue{}, fmt.Errorf("%w: list elements must be scalars", domain.ErrInvalidFilterValue)
			}
		}
		return domain.ListValue(typed...), nil
	case map[string]any:
		return domain.FilterValue{}, fmt.Errorf("%w: objects are not comparable", domain.ErrInvalidFilterValue)
	}
	return domain.ScalarValue(v), nil
}

func parseLegacyFilter(raw []byte) ([]domain.FilterExpression, error) {
	var legacy map[string]json.RawMessage
	if err := decodeJSON(raw, &legacy); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilterValue, err)
	}

	fields := make([]string, 0, len(legacy))
	for field := range legacy {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	exprs := make([]domain.FilterExpression, 0, len(fields))
	for _, field := range fields {
		value, err := parseValue(legacy[field])
		if err != nil {
			return nil, err
		}
		op := domain.OpEq
		switch {
		case value.IsList:
			op = domain.OpIn
		case isString(value.Scalar):
			op = domain.OpContains
		}
		exprs = append(exprs, domain.Leaf(field, op, value))
	}
	return exprs, nil
}

// ParseSort decodes `[["field","asc"],...]` or a single `["field","DESC"]` pair.
func ParseSort(raw string) ([]domain.SortField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var pairs [][]string
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		var single []string
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return nil, fmt.Errorf("%w: sort must be a [field, direction] pair or a list of them", domain.ErrInvalidSortField)
		}
		pairs = [][]string{single}
	}

	out := make([]domain.SortField, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: sort entries are [field, direction] pairs", domain.ErrInvalidSortField)
		}
		out = append(out, domain.SortField{Field: pair[0], Direction: pair[1]})
	}
	return out, nil
}

// ParseRange decodes `[start,end]`. Ordering of the bounds is checked by the planner.
func ParseRange(raw string) (*domain.PageRange, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var bounds []int
	if err := json.Unmarshal([]byte(raw), &bounds); err != nil || len(bounds) != 2 {
		return nil, fmt.Errorf("%w: range must be [start, end]", domain.ErrInvalidRange)
	}
	return &domain.PageRange{Start: bounds[0], End: bounds[1]}, nil
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func isScalar(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	}
	return true
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
