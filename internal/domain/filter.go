package domain

// FilterOperator names a leaf comparison or an interior logical combination.
type FilterOperator string

const (
	OpEq          FilterOperator = "eq"
	OpNe          FilterOperator = "ne"
	OpLt          FilterOperator = "lt"
	OpGt          FilterOperator = "gt"
	OpLte         FilterOperator = "lte"
	OpGte         FilterOperator = "gte"
	OpIn          FilterOperator = "in"
	OpNin         FilterOperator = "nin"
	OpContains    FilterOperator = "contains"
	OpNContains   FilterOperator = "ncontains"
	OpBetween     FilterOperator = "between"
	OpNBetween    FilterOperator = "nbetween"
	OpStartsWith  FilterOperator = "startswith"
	OpNStartsWith FilterOperator = "nstartswith"
	OpEndsWith    FilterOperator = "endswith"
	OpNEndsWith   FilterOperator = "nendswith"
	OpNull        FilterOperator = "null"
	OpNNull       FilterOperator = "nnull"

	OpAnd FilterOperator = "and"
	OpOr  FilterOperator = "or"
)

// WildcardField is the reserved field name that searches every text field.
const WildcardField = "q"

// FilterValue is the parsed value of a leaf: either one scalar or a list of scalars.
// Scalars are string, json.Number, bool or nil as they arrive from the wire.
type FilterValue struct {
	Scalar any
	List   []any
	IsList bool
}

// ScalarValue wraps a single comparison value.
func ScalarValue(v any) FilterValue {
	return FilterValue{Scalar: v}
}

// ListValue wraps a sequence of comparison values.
func ListValue(vs ...any) FilterValue {
	return FilterValue{List: vs, IsList: true}
}

// FilterExpression is one node of a filter tree. Exactly one of Leaf or Logical is set.
type FilterExpression struct {
	Leaf    *FilterLeaf
	Logical *FilterLogical
}

// FilterLeaf compares one field against a value.
type FilterLeaf struct {
	Field    string
	Operator FilterOperator
	Value    FilterValue
}

// FilterLogical combines child expressions with and/or.
type FilterLogical struct {
	Operator FilterOperator
	Children []FilterExpression
}

// Leaf builds a leaf expression.
func Leaf(field string, op FilterOperator, value FilterValue) FilterExpression {
	return FilterExpression{Leaf: &FilterLeaf{Field: field, Operator: op, Value: value}}
}

// And builds an interior and-node.
func And(children ...FilterExpression) FilterExpression {
	return FilterExpression{Logical: &FilterLogical{Operator: OpAnd, Children: children}}
}

// Or builds an interior or-node.
func Or(children ...FilterExpression) FilterExpression {
	return FilterExpression{Logical: &FilterLogical{Operator: OpOr, Children: children}}
}
