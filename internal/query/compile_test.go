package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/raffchen/inventory/internal/domain"
)

func TestCompile_BetweenCoercesToFieldType(t *testing.T) {
	cond, err := Compile(domain.Lenses, domain.Leaf("sphere", domain.OpBetween,
		domain.ListValue(json.Number("-3"), json.Number("-1"))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	interval, ok := cond.(Interval)
	if !ok {
		t.Fatalf("expected Interval, got %T", cond)
	}
	low, ok := interval.Low.(decimal.Decimal)
	if !ok || !low.Equal(decimal.NewFromInt(-3)) {
		t.Fatalf("expected low bound -3, got %#v", interval.Low)
	}
	if interval.Negate {
		t.Fatalf("between must not be negated")
	}
}

func TestCompile_BetweenRequiresTwoValues(t *testing.T) {
	for _, value := range []domain.FilterValue{
		domain.ListValue(json.Number("1")),
		domain.ListValue(json.Number("1"), json.Number("2"), json.Number("3")),
		domain.ScalarValue(json.Number("1")),
	} {
		_, err := Compile(domain.Lenses, domain.Leaf("sphere", domain.OpNBetween, value))
		if !errors.Is(err, domain.ErrInvalidFilterValue) {
			t.Fatalf("expected ErrInvalidFilterValue for %#v, got %v", value, err)
		}
	}
}

func TestCompile_InRequiresList(t *testing.T) {
	_, err := Compile(domain.Products, domain.Leaf("id", domain.OpIn, domain.ScalarValue(json.Number("1"))))
	if !errors.Is(err, domain.ErrInvalidFilterValue) {
		t.Fatalf("expected ErrInvalidFilterValue, got %v", err)
	}

	cond, err := Compile(domain.Products, domain.Leaf("id", domain.OpNin, domain.ListValue(json.Number("1"), json.Number("2"))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := cond.(Membership)
	if !m.Negate || len(m.Values) != 2 || m.Values[0] != int64(1) {
		t.Fatalf("unexpected membership: %#v", m)
	}
}

func TestCompile_UnknownField(t *testing.T) {
	_, err := Compile(domain.Products, domain.Leaf("colour", domain.OpEq, domain.ScalarValue("red")))
	if !errors.Is(err, domain.ErrInvalidFilterField) {
		t.Fatalf("expected ErrInvalidFilterField, got %v", err)
	}
}

func TestCompile_UnsupportedOperator(t *testing.T) {
	_, err := Compile(domain.Products, domain.Leaf("name", "like", domain.ScalarValue("x")))
	if !errors.Is(err, domain.ErrUnsupportedOperator) {
		t.Fatalf("expected ErrUnsupportedOperator, got %v", err)
	}
}

func TestCompile_TextOperatorsOnTimestampsAreUnsupported(t *testing.T) {
	for _, op := range []domain.FilterOperator{domain.OpContains, domain.OpStartsWith, domain.OpNEndsWith} {
		_, err := Compile(domain.Products, domain.Leaf("created_at", op, domain.ScalarValue("2024-01")))
		if !errors.Is(err, domain.ErrUnsupportedOperator) {
			t.Fatalf("expected ErrUnsupportedOperator for %s, got %v", op, err)
		}
	}
	if _, err := Compile(domain.Lenses, domain.Leaf("unit_price", domain.OpStartsWith, domain.ScalarValue("9"))); err != nil {
		t.Fatalf("text operators on numeric fields stay supported: %v", err)
	}
}

func TestCompile_EmptyLogicalGroup(t *testing.T) {
	_, err := Compile(domain.Products, domain.Or())
	if !errors.Is(err, domain.ErrInvalidFilterValue) {
		t.Fatalf("expected ErrInvalidFilterValue, got %v", err)
	}
}

func TestCompile_NestedGroupPropagatesChildErrors(t *testing.T) {
	expr := domain.And(
		domain.Leaf("name", domain.OpContains, domain.ScalarValue("tape")),
		domain.Or(domain.Leaf("missing", domain.OpEq, domain.ScalarValue("x"))),
	)
	if _, err := Compile(domain.Products, expr); !errors.Is(err, domain.ErrInvalidFilterField) {
		t.Fatalf("expected ErrInvalidFilterField from nested child, got %v", err)
	}
}

func TestCompile_WildcardSearchesTextFields(t *testing.T) {
	cond, err := Compile(domain.Lenses, domain.Leaf(domain.WildcardField, domain.OpEq, domain.ScalarValue("sv")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	match := cond.(TextMatch)
	if match.Mode != MatchContains || match.Pattern != "sv" {
		t.Fatalf("unexpected wildcard match: %#v", match)
	}
	if len(match.Fields) != 2 || match.Fields[0].Name != "lens_type" || match.Fields[1].Name != "comment" {
		t.Fatalf("expected lens_type and comment, got %#v", match.Fields)
	}
}

func TestCompile_EqualsNullBecomesNullCheck(t *testing.T) {
	cond, err := Compile(domain.Products, domain.Leaf("description", domain.OpNe, domain.ScalarValue(nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	check, ok := cond.(NullCheck)
	if !ok || !check.Negate {
		t.Fatalf("expected negated NullCheck, got %#v", cond)
	}

	if _, err := Compile(domain.Products, domain.Leaf("quantity", domain.OpGt, domain.ScalarValue(nil))); !errors.Is(err, domain.ErrInvalidFilterValue) {
		t.Fatalf("expected ErrInvalidFilterValue for gt null, got %v", err)
	}
}

func TestCompile_RejectsMistypedValue(t *testing.T) {
	_, err := Compile(domain.Products, domain.Leaf("quantity", domain.OpEq, domain.ScalarValue("many")))
	if !errors.Is(err, domain.ErrInvalidFilterValue) {
		t.Fatalf("expected ErrInvalidFilterValue, got %v", err)
	}
}

func TestCompileAll_EmptyListIsNoFilter(t *testing.T) {
	cond, err := CompileAll(domain.Products, nil)
	if err != nil || cond != nil {
		t.Fatalf("expected nil condition, got %#v, %v", cond, err)
	}

	cond, err = CompileAll(domain.Products, []domain.FilterExpression{
		domain.Leaf("quantity", domain.OpGte, domain.ScalarValue(json.Number("1"))),
		domain.Leaf("name", domain.OpStartsWith, domain.ScalarValue("a")),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conj, ok := cond.(Conjunction); !ok || len(conj.Children) != 2 {
		t.Fatalf("expected two-way conjunction, got %#v", cond)
	}
}
