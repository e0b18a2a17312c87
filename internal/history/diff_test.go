package history

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raffchen/inventory/internal/domain"
)

func liveLens() domain.Record {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.Record{
		ID: 7,
		Values: map[string]any{
			"lens_type":     "SV",
			"sphere":        decimal.RequireFromString("-1.25"),
			"cylinder":      decimal.RequireFromString("0.50"),
			"unit_price":    decimal.RequireFromString("10.00"),
			"quantity":      int64(4),
			"storage_limit": nil,
			"comment":       nil,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDiff_OnlyExplicitDifferingFields(t *testing.T) {
	proposed := []domain.FieldValue{
		{Field: "quantity", Value: int64(9)},
		{Field: "sphere", Value: "-1.250"},
		{Field: "comment", Value: "restock"},
	}

	changes, err := Diff(domain.Lenses, liveLens(), proposed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %#v", len(changes), changes)
	}
	if changes[0].Field.Name != "quantity" || changes[1].Field.Name != "comment" {
		t.Fatalf("expected proposal order quantity, comment; got %s, %s", changes[0].Field.Name, changes[1].Field.Name)
	}

	fc := changes[0].FieldChange()
	if *fc.OldValue != "4" || *fc.NewValue != "9" {
		t.Fatalf("unexpected stringified change: %q -> %q", *fc.OldValue, *fc.NewValue)
	}
	fc = changes[1].FieldChange()
	if fc.OldValue != nil || *fc.NewValue != "restock" {
		t.Fatalf("expected null -> restock, got %v -> %v", fc.OldValue, fc.NewValue)
	}
}

func TestDiff_NoChanges(t *testing.T) {
	changes, err := Diff(domain.Lenses, liveLens(), []domain.FieldValue{{Field: "lens_type", Value: "SV"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %#v", changes)
	}
}

func TestDiff_RejectsUnknownAndNullRequired(t *testing.T) {
	if _, err := Diff(domain.Lenses, liveLens(), []domain.FieldValue{{Field: "id", Value: int64(3)}}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for system field, got %v", err)
	}
	if _, err := Diff(domain.Lenses, liveLens(), []domain.FieldValue{{Field: "lens_type", Value: nil}}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for null required field, got %v", err)
	}
}

func TestDiff_RejectsValuesTheColumnCannotHold(t *testing.T) {
	for _, value := range []string{"-1.255", "123.45"} {
		_, err := Diff(domain.Lenses, liveLens(), []domain.FieldValue{{Field: "sphere", Value: value}})
		if !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload for sphere %s, got %v", value, err)
		}
	}
}

func TestSplitAnnotation(t *testing.T) {
	fields, ann, err := SplitAnnotation([]domain.FieldValue{
		{Field: NotesField, Value: "counted"},
		{Field: "quantity", Value: int64(1)},
		{Field: SourceField, Value: "warehouse"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 1 || fields[0].Field != "quantity" {
		t.Fatalf("expected only quantity to remain, got %#v", fields)
	}
	if ann.Notes == nil || *ann.Notes != "counted" || ann.Source == nil || *ann.Source != "warehouse" {
		t.Fatalf("unexpected annotation: %#v", ann)
	}

	if _, _, err := SplitAnnotation([]domain.FieldValue{{Field: NotesField, Value: int64(1)}}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for numeric notes, got %v", err)
	}
}

func TestApply(t *testing.T) {
	rec := liveLens()
	changes, err := Diff(domain.Lenses, rec, []domain.FieldValue{{Field: "quantity", Value: int64(0)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Apply(&rec, changes)
	if rec.Values["quantity"] != int64(0) {
		t.Fatalf("expected quantity 0, got %v", rec.Values["quantity"])
	}
}
