package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raffchen/inventory/internal/domain"
)

// sliceSource runs plans over an in-memory slice and counts how often it was hit.
type sliceSource struct {
	records []domain.Record
	calls   int
}

func (s *sliceSource) Count(_ context.Context, plan Plan) (int, error) {
	s.calls++
	n := 0
	for _, rec := range s.records {
		if Match(plan.Where, rec) {
			n++
		}
	}
	return n, nil
}

func (s *sliceSource) Find(_ context.Context, plan Plan) ([]domain.Record, error) {
	s.calls++
	var out []domain.Record
	for _, rec := range s.records {
		if Match(plan.Where, rec) {
			out = append(out, rec)
		}
	}
	SortRecords(out, plan.Order)
	return Window(out, plan.Offset, plan.Limit), nil
}

func products(n int) []domain.Record {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]domain.Record, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, domain.Record{
			ID:        int64(i),
			Values:    map[string]any{"name": fmt.Sprintf("item-%02d", i), "description": nil, "quantity": int64(i * 10)},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

func runList(t *testing.T, src Source, kind *domain.Kind, req domain.ListRequest) Page {
	t.Helper()
	plan, err := BuildPlan(kind, req)
	if err != nil {
		t.Fatalf("unexpected plan error: %v", err)
	}
	page, err := Execute(context.Background(), src, plan)
	if err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	return page
}

func TestExecute_TotalIsCountedBeforeRange(t *testing.T) {
	src := &sliceSource{records: products(10)}

	page := runList(t, src, domain.Products, domain.ListRequest{Range: &domain.PageRange{Start: 0, End: 5}})
	if len(page.Records) != 5 || page.Total != 10 {
		t.Fatalf("expected 5 records and total 10, got %d and %d", len(page.Records), page.Total)
	}
	for i, rec := range page.Records {
		if rec.ID != int64(i+1) {
			t.Fatalf("expected default id ordering, got id %d at %d", rec.ID, i)
		}
	}
}

func TestExecute_EmptyPageReportsZeroTotal(t *testing.T) {
	src := &sliceSource{records: products(10)}

	page := runList(t, src, domain.Products, domain.ListRequest{Range: &domain.PageRange{Start: 20, End: 25}})
	if len(page.Records) != 0 || page.Total != 0 {
		t.Fatalf("expected empty page with total 0, got %d and %d", len(page.Records), page.Total)
	}
}

func TestExecute_UnrangedTotalIsFilteredCount(t *testing.T) {
	src := &sliceSource{records: products(10)}

	page := runList(t, src, domain.Products, domain.ListRequest{
		Filter: []domain.FilterExpression{domain.Leaf("quantity", domain.OpGt, domain.ScalarValue(json.Number("70")))},
	})
	if page.Total != 3 || len(page.Records) != 3 {
		t.Fatalf("expected 3 records, got %d (total %d)", len(page.Records), page.Total)
	}
}

func TestExecute_HidesSoftDeletedUnlessRequested(t *testing.T) {
	records := products(3)
	deleted := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records[0].DeletedAt = &deleted
	src := &sliceSource{records: records}

	page := runList(t, src, domain.Products, domain.ListRequest{})
	if page.Total != 2 {
		t.Fatalf("expected 2 live records, got %d", page.Total)
	}
	for _, rec := range page.Records {
		if rec.IsDeleted() {
			t.Fatalf("soft-deleted record %d leaked into the live view", rec.ID)
		}
	}

	page = runList(t, src, domain.Products, domain.ListRequest{ShowDeleted: true})
	if page.Total != 3 {
		t.Fatalf("expected 3 records with show_deleted, got %d", page.Total)
	}
}

func TestExecute_SortWithTiebreaker(t *testing.T) {
	records := products(4)
	for i := range records {
		records[i].Values["quantity"] = int64(1)
	}
	src := &sliceSource{records: records}

	page := runList(t, src, domain.Products, domain.ListRequest{Sort: []domain.SortField{{Field: "quantity", Direction: "DESC"}}})
	for i, rec := range page.Records {
		if rec.ID != int64(i+1) {
			t.Fatalf("expected id tiebreaker ordering, got id %d at %d", rec.ID, i)
		}
	}
}

func TestExecute_BetweenAndNotIn(t *testing.T) {
	var lenses []domain.Record
	for i, sphere := range []string{"-4.00", "-3.00", "-2.25", "-1.00", "0.50"} {
		lenses = append(lenses, domain.Record{
			ID: int64(i + 1),
			Values: map[string]any{
				"lens_type": "SV", "sphere": decimal.RequireFromString(sphere), "cylinder": decimal.Zero,
				"unit_price": decimal.RequireFromString("12.50"), "quantity": int64(1),
				"storage_limit": nil, "comment": nil,
			},
		})
	}
	src := &sliceSource{records: lenses}

	page := runList(t, src, domain.Lenses, domain.ListRequest{Filter: []domain.FilterExpression{
		domain.Leaf("sphere", domain.OpBetween, domain.ListValue(json.Number("-3"), json.Number("-1"))),
	}})
	if got := ids(page.Records); fmt.Sprint(got) != "[2 3 4]" {
		t.Fatalf("expected ids [2 3 4] in range, got %v", got)
	}

	page = runList(t, src, domain.Lenses, domain.ListRequest{Filter: []domain.FilterExpression{
		domain.Leaf("id", domain.OpNin, domain.ListValue(json.Number("1"), json.Number("2"))),
	}})
	if got := ids(page.Records); fmt.Sprint(got) != "[3 4 5]" {
		t.Fatalf("expected ids 1 and 2 excluded, got %v", got)
	}
}

func TestBuildPlan_RejectsMalformedInputWithoutQuerying(t *testing.T) {
	cases := []struct {
		name string
		req  domain.ListRequest
		want error
	}{
		{"unknown sort field", domain.ListRequest{Sort: []domain.SortField{{Field: "nope", Direction: "asc"}}}, domain.ErrInvalidSortField},
		{"bad direction", domain.ListRequest{Sort: []domain.SortField{{Field: "name", Direction: "up"}}}, domain.ErrInvalidSortDirection},
		{"inverted range", domain.ListRequest{Range: &domain.PageRange{Start: 5, End: 2}}, domain.ErrInvalidRange},
		{"bad filter", domain.ListRequest{Filter: []domain.FilterExpression{domain.Leaf("nope", domain.OpEq, domain.ScalarValue("x"))}}, domain.ErrInvalidFilterField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildPlan(domain.Products, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !domain.IsMalformedQuery(err) {
				t.Fatalf("expected malformed query classification for %v", err)
			}
		})
	}
}

func TestBuildPlan_DefaultOrderIsIDAscending(t *testing.T) {
	plan, err := BuildPlan(domain.Products, domain.ListRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Order) != 1 || plan.Order[0].Field.Name != domain.FieldID || plan.Order[0].Desc {
		t.Fatalf("expected id asc, got %#v", plan.Order)
	}
	if plan.Paged() {
		t.Fatalf("plan without range must be unbounded")
	}
}

func ids(records []domain.Record) []int64 {
	out := make([]int64, len(records))
	for i, rec := range records {
		out[i] = rec.ID
	}
	return out
}
