package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/raffchen/inventory/internal/domain"
)

// Order is one validated ordering key.
type Order struct {
	Field domain.Field
	Desc  bool
}

// Plan is a fully validated list query, ready for a store to run. Limit < 0 means the
// query is unbounded.
type Plan struct {
	Kind   *domain.Kind
	Where  Condition
	Order  []Order
	Offset int
	Limit  int
}

// Paged reports whether a range was applied.
func (p Plan) Paged() bool {
	return p.Limit >= 0
}

// Page is one window of a list query together with the caller-facing total.
type Page struct {
	Records []domain.Record
	Total   int
}

// Source runs plans against a store.
type Source interface {
	// Count returns the number of rows matching plan.Where, ignoring order and window.
	Count(ctx context.Context, plan Plan) (int, error)
	// Find returns the rows matching plan.Where in plan order, windowed.
	Find(ctx context.Context, plan Plan) ([]domain.Record, error)
}

// BuildPlan validates sort, filter and range against kind. Nothing is executed, so
// malformed input never reaches the store.
func BuildPlan(kind *domain.Kind, req domain.ListRequest) (Plan, error) {
	order, err := buildOrder(kind, req.Sort)
	if err != nil {
		return Plan{}, err
	}

	filter, err := CompileAll(kind, req.Filter)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Kind: kind, Order: order, Limit: -1}
	if req.ShowDeleted {
		plan.Where = filter
	} else {
		plan.Where = AllOf(Live(), filter)
	}

	if r := req.Range; r != nil {
		if r.Start < 0 || r.End < r.Start {
			return Plan{}, fmt.Errorf("%w: [%d, %d]", domain.ErrInvalidRange, r.Start, r.End)
		}
		plan.Offset = r.Start
		plan.Limit = r.End - r.Start
	}
	return plan, nil
}

// buildOrder validates the requested keys and appends `id asc` so pages are stable.
func buildOrder(kind *domain.Kind, sorts []domain.SortField) ([]Order, error) {
	order := make([]Order, 0, len(sorts)+1)
	hasID := false
	for _, s := range sorts {
		field, ok := kind.Lookup(s.Field)
		if !ok || !field.Sortable {
			return nil, fmt.Errorf("%w: %s has no sortable field %q", domain.ErrInvalidSortField, kind.Name, s.Field)
		}
		var desc bool
		switch domain.SortDirection(strings.ToLower(s.Direction)) {
		case domain.SortDirectionAsc:
		case domain.SortDirectionDesc:
			desc = true
		default:
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSortDirection, s.Direction)
		}
		if field.Name == domain.FieldID {
			hasID = true
		}
		order = append(order, Order{Field: field, Desc: desc})
	}
	if !hasID {
		id, _ := domain.SystemField(domain.FieldID)
		order = append(order, Order{Field: id})
	}
	return order, nil
}

// Execute runs plan against src. The total counts every filtered row before the
// window is applied, except that an empty page always reports a total of zero.
func Execute(ctx context.Context, src Source, plan Plan) (Page, error) {
	records, err := src.Find(ctx, plan)
	if err != nil {
		return Page{}, err
	}
	if len(records) == 0 {
		return Page{Records: []domain.Record{}, Total: 0}, nil
	}
	if !plan.Paged() {
		return Page{Records: records, Total: len(records)}, nil
	}

	total, err := src.Count(ctx, plan)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total}, nil
}
