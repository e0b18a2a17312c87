package domain

import (
	"fmt"
	"time"
)

// Record is one stored instance of a kind. Values holds the business fields keyed by
// name, typed as string, int64, decimal.Decimal or nil.
type Record struct {
	ID        int64
	Values    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// FieldValue is one proposed field assignment.
type FieldValue struct {
	Field string
	Value any
}

// IsDeleted reports whether the record is soft-deleted.
func (r Record) IsDeleted() bool {
	return r.DeletedAt != nil
}

// Value returns any column of the record, system columns included.
func (r Record) Value(name string) any {
	switch name {
	case FieldID:
		return r.ID
	case FieldCreatedAt:
		return r.CreatedAt
	case FieldUpdatedAt:
		return r.UpdatedAt
	case FieldDeletedAt:
		if r.DeletedAt == nil {
			return nil
		}
		return *r.DeletedAt
	}
	return r.Values[name]
}

// Clone copies the record so callers can mutate it freely.
func (r Record) Clone() Record {
	out := r
	out.Values = make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

// NewRecord builds a live record from a create payload. Fields missing from the
// payload take their declared default (or nil); required fields without a value are
// rejected.
func NewRecord(kind *Kind, id int64, values []FieldValue, now time.Time) (Record, error) {
	resolved, err := ResolveCreateValues(kind, values)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        id,
		Values:    resolved,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ResolveCreateValues turns a create payload into a full business field map.
func ResolveCreateValues(kind *Kind, values []FieldValue) (map[string]any, error) {
	resolved := make(map[string]any, len(kind.Fields))
	for _, fv := range values {
		field, ok := kind.BusinessField(fv.Field)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q for %s", ErrInvalidPayload, fv.Field, kind.Name)
		}
		v, err := field.Coerce(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := field.Check(v); err != nil {
			return nil, err
		}
		resolved[field.Name] = v
	}
	for _, field := range kind.Fields {
		if v, ok := resolved[field.Name]; ok && v != nil {
			continue
		}
		if field.Default != nil {
			resolved[field.Name] = field.Default
			continue
		}
		if !field.Nullable {
			return nil, fmt.Errorf("%w: field %q is required for %s", ErrInvalidPayload, field.Name, kind.Name)
		}
		resolved[field.Name] = nil
	}
	return resolved, nil
}
