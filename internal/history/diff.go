package history

import (
	"fmt"

	"github.com/raffchen/inventory/internal/domain"
)

// Administrative payload keys. They annotate history entries and never produce one.
const (
	NotesField  = "update_notes"
	SourceField = "update_source"
)

// Change is one differing business field with its typed old and new values.
type Change struct {
	Field domain.Field
	Old   any
	New   any
}

// FieldChange renders the change in the text form history entries store.
func (c Change) FieldChange() domain.FieldChange {
	return domain.FieldChange{
		Field:    c.Field.Name,
		OldValue: c.Field.Format(c.Old),
		NewValue: c.Field.Format(c.New),
	}
}

// SplitAnnotation separates the administrative notes/source keys from a proposed field
// set. The remaining values keep their order.
func SplitAnnotation(values []domain.FieldValue) ([]domain.FieldValue, domain.Annotation, error) {
	var ann domain.Annotation
	fields := make([]domain.FieldValue, 0, len(values))
	for _, fv := range values {
		switch fv.Field {
		case NotesField, SourceField:
			text, err := optionalText(fv)
			if err != nil {
				return nil, domain.Annotation{}, err
			}
			if fv.Field == NotesField {
				ann.Notes = text
			} else {
				ann.Source = text
			}
		default:
			fields = append(fields, fv)
		}
	}
	return fields, ann, nil
}

func optionalText(fv domain.FieldValue) (*string, error) {
	if fv.Value == nil {
		return nil, nil
	}
	s, ok := fv.Value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be text", domain.ErrInvalidPayload, fv.Field)
	}
	return &s, nil
}

// Diff compares the explicitly proposed fields against current and returns the ones
// whose value actually differs, in proposal order. Fields that were not proposed are
// left alone. Values are coerced to the declared field type first, so "1.50" and 1.5
// compare equal on a decimal column.
func Diff(kind *domain.Kind, current domain.Record, proposed []domain.FieldValue) ([]Change, error) {
	changes := make([]Change, 0, len(proposed))
	seen := make(map[string]struct{}, len(proposed))
	for _, fv := range proposed {
		field, ok := kind.BusinessField(fv.Field)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q for %s", domain.ErrInvalidPayload, fv.Field, kind.Name)
		}
		if _, dup := seen[field.Name]; dup {
			return nil, fmt.Errorf("%w: field %q given twice", domain.ErrInvalidPayload, field.Name)
		}
		seen[field.Name] = struct{}{}

		value, err := field.Coerce(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if value == nil && !field.Nullable {
			return nil, fmt.Errorf("%w: field %q cannot be null", domain.ErrInvalidPayload, field.Name)
		}
		if err := field.Check(value); err != nil {
			return nil, err
		}

		old := current.Values[field.Name]
		if field.Equal(old, value) {
			continue
		}
		changes = append(changes, Change{Field: field, Old: old, New: value})
	}
	return changes, nil
}

// Apply writes the new values of changes into rec.
func Apply(rec *domain.Record, changes []Change) {
	if rec.Values == nil {
		rec.Values = make(map[string]any, len(changes))
	}
	for _, c := range changes {
		rec.Values[c.Field.Name] = c.New
	}
}

// FieldChanges renders a slice of changes for the history log.
func FieldChanges(changes []Change) []domain.FieldChange {
	out := make([]domain.FieldChange, len(changes))
	for i, c := range changes {
		out[i] = c.FieldChange()
	}
	return out
}
