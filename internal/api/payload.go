package api

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/history"
	"github.com/raffchen/inventory/internal/validation"
)

// createPayload is a decoded create body. ID is zero when the client left it to the store.
type createPayload struct {
	ID     int64
	Values []domain.FieldValue
}

func decodeObject(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", domain.ErrInvalidPayload, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", domain.ErrInvalidPayload)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", domain.ErrInvalidPayload)
	}
	return obj, nil
}

func parseCreatePayload(kind *domain.Kind, body io.Reader) (createPayload, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return createPayload{}, err
	}

	var p createPayload
	if raw, ok := obj[domain.FieldID]; ok {
		delete(obj, domain.FieldID)
		if raw != nil {
			idField, _ := domain.SystemField(domain.FieldID)
			v, err := idField.Coerce(raw)
			if err != nil {
				return createPayload{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
			}
			p.ID = v.(int64)
			if p.ID <= 0 {
				return createPayload{}, fmt.Errorf("%w: id must be positive", domain.ErrInvalidPayload)
			}
		}
	}

	p.Values, err = fieldValues(kind, obj)
	if err != nil {
		return createPayload{}, err
	}
	return p, nil
}

func parseUpdatePayload(kind *domain.Kind, body io.Reader) ([]domain.FieldValue, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	// Older clients echo updated_at back; the server always sets it.
	delete(obj, domain.FieldUpdatedAt)
	return fieldValues(kind, obj)
}

// fieldValues validates obj against kind. Business fields come out in declaration order,
// followed by the annotation keys.
func fieldValues(kind *domain.Kind, obj map[string]any) ([]domain.FieldValue, error) {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == history.NotesField || key == history.SourceField {
			continue
		}
		if _, ok := kind.BusinessField(key); !ok {
			return nil, fmt.Errorf("%w: unknown field %q for %s", domain.ErrInvalidPayload, key, kind.Name)
		}
	}

	values := make([]domain.FieldValue, 0, len(obj))
	for _, field := range kind.Fields {
		raw, ok := obj[field.Name]
		if !ok {
			continue
		}
		v, err := field.Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if err := validation.Value(kind, field, v); err != nil {
			return nil, err
		}
		values = append(values, domain.FieldValue{Field: field.Name, Value: v})
	}

	for _, name := range []string{history.NotesField, history.SourceField} {
		raw, ok := obj[name]
		if !ok {
			continue
		}
		if raw != nil {
			text, isText := raw.(string)
			if !isText {
				return nil, fmt.Errorf("%w: %s must be text", domain.ErrInvalidPayload, name)
			}
			if err := validation.Annotation(name, text); err != nil {
				return nil, err
			}
		}
		values = append(values, domain.FieldValue{Field: name, Value: raw})
	}
	return values, nil
}
