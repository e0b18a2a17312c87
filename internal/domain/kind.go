package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType enumerates the storage types a record field can have.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeDecimal   FieldType = "decimal"
	FieldTypeTimestamp FieldType = "timestamp"
)

// Field describes one column of a record kind.
type Field struct {
	Name       string
	Type       FieldType
	Nullable   bool
	Precision  int32 // total digits, decimals only
	Scale      int32 // decimal places, decimals only
	Filterable bool
	Sortable   bool
	// Searchable marks text fields matched by the wildcard filter.
	Searchable bool
	// Default is applied on create when the payload omits the field.
	Default any
}

// Kind is the explicit schema of a record kind: its business fields in declaration
// order plus the storage names used by the persistence layer.
type Kind struct {
	Name         string
	Table        string
	HistoryTable string
	HistoryFK    string
	Fields       []Field

	index map[string]int
}

// Field system columns shared by every kind.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldDeletedAt = "deleted_at"
)

var systemFields = []Field{
	{Name: FieldID, Type: FieldTypeInteger, Filterable: true, Sortable: true},
	{Name: FieldCreatedAt, Type: FieldTypeTimestamp, Filterable: true, Sortable: true},
	{Name: FieldUpdatedAt, Type: FieldTypeTimestamp, Filterable: true, Sortable: true},
	{Name: FieldDeletedAt, Type: FieldTypeTimestamp, Nullable: true, Filterable: true, Sortable: true},
}

// NewKind builds a kind and indexes its fields.
func NewKind(name, table, historyTable, historyFK string, fields []Field) *Kind {
	k := &Kind{
		Name:         name,
		Table:        table,
		HistoryTable: historyTable,
		HistoryFK:    historyFK,
		Fields:       fields,
		index:        make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		k.index[f.Name] = i
	}
	return k
}

// BusinessField returns the mutable business field with the given name.
func (k *Kind) BusinessField(name string) (Field, bool) {
	i, ok := k.index[name]
	if !ok {
		return Field{}, false
	}
	return k.Fields[i], true
}

// Lookup resolves any field, including the system columns.
func (k *Kind) Lookup(name string) (Field, bool) {
	if f, ok := k.BusinessField(name); ok {
		return f, true
	}
	return SystemField(name)
}

// SystemField returns one of the identity and lifecycle columns every kind carries.
func SystemField(name string) (Field, bool) {
	for _, f := range systemFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SearchableFields lists the text fields covered by the wildcard filter.
func (k *Kind) SearchableFields() []Field {
	var out []Field
	for _, f := range k.Fields {
		if f.Searchable {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames returns the business field names in declaration order.
func (k *Kind) FieldNames() []string {
	names := make([]string, len(k.Fields))
	for i, f := range k.Fields {
		names[i] = f.Name
	}
	return names
}

// IsHistoryField reports whether name belongs to the kind's history enumeration.
func (k *Kind) IsHistoryField(name string) bool {
	if name == FieldDeletedAt {
		return true
	}
	_, ok := k.index[name]
	return ok
}

// Format renders a value in its canonical text form. Nil stays nil.
func (f Field) Format(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch typed := v.(type) {
	case string:
		s = typed
	case int64:
		s = strconv.FormatInt(typed, 10)
	case decimal.Decimal:
		s = typed.StringFixed(f.Scale)
	case time.Time:
		s = FormatTimestamp(typed)
	default:
		s = fmt.Sprintf("%v", typed)
	}
	return &s
}

// Parse reads a canonical text form back into a typed value.
func (f Field) Parse(s *string) (any, error) {
	if s == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldTypeText:
		return *s, nil
	case FieldTypeInteger:
		n, err := strconv.ParseInt(*s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return n, nil
	case FieldTypeDecimal:
		d, err := decimal.NewFromString(*s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return d, nil
	case FieldTypeTimestamp:
		t, err := time.Parse(time.RFC3339Nano, *s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("field %s: unknown type %s", f.Name, f.Type)
}

// Coerce converts a loosely typed input (JSON scalars, numeric strings) into the
// field's declared Go type: string, int64, decimal.Decimal or time.Time.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldTypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldTypeInteger:
		switch typed := v.(type) {
		case int64:
			return typed, nil
		case int:
			return int64(typed), nil
		case float64:
			if typed == float64(int64(typed)) {
				return int64(typed), nil
			}
		case json.Number:
			if n, err := typed.Int64(); err == nil {
				return n, nil
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
				return n, nil
			}
		}
	case FieldTypeDecimal:
		switch typed := v.(type) {
		case decimal.Decimal:
			return typed, nil
		case int64:
			return decimal.NewFromInt(typed), nil
		case int:
			return decimal.NewFromInt(int64(typed)), nil
		case float64:
			return decimal.NewFromFloat(typed), nil
		case json.Number:
			if d, err := decimal.NewFromString(typed.String()); err == nil {
				return d, nil
			}
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(typed)); err == nil {
				return d, nil
			}
		}
	case FieldTypeTimestamp:
		switch typed := v.(type) {
		case time.Time:
			return typed.UTC(), nil
		case string:
			if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(typed)); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return nil, fmt.Errorf("value %v (%T) is not a valid %s for field %s", v, v, f.Type, f.Name)
}

// Check reports whether a coerced, non-nil value fits the column. Decimals may carry at
// most Scale places and Precision-Scale integer digits, the limits of NUMERIC(p,s).
func (f Field) Check(v any) error {
	d, ok := v.(decimal.Decimal)
	if !ok || f.Type != FieldTypeDecimal {
		return nil
	}
	if !d.Equal(d.Round(f.Scale)) {
		return fmt.Errorf("%w: field %s allows at most %d decimal places", ErrInvalidPayload, f.Name, f.Scale)
	}
	if f.Precision > 0 {
		limit := decimal.New(1, f.Precision-f.Scale)
		if d.Abs().Cmp(limit) >= 0 {
			return fmt.Errorf("%w: field %s must be between -%s and %s", ErrInvalidPayload, f.Name,
				maxMagnitude(limit, f.Scale), maxMagnitude(limit, f.Scale))
		}
	}
	return nil
}

// maxMagnitude is the largest value below limit at the given scale, e.g. 99.99.
func maxMagnitude(limit decimal.Decimal, scale int32) string {
	return limit.Sub(decimal.New(1, -scale)).StringFixed(scale)
}

// Equal compares two typed values of this field.
func (f Field) Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := f.Compare(a, b)
	return ok && c == 0
}

// Compare orders two non-nil typed values. ok is false when they are not comparable.
func (f Field) Compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		if !ok {
			return 0, false
		}
		return x.Cmp(y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

// FormatTimestamp renders timestamps the way history entries store them.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
