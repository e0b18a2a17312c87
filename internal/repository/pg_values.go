package repository

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/raffchen/inventory/internal/domain"
)

// sqlValue converts a typed field value into something pgx encodes natively.
func sqlValue(v any) any {
	switch typed := v.(type) {
	case decimal.Decimal:
		return pgtype.Numeric{Int: typed.Coefficient(), Exp: typed.Exponent(), Valid: true}
	case time.Time:
		return pgtype.Timestamptz{Time: typed, Valid: true}
	}
	return v
}

// scanSlot is a typed scan destination for one column.
type scanSlot interface {
	dest() any
	value() (any, error)
}

type textSlot struct{ v pgtype.Text }

func (s *textSlot) dest() any { return &s.v }
func (s *textSlot) value() (any, error) {
	if !s.v.Valid {
		return nil, nil
	}
	return s.v.String, nil
}

type intSlot struct{ v pgtype.Int8 }

func (s *intSlot) dest() any { return &s.v }
func (s *intSlot) value() (any, error) {
	if !s.v.Valid {
		return nil, nil
	}
	return s.v.Int64, nil
}

type numericSlot struct{ v pgtype.Numeric }

func (s *numericSlot) dest() any { return &s.v }
func (s *numericSlot) value() (any, error) {
	if !s.v.Valid {
		return nil, nil
	}
	if s.v.NaN || s.v.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("non-finite numeric value")
	}
	return decimal.NewFromBigInt(s.v.Int, s.v.Exp), nil
}

type timeSlot struct{ v pgtype.Timestamptz }

func (s *timeSlot) dest() any { return &s.v }
func (s *timeSlot) value() (any, error) {
	if !s.v.Valid {
		return nil, nil
	}
	return s.v.Time.UTC(), nil
}

func newSlot(t domain.FieldType) scanSlot {
	switch t {
	case domain.FieldTypeInteger:
		return &intSlot{}
	case domain.FieldTypeDecimal:
		return &numericSlot{}
	case domain.FieldTypeTimestamp:
		return &timeSlot{}
	}
	return &textSlot{}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row laid out by columnList.
func scanRecord(kind *domain.Kind, row rowScanner) (domain.Record, error) {
	var (
		rec       domain.Record
		deletedAt pgtype.Timestamptz
	)
	slots := make([]scanSlot, len(kind.Fields))
	dests := make([]any, 0, len(kind.Fields)+4)
	dests = append(dests, &rec.ID)
	for i, f := range kind.Fields {
		slots[i] = newSlot(f.Type)
		dests = append(dests, slots[i].dest())
	}
	dests = append(dests, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt)

	if err := row.Scan(dests...); err != nil {
		return domain.Record{}, err
	}

	rec.Values = make(map[string]any, len(kind.Fields))
	for i, f := range kind.Fields {
		v, err := slots[i].value()
		if err != nil {
			return domain.Record{}, fmt.Errorf("column %s: %w", f.Name, err)
		}
		rec.Values[f.Name] = v
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		rec.DeletedAt = &t
	}
	return rec, nil
}
