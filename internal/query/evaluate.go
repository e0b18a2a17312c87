package query

import (
	"sort"
	"strings"

	"github.com/raffchen/inventory/internal/domain"
)

// truth is a three-valued logic result, so in-process evaluation agrees with SQL on
// NULL columns.
type truth int8

const (
	truthFalse truth = iota - 1
	truthUnknown
	truthTrue
)

func truthOf(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}

func (t truth) not() truth {
	return -t
}

// Match reports whether rec satisfies cond. A nil condition matches everything.
func Match(cond Condition, rec domain.Record) bool {
	if cond == nil {
		return true
	}
	return eval(cond, rec) == truthTrue
}

func eval(cond Condition, rec domain.Record) truth {
	switch c := cond.(type) {
	case Comparison:
		v := rec.Value(c.Field.Name)
		if v == nil {
			return truthUnknown
		}
		cmp, ok := c.Field.Compare(v, c.Value)
		if !ok {
			return truthFalse
		}
		switch c.Op {
		case CompareEq:
			return truthOf(cmp == 0)
		case CompareNe:
			return truthOf(cmp != 0)
		case CompareLt:
			return truthOf(cmp < 0)
		case CompareGt:
			return truthOf(cmp > 0)
		case CompareLte:
			return truthOf(cmp <= 0)
		case CompareGte:
			return truthOf(cmp >= 0)
		}
		return truthFalse

	case Membership:
		if len(c.Values) == 0 {
			return truthOf(c.Negate)
		}
		v := rec.Value(c.Field.Name)
		if v == nil {
			return truthUnknown
		}
		found := false
		for _, candidate := range c.Values {
			if c.Field.Equal(v, candidate) {
				found = true
				break
			}
		}
		return truthOf(found != c.Negate)

	case Interval:
		v := rec.Value(c.Field.Name)
		if v == nil {
			return truthUnknown
		}
		lo, okLo := c.Field.Compare(v, c.Low)
		hi, okHi := c.Field.Compare(v, c.High)
		if !okLo || !okHi {
			return truthFalse
		}
		if c.Negate {
			return truthOf(lo < 0 || hi > 0)
		}
		return truthOf(lo >= 0 && hi <= 0)

	case TextMatch:
		result := truthFalse
		needle := strings.ToLower(c.Pattern)
		for _, field := range c.Fields {
			text := field.Format(rec.Value(field.Name))
			if text == nil {
				result = or(result, truthUnknown)
				continue
			}
			result = or(result, truthOf(matchText(strings.ToLower(*text), needle, c.Mode)))
		}
		if c.Negate {
			return result.not()
		}
		return result

	case NullCheck:
		isNull := rec.Value(c.Field.Name) == nil
		return truthOf(isNull != c.Negate)

	case Conjunction:
		result := truthTrue
		for _, child := range c.Children {
			result = and(result, eval(child, rec))
		}
		return result

	case Disjunction:
		result := truthFalse
		for _, child := range c.Children {
			result = or(result, eval(child, rec))
		}
		return result
	}
	return truthFalse
}

func and(a, b truth) truth {
	if a < b {
		return a
	}
	return b
}

func or(a, b truth) truth {
	if a > b {
		return a
	}
	return b
}

func matchText(text, needle string, mode MatchMode) bool {
	switch mode {
	case MatchPrefix:
		return strings.HasPrefix(text, needle)
	case MatchSuffix:
		return strings.HasSuffix(text, needle)
	}
	return strings.Contains(text, needle)
}

// SortRecords orders records in place. Nulls sort after every value in ascending order
// and before every value in descending order, as PostgreSQL does by default.
func SortRecords(records []domain.Record, order []Order) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range order {
			c := compareNullable(o.Field, records[i].Value(o.Field.Name), records[j].Value(o.Field.Name))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareNullable(field domain.Field, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, _ := field.Compare(a, b)
	return c
}

// Window applies a plan's offset and limit to an ordered slice.
func Window(records []domain.Record, offset, limit int) []domain.Record {
	if offset >= len(records) {
		return []domain.Record{}
	}
	records = records[offset:]
	if limit >= 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
