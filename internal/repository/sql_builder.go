package repository

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/query"
)

type sqlBuilder struct {
	args []any
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{args: make([]any, 0)}
}

func (b *sqlBuilder) addArg(value any) int {
	b.args = append(b.args, value)
	return len(b.args)
}

func (b *sqlBuilder) placeholder(idx int) string {
	return fmt.Sprintf("$%d", idx)
}

// bind adds value and returns its placeholder.
func (b *sqlBuilder) bind(value any) string {
	return b.placeholder(b.addArg(value))
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// columnList is the select list shared by every record query: id, the business fields
// in declaration order, then the lifecycle timestamps.
func columnList(kind *domain.Kind) string {
	cols := make([]string, 0, len(kind.Fields)+4)
	cols = append(cols, quoteIdent(domain.FieldID))
	for _, f := range kind.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	cols = append(cols,
		quoteIdent(domain.FieldCreatedAt),
		quoteIdent(domain.FieldUpdatedAt),
		quoteIdent(domain.FieldDeletedAt),
	)
	return strings.Join(cols, ", ")
}

// whereClause renders cond, or an empty string when there is nothing to filter.
func whereClause(cond query.Condition, b *sqlBuilder) string {
	if cond == nil {
		return ""
	}
	return " WHERE " + renderCondition(cond, b)
}

func renderCondition(cond query.Condition, b *sqlBuilder) string {
	switch c := cond.(type) {
	case query.Comparison:
		return fmt.Sprintf("%s %s %s", quoteIdent(c.Field.Name), c.Op, b.bind(sqlValue(c.Value)))

	case query.Membership:
		if len(c.Values) == 0 {
			if c.Negate {
				return "TRUE"
			}
			return "FALSE"
		}
		placeholders := make([]string, len(c.Values))
		for i, v := range c.Values {
			placeholders[i] = b.bind(sqlValue(v))
		}
		op := "IN"
		if c.Negate {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", quoteIdent(c.Field.Name), op, strings.Join(placeholders, ", "))

	case query.Interval:
		col := quoteIdent(c.Field.Name)
		low, high := b.bind(sqlValue(c.Low)), b.bind(sqlValue(c.High))
		if c.Negate {
			return fmt.Sprintf("(%s < %s OR %s > %s)", col, low, col, high)
		}
		return fmt.Sprintf("(%s >= %s AND %s <= %s)", col, low, col, high)

	case query.TextMatch:
		pattern := b.bind(likePattern(c.Pattern, c.Mode))
		parts := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			parts[i] = fmt.Sprintf("%s ILIKE %s", textColumn(f), pattern)
		}
		expr := strings.Join(parts, " OR ")
		if c.Negate {
			return "NOT (" + expr + ")"
		}
		return "(" + expr + ")"

	case query.NullCheck:
		if c.Negate {
			return quoteIdent(c.Field.Name) + " IS NOT NULL"
		}
		return quoteIdent(c.Field.Name) + " IS NULL"

	case query.Conjunction:
		return joinConditions(c.Children, " AND ", b)

	case query.Disjunction:
		return joinConditions(c.Children, " OR ", b)
	}
	return "FALSE"
}

func joinConditions(children []query.Condition, sep string, b *sqlBuilder) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = renderCondition(child, b)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func textColumn(f domain.Field) string {
	if f.Type == domain.FieldTypeText {
		return quoteIdent(f.Name)
	}
	return fmt.Sprintf("CAST(%s AS TEXT)", quoteIdent(f.Name))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(text string, mode query.MatchMode) string {
	escaped := likeEscaper.Replace(text)
	switch mode {
	case query.MatchPrefix:
		return escaped + "%"
	case query.MatchSuffix:
		return "%" + escaped
	}
	return "%" + escaped + "%"
}

// orderClause renders the plan's keys. PostgreSQL already sorts NULLs last ascending and
// first descending, which is what in-process sorting does too.
func orderClause(order []query.Order) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, len(order))
	for i, o := range order {
		direction := "ASC"
		if o.Desc {
			direction = "DESC"
		}
		parts[i] = quoteIdent(o.Field.Name) + " " + direction
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// buildSelect renders the windowed SELECT for plan.
func buildSelect(plan query.Plan, b *sqlBuilder) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", columnList(plan.Kind), quoteIdent(plan.Kind.Table))
	sb.WriteString(whereClause(plan.Where, b))
	sb.WriteString(orderClause(plan.Order))
	if plan.Paged() {
		fmt.Fprintf(&sb, " LIMIT %s OFFSET %s", b.bind(plan.Limit), b.bind(plan.Offset))
	}
	return sb.String()
}

// buildCount renders the COUNT(*) for plan's filter, ignoring order and window.
func buildCount(plan query.Plan, b *sqlBuilder) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(plan.Kind.Table), whereClause(plan.Where, b))
}
