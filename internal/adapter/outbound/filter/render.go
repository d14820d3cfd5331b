package filter

import (
	"fmt"
	"strings"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// Render walks a translated filter tree into a parameterised SQL WHERE
// clause (without the "WHERE " keyword) for the modernc.org/sqlite
// backend, using "?" placeholders in column order. columnName maps an
// attribute index to its catalog column expression, e.g. "size" for a
// standard attribute or a side-table subquery for a status value.
func Render(n *Node, columnName func(attr.Index) string) (string, []any) {
	var b strings.Builder
	var args []any
	renderNode(n, columnName, &b, &args)
	if b.Len() == 0 {
		return "1=1", nil
	}
	return b.String(), args
}

func renderNode(n *Node, columnName func(attr.Index) string, b *strings.Builder, args *[]any) {
	if n == nil {
		b.WriteString("1=1")
		return
	}
	switch n.Kind {
	case KindTrue:
		b.WriteString("1=1")

	case KindAtom:
		renderAtom(n.Atom, columnName, b, args)

	case KindAnd:
		b.WriteByte('(')
		renderNode(n.Left, columnName, b, args)
		b.WriteString(" AND ")
		renderNode(n.Right, columnName, b, args)
		b.WriteByte(')')

	case KindOr:
		b.WriteByte('(')
		renderNode(n.Left, columnName, b, args)
		b.WriteString(" OR ")
		renderNode(n.Right, columnName, b, args)
		b.WriteByte(')')

	case KindNotBlock:
		b.WriteString("NOT (")
		renderNode(n.Left, columnName, b, args)
		b.WriteByte(')')
	}
}

func renderAtom(a Atom, columnName func(attr.Index) string, b *strings.Builder, args *[]any) {
	col := columnName(a.AttrIdx)

	if a.Comparator == expr.ISNULL {
		fmt.Fprintf(b, "%s IS NULL", col)
		return
	}
	if a.Comparator == expr.NOTNULL {
		fmt.Fprintf(b, "%s IS NOT NULL", col)
		return
	}

	clause, clauseArgs := comparatorSQL(col, a.Comparator, a.Value, isStringAttr(a.AttrIdx))
	if a.AllowNull {
		b.WriteByte('(')
		b.WriteString(clause)
		fmt.Fprintf(b, " OR %s IS NULL)", col)
	} else {
		b.WriteString(clause)
	}
	*args = append(*args, clauseArgs...)
}

func comparatorSQL(col string, cmp expr.Comparator, val expr.Value, asString bool) (string, []any) {
	switch cmp {
	case expr.EQ:
		return col + " = ?", []any{sqlValue(val, asString)}
	case expr.NE:
		return col + " != ?", []any{sqlValue(val, asString)}
	case expr.LT:
		return col + " < ?", []any{sqlValue(val, asString)}
	case expr.GT:
		return col + " > ?", []any{sqlValue(val, asString)}
	case expr.LE:
		return col + " <= ?", []any{sqlValue(val, asString)}
	case expr.GE:
		return col + " >= ?", []any{sqlValue(val, asString)}
	case expr.LIKE:
		return col + " LIKE ?", []any{ToBackendLike(val.Str)}
	case expr.UNLIKE:
		return col + " NOT LIKE ?", []any{ToBackendLike(val.Str)}
	case expr.ILIKE:
		return "LOWER(" + col + ") LIKE LOWER(?)", []any{ToBackendLike(val.Str)}
	case expr.IUNLIKE:
		return "LOWER(" + col + ") NOT LIKE LOWER(?)", []any{ToBackendLike(val.Str)}
	case expr.RLIKE:
		// sqlite has no native REGEXP and the catalog gateway registers
		// none; Translate elides RLIKE atoms, so this form is only
		// reached by a filter tree built without Translate.
		return col + " REGEXP ?", []any{val.Str}
	case expr.IN, expr.NOTIN:
		placeholders := make([]string, len(val.List))
		args := make([]any, len(val.List))
		for i, v := range val.List {
			placeholders[i] = "?"
			args[i] = sqlValue(v, asString)
		}
		op := "IN"
		if cmp == expr.NOTIN {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", ")), args
	default:
		return "1=1", nil
	}
}

// sqlValue picks the meaningful field out of a Value. asString forces
// the (possibly empty) string field, since Value has no discriminant of
// its own and a zero-value string is otherwise indistinguishable from
// "no string set".
func sqlValue(v expr.Value, asString bool) any {
	switch {
	case asString:
		return v.Str
	case v.IsTime:
		return v.Duration // a raw age in ns; Translate elides relative-time atoms
	case v.Bool:
		return v.Bool
	case v.Int != 0:
		return v.Int
	default:
		return v.Float
	}
}
