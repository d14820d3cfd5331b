package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

var comparatorByName = map[string]expr.Comparator{
	"eq":      expr.EQ,
	"ne":      expr.NE,
	"lt":      expr.LT,
	"gt":      expr.GT,
	"le":      expr.LE,
	"ge":      expr.GE,
	"like":    expr.LIKE,
	"unlike":  expr.UNLIKE,
	"ilike":   expr.ILIKE,
	"iunlike": expr.IUNLIKE,
	"rlike":   expr.RLIKE,
	"in":      expr.IN,
	"notin":   expr.NOTIN,
	"isnull":  expr.ISNULL,
	"notnull": expr.NOTNULL,
}

// buildExpr recursively turns a structured ExprConfig into an
// *expr.Node, resolving attribute names via attr.StdIndexByName and
// parsing each leaf's value according to the target attribute's kind.
func buildExpr(e *ExprConfig) (*expr.Node, error) {
	if e == nil {
		return nil, nil
	}

	switch {
	case len(e.All) > 0:
		return buildChain(e.All, expr.And)
	case len(e.Any) > 0:
		return buildChain(e.Any, expr.Or)
	case e.Not != nil:
		child, err := buildExpr(e.Not)
		if err != nil {
			return nil, err
		}
		return expr.Not(child), nil
	case e.Attr != "":
		return buildCondition(e)
	default:
		return nil, fmt.Errorf("config: expression has neither all/any/not nor attr+cmp")
	}
}

func buildChain(elems []ExprConfig, combine func(l, r *expr.Node) *expr.Node) (*expr.Node, error) {
	var acc *expr.Node
	for i := range elems {
		n, err := buildExpr(&elems[i])
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = n
			continue
		}
		acc = combine(acc, n)
	}
	return acc, nil
}

func buildCondition(e *ExprConfig) (*expr.Node, error) {
	idx, ok := attr.StdIndexByName(e.Attr)
	if !ok {
		return nil, fmt.Errorf("config: unknown attribute %q", e.Attr)
	}
	cmp, ok := comparatorByName[e.Cmp]
	if !ok {
		return nil, fmt.Errorf("config: unknown comparator %q for attribute %q", e.Cmp, e.Attr)
	}
	if cmp == expr.ISNULL || cmp == expr.NOTNULL {
		return expr.Cond(idx, cmp, expr.Value{}), nil
	}
	val, err := parseValue(idx, cmp, e.Value)
	if err != nil {
		return nil, fmt.Errorf("config: attribute %q: %w", e.Attr, err)
	}
	return expr.Cond(idx, cmp, val), nil
}

func isTimeAttrIndex(idx attr.Index) bool {
	switch idx {
	case attr.LastAccess, attr.LastMod, attr.CreationTime, attr.MDUpdate, attr.PathUpdate, attr.RmTime:
		return true
	default:
		return false
	}
}

func isNumericAttrIndex(idx attr.Index) bool {
	switch idx {
	case attr.Size, attr.Blocks, attr.UID, attr.GID, attr.Mode, attr.Nlink, attr.Depth:
		return true
	default:
		return false
	}
}

// parseValue converts a YAML scalar string into the expr.Value shape
// the target attribute and comparator expect: a duration-since-now for
// time attributes, an integer for numeric attributes, a list for
// IN/NOTIN, and a plain string otherwise (glob/regex patterns included).
func parseValue(idx attr.Index, cmp expr.Comparator, raw string) (expr.Value, error) {
	if cmp == expr.IN || cmp == expr.NOTIN {
		parts := strings.Split(raw, ",")
		list := make([]expr.Value, 0, len(parts))
		for _, p := range parts {
			v, err := parseScalar(idx, strings.TrimSpace(p))
			if err != nil {
				return expr.Value{}, err
			}
			list = append(list, v)
		}
		return expr.Value{List: list}, nil
	}
	return parseScalar(idx, raw)
}

func parseScalar(idx attr.Index, raw string) (expr.Value, error) {
	if isTimeAttrIndex(idx) {
		d, err := parseDuration(raw)
		if err != nil {
			return expr.Value{}, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		return expr.Value{IsTime: true, Duration: int64(d)}, nil
	}
	if idx == attr.Invalid {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return expr.Value{}, fmt.Errorf("invalid bool %q: %w", raw, err)
		}
		return expr.Value{Bool: b}, nil
	}
	if isNumericAttrIndex(idx) {
		n, err := parseSizeOrInt(raw)
		if err != nil {
			return expr.Value{}, err
		}
		return expr.Value{Int: n}, nil
	}
	return expr.Value{Str: raw}, nil
}

// parseDuration extends time.ParseDuration with "d" (day) and "w" (week)
// units, which filesystem age thresholds like "30d" need and the
// standard library does not accept.
func parseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'd':
			amount, err := strconv.ParseFloat(s[:n-1], 64)
			if err != nil {
				return 0, err
			}
			return time.Duration(amount * float64(24*time.Hour)), nil
		case 'w':
			amount, err := strconv.ParseFloat(s[:n-1], 64)
			if err != nil {
				return 0, err
			}
			return time.Duration(amount * float64(7*24*time.Hour)), nil
		}
	}
	return time.ParseDuration(s)
}

// parseSizeOrInt accepts a bare integer or a size with a binary suffix
// (kb/mb/gb/tb, case-insensitive) such as "10MB" for size/blocks-like
// attributes.
func parseSizeOrInt(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	mult := int64(1)
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "kb"):
		mult = 1 << 10
		s = s[:len(s)-2]
	case strings.HasSuffix(lower, "mb"):
		mult = 1 << 20
		s = s[:len(s)-2]
	case strings.HasSuffix(lower, "gb"):
		mult = 1 << 30
		s = s[:len(s)-2]
	case strings.HasSuffix(lower, "tb"):
		mult = 1 << 40
		s = s[:len(s)-2]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer/size %q: %w", raw, err)
	}
	return n * mult, nil
}
