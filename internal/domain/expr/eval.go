package expr

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

// Eval evaluates the expression against an entry's attributes. now is
// the reference time for duration-relative comparisons (last_mod > 1h
// means last_mod < now-1h). If a Condition references an attribute not
// present in attrs, Eval returns a *rberr.MissingAttrs error carrying
// the mask of attributes the caller must supply, then retry.
func Eval(n *Node, attrs *attr.Set, now time.Time) (bool, error) {
	if n == nil {
		return true, nil
	}
	switch n.Kind {
	case KindConstant:
		return n.Const, nil

	case KindUnary: // NOT
		v, err := Eval(n.Left, attrs, now)
		if err != nil {
			return false, err
		}
		return !v, nil

	case KindBinary:
		l, err := Eval(n.Left, attrs, now)
		if err != nil {
			return false, err
		}
		if n.Op == OpAnd && !l {
			return false, nil // short-circuit
		}
		if n.Op == OpOr && l {
			return true, nil // short-circuit
		}
		return Eval(n.Right, attrs, now)

	case KindCondition:
		return evalCondition(n, attrs, now)

	default:
		return false, fmt.Errorf("expr: unknown node kind %d", n.Kind)
	}
}

func evalCondition(n *Node, attrs *attr.Set, now time.Time) (bool, error) {
	if !attrs.Present.Test(n.AttrIdx) {
		return false, &rberr.MissingAttrs{Mask: attr.Mask{}.Set(n.AttrIdx)}
	}

	if n.Comparator == ISNULL || n.Comparator == NOTNULL {
		// Present-but-null has no representation here beyond "present";
		// ISNULL on a present attribute is always false, NOTNULL true.
		return n.Comparator == NOTNULL, nil
	}

	raw, ok, err := attrGetAny(attrs, n.AttrIdx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &rberr.MissingAttrs{Mask: attr.Mask{}.Set(n.AttrIdx)}
	}

	switch v := raw.(type) {
	case string:
		return evalString(n, v)
	case time.Time:
		return evalTime(n, v, now)
	case bool:
		return evalBool(n, v)
	case int, int64, uint32, uint64, int32:
		return evalNumber(n, toFloat(v))
	case float64, float32:
		return evalNumber(n, toFloat(v))
	default:
		return false, fmt.Errorf("expr: unsupported attribute value type %T", raw)
	}
}

func attrGetAny(attrs *attr.Set, idx attr.Index) (any, bool, error) {
	switch idx.Domain() {
	case attr.DomainStandard:
		return attrs.GetStd(idx)
	case attr.DomainStatus:
		v, ok := attrs.GetStatus(idx.Offset())
		return v, ok, nil
	case attr.DomainSMInfo:
		// SMInfoIndex packs (smIdx, attrIdx); recover both from offset.
		off := idx.Offset()
		v, ok, err := attrs.GetSMInfo(off/8, off%8)
		return v, ok, err
	default:
		return nil, false, fmt.Errorf("expr: unknown domain for index %d", idx)
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}

func evalNumber(n *Node, v float64) (bool, error) {
	want := n.Value.Float
	if n.Value.Int != 0 && want == 0 {
		want = float64(n.Value.Int)
	}
	switch n.Comparator {
	case EQ:
		return v == want, nil
	case NE:
		return v != want, nil
	case LT:
		return v < want, nil
	case GT:
		return v > want, nil
	case LE:
		return v <= want, nil
	case GE:
		return v >= want, nil
	case IN:
		return numberIn(v, n.Value.List), nil
	case NOTIN:
		return !numberIn(v, n.Value.List), nil
	default:
		return false, fmt.Errorf("expr: comparator %s not valid for numeric attribute", n.Comparator)
	}
}

func numberIn(v float64, list []Value) bool {
	for _, item := range list {
		want := item.Float
		if item.Int != 0 && want == 0 {
			want = float64(item.Int)
		}
		if v == want {
			return true
		}
	}
	return false
}

func evalBool(n *Node, v bool) (bool, error) {
	switch n.Comparator {
	case EQ:
		return v == n.Value.Bool, nil
	case NE:
		return v != n.Value.Bool, nil
	default:
		return false, fmt.Errorf("expr: comparator %s not valid for boolean attribute", n.Comparator)
	}
}

// evalTime compares a time.Time attribute against a relative age (when
// Value.IsTime) or a literal nanosecond epoch (Value.Int). The relative
// form compares the entry's age, now - v, against Duration, so
// `last_mod > 1h` holds for an entry last modified more than an hour
// ago; the absolute form compares v against the timestamp directly.
func evalTime(n *Node, v time.Time, now time.Time) (bool, error) {
	var want time.Time
	if n.Value.IsTime {
		// age > d  <=>  now-d > v: swapping the operands makes the
		// comparator below apply to the age rather than the timestamp.
		v, want = now.Add(-time.Duration(n.Value.Duration)), v
	} else {
		want = time.Unix(0, n.Value.Int)
	}
	switch n.Comparator {
	case EQ:
		return v.Equal(want), nil
	case NE:
		return !v.Equal(want), nil
	case LT:
		return v.Before(want), nil
	case GT:
		return v.After(want), nil
	case LE:
		return v.Before(want) || v.Equal(want), nil
	case GE:
		return v.After(want) || v.Equal(want), nil
	default:
		return false, fmt.Errorf("expr: comparator %s not valid for time attribute", n.Comparator)
	}
}

func evalString(n *Node, v string) (bool, error) {
	switch n.Comparator {
	case EQ:
		return v == n.Value.Str, nil
	case NE:
		return v != n.Value.Str, nil
	case LIKE:
		return MatchGlob(n.Value.Str, v, false), nil
	case UNLIKE:
		return !MatchGlob(n.Value.Str, v, false), nil
	case ILIKE:
		return MatchGlob(n.Value.Str, v, true), nil
	case IUNLIKE:
		return !MatchGlob(n.Value.Str, v, true), nil
	case RLIKE:
		re, err := regexp.Compile(n.Value.Str)
		if err != nil {
			return false, fmt.Errorf("expr: invalid regexp %q: %w", n.Value.Str, err)
		}
		return re.MatchString(v), nil
	case IN:
		return stringIn(v, n.Value.List, false), nil
	case NOTIN:
		return !stringIn(v, n.Value.List, false), nil
	default:
		return false, fmt.Errorf("expr: comparator %s not valid for string attribute", n.Comparator)
	}
}

func stringIn(v string, list []Value, ci bool) bool {
	for _, item := range list {
		if ci {
			if strings.EqualFold(v, item.Str) {
				return true
			}
		} else if v == item.Str {
			return true
		}
	}
	return false
}
