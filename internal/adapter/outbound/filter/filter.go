// Package filter translates the boolean expression AST (internal/domain/expr)
// into a backend-agnostic filter tree that always matches a superset of
// the conceptual result: every atom the backend can't express is elided
// (equivalent to AND TRUE) rather than dropping the whole clause, and
// NULL handling is made to mirror the reference catalog's matching rules
// so that narrowing the candidate set on the backend never excludes an
// entry the boolean evaluator would itself accept.
package filter

import (
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// Kind discriminates the backend filter tree's node shapes.
type Kind int

const (
	KindTrue Kind = iota // always-true leaf: an elided or too-deep clause
	KindAtom
	KindAnd
	KindOr
	KindNotBlock // negation of a whole (possibly compound) sub-filter
)

// Atom is one translated comparator over a single attribute.
type Atom struct {
	AttrIdx    attr.Index
	Comparator expr.Comparator
	Value      expr.Value
	// AllowNull requests that the backend also match rows where AttrIdx
	// is NULL, per the reference catalog's allow_null() rule. Always
	// false inside a NotBlock: NULL matching is suppressed under NOT.
	AllowNull bool
}

// Node is a backend filter tree node.
type Node struct {
	Kind        Kind
	Atom        Atom
	Left, Right *Node // And/Or operands, or NotBlock's single child (Left)
}

const maxDepth = 3

// Translate converts a boolean expression into a backend filter that
// matches a superset of the conceptual result. Diagnostics are returned
// for any clause that had to be widened to TRUE (an elided atom or a
// too-deeply-nested group); the caller should log them but must still
// use the returned filter, which remains safe (a superset) by
// construction.
func Translate(n *expr.Node) (*Node, []string) {
	var diags []string
	out := translate(n, 0, false, &diags)
	return out, diags
}

func translate(n *expr.Node, depth int, inNot bool, diags *[]string) *Node {
	if n == nil {
		return &Node{Kind: KindTrue}
	}

	switch n.Kind {
	case expr.KindConstant:
		if n.Const {
			return &Node{Kind: KindTrue}
		}
		// A literal false has no useful backend representation that is
		// still a superset other than TRUE; only a direct negated
		// condition can narrow, so we widen and note it.
		*diags = append(*diags, "constant false widened to TRUE (superset contract)")
		return &Node{Kind: KindTrue}

	case expr.KindUnary: // NOT
		if n.Left != nil && n.Left.Kind == expr.KindCondition &&
			Translatable(n.Left.AttrIdx) && !n.Left.Value.IsTime {
			if neg, ok := negateComparator(n.Left.Comparator); ok {
				return &Node{Kind: KindAtom, Atom: Atom{
					AttrIdx:    n.Left.AttrIdx,
					Comparator: neg,
					Value:      n.Left.Value,
					AllowNull:  false, // suppressed under NOT
				}}
			}
		}
		before := len(*diags)
		child := translate(n.Left, depth, true, diags)
		if len(*diags) > before {
			// Negating a widened child would narrow the result instead
			// of widening it, so the whole NOT widens to TRUE.
			*diags = append(*diags, "NOT over a widened clause widened to TRUE")
			return &Node{Kind: KindTrue}
		}
		return &Node{Kind: KindNotBlock, Left: child}

	case expr.KindBinary:
		if depth >= maxDepth {
			*diags = append(*diags, "nested group exceeds depth cap, widened to TRUE")
			return &Node{Kind: KindTrue}
		}
		l := translate(n.Left, depth+1, inNot, diags)
		r := translate(n.Right, depth+1, inNot, diags)
		if n.Op == expr.OpAnd {
			return &Node{Kind: KindAnd, Left: l, Right: r}
		}
		return &Node{Kind: KindOr, Left: l, Right: r}

	case expr.KindCondition:
		if n.Comparator == expr.ISNULL || n.Comparator == expr.NOTNULL {
			if !Translatable(n.AttrIdx) {
				*diags = append(*diags, "null-test atom on non-translatable attribute widened to TRUE")
				return &Node{Kind: KindTrue}
			}
			return &Node{Kind: KindAtom, Atom: Atom{AttrIdx: n.AttrIdx, Comparator: n.Comparator}}
		}
		if !Translatable(n.AttrIdx) {
			*diags = append(*diags, "atom on non-translatable attribute elided (AND TRUE)")
			return &Node{Kind: KindTrue}
		}
		if n.Value.IsTime {
			// A relative time value is an age, not a timestamp; the
			// backend has no reference time to resolve it against.
			*diags = append(*diags, "relative-time atom elided (AND TRUE)")
			return &Node{Kind: KindTrue}
		}
		if n.Comparator == expr.RLIKE {
			*diags = append(*diags, "RLIKE atom elided (AND TRUE): no REGEXP function on the backend")
			return &Node{Kind: KindTrue}
		}
		return &Node{Kind: KindAtom, Atom: Atom{
			AttrIdx:    n.AttrIdx,
			Comparator: n.Comparator,
			Value:      n.Value,
			AllowNull:  !inNot && allowNull(n.AttrIdx, n.Comparator, n.Value),
		}}

	default:
		*diags = append(*diags, "unknown node kind widened to TRUE")
		return &Node{Kind: KindTrue}
	}
}

// negateComparator returns the direct negation of cmp, when one exists.
// RLIKE/IN-style comparators with no single-token negation fall back to
// false, forcing the caller to wrap the whole condition in a NotBlock.
func negateComparator(cmp expr.Comparator) (expr.Comparator, bool) {
	switch cmp {
	case expr.EQ:
		return expr.NE, true
	case expr.NE:
		return expr.EQ, true
	case expr.LT:
		return expr.GE, true
	case expr.GE:
		return expr.LT, true
	case expr.GT:
		return expr.LE, true
	case expr.LE:
		return expr.GT, true
	case expr.LIKE:
		return expr.UNLIKE, true
	case expr.UNLIKE:
		return expr.LIKE, true
	case expr.ILIKE:
		return expr.IUNLIKE, true
	case expr.IUNLIKE:
		return expr.ILIKE, true
	case expr.IN:
		return expr.NOTIN, true
	case expr.NOTIN:
		return expr.IN, true
	case expr.ISNULL:
		return expr.NOTNULL, true
	case expr.NOTNULL:
		return expr.ISNULL, true
	default:
		return 0, false
	}
}

// allowNull implements the reference catalog's allow_null(): for
// string/enum comparisons, `x == ""` and `x != "non-empty"` must also
// match rows where x is NULL; `x == "non-empty"` and `x != ""` must not.
func allowNull(idx attr.Index, cmp expr.Comparator, val expr.Value) bool {
	if !isStringAttr(idx) {
		return false
	}
	switch cmp {
	case expr.EQ, expr.LIKE, expr.ILIKE:
		return val.Str == ""
	case expr.NE, expr.UNLIKE, expr.IUNLIKE:
		return val.Str != ""
	default:
		return false
	}
}

func isStringAttr(idx attr.Index) bool {
	switch idx {
	case attr.Name, attr.FullPath, attr.Type, attr.LinkTarget, attr.StripeInfo, attr.ClassID:
		return true
	default:
		return idx.Domain() == attr.DomainStatus
	}
}
