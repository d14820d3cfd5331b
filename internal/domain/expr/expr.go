// Package expr implements the boolean expression AST evaluated against
// entry attributes: fileclass definitions, rule conditions, policy
// scopes, and ignore lists are all one expr.Node.
package expr

import (
	"fmt"
	"sort"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// Comparator is the relational operator of a Condition leaf.
type Comparator int

const (
	EQ Comparator = iota
	NE
	LT
	GT
	LE
	GE
	LIKE
	UNLIKE
	ILIKE
	IUNLIKE
	RLIKE
	IN
	NOTIN
	ISNULL
	NOTNULL
)

func (c Comparator) String() string {
	switch c {
	case EQ:
		return "=="
	case NE:
		return "!="
	case LT:
		return "<"
	case GT:
		return ">"
	case LE:
		return "<="
	case GE:
		return ">="
	case LIKE:
		return "LIKE"
	case UNLIKE:
		return "NOT LIKE"
	case ILIKE:
		return "ILIKE"
	case IUNLIKE:
		return "NOT ILIKE"
	case RLIKE:
		return "RLIKE"
	case IN:
		return "IN"
	case NOTIN:
		return "NOT IN"
	case ISNULL:
		return "IS NULL"
	case NOTNULL:
		return "IS NOT NULL"
	default:
		return "?"
	}
}

// Kind discriminates the tagged Node union.
type Kind int

const (
	KindConstant Kind = iota
	KindUnary
	KindBinary
	KindCondition
)

// BoolOp is the operator of a Unary (NOT) or Binary (AND/OR) node.
type BoolOp int

const (
	OpNot BoolOp = iota
	OpAnd
	OpOr
)

// Value is the right-hand side of a Condition. Exactly one field is
// meaningful, selected by the Condition's value kind; List holds the
// operands of IN/NOTIN.
type Value struct {
	Str      string
	Int      int64
	Float    float64
	Bool     bool
	Duration int64 // nanoseconds; an age (now - attribute) for time attrs
	IsTime   bool  // when true, the entry's age is compared against Duration
	List     []Value
}

// Node is a tagged boolean-expression tree node: exactly one of the
// Constant/Unary/Binary/Condition shapes is populated, selected by Kind.
type Node struct {
	Kind Kind

	// KindConstant
	Const bool

	// KindUnary / KindBinary
	Op          BoolOp
	Left, Right *Node

	// KindCondition
	AttrIdx    attr.Index
	Comparator Comparator
	Value      Value

	// mask is the cached union of attribute indices referenced by this
	// subtree, computed once when the node is built (expressions are
	// immutable after load).
	mask attr.Mask
}

// Constant builds a Constant(bool) leaf.
func Constant(v bool) *Node {
	return &Node{Kind: KindConstant, Const: v}
}

// Not builds NOT(child).
func Not(child *Node) *Node {
	n := &Node{Kind: KindUnary, Op: OpNot, Left: child}
	n.mask = child.AttrMask()
	return n
}

// And builds l AND r.
func And(l, r *Node) *Node {
	n := &Node{Kind: KindBinary, Op: OpAnd, Left: l, Right: r}
	n.mask = l.AttrMask().Or(r.AttrMask())
	return n
}

// Or builds l OR r.
func Or(l, r *Node) *Node {
	n := &Node{Kind: KindBinary, Op: OpOr, Left: l, Right: r}
	n.mask = l.AttrMask().Or(r.AttrMask())
	return n
}

// Cond builds a single Condition(attr, comparator, value) leaf.
func Cond(idx attr.Index, cmp Comparator, val Value) *Node {
	return &Node{
		Kind:       KindCondition,
		AttrIdx:    idx,
		Comparator: cmp,
		Value:      val,
		mask:       attr.Mask{}.Set(idx),
	}
}

// AttrMask returns the cached union of attribute indices this subtree
// references.
func (n *Node) AttrMask() attr.Mask {
	if n == nil {
		return attr.Mask{}
	}
	return n.mask
}

// String renders the expression for diagnostics and config error
// messages.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case KindConstant:
		return fmt.Sprintf("%t", n.Const)
	case KindUnary:
		return fmt.Sprintf("NOT(%s)", n.Left.String())
	case KindBinary:
		op := "AND"
		if n.Op == OpOr {
			op = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", n.Left.String(), op, n.Right.String())
	case KindCondition:
		return fmt.Sprintf("%s %s %v", attr.StdName(n.AttrIdx), n.Comparator, n.Value)
	default:
		return "?"
	}
}

// TimeAttrs reports whether any Condition leaf in the subtree references
// a time-family attribute (last_access, last_mod, creation_time,
// md_update, path_update, rm_time). Used to implement the
// TimeInDefinition warning: fileclass definitions should not use
// time-based attributes.
func (n *Node) TimeAttrs() []attr.Index {
	var found []attr.Index
	seen := make(map[attr.Index]bool)
	walk(n, func(node *Node) {
		if node.Kind != KindCondition {
			return
		}
		if isTimeAttr(node.AttrIdx) && !seen[node.AttrIdx] {
			seen[node.AttrIdx] = true
			found = append(found, node.AttrIdx)
		}
	})
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found
}

func isTimeAttr(idx attr.Index) bool {
	switch idx {
	case attr.LastAccess, attr.LastMod, attr.CreationTime, attr.MDUpdate, attr.PathUpdate, attr.RmTime:
		return true
	default:
		return false
	}
}

func walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	walk(n.Left, fn)
	walk(n.Right, fn)
}
