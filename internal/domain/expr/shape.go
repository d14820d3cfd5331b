package expr

// SameShape reports whether a and b are structurally identical modulo
// numeric/string literal values: same node kinds, same operators, same
// attribute indices and comparators, in the same tree shape. Only the
// Value payload of Condition leaves may differ. A shape difference
// (different operator, different attribute, added/removed clause) means
// the expression cannot be hot-reloaded in place and forces a restart.
func SameShape(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindConstant:
		return true // literal differs, shape doesn't
	case KindUnary:
		return a.Op == b.Op && SameShape(a.Left, b.Left)
	case KindBinary:
		return a.Op == b.Op && SameShape(a.Left, b.Left) && SameShape(a.Right, b.Right)
	case KindCondition:
		return a.AttrIdx == b.AttrIdx && a.Comparator == b.Comparator
	default:
		return false
	}
}

// AdoptValues copies every Condition leaf's literal Value from newer
// into n, in place, assuming SameShape(n, newer) already holds. The
// cached attr_mask is unaffected since the shape (and therefore the set
// of referenced attributes) is unchanged.
func AdoptValues(n, newer *Node) {
	if n == nil || newer == nil {
		return
	}
	switch n.Kind {
	case KindConstant:
		n.Const = newer.Const
	case KindUnary:
		AdoptValues(n.Left, newer.Left)
	case KindBinary:
		AdoptValues(n.Left, newer.Left)
		AdoptValues(n.Right, newer.Right)
	case KindCondition:
		n.Value = newer.Value
	}
}
