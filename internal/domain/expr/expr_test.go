package expr

import (
	"testing"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

func TestGlobTranslationSemantics(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"a?c*", "abc", true},
		{"a?c*", "abcXY", true},
		{"a?c*", "ac", false},
		{"*.log", "foo.log", true},
		{"*.log", "foo.logx", false},
		{"[abc]x", "bx", true},
		{"[!abc]x", "bx", false},
		{"[!abc]x", "dx", true},
		{"[a-c]x", "bx", true},
		{"[a-c]x", "dx", false},
	}
	for _, c := range cases {
		if got := MatchGlob(c.pattern, c.s, false); got != c.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}

func TestShortCircuitAndOr(t *testing.T) {
	falseLeaf := Cond(attr.Size, EQ, Value{Int: 1})
	// Right side references an attribute that is absent; if it were
	// evaluated it would return MissingAttrs. AND with a false left
	// operand must short-circuit before touching it.
	trap := Cond(attr.UID, EQ, Value{Int: 1})

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Size)
	s.Std.Size = 2 // falseLeaf evaluates to false

	n := And(falseLeaf, trap)
	ok, err := Eval(n, s, time.Now())
	if err != nil {
		t.Fatalf("AND should short-circuit without touching missing attr: %v", err)
	}
	if ok {
		t.Fatalf("expected false")
	}

	trueLeaf := Constant(true)
	orN := Or(trueLeaf, trap)
	ok, err = Eval(orN, s, time.Now())
	if err != nil {
		t.Fatalf("OR should short-circuit: %v", err)
	}
	if !ok {
		t.Fatalf("expected true")
	}
}

func TestMissingAttrPropagates(t *testing.T) {
	n := Cond(attr.UID, EQ, Value{Int: 1})
	s := attr.NewSet()
	_, err := Eval(n, s, time.Now())
	if err == nil {
		t.Fatalf("expected MissingAttrs error")
	}
	ma, ok := rberr.AsMissingAttrs(err)
	if !ok {
		t.Fatalf("expected *rberr.MissingAttrs, got %T", err)
	}
	if !ma.Mask.Test(attr.UID) {
		t.Fatalf("expected mask to reference UID")
	}
}

func TestAttrMaskUnion(t *testing.T) {
	n := And(Cond(attr.Size, GT, Value{Int: 0}), Cond(attr.UID, EQ, Value{Int: 0}))
	m := n.AttrMask()
	if !m.Test(attr.Size) || !m.Test(attr.UID) {
		t.Fatalf("expected attr_mask to union both conditions: %s", m)
	}
}

func TestTimeRelativeComparison(t *testing.T) {
	n := Cond(attr.LastMod, GT, Value{IsTime: true, Duration: int64(time.Hour)})
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.LastMod)
	s.Std.LastMod = now.Add(-30 * time.Minute) // modified 30m ago: younger than 1h

	ok, err := Eval(n, s, now)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if ok {
		t.Fatalf("expected last_mod > 1h to fail for a 30m-old mtime")
	}

	s.Std.LastMod = now.Add(-2 * time.Hour)
	ok, err = Eval(n, s, now)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if !ok {
		t.Fatalf("expected last_mod > 1h to hold for a 2h-old mtime")
	}
}

func TestSameShapeAndAdoptValues(t *testing.T) {
	a := Cond(attr.Size, GT, Value{Int: 100})
	b := Cond(attr.Size, GT, Value{Int: 200})
	if !SameShape(a, b) {
		t.Fatalf("expected same shape for differing literals")
	}
	AdoptValues(a, b)
	if a.Value.Int != 200 {
		t.Fatalf("AdoptValues did not copy new literal")
	}

	c := Cond(attr.Size, LT, Value{Int: 200})
	if SameShape(a, c) {
		t.Fatalf("expected different shape for differing comparator")
	}
}
