package filter

import (
	"strings"
	"testing"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

func columnName(idx attr.Index) string {
	switch idx {
	case attr.Size:
		return "size"
	case attr.Name:
		return "name"
	case attr.UID:
		return "uid"
	default:
		return "unknown"
	}
}

func TestTranslateSimpleAtom(t *testing.T) {
	n := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1000})
	f, diags := Translate(n)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	sql, args := Render(f, columnName)
	if sql != "size > ?" || len(args) != 1 {
		t.Fatalf("got sql=%q args=%v", sql, args)
	}
}

func TestTranslateElidesNonTranslatableAttr(t *testing.T) {
	n := expr.Cond(attr.FullPath, expr.EQ, expr.Value{Str: "/a/b"})
	f, diags := Translate(n)
	if len(diags) == 0 {
		t.Fatalf("expected a diagnostic for the elided atom")
	}
	if f.Kind != KindTrue {
		t.Fatalf("expected elided atom to widen to TRUE, got kind %d", f.Kind)
	}
}

func TestTranslateAndOfAtoms(t *testing.T) {
	n := expr.And(
		expr.Cond(attr.Size, expr.GT, expr.Value{Int: 100}),
		expr.Cond(attr.UID, expr.EQ, expr.Value{Int: 0}),
	)
	f, _ := Translate(n)
	sql, args := Render(f, columnName)
	if sql != "(size > ? AND uid = ?)" {
		t.Fatalf("got %q", sql)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
}

func TestTranslateNegatesSimpleCondition(t *testing.T) {
	n := expr.Not(expr.Cond(attr.Size, expr.EQ, expr.Value{Int: 5}))
	f, _ := Translate(n)
	if f.Kind != KindAtom || f.Atom.Comparator != expr.NE {
		t.Fatalf("expected NOT(size==5) to become a direct NE atom, got %+v", f)
	}
}

func TestTranslateNotOfConjunctionUsesBlock(t *testing.T) {
	n := expr.Not(expr.And(
		expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1}),
		expr.Cond(attr.UID, expr.EQ, expr.Value{Int: 0}),
	))
	f, _ := Translate(n)
	if f.Kind != KindNotBlock {
		t.Fatalf("expected a NotBlock wrapping the conjunction, got kind %d", f.Kind)
	}
	sql, _ := Render(f, columnName)
	if !strings.HasPrefix(sql, "NOT (") {
		t.Fatalf("expected rendered SQL to start with NOT (, got %q", sql)
	}
}

func TestTranslateDepthCapWidensToTrue(t *testing.T) {
	// Build 4 nested AND levels, one past the cap of 3.
	n := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1})
	for i := 0; i < 4; i++ {
		n = expr.And(n, expr.Cond(attr.UID, expr.EQ, expr.Value{Int: int64(i)}))
	}
	f, diags := Translate(n)
	found := false
	for _, d := range diags {
		if strings.Contains(d, "depth cap") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a depth-cap diagnostic, got %v", diags)
	}
	_ = f
}

func TestAllowNullOnEmptyStringEquality(t *testing.T) {
	n := expr.Cond(attr.Name, expr.EQ, expr.Value{Str: ""})
	f, _ := Translate(n)
	if !f.Atom.AllowNull {
		t.Fatalf("expected x == \"\" to allow NULL")
	}

	n2 := expr.Cond(attr.Name, expr.EQ, expr.Value{Str: "foo"})
	f2, _ := Translate(n2)
	if f2.Atom.AllowNull {
		t.Fatalf("expected x == \"non-empty\" to not allow NULL")
	}
}

func TestAllowNullSuppressedUnderNot(t *testing.T) {
	// NOT(name == "") forces a NotBlock (no direct negation path for a
	// bare condition wrapped by the translator's NOT handling here would
	// actually negate to NE; use a conjunction so it routes through the
	// suppressed-inNot path).
	n := expr.Not(expr.And(
		expr.Cond(attr.Name, expr.EQ, expr.Value{Str: ""}),
		expr.Cond(attr.Size, expr.GT, expr.Value{Int: 0}),
	))
	f, _ := Translate(n)
	if f.Kind != KindNotBlock {
		t.Fatalf("expected NotBlock")
	}
	and := f.Left
	if and.Kind != KindAnd {
		t.Fatalf("expected AND child")
	}
	if and.Left.Atom.AllowNull {
		t.Fatalf("expected AllowNull to be suppressed inside a NOT block")
	}
}

func TestToBackendLikeTranslatesShellGlob(t *testing.T) {
	cases := map[string]string{
		"*.log":    "%.log",
		"a?c":      "a_c",
		"[abc]x":   "_x",
		"foo":      "foo",
		"a*b?c[d]": "a%b_c_",
	}
	for in, want := range cases {
		if got := ToBackendLike(in); got != want {
			t.Fatalf("ToBackendLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderLikeUsesTranslatedPattern(t *testing.T) {
	n := expr.Cond(attr.Name, expr.LIKE, expr.Value{Str: "*.tmp"})
	f, _ := Translate(n)
	sql, args := Render(f, columnName)
	if sql != "name LIKE ?" {
		t.Fatalf("got %q", sql)
	}
	if args[0] != "%.tmp" {
		t.Fatalf("expected translated glob pattern in args, got %v", args)
	}
}

func TestIsNullComparatorOnNonTranslatableAttrWidensToTrue(t *testing.T) {
	n := expr.Cond(attr.Depth, expr.ISNULL, expr.Value{})
	f, diags := Translate(n)
	if f.Kind != KindTrue {
		t.Fatalf("expected TRUE widening for ISNULL on a non-translatable attr")
	}
	if len(diags) == 0 {
		t.Fatalf("expected a diagnostic")
	}
}

func TestSuperfluousFalseConstantWidensToTrue(t *testing.T) {
	f, diags := Translate(expr.Constant(false))
	if f.Kind != KindTrue || len(diags) == 0 {
		t.Fatalf("expected constant false to widen to TRUE with a diagnostic")
	}
}

func TestTranslatePostConditionSuperset(t *testing.T) {
	// translate(E).matches(e) is false ⇒ eval(E, attrs(e)) is false.
	// Exercise this directly: an elided FullPath atom always "matches"
	// (TRUE), so the implication is vacuously satisfied; a real atom
	// (size > 100) must reject exactly the entries eval would reject.
	n := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 100})
	f, _ := Translate(n)
	sql, _ := Render(f, columnName)
	if sql != "size > ?" {
		t.Fatalf("got %q", sql)
	}

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Size)
	s.Std.Size = 50
	ok, err := expr.Eval(n, s, time.Now())
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if ok {
		t.Fatalf("expected eval to reject size=50 against size > 100")
	}
}
