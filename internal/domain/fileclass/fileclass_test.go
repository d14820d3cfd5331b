package fileclass

import (
	"strings"
	"testing"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

func TestDuplicateFileclassRejected(t *testing.T) {
	r := NewRegistry()
	defs := []Def{
		{ID: "big_files", Bool: expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1 << 20})},
		{ID: "big_files", Bool: expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1 << 30})},
	}
	err := r.Load(defs)
	if err == nil {
		t.Fatalf("expected duplicate fileclass error")
	}
	if !strings.Contains(err.Error(), "DuplicateFileclass") {
		t.Fatalf("expected DuplicateFileclass marker, got: %v", err)
	}
}

func TestUnknownFileclassReference(t *testing.T) {
	r := NewRegistry()
	defs := []Def{
		{ID: "combined", SetOp: Union, SetMember: []string{"does_not_exist"}},
	}
	err := r.Load(defs)
	if err == nil {
		t.Fatalf("expected unknown fileclass error")
	}
	if !strings.Contains(err.Error(), "UnknownFileclass") {
		t.Fatalf("expected UnknownFileclass marker, got: %v", err)
	}
}

func TestSetExpressionExpansion(t *testing.T) {
	r := NewRegistry()
	logs := expr.Cond(attr.Name, expr.LIKE, expr.Value{Str: "*.log"})
	tmps := expr.Cond(attr.Name, expr.LIKE, expr.Value{Str: "*.tmp"})
	bigOwner := expr.Cond(attr.UID, expr.EQ, expr.Value{Int: 0})

	defs := []Def{
		{ID: "logs", Bool: logs},
		{ID: "tmps", Bool: tmps},
		{ID: "root_owned", Bool: bigOwner},
		{ID: "junk", SetOp: Union, SetMember: []string{"logs", "tmps"}},
		{ID: "junk_not_root", SetOp: Difference, SetMember: []string{"junk", "root_owned"}},
	}
	if err := r.Load(defs); err != nil {
		t.Fatalf("Load: %v", err)
	}

	junk, ok := r.Get("junk")
	if !ok {
		t.Fatalf("expected junk fileclass to be registered")
	}

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Name).Set(attr.UID)
	s.Std.Name = "output.log"
	s.Std.UID = 500

	matched, err := expr.Eval(junk.Definition, s, time.Now())
	if err != nil {
		t.Fatalf("eval junk: %v", err)
	}
	if !matched {
		t.Fatalf("expected *.log to match the union fileclass")
	}

	junkNotRoot, ok := r.Get("junk_not_root")
	if !ok {
		t.Fatalf("expected junk_not_root fileclass to be registered")
	}
	matched, err = expr.Eval(junkNotRoot.Definition, s, time.Now())
	if err != nil {
		t.Fatalf("eval junk_not_root: %v", err)
	}
	if !matched {
		t.Fatalf("expected non-root-owned log file to match the difference fileclass")
	}

	s.Std.UID = 0
	matched, err = expr.Eval(junkNotRoot.Definition, s, time.Now())
	if err != nil {
		t.Fatalf("eval junk_not_root (root owned): %v", err)
	}
	if matched {
		t.Fatalf("expected root-owned log file to be excluded by the difference fileclass")
	}
}

func TestTimeInDefinitionWarning(t *testing.T) {
	r := NewRegistry()
	def := expr.Cond(attr.LastMod, expr.GT, expr.Value{IsTime: true, Duration: int64(24 * time.Hour)})
	if err := r.Load([]Def{{ID: "stale", Bool: def}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.Warnings) != 1 {
		t.Fatalf("expected one TimeInDefinition warning, got %d", len(r.Warnings))
	}
	if !strings.Contains(r.Warnings[0], "TimeInDefinition") {
		t.Fatalf("expected TimeInDefinition marker, got: %s", r.Warnings[0])
	}
}

func TestActionParamsCaseInsensitiveLookup(t *testing.T) {
	r := NewRegistry()
	def := Def{
		ID:   "archivable",
		Bool: expr.Constant(true),
		PolicyParams: map[string]map[string]string{
			"Migration": {"target": "tier2"},
		},
	}
	if err := r.Load([]Def{def}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fc, _ := r.Get("archivable")
	params, ok := fc.ActionParams("migration")
	if !ok {
		t.Fatalf("expected case-insensitive policy lookup to succeed")
	}
	if params["target"] != "tier2" {
		t.Fatalf("unexpected params: %v", params)
	}
	if _, ok := fc.ActionParams("purge"); ok {
		t.Fatalf("expected no params for unrelated policy")
	}
}

func TestClassifyReturnsFirstMatchInDeclarationOrder(t *testing.T) {
	r := NewRegistry()
	defs := []Def{
		{ID: "huge", Bool: expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1 << 30})},
		{ID: "big", Bool: expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1 << 20})},
	}
	if err := r.Load(defs); err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Size)
	s.Std.Size = 2 << 30

	id, ok, err := r.Classify(s, time.Now())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !ok || id != "huge" {
		t.Fatalf("expected first matching class \"huge\", got %q (ok=%v)", id, ok)
	}
}

func TestClassifyReportsNoMatch(t *testing.T) {
	r := NewRegistry()
	if err := r.Load([]Def{{ID: "huge", Bool: expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1 << 30})}}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Size)
	s.Std.Size = 10

	_, ok, err := r.Classify(s, time.Now())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ok {
		t.Fatalf("expected no match")
	}
}

func TestMarkUsedInPolicy(t *testing.T) {
	r := NewRegistry()
	if err := r.Load([]Def{{ID: "a", Bool: expr.Constant(true)}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fc, _ := r.Get("a")
	if fc.UsedInPolicy() {
		t.Fatalf("expected fresh fileclass to be unused")
	}
	fc.MarkUsedInPolicy()
	if !fc.UsedInPolicy() {
		t.Fatalf("expected MarkUsedInPolicy to stick")
	}
}
