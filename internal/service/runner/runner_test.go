package runner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/fileclass"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/policy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCatalog(t *testing.T) *catalog.Gateway {
	t.Helper()
	ctx := context.Background()
	g, err := catalog.Open(ctx, catalog.Config{DSN: "file::memory:?cache=shared"})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func insertEntry(t *testing.T, g *catalog.Gateway, id, name, fullpath string, size uint64) {
	t.Helper()
	ctx := context.Background()
	sess, err := g.OpenSession(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer sess.CloseSession(ctx)

	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Name).Set(attr.FullPath).Set(attr.Size).Set(attr.Type)
	s.Std.Name = name
	s.Std.FullPath = fullpath
	s.Std.Size = size
	s.Std.Type = "file"

	if err := sess.Insert(ctx, attr.ID{Native: id}, s, false); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func buildTestPolicy(t *testing.T) (*policy.Policy, *fileclass.Registry) {
	t.Helper()
	registry := fileclass.NewRegistry()
	bigFiles := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1000})
	if err := registry.Load([]fileclass.Def{{ID: "big", Bool: bigFiles}}); err != nil {
		t.Fatalf("load fileclasses: %v", err)
	}

	logAction := action.Action{Kind: action.Function, FuncName: "common.log"}

	p := &policy.Policy{
		Name:          "purge_big",
		Scope:         expr.Constant(true),
		DefaultAction: logAction,
		SortAttr:      attr.Name,
		Rules: []policy.Rule{
			{
				ID:                "r1",
				TargetFileclasses: []string{"big"},
				Condition:         expr.Constant(true),
				Action:            &logAction,
			},
		},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate policy: %v", err)
	}
	return p, registry
}

func TestRunProcessesMatchingEntriesAndSkipsOthers(t *testing.T) {
	g := openTestCatalog(t)
	insertEntry(t, g, "e1", "big.bin", "/data/big.bin", 5000)
	insertEntry(t, g, "e2", "small.txt", "/data/small.txt", 10)

	p, registry := buildTestPolicy(t)
	cfg := Config{Workers: 2, QueueDepth: 8}
	deps := Deps{Catalog: g, Fileclasses: registry, Logger: discardLogger()}

	r := New(p, cfg, deps, nil)
	summary, err := r.Run(context.Background(), nil, TimeModifier{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Scanned != 2 {
		t.Fatalf("expected 2 scanned, got %d", summary.Scanned)
	}
	if summary.Matched != 1 {
		t.Fatalf("expected 1 matched (only the big file), got %d", summary.Matched)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected 1 succeeded action, got %d", summary.Succeeded)
	}
	if summary.Skipped != 1 {
		t.Fatalf("expected 1 skipped (unclassified small file falls through with no default rule), got %d", summary.Skipped)
	}
	if summary.Outcome != Completed {
		t.Fatalf("expected Completed outcome, got %v", summary.Outcome)
	}
}

func TestRunAppliesTargetFilter(t *testing.T) {
	g := openTestCatalog(t)
	insertEntry(t, g, "e1", "big1.bin", "/a/big1.bin", 5000)
	insertEntry(t, g, "e2", "big2.bin", "/b/big2.bin", 5000)

	p, registry := buildTestPolicy(t)
	cfg := Config{Workers: 1, QueueDepth: 4}
	deps := Deps{Catalog: g, Fileclasses: registry, Logger: discardLogger()}

	r := New(p, cfg, deps, nil)
	targetFilter := expr.Cond(attr.FullPath, expr.LIKE, expr.Value{Str: "/a/*"})
	summary, err := r.Run(context.Background(), targetFilter, TimeModifier{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Matched != 1 {
		t.Fatalf("expected target filter to narrow the run to 1 matched entry, got %d", summary.Matched)
	}
}

func TestRunReEvaluatesScopeOnNonTranslatableAttribute(t *testing.T) {
	// FullPath is not a stored column (internal/adapter/outbound/filter's
	// Translatable elides it to TRUE), so a scope keyed on it is only
	// enforced by this package's own in-process scope re-check, never by
	// the catalog query itself.
	g := openTestCatalog(t)
	insertEntry(t, g, "e1", "big1.bin", "/allowed/big1.bin", 5000)
	insertEntry(t, g, "e2", "big2.bin", "/forbidden/big2.bin", 5000)

	p, registry := buildTestPolicy(t)
	p.Scope = expr.Cond(attr.FullPath, expr.LIKE, expr.Value{Str: "/allowed/*"})
	if err := p.Validate(); err != nil {
		t.Fatalf("validate policy: %v", err)
	}

	cfg := Config{Workers: 1, QueueDepth: 4}
	deps := Deps{Catalog: g, Fileclasses: registry, Logger: discardLogger()}

	r := New(p, cfg, deps, nil)
	summary, err := r.Run(context.Background(), nil, TimeModifier{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Scanned != 2 {
		t.Fatalf("expected the catalog query to still return both entries (scope widened to TRUE), got %d", summary.Scanned)
	}
	if summary.Matched != 1 {
		t.Fatalf("expected only the in-scope entry to match, got %d", summary.Matched)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected only the in-scope entry to be acted on, got %d", summary.Succeeded)
	}
}

func TestTimeModifierApplyScalesElapsedByFactor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := TimeModifier{Factor: 3, FloorSeconds: 60}

	got := m.Apply(now, 100*time.Second)
	want := now.Add(200 * time.Second) // elapsed * (factor-1) = 200s > floor of 60s
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTimeModifierApplyUsesFloorWhenLarger(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := TimeModifier{Factor: 1.1, FloorSeconds: 3600}

	got := m.Apply(now, 1*time.Second)
	want := now.Add(3600 * time.Second)
	if !got.Equal(want) {
		t.Fatalf("expected floor to dominate: want %v, got %v", want, got)
	}
}

func TestShouldSuspendRequiresBothMinimumAndPercentage(t *testing.T) {
	r := &Runner{cfg: Config{SuspendErrorPct: 50, SuspendErrorMin: 3}}

	if r.shouldSuspend(10, 2) {
		t.Fatalf("expected no suspend below SuspendErrorMin")
	}
	if r.shouldSuspend(10, 3) {
		t.Fatalf("expected no suspend below failure percentage threshold")
	}
	if !r.shouldSuspend(2, 3) {
		t.Fatalf("expected suspend once both thresholds are met")
	}
}
