package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	ctx := context.Background()
	g, err := Open(ctx, Config{DSN: "file::memory:?cache=shared"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func fileAttrs(name, fullpath string, size uint64) *attr.Set {
	s := attr.NewSet()
	s.Present = s.Present.Set(attr.Name).Set(attr.FullPath).Set(attr.Size).Set(attr.Type)
	s.Std.Name = name
	s.Std.FullPath = fullpath
	s.Std.Size = size
	s.Std.Type = "file"
	return s
}

func TestInsertThenUpdateChangesOnlyPresentFields(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, err := g.OpenSession(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer sess.CloseSession(ctx)

	id := attr.ID{Native: "e1"}
	if err := sess.Insert(ctx, id, fileAttrs("a.txt", "/a.txt", 100), false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	upd := attr.NewSet()
	upd.Present = upd.Present.Set(attr.Size)
	upd.Std.Size = 200
	if err := sess.Update(ctx, id, upd); err != nil {
		t.Fatalf("update: %v", err)
	}

	it, err := sess.OpenIterator(ctx, expr.Constant(true), IteratorOpts{Sort: attr.Name})
	if err != nil {
		t.Fatalf("open iterator: %v", err)
	}
	defer it.Close()
	_, got, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Std.Size != 200 {
		t.Fatalf("expected updated size 200, got %d", got.Std.Size)
	}
	if got.Std.Name != "a.txt" {
		t.Fatalf("expected name unchanged by partial update, got %q", got.Std.Name)
	}
}

func TestInsertDuplicateWithoutUpdateIfExistsFails(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	id := attr.ID{Native: "dup"}
	if err := sess.Insert(ctx, id, fileAttrs("x", "/x", 1), false); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := sess.Insert(ctx, id, fileAttrs("x", "/x", 1), false)
	if err == nil {
		t.Fatalf("expected AlreadyExists error on duplicate insert")
	}
}

func TestInsertDuplicateWithUpdateIfExistsUpdates(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	id := attr.ID{Native: "dup2"}
	if err := sess.Insert(ctx, id, fileAttrs("x", "/x", 1), false); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := sess.Insert(ctx, id, fileAttrs("x", "/x", 999), true); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}

	it, _ := sess.OpenIterator(ctx, expr.Constant(true), IteratorOpts{Sort: attr.Name})
	defer it.Close()
	_, got, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Std.Size != 999 {
		t.Fatalf("expected upsert to apply, got size %d", got.Std.Size)
	}
}

func TestRemoveLastDeletesEntry(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	id := attr.ID{Native: "rm1"}
	if err := sess.Insert(ctx, id, fileAttrs("y", "/y", 1), false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := sess.Remove(ctx, id, nil, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	it, _ := sess.OpenIterator(ctx, expr.Constant(true), IteratorOpts{Sort: attr.Name})
	defer it.Close()
	if _, _, err := it.Next(ctx); err != EndOfList {
		t.Fatalf("expected EndOfList after removing the only entry, got %v", err)
	}
}

func TestRemoveNotLastUpdatesNlink(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	id := attr.ID{Native: "rm2"}
	attrs := fileAttrs("z", "/z", 1)
	attrs.Present = attrs.Present.Set(attr.Nlink)
	attrs.Std.Nlink = 2
	if err := sess.Insert(ctx, id, attrs, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	decremented := attr.NewSet()
	decremented.Present = decremented.Present.Set(attr.Nlink)
	decremented.Std.Nlink = 1
	if err := sess.Remove(ctx, id, decremented, false); err != nil {
		t.Fatalf("remove (not last): %v", err)
	}

	it, _ := sess.OpenIterator(ctx, expr.Constant(true), IteratorOpts{Sort: attr.Name})
	defer it.Close()
	_, got, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Std.Nlink != 1 {
		t.Fatalf("expected nlink decremented to 1, got %d", got.Std.Nlink)
	}
}

func TestMassUpdateAppliesToMatchingEntriesOnly(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	_ = sess.Insert(ctx, attr.ID{Native: "m1"}, fileAttrs("big", "/big", 5000), false)
	_ = sess.Insert(ctx, attr.ID{Native: "m2"}, fileAttrs("small", "/small", 10), false)

	cond := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1000})
	upd := attr.NewSet()
	upd.Present = upd.Present.Set(attr.ClassID)
	upd.Std.ClassID = "flagged"
	n, err := sess.MassUpdate(ctx, cond, upd)
	if err != nil {
		t.Fatalf("mass_update: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row updated, got %d", n)
	}
}

func TestSoftRemoveMovesEntryToRmList(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	id := attr.ID{Native: "soft1"}
	attrs := fileAttrs("gone.txt", "/gone.txt", 42)
	if err := sess.Insert(ctx, id, attrs, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rmAttrs := attr.NewSet()
	rmAttrs.Present = rmAttrs.Present.Set(attr.RmTime).Set(attr.Name).Set(attr.FullPath).Set(attr.Size)
	rmAttrs.Std.RmTime = time.Unix(1000, 0)
	rmAttrs.Std.Name = "gone.txt"
	rmAttrs.Std.FullPath = "/gone.txt"
	rmAttrs.Std.Size = 42
	if err := sess.SoftRemove(ctx, id, rmAttrs); err != nil {
		t.Fatalf("soft_remove: %v", err)
	}

	it, _ := sess.OpenIterator(ctx, expr.Constant(true), IteratorOpts{Sort: attr.Name})
	defer it.Close()
	if _, _, err := it.Next(ctx); err != EndOfList {
		t.Fatalf("expected soft-removed entry gone from the live iterator")
	}

	rm, err := sess.OpenRmList(ctx)
	if err != nil {
		t.Fatalf("open rmlist: %v", err)
	}
	defer rm.Close()
	e, err := rm.Next()
	if err != nil {
		t.Fatalf("rmlist next: %v", err)
	}
	if e.Name != "gone.txt" || e.RmTime.Unix() != 1000 {
		t.Fatalf("unexpected rmlist entry: %+v", e)
	}
}

func TestRmListOrderedByRmTime(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	for i, rmID := range []string{"late", "early", "mid"} {
		times := map[string]int64{"late": 300, "early": 100, "mid": 200}
		id := attr.ID{Native: rmID}
		_ = sess.Insert(ctx, id, fileAttrs(rmID, "/"+rmID, 1), false)
		rmAttrs := attr.NewSet()
		rmAttrs.Present = rmAttrs.Present.Set(attr.RmTime)
		rmAttrs.Std.RmTime = time.Unix(times[rmID], 0)
		if err := sess.SoftRemove(ctx, id, rmAttrs); err != nil {
			t.Fatalf("soft_remove %d: %v", i, err)
		}
	}

	rm, _ := sess.OpenRmList(ctx)
	defer rm.Close()
	var order []string
	for {
		e, err := rm.Next()
		if err == EndOfList {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		order = append(order, e.ID.Native)
	}
	want := []string{"early", "mid", "late"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("rmlist order = %v, want %v", order, want)
		}
	}
}

func TestGetSetVarRoundTrip(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	if err := sess.SetVar(ctx, "last_run", "2026-07-01T00:00:00Z"); err != nil {
		t.Fatalf("set_var: %v", err)
	}
	v, err := sess.GetVar(ctx, "last_run")
	if err != nil {
		t.Fatalf("get_var: %v", err)
	}
	if v != "2026-07-01T00:00:00Z" {
		t.Fatalf("got %q", v)
	}

	if err := sess.SetVar(ctx, "last_run", "2026-07-02T00:00:00Z"); err != nil {
		t.Fatalf("set_var overwrite: %v", err)
	}
	v, _ = sess.GetVar(ctx, "last_run")
	if v != "2026-07-02T00:00:00Z" {
		t.Fatalf("expected overwrite, got %q", v)
	}
}

func TestGetVarUnsetReturnsNotFound(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	if _, err := sess.GetVar(ctx, "nope"); err == nil {
		t.Fatalf("expected not-found error for unset var")
	}
}
