package catalog

import (
	"context"
	"sort"
	"testing"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

func TestTagLifecycleDetectsUnseenEntries(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	_ = sess.Insert(ctx, attr.ID{Native: "t1"}, fileAttrs("a", "/a", 1), false)
	_ = sess.Insert(ctx, attr.ID{Native: "t2"}, fileAttrs("b", "/b", 1), false)
	_ = sess.Insert(ctx, attr.ID{Native: "t3"}, fileAttrs("c", "/c", 1), false)

	if err := sess.CreateTag(ctx, "scan1", expr.Constant(true), false); err != nil {
		t.Fatalf("create_tag: %v", err)
	}

	// The scan "saw" t1 and t3, but not t2 (presumed removed).
	if err := sess.TagEntry(ctx, "scan1", "t1"); err != nil {
		t.Fatalf("tag_entry t1: %v", err)
	}
	if err := sess.TagEntry(ctx, "scan1", "t3"); err != nil {
		t.Fatalf("tag_entry t3: %v", err)
	}

	untagged, err := sess.ListUntagged(ctx, "scan1")
	if err != nil {
		t.Fatalf("list_untagged: %v", err)
	}
	if len(untagged) != 1 || untagged[0] != "t2" {
		t.Fatalf("expected only t2 untagged, got %v", untagged)
	}

	if err := sess.DestroyTag(ctx, "scan1"); err != nil {
		t.Fatalf("destroy_tag: %v", err)
	}
	untagged, _ = sess.ListUntagged(ctx, "scan1")
	if len(untagged) != 0 {
		t.Fatalf("expected no rows after destroy_tag, got %v", untagged)
	}
}

func TestCreateTagWithoutResetRejectsExisting(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	if err := sess.CreateTag(ctx, "dup", expr.Constant(true), false); err != nil {
		t.Fatalf("first create_tag: %v", err)
	}
	if err := sess.CreateTag(ctx, "dup", expr.Constant(true), false); err == nil {
		t.Fatalf("expected error recreating an existing tag without reset")
	}
	if err := sess.CreateTag(ctx, "dup", expr.Constant(true), true); err != nil {
		t.Fatalf("create_tag with reset should succeed: %v", err)
	}
}

func TestCreateTagOnlySeedsMatchingEntries(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	_ = sess.Insert(ctx, attr.ID{Native: "big"}, fileAttrs("big", "/big", 9999), false)
	_ = sess.Insert(ctx, attr.ID{Native: "small"}, fileAttrs("small", "/small", 1), false)

	cond := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1000})
	if err := sess.CreateTag(ctx, "bigonly", cond, false); err != nil {
		t.Fatalf("create_tag: %v", err)
	}
	untagged, err := sess.ListUntagged(ctx, "bigonly")
	if err != nil {
		t.Fatalf("list_untagged: %v", err)
	}
	sort.Strings(untagged)
	if len(untagged) != 1 || untagged[0] != "big" {
		t.Fatalf("expected only the big entry seeded, got %v", untagged)
	}
}
