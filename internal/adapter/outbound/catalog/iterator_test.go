package catalog

import (
	"context"
	"testing"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

func TestIteratorOrdersBySortAttr(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	_ = sess.Insert(ctx, attr.ID{Native: "i1"}, fileAttrs("b", "/b", 20), false)
	_ = sess.Insert(ctx, attr.ID{Native: "i2"}, fileAttrs("a", "/a", 30), false)
	_ = sess.Insert(ctx, attr.ID{Native: "i3"}, fileAttrs("c", "/c", 10), false)

	it, err := sess.OpenIterator(ctx, expr.Constant(true), IteratorOpts{Sort: attr.Size})
	if err != nil {
		t.Fatalf("open iterator: %v", err)
	}
	defer it.Close()

	var sizes []uint64
	for {
		_, s, err := it.Next(ctx)
		if err == EndOfList {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		sizes = append(sizes, s.Std.Size)
	}
	want := []uint64{10, 20, 30}
	if len(sizes) != len(want) {
		t.Fatalf("got %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("got %v, want %v", sizes, want)
		}
	}
}

func TestIteratorFiltersBySizeCondition(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	_ = sess.Insert(ctx, attr.ID{Native: "f1"}, fileAttrs("small", "/small", 5), false)
	_ = sess.Insert(ctx, attr.ID{Native: "f2"}, fileAttrs("large", "/large", 5000), false)

	cond := expr.Cond(attr.Size, expr.GT, expr.Value{Int: 1000})
	it, err := sess.OpenIterator(ctx, cond, IteratorOpts{Sort: attr.Name})
	if err != nil {
		t.Fatalf("open iterator: %v", err)
	}
	defer it.Close()

	_, got, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Std.Name != "large" {
		t.Fatalf("expected only the large entry to match, got %q", got.Std.Name)
	}
	if _, _, err := it.Next(ctx); err != EndOfList {
		t.Fatalf("expected exactly one match")
	}
}

func TestReportSumsSizeGroupedByType(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	sess, _ := g.OpenSession(ctx)
	defer sess.CloseSession(ctx)

	_ = sess.Insert(ctx, attr.ID{Native: "r1"}, fileAttrs("a", "/a", 100), false)
	_ = sess.Insert(ctx, attr.ID{Native: "r2"}, fileAttrs("b", "/b", 200), false)

	fields := []ReportField{
		{Attr: attr.Type},
		{Attr: attr.Size, Agg: "SUM", Alias: "total_size"},
	}
	rep, err := sess.Report(ctx, fields, expr.Constant(true), IteratorOpts{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	defer rep.Close()

	row, err := rep.NextReport()
	if err != nil {
		t.Fatalf("next_report: %v", err)
	}
	if row["type"] != "file" {
		t.Fatalf("expected grouped type=file, got %v", row["type"])
	}
	total, ok := row["total_size"].(int64)
	if !ok || total != 300 {
		t.Fatalf("expected total_size=300, got %v (%T)", row["total_size"], row["total_size"])
	}

	if _, err := rep.NextReport(); err != EndOfList {
		t.Fatalf("expected a single grouped row")
	}
}
