package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/filter"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// IteratorOpts controls ordering and pagination of an Iterator.
type IteratorOpts struct {
	Sort   attr.Index
	Desc   bool
	Limit  int // 0 = unbounded
	Offset int
}

var entrySelectCols = append([]string{"id"}, func() []string {
	out := make([]string, len(stdOrder))
	for i, idx := range stdOrder {
		out[i] = stdColumn[idx]
	}
	return out
}()...)

// Iterator walks entries matching a filter, in the requested sort
// order, yielding one fully-populated attr.Set per call to Next.
type Iterator struct {
	s    *Session
	rows *sql.Rows
}

// OpenIterator opens an iterator over entries matching filterExpr.
func (s *Session) OpenIterator(ctx context.Context, filterExpr *expr.Node, opts IteratorOpts) (*Iterator, error) {
	node, _ := filter.Translate(filterExpr)
	clause, args := filter.Render(node, columnExpr)

	sortCol := "id"
	if col, ok := stdColumn[opts.Sort]; ok {
		sortCol = col
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	q := fmt.Sprintf("SELECT %s FROM entries WHERE %s ORDER BY %s %s",
		joinCols(entrySelectCols), clause, sortCol, dir)
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: open iterator: %w", err)
	}
	return &Iterator{s: s, rows: rows}, nil
}

func joinCols(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

// Next advances the iterator, returning EndOfList when exhausted.
func (it *Iterator) Next(ctx context.Context) (attr.ID, *attr.Set, error) {
	if !it.rows.Next() {
		it.rows.Close()
		if err := it.rows.Err(); err != nil {
			return attr.ID{}, nil, err
		}
		return attr.ID{}, nil, EndOfList
	}

	var sid string
	var name, fullpath, typ, linkTarget, stripeInfo, classID sql.NullString
	var parentID sql.NullString
	var size, blocks, uid, gid, mode, nlink sql.NullInt64
	var lastAccess, lastMod, creationTime, mdUpdate, pathUpdate sql.NullInt64
	var depth sql.NullInt64
	var invalid sql.NullInt64

	if err := it.rows.Scan(
		&sid, &name, &parentID, &fullpath, &typ, &size, &blocks, &uid, &gid,
		&mode, &nlink, &lastAccess, &lastMod, &creationTime, &depth,
		&linkTarget, &stripeInfo, &invalid, &mdUpdate, &pathUpdate, &classID,
	); err != nil {
		return attr.ID{}, nil, err
	}

	s := attr.NewSet()
	set := func(idx attr.Index, v any) {
		s.Present = s.Present.Set(idx)
		switch idx {
		case attr.Name:
			s.Std.Name = v.(string)
		case attr.Parent:
			s.Std.Parent = attr.ID{Native: v.(string)}
		case attr.FullPath:
			s.Std.FullPath = v.(string)
		case attr.Type:
			s.Std.Type = v.(string)
		case attr.Size:
			s.Std.Size = uint64(v.(int64))
		case attr.Blocks:
			s.Std.Blocks = uint64(v.(int64))
		case attr.UID:
			s.Std.UID = uint32(v.(int64))
		case attr.GID:
			s.Std.GID = uint32(v.(int64))
		case attr.Mode:
			s.Std.Mode = uint32(v.(int64))
		case attr.Nlink:
			s.Std.Nlink = uint32(v.(int64))
		case attr.LastAccess:
			s.Std.LastAccess = fromUnix(v.(int64))
		case attr.LastMod:
			s.Std.LastMod = fromUnix(v.(int64))
		case attr.CreationTime:
			s.Std.CreationTime = fromUnix(v.(int64))
		case attr.Depth:
			s.Std.Depth = int(v.(int64))
		case attr.LinkTarget:
			s.Std.LinkTarget = v.(string)
		case attr.StripeInfo:
			s.Std.StripeInfo = v.(string)
		case attr.Invalid:
			s.Std.Invalid = v.(int64) != 0
		case attr.MDUpdate:
			s.Std.MDUpdate = fromUnix(v.(int64))
		case attr.PathUpdate:
			s.Std.PathUpdate = fromUnix(v.(int64))
		case attr.ClassID:
			s.Std.ClassID = v.(string)
		}
	}
	if name.Valid {
		set(attr.Name, name.String)
	}
	if parentID.Valid {
		set(attr.Parent, parentID.String)
	}
	if fullpath.Valid {
		set(attr.FullPath, fullpath.String)
	}
	if typ.Valid {
		set(attr.Type, typ.String)
	}
	if size.Valid {
		set(attr.Size, size.Int64)
	}
	if blocks.Valid {
		set(attr.Blocks, blocks.Int64)
	}
	if uid.Valid {
		set(attr.UID, uid.Int64)
	}
	if gid.Valid {
		set(attr.GID, gid.Int64)
	}
	if mode.Valid {
		set(attr.Mode, mode.Int64)
	}
	if nlink.Valid {
		set(attr.Nlink, nlink.Int64)
	}
	if lastAccess.Valid {
		set(attr.LastAccess, lastAccess.Int64)
	}
	if lastMod.Valid {
		set(attr.LastMod, lastMod.Int64)
	}
	if creationTime.Valid {
		set(attr.CreationTime, creationTime.Int64)
	}
	if depth.Valid {
		set(attr.Depth, depth.Int64)
	}
	if linkTarget.Valid {
		set(attr.LinkTarget, linkTarget.String)
	}
	if stripeInfo.Valid {
		set(attr.StripeInfo, stripeInfo.String)
	}
	if invalid.Valid {
		set(attr.Invalid, invalid.Int64)
	}
	if mdUpdate.Valid {
		set(attr.MDUpdate, mdUpdate.Int64)
	}
	if pathUpdate.Valid {
		set(attr.PathUpdate, pathUpdate.Int64)
	}
	if classID.Valid {
		set(attr.ClassID, classID.String)
	}

	id := attr.ID{Native: sid}
	if err := it.s.loadStatusSMInfo(ctx, id, s); err != nil {
		return attr.ID{}, nil, err
	}
	return id, s, nil
}

// Close releases the iterator's rows early.
func (it *Iterator) Close() error { return it.rows.Close() }

func (s *Session) loadStatusSMInfo(ctx context.Context, id attr.ID, into *attr.Set) error {
	rows, err := s.conn.QueryContext(ctx, "SELECT sm_idx, value FROM status_values WHERE entry_id = ?", idString(id))
	if err != nil {
		return fmt.Errorf("catalog: load status for %s: %w", id, err)
	}
	for rows.Next() {
		var smIdx int
		var v string
		if err := rows.Scan(&smIdx, &v); err != nil {
			rows.Close()
			return err
		}
		into.SetStatus(smIdx, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = s.conn.QueryContext(ctx, "SELECT sm_idx, attr_idx, value FROM sminfo_values WHERE entry_id = ?", idString(id))
	if err != nil {
		return fmt.Errorf("catalog: load sm_info for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var smIdx, attrIdx int
		var v string
		if err := rows.Scan(&smIdx, &attrIdx, &v); err != nil {
			return err
		}
		into.SetSMInfo(smIdx, attrIdx, v)
	}
	return rows.Err()
}

// ReportField names one aggregated or grouped column of a Report.
type ReportField struct {
	Attr attr.Index
	// Agg is a SQL aggregate applied to Attr ("COUNT", "SUM", "MIN",
	// "MAX", "AVG"), or empty to group by Attr as-is.
	Agg string
	// Alias names this field in the returned row map; defaults to
	// attr.StdName(Attr) (optionally prefixed by Agg) when empty.
	Alias string
}

func (f ReportField) alias() string {
	if f.Alias != "" {
		return f.Alias
	}
	if f.Agg != "" {
		return f.Agg + "_" + attr.StdName(f.Attr)
	}
	return attr.StdName(f.Attr)
}

func (f ReportField) sqlExpr() string {
	col := columnExpr(f.Attr)
	if f.Agg == "" {
		return col
	}
	return fmt.Sprintf("%s(%s)", f.Agg, col)
}

// ReportIter iterates the rows of an aggregate Report.
type ReportIter struct {
	rows    *sql.Rows
	aliases []string
}

// Report runs a grouped/aggregated query over entries matching filter.
// profile fields (those with no Agg) form the GROUP BY; the rest are
// aggregates computed per group.
func (s *Session) Report(ctx context.Context, fields []ReportField, filterExpr *expr.Node, opts IteratorOpts) (*ReportIter, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("catalog: report: no fields requested")
	}
	node, _ := filter.Translate(filterExpr)
	clause, args := filter.Render(node, columnExpr)

	selectExprs := make([]string, len(fields))
	aliases := make([]string, len(fields))
	var groupBy []string
	for i, f := range fields {
		selectExprs[i] = fmt.Sprintf("%s AS %s", f.sqlExpr(), f.alias())
		aliases[i] = f.alias()
		if f.Agg == "" {
			groupBy = append(groupBy, f.sqlExpr())
		}
	}
	q := fmt.Sprintf("SELECT %s FROM entries WHERE %s", joinCols(selectExprs), clause)
	if len(groupBy) > 0 {
		q += " GROUP BY " + joinCols(groupBy)
	}
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: report: %w", err)
	}
	return &ReportIter{rows: rows, aliases: aliases}, nil
}

// NextReport advances the report iterator, returning EndOfList when
// exhausted.
func (it *ReportIter) NextReport() (map[string]any, error) {
	if !it.rows.Next() {
		it.rows.Close()
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, EndOfList
	}
	vals := make([]any, len(it.aliases))
	ptrs := make([]any, len(it.aliases))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(it.aliases))
	for i, a := range it.aliases {
		out[a] = vals[i]
	}
	return out, nil
}

// Close releases the report iterator's rows early.
func (it *ReportIter) Close() error { return it.rows.Close() }
