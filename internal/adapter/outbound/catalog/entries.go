package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/filter"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

// stdOrder fixes a deterministic column order for INSERT/UPDATE
// statement building.
var stdOrder = []attr.Index{
	attr.Name, attr.Parent, attr.FullPath, attr.Type, attr.Size, attr.Blocks,
	attr.UID, attr.GID, attr.Mode, attr.Nlink, attr.LastAccess, attr.LastMod,
	attr.CreationTime, attr.Depth, attr.LinkTarget, attr.StripeInfo,
	attr.Invalid, attr.MDUpdate, attr.PathUpdate, attr.ClassID,
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// stdValue reads idx's Go value out of attrs in the form the sqlite
// driver expects (time.Time becomes unix nanos, ID becomes its string
// form).
func stdValue(attrs *attr.Set, idx attr.Index) any {
	v, _, _ := attrs.GetStd(idx)
	switch idx {
	case attr.Parent:
		if id, ok := v.(attr.ID); ok {
			return id.String()
		}
		return ""
	case attr.LastAccess, attr.LastMod, attr.CreationTime, attr.MDUpdate, attr.PathUpdate:
		if t, ok := v.(time.Time); ok {
			return toUnix(t)
		}
		return int64(0)
	default:
		return v
	}
}

// presentStdCols returns the columns present in attrs, in stdOrder.
func presentStdCols(attrs *attr.Set) []attr.Index {
	var out []attr.Index
	for _, idx := range stdOrder {
		if attrs.Present.Test(idx) {
			out = append(out, idx)
		}
	}
	return out
}

// Insert adds a new entry. If id already exists, Insert returns an
// AlreadyExists error unless updateIfExists is set, in which case it
// behaves like Update.
func (s *Session) Insert(ctx context.Context, id attr.ID, attrs *attr.Set, updateIfExists bool) error {
	return s.withRetry(ctx, func() error {
		return s.insertOnce(ctx, id, attrs, updateIfExists)
	})
}

func (s *Session) insertOnce(ctx context.Context, id attr.ID, attrs *attr.Set, updateIfExists bool) error {
	cols := presentStdCols(attrs)
	colNames := make([]string, 0, len(cols)+1)
	placeholders := make([]string, 0, len(cols)+1)
	vals := make([]any, 0, len(cols)+1)

	colNames = append(colNames, "id")
	placeholders = append(placeholders, "?")
	vals = append(vals, idString(id))
	for _, idx := range cols {
		colNames = append(colNames, stdColumn[idx])
		placeholders = append(placeholders, "?")
		vals = append(vals, stdValue(attrs, idx))
	}

	stmt := fmt.Sprintf("INSERT INTO entries (%s) VALUES (%s)",
		strings.Join(colNames, ", "), strings.Join(placeholders, ", "))
	_, err := s.conn.ExecContext(ctx, stmt, vals...)
	if err != nil {
		if isUniqueViolation(err) {
			if updateIfExists {
				return s.updateOnce(ctx, id, attrs)
			}
			return rberr.New(rberr.AlreadyExists, "catalog: entry %s already exists", id)
		}
		return fmt.Errorf("catalog: insert %s: %w", id, err)
	}
	if err := s.writeStatusSMInfo(ctx, id, attrs); err != nil {
		return err
	}
	return s.maybeCommit(ctx, false)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// BatchInsert inserts multiple entries as one batch, each within its
// own retry loop; it stops and returns the first error encountered.
func (s *Session) BatchInsert(ctx context.Context, ids []attr.ID, attrsList []*attr.Set, updateIfExists bool) error {
	if len(ids) != len(attrsList) {
		return fmt.Errorf("catalog: batch_insert: ids/attrs length mismatch (%d vs %d)", len(ids), len(attrsList))
	}
	for i := range ids {
		if err := s.Insert(ctx, ids[i], attrsList[i], updateIfExists); err != nil {
			return err
		}
	}
	return nil
}

// Update applies the attributes present in attrs to an existing entry.
// Attributes absent from attrs are left unchanged.
func (s *Session) Update(ctx context.Context, id attr.ID, attrs *attr.Set) error {
	return s.withRetry(ctx, func() error {
		return s.updateOnce(ctx, id, attrs)
	})
}

func (s *Session) updateOnce(ctx context.Context, id attr.ID, attrs *attr.Set) error {
	cols := presentStdCols(attrs)
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		vals := make([]any, len(cols)+1)
		for i, idx := range cols {
			sets[i] = stdColumn[idx] + " = ?"
			vals[i] = stdValue(attrs, idx)
		}
		vals[len(cols)] = idString(id)
		stmt := fmt.Sprintf("UPDATE entries SET %s WHERE id = ?", strings.Join(sets, ", "))
		res, err := s.conn.ExecContext(ctx, stmt, vals...)
		if err != nil {
			return fmt.Errorf("catalog: update %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rberr.New(rberr.NotFound, "catalog: entry %s not found", id)
		}
	}
	if err := s.writeStatusSMInfo(ctx, id, attrs); err != nil {
		return err
	}
	return s.maybeCommit(ctx, false)
}

func (s *Session) writeStatusSMInfo(ctx context.Context, id attr.ID, attrs *attr.Set) error {
	for smIdx, v := range attrs.Status {
		if _, err := s.conn.ExecContext(ctx, `
			INSERT INTO status_values (entry_id, sm_idx, value) VALUES (?, ?, ?)
			ON CONFLICT (entry_id, sm_idx) DO UPDATE SET value = excluded.value
		`, idString(id), smIdx, v); err != nil {
			return fmt.Errorf("catalog: write status for %s: %w", id, err)
		}
	}
	for offset, v := range attrs.SMInfo {
		smIdx, attrIdx := offset/8, offset%8
		if _, err := s.conn.ExecContext(ctx, `
			INSERT INTO sminfo_values (entry_id, sm_idx, attr_idx, value) VALUES (?, ?, ?, ?)
			ON CONFLICT (entry_id, sm_idx, attr_idx) DO UPDATE SET value = excluded.value
		`, idString(id), smIdx, attrIdx, fmt.Sprintf("%v", v)); err != nil {
			return fmt.Errorf("catalog: write sm_info for %s: %w", id, err)
		}
	}
	return nil
}

// Remove deletes an entry. When last is false, the caller has only
// unlinked one name (a hardlink removal): attrs carries the
// post-removal values (typically a decremented Nlink) and Remove just
// updates them. When last is true the entry (and its side-table rows)
// are deleted outright.
func (s *Session) Remove(ctx context.Context, id attr.ID, attrs *attr.Set, last bool) error {
	if !last {
		return s.Update(ctx, id, attrs)
	}
	return s.withRetry(ctx, func() error {
		return s.deleteOnce(ctx, id)
	})
}

func (s *Session) deleteOnce(ctx context.Context, id attr.ID) error {
	sid := idString(id)
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", sid); err != nil {
		return fmt.Errorf("catalog: remove %s: %w", id, err)
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM status_values WHERE entry_id = ?", sid); err != nil {
		return fmt.Errorf("catalog: remove %s status: %w", id, err)
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM sminfo_values WHERE entry_id = ?", sid); err != nil {
		return fmt.Errorf("catalog: remove %s sm_info: %w", id, err)
	}
	return s.maybeCommit(ctx, false)
}

// MassUpdate applies attrs to every entry matching filter in one
// statement.
func (s *Session) MassUpdate(ctx context.Context, filterExpr *expr.Node, attrs *attr.Set) (int64, error) {
	cols := presentStdCols(attrs)
	if len(cols) == 0 {
		return 0, nil
	}
	node, _ := filter.Translate(filterExpr)
	clause, args := filter.Render(node, columnExpr)

	sets := make([]string, len(cols))
	setArgs := make([]any, len(cols))
	for i, idx := range cols {
		sets[i] = stdColumn[idx] + " = ?"
		setArgs[i] = stdValue(attrs, idx)
	}
	stmt := fmt.Sprintf("UPDATE entries SET %s WHERE %s", strings.Join(sets, ", "), clause)

	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.conn.ExecContext(ctx, stmt, append(setArgs, args...)...)
		if err != nil {
			return fmt.Errorf("catalog: mass_update: %w", err)
		}
		n, _ = res.RowsAffected()
		return s.maybeCommit(ctx, false)
	})
	return n, err
}

// MassRemove deletes every entry matching filter, invoking cb with each
// deleted id before it is removed.
func (s *Session) MassRemove(ctx context.Context, filterExpr *expr.Node, cb func(attr.ID) error) (int64, error) {
	node, _ := filter.Translate(filterExpr)
	clause, args := filter.Render(node, columnExpr)

	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("SELECT id FROM entries WHERE %s", clause), args...)
	if err != nil {
		return 0, fmt.Errorf("catalog: mass_remove select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return 0, fmt.Errorf("catalog: mass_remove scan: %w", err)
		}
		ids = append(ids, sid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var n int64
	for _, sid := range ids {
		if cb != nil {
			if err := cb(attr.ID{Native: sid}); err != nil {
				return n, err
			}
		}
		err := s.withRetry(ctx, func() error {
			_, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", sid)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("catalog: mass_remove delete %s: %w", sid, err)
		}
		n++
	}
	return n, s.maybeCommit(ctx, true)
}

// SoftRemove moves an entry into the delayed-removal side table: the
// entry is gone from the live namespace, but a policy may still need to
// act on it (e.g. purge-on-delete). attrs must carry RmTime.
func (s *Session) SoftRemove(ctx context.Context, id attr.ID, attrs *attr.Set) error {
	rmTime, _, _ := attrs.GetStd(attr.RmTime)
	t, _ := rmTime.(time.Time)
	name, _, _ := attrs.GetStd(attr.Name)
	fullpath, _, _ := attrs.GetStd(attr.FullPath)
	size, _, _ := attrs.GetStd(attr.Size)
	uid, _, _ := attrs.GetStd(attr.UID)
	gid, _, _ := attrs.GetStd(attr.GID)

	return s.withRetry(ctx, func() error {
		if _, err := s.conn.ExecContext(ctx, `
			INSERT INTO rmlist (entry_id, rm_time, name, fullpath, size, uid, gid)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (entry_id) DO UPDATE SET rm_time = excluded.rm_time
		`, idString(id), toUnix(t), name, fullpath, size, uid, gid); err != nil {
			return fmt.Errorf("catalog: soft_remove %s: %w", id, err)
		}
		if _, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", idString(id)); err != nil {
			return fmt.Errorf("catalog: soft_remove %s (delete live row): %w", id, err)
		}
		return s.maybeCommit(ctx, false)
	})
}

// RmListIter iterates the delayed-removal side table ordered by
// ascending rm_time.
type RmListIter struct {
	rows *sql.Rows
}

// EndOfList is returned by Next (on both Iterator and RmListIter) once
// the underlying result set is exhausted.
var EndOfList = errors.New("catalog: end of list")

// OpenRmList opens an iterator over soft-removed entries sorted by
// rm_time, oldest first.
func (s *Session) OpenRmList(ctx context.Context) (*RmListIter, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT entry_id, rm_time, name, fullpath, size, uid, gid
		FROM rmlist ORDER BY rm_time ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: open rmlist: %w", err)
	}
	return &RmListIter{rows: rows}, nil
}

// RmListEntry is one row of the delayed-removal side table.
type RmListEntry struct {
	ID       attr.ID
	RmTime   time.Time
	Name     string
	FullPath string
	Size     uint64
	UID      uint32
	GID      uint32
}

// Next advances the iterator, returning EndOfList when exhausted.
func (it *RmListIter) Next() (*RmListEntry, error) {
	if !it.rows.Next() {
		it.rows.Close()
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, EndOfList
	}
	var e RmListEntry
	var sid string
	var rmTime int64
	if err := it.rows.Scan(&sid, &rmTime, &e.Name, &e.FullPath, &e.Size, &e.UID, &e.GID); err != nil {
		return nil, err
	}
	e.ID = attr.ID{Native: sid}
	e.RmTime = fromUnix(rmTime)
	return &e, nil
}

// Close releases the iterator's rows early (Next also closes on
// exhaustion or error; Close is safe to call redundantly).
func (it *RmListIter) Close() error { return it.rows.Close() }
