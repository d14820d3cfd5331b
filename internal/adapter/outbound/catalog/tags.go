package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/filter"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

// CreateTag seeds a named progress-tracking set with every entry
// matching filterExpr: a scan clears entries it still finds via
// TagEntry, and whatever remains at the end (ListUntagged) is the set
// of entries the scan did not see — presumed removed. With reset=false
// an existing tag of the same name is an error; with reset=true it is
// replaced.
func (s *Session) CreateTag(ctx context.Context, name string, filterExpr *expr.Node, reset bool) error {
	return s.withRetry(ctx, func() error {
		var exists int
		if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE name = ?", name).Scan(&exists); err != nil {
			return fmt.Errorf("catalog: create_tag %q: %w", name, err)
		}
		if exists > 0 {
			if !reset {
				return rberr.New(rberr.AlreadyExists, "catalog: tag %q already exists", name)
			}
			if err := s.destroyTagOnce(ctx, name); err != nil {
				return err
			}
		}

		if _, err := s.conn.ExecContext(ctx, "INSERT INTO tags (name, created_at) VALUES (?, ?)", name, time.Now().Unix()); err != nil {
			return fmt.Errorf("catalog: create_tag %q: %w", name, err)
		}

		node, _ := filter.Translate(filterExpr)
		clause, args := filter.Render(node, columnExpr)
		q := fmt.Sprintf(`
			INSERT INTO tag_entries (tag_name, entry_id)
			SELECT ?, id FROM entries WHERE %s
		`, clause)
		if _, err := s.conn.ExecContext(ctx, q, append([]any{name}, args...)...); err != nil {
			return fmt.Errorf("catalog: create_tag %q: seed entries: %w", name, err)
		}
		return s.maybeCommit(ctx, true)
	})
}

// TagEntry marks id as seen for tag, removing it from the pending set.
func (s *Session) TagEntry(ctx context.Context, tag string, id string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.conn.ExecContext(ctx, "DELETE FROM tag_entries WHERE tag_name = ? AND entry_id = ?", tag, id)
		if err != nil {
			return fmt.Errorf("catalog: tag_entry %q/%s: %w", tag, id, err)
		}
		return s.maybeCommit(ctx, false)
	})
}

// ListUntagged returns the ids still pending for tag: entries the
// originating filter matched but that no TagEntry call has since
// cleared.
func (s *Session) ListUntagged(ctx context.Context, tag string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT entry_id FROM tag_entries WHERE tag_name = ?", tag)
	if err != nil {
		return nil, fmt.Errorf("catalog: list_untagged %q: %w", tag, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DestroyTag removes a tag and its pending-entry rows.
func (s *Session) DestroyTag(ctx context.Context, name string) error {
	return s.withRetry(ctx, func() error {
		return s.destroyTagOnce(ctx, name)
	})
}

func (s *Session) destroyTagOnce(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM tag_entries WHERE tag_name = ?", name); err != nil {
		return fmt.Errorf("catalog: destroy_tag %q: %w", name, err)
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM tags WHERE name = ?", name); err != nil {
		return fmt.Errorf("catalog: destroy_tag %q: %w", name, err)
	}
	return s.maybeCommit(ctx, false)
}
