package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

// GetVar reads a small persisted variable (e.g. a run summary, a
// trigger's last-check timestamp). It returns a NotFound error if name
// was never set.
func (s *Session) GetVar(ctx context.Context, name string) (string, error) {
	var v string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM vars WHERE name = ?", name).Scan(&v)
	if err == sql.ErrNoRows {
		return "", rberr.New(rberr.NotFound, "catalog: var %q not set", name)
	}
	if err != nil {
		return "", fmt.Errorf("catalog: get_var %q: %w", name, err)
	}
	return v, nil
}

// SetVar persists a small named variable, overwriting any prior value.
func (s *Session) SetVar(ctx context.Context, name, value string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO vars (name, value) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET value = excluded.value
		`, name, value)
		if err != nil {
			return fmt.Errorf("catalog: set_var %q: %w", name, err)
		}
		return s.maybeCommit(ctx, false)
	})
}

// ListVarsWithPrefix returns every persisted variable whose name starts
// with prefix, e.g. "<policy>_" to read back one policy's whole summary.
func (s *Session) ListVarsWithPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT name, value FROM vars WHERE name LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("catalog: list_vars %q: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("catalog: list_vars %q: %w", prefix, err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// DeleteVarsWithPrefix removes every persisted variable whose name
// starts with prefix, used by the "reset" CLI command to clear one
// policy's summary (<policy>_start, _end, _status, ...) and a
// trigger's last-fired marker.
func (s *Session) DeleteVarsWithPrefix(ctx context.Context, prefix string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.conn.ExecContext(ctx, "DELETE FROM vars WHERE name LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
		if err != nil {
			return fmt.Errorf("catalog: delete_vars %q: %w", prefix, err)
		}
		return s.maybeCommit(ctx, false)
	})
}

// escapeLike escapes LIKE metacharacters in a literal prefix so it can
// be safely combined with a trailing "%" wildcard.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
