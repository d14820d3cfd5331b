// Package catalog is the sqlite-backed persistent catalog gateway: the
// CRUD, iterator and report surface every other layer uses to read and
// write entry attributes, independent of the filesystem being tracked.
//
// A Gateway owns the connection pool and schema; a Session wraps a
// single dedicated *sql.Conn so a caller can run "BEGIN IMMEDIATE" /
// "COMMIT" by hand without the pool handing the next statement to a
// different connection. One session per worker thread; sessions are
// never shared across goroutines.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// Config configures the catalog gateway.
type Config struct {
	// DSN is a modernc.org/sqlite data source name, e.g.
	// "file:/var/lib/rbhcored/catalog.db?_pragma=busy_timeout(5000)" or
	// "file::memory:?cache=shared" for tests.
	DSN string

	// RetryDelayMin/RetryDelayMax bound the exponential backoff applied
	// between retries of a transiently-failed operation (connection
	// loss, deadlock/busy).
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration

	// CommitEvery is the number of write operations a session performs
	// between passive WAL checkpoints (0 disables checkpointing). Writes
	// are not batched into transactions: every statement runs in
	// sqlite's autocommit mode and commits on its own.
	CommitEvery int
}

func (c Config) withDefaults() Config {
	if c.RetryDelayMin <= 0 {
		c.RetryDelayMin = 50 * time.Millisecond
	}
	if c.RetryDelayMax <= 0 {
		c.RetryDelayMax = 5 * time.Second
	}
	return c
}

// Gateway owns the database handle and schema for one catalog.
type Gateway struct {
	db  *sql.DB
	cfg Config
}

// Open opens (creating if necessary) the catalog database and ensures
// its schema exists.
func Open(ctx context.Context, cfg Config) (*Gateway, error) {
	cfg = cfg.withDefaults()
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", cfg.DSN, err)
	}
	if strings.Contains(cfg.DSN, ":memory:") {
		// A pooled in-memory sqlite database is a distinct, empty
		// database per connection unless every connection in the pool
		// is forced to be the same one.
		db.SetMaxOpenConns(1)
	}

	g := &Gateway{db: db, cfg: cfg}
	if err := g.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id            TEXT PRIMARY KEY,
	name          TEXT,
	parent_id     TEXT,
	fullpath      TEXT,
	type          TEXT,
	size          INTEGER,
	blocks        INTEGER,
	uid           INTEGER,
	gid           INTEGER,
	mode          INTEGER,
	nlink         INTEGER,
	last_access   INTEGER,
	last_mod      INTEGER,
	creation_time INTEGER,
	depth         INTEGER,
	link_target   TEXT,
	stripe_info   TEXT,
	invalid       INTEGER,
	md_update     INTEGER,
	path_update   INTEGER,
	class_id      TEXT
);
CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_id);
CREATE INDEX IF NOT EXISTS idx_entries_class ON entries(class_id);

-- status/sm_info are open-ended (one row per registered status manager
-- instance/attribute), so they live in side tables keyed by entry rather
-- than as columns added by DDL at status-manager registration time.
CREATE TABLE IF NOT EXISTS status_values (
	entry_id TEXT NOT NULL,
	sm_idx   INTEGER NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (entry_id, sm_idx)
);
CREATE TABLE IF NOT EXISTS sminfo_values (
	entry_id TEXT NOT NULL,
	sm_idx   INTEGER NOT NULL,
	attr_idx INTEGER NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (entry_id, sm_idx, attr_idx)
);

-- Delayed-removal side table: entries a policy must still act on after
-- they have disappeared from the live namespace.
CREATE TABLE IF NOT EXISTS rmlist (
	entry_id TEXT PRIMARY KEY,
	rm_time  INTEGER NOT NULL,
	name     TEXT,
	fullpath TEXT,
	size     INTEGER,
	uid      INTEGER,
	gid      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_rmlist_rmtime ON rmlist(rm_time);

CREATE TABLE IF NOT EXISTS vars (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tag_entries (
	tag_name TEXT NOT NULL,
	entry_id TEXT NOT NULL,
	PRIMARY KEY (tag_name, entry_id)
);
`

func (g *Gateway) initSchema(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("catalog: init schema: %w", err)
	}
	return nil
}

// Session is one worker thread's dedicated connection and in-progress
// commit batch.
type Session struct {
	g    *Gateway
	conn *sql.Conn

	opsSinceCommit int

	// retries counts how many times withRetry backed off and retried a
	// transient (deadlock/connection-lost) error on this session.
	retries uint64
}

// RetryCount returns how many transient-error retries this session has
// performed so far, for a caller (e.g. the policy runner) to fold into
// its own run summary.
func (s *Session) RetryCount() uint64 {
	return atomic.LoadUint64(&s.retries)
}

// OpenSession acquires a dedicated connection for the calling thread.
func (g *Gateway) OpenSession(ctx context.Context) (*Session, error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: open session: %w", err)
	}
	return &Session{g: g, conn: conn}, nil
}

// CloseSession releases the session's dedicated connection, running a
// final passive WAL checkpoint first when CommitEvery is set.
func (s *Session) CloseSession(ctx context.Context) error {
	defer func() { _ = s.conn.Close() }()
	return s.maybeCommit(ctx, true)
}

// maybeCommit advances the write counter for one write operation and
// runs a passive WAL checkpoint once CommitEvery writes have
// accumulated, or immediately when force is set (e.g. at session
// close). It does nothing when CommitEvery is 0. The writes themselves
// have already been committed by sqlite's autocommit mode.
func (s *Session) maybeCommit(ctx context.Context, force bool) error {
	if s.g.cfg.CommitEvery <= 0 {
		return nil
	}
	s.opsSinceCommit++
	if !force && s.opsSinceCommit < s.g.cfg.CommitEvery {
		return nil
	}
	s.opsSinceCommit = 0
	_, err := s.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return err
}

func idString(id attr.ID) string { return id.String() }
