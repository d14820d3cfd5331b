package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

// sqliteCoder matches modernc.org/sqlite's *sqlite.Error without
// importing its package directly; the numeric codes below are the
// standard SQLite C API result codes, stable across every binding.
type sqliteCoder interface {
	Code() int
}

const (
	sqliteBusy     = 5
	sqliteLocked   = 6
	sqliteIOErr    = 10
	sqliteCantOpen = 14
)

// classify maps a raw driver error onto the shared error taxonomy so
// withRetry (and callers using rberr.Retryable) can decide whether to
// retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var c sqliteCoder
	if errors.As(err, &c) {
		switch c.Code() {
		case sqliteBusy, sqliteLocked:
			return rberr.New(rberr.Deadlock, "%v", err)
		case sqliteIOErr, sqliteCantOpen:
			return rberr.New(rberr.ConnectionLost, "%v", err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return rberr.New(rberr.ConnectionLost, "%v", err)
	}
	return err
}

// withRetry runs op, retrying with exponential backoff between
// RetryDelayMin and RetryDelayMax while the (classified) error is
// transient. The retry loop is cancellable via ctx.
func (s *Session) withRetry(ctx context.Context, op func() error) error {
	delay := s.g.cfg.RetryDelayMin
	for {
		err := op()
		if err == nil {
			return nil
		}
		ce := classify(err)
		if !rberr.Retryable(ce) {
			return err
		}
		atomic.AddUint64(&s.retries, 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.g.cfg.RetryDelayMax {
			delay = s.g.cfg.RetryDelayMax
		}
	}
}
