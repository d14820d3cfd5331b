package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

type codedErr struct{ code int }

func (e *codedErr) Error() string { return "sqlite error" }
func (e *codedErr) Code() int     { return e.code }

func TestClassifyMapsBusyAndLockedToDeadlock(t *testing.T) {
	for _, code := range []int{sqliteBusy, sqliteLocked} {
		err := classify(&codedErr{code: code})
		if !rberr.Is(err, rberr.Deadlock) {
			t.Fatalf("code %d: expected Deadlock, got %v", code, err)
		}
	}
}

func TestClassifyMapsIOErrorsToConnectionLost(t *testing.T) {
	for _, code := range []int{sqliteIOErr, sqliteCantOpen} {
		err := classify(&codedErr{code: code})
		if !rberr.Is(err, rberr.ConnectionLost) {
			t.Fatalf("code %d: expected ConnectionLost, got %v", code, err)
		}
	}
}

func TestClassifyPassesThroughUnknownErrors(t *testing.T) {
	orig := errors.New("boom")
	got := classify(orig)
	if got != orig {
		t.Fatalf("expected unrecognised error to pass through unchanged")
	}
}

func testSession(t *testing.T) *Session {
	t.Helper()
	return &Session{g: &Gateway{cfg: Config{
		RetryDelayMin: time.Millisecond,
		RetryDelayMax: 4 * time.Millisecond,
	}}}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	s := testSession(t)
	attempts := 0
	err := s.withRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &codedErr{code: sqliteBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryCountsEachBackedOffAttempt(t *testing.T) {
	s := testSession(t)
	attempts := 0
	err := s.withRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &codedErr{code: sqliteBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := s.RetryCount(); got != 2 {
		t.Fatalf("expected 2 retries recorded (3 attempts, 1 success), got %d", got)
	}
}

func TestWithRetryDoesNotCountNonRetryableFailures(t *testing.T) {
	s := testSession(t)
	sentinel := errors.New("fatal")
	_ = s.withRetry(context.Background(), func() error {
		return sentinel
	})
	if got := s.RetryCount(); got != 0 {
		t.Fatalf("expected no retries recorded for a non-retryable error, got %d", got)
	}
}

func TestWithRetryReturnsImmediatelyOnNonRetryableError(t *testing.T) {
	s := testSession(t)
	attempts := 0
	sentinel := errors.New("fatal")
	err := s.withRetry(context.Background(), func() error {
		attempts++
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error returned unchanged, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	s := testSession(t)
	s.g.cfg.RetryDelayMin = 50 * time.Millisecond
	s.g.cfg.RetryDelayMax = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := s.withRetry(ctx, func() error {
		return &codedErr{code: sqliteBusy}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}
