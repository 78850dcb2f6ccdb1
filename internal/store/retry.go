package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrConflict signals that a concurrent writer changed a row between the read
// and the write of a transaction. WithTx retries the whole transaction on it.
var ErrConflict = errors.New("concurrent update conflict")

const (
	sqliteBusy   = 5
	sqliteLocked = 6

	sqliteConstraintCheck      = 275
	sqliteConstraintForeignKey = 787
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func sqliteCode(err error) (int, bool) {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code(), true
	}
	return 0, false
}

// IsBusy reports whether err is a SQLite busy/locked error, including the
// extended BUSY_SNAPSHOT code raised when a stale read transaction tries to write.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		primary := code & 0xff
		if primary == sqliteBusy || primary == sqliteLocked {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && (code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code == sqliteConstraintForeignKey {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code == sqliteConstraintCheck {
		return true
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsRetryable reports whether a failed transaction may succeed when run again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || IsBusy(err)
}

type retryPolicy struct {
	attempts       int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func (p retryPolicy) do(ctx context.Context, op func() error) error {
	delay := p.initialBackoff
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == p.attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= p.maxBackoff {
			delay = next
		}
	}
	return lastErr
}
