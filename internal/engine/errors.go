package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ledgersync/internal/remote"
)

// ErrStopped is returned by operations submitted after the loop has stopped.
var ErrStopped = errors.New("engine stopped")

// ErrNotFound is wrapped by operations naming a record the ledger lacks.
var ErrNotFound = errors.New("not found")

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// SyncError is a failure of the sync protocol. Sync errors are logged, never
// returned from local operations: the local state is authoritative for the
// session and nothing is rolled back.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	Table    remote.Table
	RecordID string

	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeRemoteWrite indicates a remote upsert or delete failed.
	ErrCodeRemoteWrite SyncErrorCode = "REMOTE_WRITE_FAILED"

	// ErrCodeBootstrap indicates the startup reconciliation failed.
	ErrCodeBootstrap SyncErrorCode = "BOOTSTRAP_FAILED"

	// ErrCodeDecode indicates a changefeed row could not be decoded.
	ErrCodeDecode SyncErrorCode = "DECODE_FAILED"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != "" && e.RecordID != "" {
		msg = fmt.Sprintf("%s (table=%s, id=%s)", msg, e.Table, e.RecordID)
	} else if e.Table != "" {
		msg = fmt.Sprintf("%s (table=%s)", msg, e.Table)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

// HasCode reports whether err is a SyncError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newWriteError(op string, table remote.Table, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeRemoteWrite,
		Message: op + " failed",
		Table:   table,
		Err:     err,
	}
}

func newBootstrapError(table remote.Table, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeBootstrap,
		Message: "select failed",
		Table:   table,
		Err:     err,
	}
}

func newDecodeError(c remote.Change, err error) *SyncError {
	return &SyncError{
		Code:     ErrCodeDecode,
		Message:  fmt.Sprintf("drop %s event", c.Type),
		Table:    c.Table,
		RecordID: c.Key(),
		Err:      err,
	}
}
