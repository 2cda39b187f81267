package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress reports a malformed endpoint or one of the wrong kind
	// for the requested operation.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrBothRemote is returned when source and destination are both remote.
	ErrBothRemote = errors.New("remote to remote sync is not supported")
	// ErrBothLocal is returned when source and destination are both local.
	ErrBothLocal = errors.New("local to local sync is not supported")
	// ErrLocalIO marks a failure opening, creating, reading or writing a local file.
	ErrLocalIO = errors.New("local io error")
	// ErrRemote marks a failed list, get, head or put against the object store.
	ErrRemote = errors.New("remote operation error")
	// ErrEntriesFailed is returned by Sync when at least one entry failed.
	ErrEntriesFailed = errors.New("one or more entries failed")
)

// TransferError describes the failure of a single entry.
type TransferError struct {
	Op   string // "download" or "upload"
	Key  string
	Path string
	Kind error // ErrLocalIO or ErrRemote
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s <-> %s: %v: %v", e.Op, e.Key, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *TransferError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func localErr(op, key, path string, err error) *TransferError {
	return &TransferError{Op: op, Key: key, Path: path, Kind: ErrLocalIO, Err: err}
}

func remoteErr(op, key, path string, err error) *TransferError {
	return &TransferError{Op: op, Key: key, Path: path, Kind: ErrRemote, Err: err}
}

func invalidAddress(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAddress, fmt.Sprintf(format, args...))
}
