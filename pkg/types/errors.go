package types

import "fmt"

// ConnectionError is fatal for the mailbox run: remaining folders are
// aborted, other mailboxes continue.
type ConnectionError struct {
	Account string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox %s: connection failed: %v", e.Account, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UidValidityChangedError is fatal for the folder: stored watermarks are
// meaningless and a manual full resync is required.
type UidValidityChangedError struct {
	Folder  string
	Stored  uint32
	Current uint32
}

func (e *UidValidityChangedError) Error() string {
	return fmt.Sprintf("folder %s: uidvalidity changed from %d to %d, watermarks invalidated", e.Folder, e.Stored, e.Current)
}

// ParseError covers a malformed MIME structure for one message; the
// caller records it as skipped-on-error and continues the batch.
type ParseError struct {
	Folder string
	UID    uint32
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("folder %s uid %d: parse failed: %v", e.Folder, e.UID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoMailboxError signals a request for a mailbox account that is not
// configured, fatal for the mailbox run.
type NoMailboxError struct {
	Account string
}

func (e *NoMailboxError) Error() string {
	return fmt.Sprintf("mailbox %s: not configured, no IMAP connection", e.Account)
}

// StorageError is a per-record store failure; processing continues but
// the record is not counted as a success.
type StorageError struct {
	Kind string
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s/%s: %v", e.Kind, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// QueryError is a record-store read failure. An empty valid result is
// not an error and never produces one.
type QueryError struct {
	Kind string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
