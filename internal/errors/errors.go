package errors

import (
	"fmt"
)

// StorageError reports an I/O failure in the backing store while reading,
// writing, or deleting a single artifact.
type StorageError struct {
	Path string
	Op   string // read, write, delete
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func Storage(op, path string, err error) *StorageError {
	return &StorageError{Path: path, Op: op, Err: err}
}

// NotFoundError reports a Modify targeting an artifact with no current content.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Path)
}

func NotFound(path string) *NotFoundError {
	return &NotFoundError{Path: path}
}

// ConflictError reports a Create targeting an artifact that already exists.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artifact already exists: %s", e.Path)
}

func Conflict(path string) *ConflictError {
	return &ConflictError{Path: path}
}

// CheckpointError reports a failure creating or restoring a checkpoint.
type CheckpointError struct {
	ID  string
	Err error
}

func (e *CheckpointError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("checkpoint: %v", e.Err)
	}
	return fmt.Sprintf("checkpoint %s: %v", e.ID, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

func Checkpoint(id string, err error) *CheckpointError {
	return &CheckpointError{ID: id, Err: err}
}

// CheckpointNotFound marks restore requests for an unknown checkpoint id.
type CheckpointNotFound struct {
	ID string
}

func (e *CheckpointNotFound) Error() string {
	return fmt.Sprintf("checkpoint not found: %s", e.ID)
}

// BatchAbortedError wraps the first failure of a transactional apply after
// the rollback to its checkpoint has completed.
type BatchAbortedError struct {
	CheckpointID string
	Err          error
}

func (e *BatchAbortedError) Error() string {
	return fmt.Sprintf("batch aborted, rolled back to checkpoint %s: %v", e.CheckpointID, e.Err)
}

func (e *BatchAbortedError) Unwrap() error { return e.Err }

func BatchAborted(checkpointID string, err error) *BatchAbortedError {
	return &BatchAbortedError{CheckpointID: checkpointID, Err: err}
}
