// Package vfs implements the versioned artifact store: a path-addressed
// read/write/delete API where every mutation appends an immutable commit,
// plus whole-store checkpoints that can be restored as one unit.
package vfs

import (
	"time"
)

// Commit is an immutable record of one artifact mutation. A tombstone commit
// records a delete; its ContentHash is empty.
type Commit struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash,omitempty"`
	Tombstone   bool      `json:"tombstone,omitempty"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Parent      string    `json:"parent,omitempty"`
	Seq         uint64    `json:"seq"`
}

// CommitInfo is the history view of a commit.
type CommitInfo struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot holds the two sides of a diff. Content is passed through without
// transformation; binary artifacts diff the same way as text.
type Snapshot struct {
	ContentA []byte
	FoundA   bool
	ContentB []byte
	FoundB   bool
}

// Checkpoint is a named, restorable snapshot of the whole store's frontier:
// the mapping from every known artifact path to its then-current commit.
type Checkpoint struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	CreatedAt time.Time         `json:"created_at"`
	Frontier  map[string]string `json:"frontier"`
}

// RefHead addresses the current commit of an artifact in Diff and ReadAt.
const RefHead = "HEAD"
