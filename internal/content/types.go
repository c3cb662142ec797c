package content

import (
	"time"
)

// Store is the content-addressed blob store backing the artifact repo.
// Content is append-only: commits are immutable, so blobs are never removed.
type Store interface {
	Store(content []byte) (string, error)
	Get(hash string) ([]byte, error)
	Exists(hash string) (bool, error)
}

// BlobMeta stores metadata about stored content
type BlobMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}
