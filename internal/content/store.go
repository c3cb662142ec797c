// internal/content/store.go
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
)

// BlobStore provides deduplicated, content-addressed blob storage: blobs on
// disk under a two-level fanout, metadata in BadgerDB, hot content in an LRU
// cache. Large blobs are zstd-compressed at rest.
type BlobStore struct {
	root     string     // Root directory for content files
	db       *badger.DB // Metadata database
	cache    *lru.Cache[string, []byte]
	compress *compressor
}

// Options configures BlobStore behavior
type Options struct {
	Root      string // Root directory path
	CacheSize int    // Number of items to cache
	MinSize   int    // Minimum blob size before compressing
}

// NewBlobStore creates a new BlobStore instance
func NewBlobStore(db *badger.DB, opts Options) (*BlobStore, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	compress, err := newCompressor(opts.MinSize)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	return &BlobStore{
		root:     opts.Root,
		db:       db,
		cache:    cache,
		compress: compress,
	}, nil
}

// Store saves content and returns its hash. Storing the same content twice
// is a no-op returning the same hash.
func (s *BlobStore) Store(content []byte) (string, error) {
	if content == nil {
		content = []byte{} // Empty blobs are valid
	}

	hash := HashContent(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return hash, nil
	}

	stored, compressed, err := s.compress.compress(content)
	if err != nil {
		return "", fmt.Errorf("compressing content: %w", err)
	}

	contentPath := s.contentPath(hash)
	if err := os.MkdirAll(filepath.Dir(contentPath), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.WriteFile(contentPath, stored, 0644); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	meta := BlobMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		Compressed: compressed,
		CreatedAt:  time.Now(),
	}
	if err := s.storeMeta(meta); err != nil {
		// Cleanup on failure
		os.Remove(contentPath)
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash
func (s *BlobStore) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.contentPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if meta.Compressed {
		content, err = s.compress.decompress(content)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if HashContent(content) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	s.cache.Add(hash, content)
	return content, nil
}

// Exists checks if content exists
func (s *BlobStore) Exists(hash string) (bool, error) {
	if !isValidHash(hash) {
		return false, ErrInvalidHash
	}

	if s.cache.Contains(hash) {
		return true, nil
	}

	_, err := s.getMeta(hash)
	if err != nil {
		if err == ErrContentNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HashContent returns the sha256 hex digest used as a content address.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func (s *BlobStore) contentPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *BlobStore) storeMeta(meta BlobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(fmt.Sprintf("content:%s", meta.Hash))
		return txn.Set(key, data)
	})
}

func (s *BlobStore) getMeta(hash string) (BlobMeta, error) {
	var meta BlobMeta

	err := s.db.View(func(txn *badger.Txn) error {
		key := []byte(fmt.Sprintf("content:%s", hash))
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})

	return meta, err
}
