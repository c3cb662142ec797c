// internal/vfs/repo.go
package vfs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"dogs/internal/content"
	"dogs/internal/errors"
	"dogs/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Repo is the path-addressed artifact repository. All mutations serialize on
// a single writer lock; checkpoint create/restore reuse the same lock so a
// whole batch is observed atomically by readers.
type Repo struct {
	blobs   content.Store
	commits *storage.BadgerStore
	heads   *storage.BadgerStore
	logger  *zap.Logger

	mu sync.RWMutex
}

func NewRepo(db *badger.DB, blobs content.Store, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{
		blobs:   blobs,
		commits: storage.NewBadgerStore(db, "commit"),
		heads:   storage.NewBadgerStore(db, "head"),
		logger:  logger,
	}
}

// Read returns the current content of path. A missing artifact, or one whose
// latest commit is a tombstone, reports found=false with no error.
func (r *Repo) Read(path string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readLocked(path)
}

// ReadAt reads the content path had at the given ref: a commit id, or RefHead
// for the current state.
func (r *Repo) ReadAt(path, ref string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readAtLocked(path, ref)
}

// Write records content as a new commit for path and returns the commit id.
// It never decides whether the path "should" exist; that policy belongs to
// the caller.
func (r *Repo) Write(path string, data []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(path, data, fmt.Sprintf("write %s", path))
}

// Delete records a tombstone commit for path. Deleting a path with no prior
// commits still succeeds and produces a tombstone.
func (r *Repo) Delete(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(path, fmt.Sprintf("delete %s", path))
}

// History lists the commits of path, newest first. A path with no commits
// yields an empty slice.
func (r *Repo) History(path string) ([]CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := []CommitInfo{}
	id, found, err := r.headID(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return infos, nil
	}

	for id != "" {
		commit, err := r.getCommit(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, CommitInfo{
			ID:        commit.ID,
			Message:   commit.Message,
			Timestamp: commit.Timestamp,
		})
		id = commit.Parent
	}
	return infos, nil
}

// Diff reads two historical snapshots of path. refB defaults to RefHead when
// empty. Content is returned verbatim. Both reads happen under one lock hold
// so the pair cannot straddle a restore.
func (r *Repo) Diff(path, refA, refB string) (*Snapshot, error) {
	if refB == "" {
		refB = RefHead
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	contentA, foundA, err := r.readAtLocked(path, refA)
	if err != nil {
		return nil, fmt.Errorf("reading ref %s: %w", refA, err)
	}
	contentB, foundB, err := r.readAtLocked(path, refB)
	if err != nil {
		return nil, fmt.Errorf("reading ref %s: %w", refB, err)
	}

	return &Snapshot{
		ContentA: contentA,
		FoundA:   foundA,
		ContentB: contentB,
		FoundB:   foundB,
	}, nil
}

// Paths returns every artifact path known to the repo, including paths whose
// latest commit is a tombstone. Sorted for determinism.
func (r *Repo) Paths() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pathsLocked()
}

// Internal, lock-held operations. Checkpoint create/restore in this package
// call these while holding mu so the whole batch is one critical section.

func (r *Repo) readAtLocked(path, ref string) ([]byte, bool, error) {
	if ref == "" || ref == RefHead {
		return r.readLocked(path)
	}

	commit, err := r.getCommit(ref)
	if err != nil {
		return nil, false, err
	}
	if commit.Path != path {
		return nil, false, fmt.Errorf("ref %s does not belong to %s", ref, path)
	}
	return r.commitContent(commit)
}

func (r *Repo) readLocked(path string) ([]byte, bool, error) {
	id, found, err := r.headID(path)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	commit, err := r.getCommit(id)
	if err != nil {
		return nil, false, err
	}
	return r.commitContent(commit)
}

func (r *Repo) writeLocked(path string, data []byte, message string) (string, error) {
	hash, err := r.blobs.Store(data)
	if err != nil {
		return "", errors.Storage("write", path, err)
	}

	commit := Commit{
		Path:        path,
		ContentHash: hash,
		Message:     message,
		Timestamp:   time.Now(),
	}
	return r.appendCommit(commit)
}

func (r *Repo) deleteLocked(path, message string) (string, error) {
	commit := Commit{
		Path:      path,
		Tombstone: true,
		Message:   message,
		Timestamp: time.Now(),
	}
	return r.appendCommit(commit)
}

// appendCommit links the commit to the current head of its path, assigns its
// content-hash id, and persists both the commit and the new head pointer.
func (r *Repo) appendCommit(commit Commit) (string, error) {
	parentID, found, err := r.headID(commit.Path)
	if err != nil {
		return "", err
	}
	if found {
		parent, err := r.getCommit(parentID)
		if err != nil {
			return "", err
		}
		commit.Parent = parentID
		commit.Seq = parent.Seq + 1
	}

	commit.ID = commitID(commit)

	op := "write"
	if commit.Tombstone {
		op = "delete"
	}

	data, err := marshalCommit(commit)
	if err != nil {
		return "", errors.Storage(op, commit.Path, err)
	}
	if err := r.commits.SetRaw(commit.ID, data); err != nil {
		return "", errors.Storage(op, commit.Path, err)
	}
	if err := r.heads.SetRaw(commit.Path, []byte(commit.ID)); err != nil {
		return "", errors.Storage(op, commit.Path, err)
	}

	r.logger.Debug("commit appended",
		zap.String("path", commit.Path),
		zap.String("commit", commit.ID),
		zap.Bool("tombstone", commit.Tombstone),
	)
	return commit.ID, nil
}

func (r *Repo) headID(path string) (string, bool, error) {
	value, found, err := r.heads.GetRaw(path)
	if err != nil {
		return "", false, errors.Storage("read", path, err)
	}
	if !found {
		return "", false, nil
	}
	return string(value), true, nil
}

func (r *Repo) getCommit(id string) (*Commit, error) {
	value, found, err := r.commits.GetRaw(id)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("unknown commit %s", id)
	}
	return unmarshalCommit(value)
}

func (r *Repo) commitContent(commit *Commit) ([]byte, bool, error) {
	if commit.Tombstone {
		return nil, false, nil
	}
	data, err := r.blobs.Get(commit.ContentHash)
	if err != nil {
		return nil, false, errors.Storage("read", commit.Path, err)
	}
	return data, true, nil
}

func (r *Repo) pathsLocked() ([]string, error) {
	var paths []string
	err := r.heads.ForEach(func(path string, _ []byte) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing heads: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// frontierLocked maps every known path to its current commit id.
func (r *Repo) frontierLocked() (map[string]string, error) {
	frontier := make(map[string]string)
	err := r.heads.ForEach(func(path string, value []byte) error {
		frontier[path] = string(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading frontier: %w", err)
	}
	return frontier, nil
}

// restoreFrontierLocked appends compensating commits until the readable state
// matches the frontier exactly. Paths that gained commits after the frontier
// was captured are tombstoned; history is never rewritten.
func (r *Repo) restoreFrontierLocked(frontier map[string]string, message string) error {
	paths := make([]string, 0, len(frontier))
	for path := range frontier {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		target := frontier[path]
		current, found, err := r.headID(path)
		if err != nil {
			return err
		}
		if found && current == target {
			continue
		}

		commit, err := r.getCommit(target)
		if err != nil {
			return err
		}
		if commit.Tombstone {
			if _, err := r.deleteLocked(path, message); err != nil {
				return err
			}
			continue
		}

		data, found, err := r.commitContent(commit)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("commit %s for %s has no content", target, path)
		}
		if _, err := r.writeLocked(path, data, message); err != nil {
			return err
		}
	}

	// Paths created since the checkpoint must read as absent again.
	current, err := r.pathsLocked()
	if err != nil {
		return err
	}
	for _, path := range current {
		if _, ok := frontier[path]; ok {
			continue
		}
		_, found, err := r.readLocked(path)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if _, err := r.deleteLocked(path, message); err != nil {
			return err
		}
	}
	return nil
}

func marshalCommit(c Commit) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling commit: %w", err)
	}
	return data, nil
}

func unmarshalCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling commit: %w", err)
	}
	return &c, nil
}

func commitID(c Commit) string {
	payload := c.Path + "\x00" + c.Parent + "\x00" + c.ContentHash + "\x00" +
		strconv.FormatBool(c.Tombstone) + "\x00" +
		strconv.FormatInt(c.Timestamp.UnixNano(), 10) + "\x00" +
		strconv.FormatUint(c.Seq, 10)
	return content.HashContent([]byte(payload))
}
