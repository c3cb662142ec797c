// internal/vfs/checkpoint.go
package vfs

import (
	"fmt"
	"sort"
	"time"

	"dogs/internal/errors"
	"dogs/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager names point-in-time snapshots of the whole repo and restores them.
// Checkpoints are store-wide: the applier rolls back an arbitrary multi-file
// batch as one unit, so per-path granularity would not be enough. Checkpoints
// are persisted in BadgerDB and survive restarts; a successful apply retains
// its checkpoint.
type Manager struct {
	repo   *Repo
	store  *storage.BadgerStore
	logger *zap.Logger
}

func NewManager(db *badger.DB, repo *Repo, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:   repo,
		store:  storage.NewBadgerStore(db, "checkpoint"),
		logger: logger,
	}
}

// checkpointEntity wraps Checkpoint to implement storage.Entity
type checkpointEntity struct {
	*Checkpoint
}

func (c *checkpointEntity) GetID() string {
	return c.ID
}

// Create captures the current frontier for every known artifact and persists
// it under a fresh id. The frontier read and the checkpoint record are one
// critical section: no write can interleave between them.
func (m *Manager) Create(label string) (*Checkpoint, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	frontier, err := m.repo.frontierLocked()
	if err != nil {
		return nil, errors.Checkpoint("", err)
	}

	cp := &Checkpoint{
		ID:        uuid.New().String(),
		Label:     label,
		CreatedAt: time.Now(),
		Frontier:  frontier,
	}

	if err := m.store.Create(&checkpointEntity{Checkpoint: cp}); err != nil {
		return nil, errors.Checkpoint(cp.ID, fmt.Errorf("persisting checkpoint: %w", err))
	}

	m.logger.Info("checkpoint created",
		zap.String("checkpoint", cp.ID),
		zap.String("label", label),
		zap.Int("paths", len(frontier)),
	)
	return cp, nil
}

// Get loads a checkpoint by id.
func (m *Manager) Get(id string) (*Checkpoint, error) {
	exists, err := m.store.Exists(id)
	if err != nil {
		return nil, errors.Checkpoint(id, err)
	}
	if !exists {
		return nil, &errors.CheckpointNotFound{ID: id}
	}

	entity := checkpointEntity{Checkpoint: &Checkpoint{}}
	if err := m.store.Get(id, &entity); err != nil {
		return nil, errors.Checkpoint(id, err)
	}
	return entity.Checkpoint, nil
}

// Restore rewinds the readable state of every artifact to the checkpoint's
// frontier by appending compensating writes and deletes. The whole restore
// runs as one exclusive batch: a concurrent reader sees either the
// pre-restore state or the fully restored one, never a mixture.
func (m *Manager) Restore(id string) error {
	cp, err := m.Get(id)
	if err != nil {
		return err
	}

	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	message := fmt.Sprintf("restore %s", cp.ID)
	if err := m.repo.restoreFrontierLocked(cp.Frontier, message); err != nil {
		return errors.Checkpoint(id, err)
	}

	m.logger.Info("checkpoint restored",
		zap.String("checkpoint", cp.ID),
		zap.String("label", cp.Label),
	)
	return nil
}

// List returns all retained checkpoints, oldest first.
func (m *Manager) List() ([]*Checkpoint, error) {
	var entities []checkpointEntity
	if err := m.store.List(&entities); err != nil {
		return nil, errors.Checkpoint("", err)
	}

	checkpoints := make([]*Checkpoint, len(entities))
	for i, entity := range entities {
		checkpoints[i] = entity.Checkpoint
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}
