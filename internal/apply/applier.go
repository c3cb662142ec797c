// internal/apply/applier.go

// Package apply orchestrates the all-or-nothing application of a parsed
// bundle: checkpoint, sequential apply in source order, then commit or
// rollback to the checkpoint as a single unit.
package apply

import (
	"fmt"
	"os"

	"dogs/internal/bundle"
	"dogs/internal/errors"
	"dogs/internal/vfs"

	"go.uber.org/zap"
)

// Repo is the slice of the artifact repository the applier mutates.
type Repo interface {
	Read(path string) ([]byte, bool, error)
	Write(path string, content []byte) (string, error)
	Delete(path string) (string, error)
}

// Checkpointer snapshots and restores the whole store.
type Checkpointer interface {
	Create(label string) (*vfs.Checkpoint, error)
	Restore(id string) error
}

// Result is the single externally observable outcome of Apply.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AppliedCount int    `json:"applied_count"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// Applier applies bundles transactionally against an injected repo and
// checkpoint manager. It issues mutations strictly sequentially; concurrent
// Apply calls against overlapping paths must be serialized by the caller.
type Applier struct {
	repo        Repo
	checkpoints Checkpointer
	logger      *zap.Logger
}

func NewApplier(repo Repo, checkpoints Checkpointer, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		repo:        repo,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Apply reads the bundle at bundlePath and applies it. verifyCommand, when
// non-empty, is only logged; execution belongs to an external sandboxed
// runner, never to this core.
func (a *Applier) Apply(bundlePath, verifyCommand string) (*Result, error) {
	source, err := os.ReadFile(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("reading bundle %s: %w", bundlePath, err)
	}
	return a.ApplyBundle(bundle.Parse(source, bundlePath), verifyCommand)
}

// ApplyBundle applies an already-parsed changeset.
func (a *Applier) ApplyBundle(cs *bundle.ChangeSet, verifyCommand string) (*Result, error) {
	log := a.logger.With(zap.String("bundle", cs.SourcePath))

	if cs.Empty() {
		log.Warn("rejecting bundle with no change blocks")
		return &Result{
			Success: false,
			Message: "No valid changes found in dogs bundle",
		}, nil
	}

	// Checkpoint before touching anything. A failure here propagates
	// unchanged: nothing has mutated, so there is nothing to roll back.
	cp, err := a.checkpoints.Create(fmt.Sprintf("pre-apply %s", cs.SourcePath))
	if err != nil {
		return nil, err
	}
	log.Info("checkpoint created", zap.String("checkpoint", cp.ID))

	applied := 0
	for _, change := range cs.Changes {
		if change.Op == bundle.OpUnknown {
			log.Warn("skipping unknown operation",
				zap.String("operation", change.RawOp),
				zap.String("path", change.Path),
			)
			continue
		}

		log.Info(fmt.Sprintf("Applying %s to %s", change.Op, change.Path))

		if err := a.applyChange(change); err != nil {
			return nil, a.rollback(log, cp.ID, err)
		}
		applied++
	}

	if verifyCommand != "" {
		log.Info("verification requested, deferred to external runner",
			zap.String("command", verifyCommand),
		)
	}

	log.Info("bundle applied",
		zap.Int("applied", applied),
		zap.String("checkpoint", cp.ID),
	)
	return &Result{
		Success:      true,
		Message:      fmt.Sprintf("Successfully applied %d changes", applied),
		AppliedCount: applied,
		CheckpointID: cp.ID,
	}, nil
}

// applyChange performs one change. Existence policy lives here, not in the
// repo: Create conflicts with a present artifact, Modify requires one, and
// Delete always succeeds even for a path that never existed.
func (a *Applier) applyChange(change bundle.Change) error {
	switch change.Op {
	case bundle.OpCreate:
		_, found, err := a.repo.Read(change.Path)
		if err != nil {
			return err
		}
		if found {
			return errors.Conflict(change.Path)
		}
		_, err = a.repo.Write(change.Path, change.NewContent)
		return err

	case bundle.OpModify:
		_, found, err := a.repo.Read(change.Path)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound(change.Path)
		}
		_, err = a.repo.Write(change.Path, change.NewContent)
		return err

	case bundle.OpDelete:
		_, err := a.repo.Delete(change.Path)
		return err

	default:
		return fmt.Errorf("unhandled operation %s", change.Op)
	}
}

// rollback restores the checkpoint and wraps the original cause. A restore
// failure here is the one fatal path: the store may be left partially
// applied and needs manual inspection before re-running restore.
func (a *Applier) rollback(log *zap.Logger, checkpointID string, cause error) error {
	log.Error("apply failed, rolling back",
		zap.String("checkpoint", checkpointID),
		zap.Error(cause),
	)

	if err := a.checkpoints.Restore(checkpointID); err != nil {
		log.Error("rollback failed, store may be partially applied; "+
			"inspect and re-run restore manually",
			zap.String("checkpoint", checkpointID),
			zap.Error(err),
		)
		return fmt.Errorf("rollback to checkpoint %s failed after %v: %w",
			checkpointID, cause, err)
	}

	log.Info("rollback complete", zap.String("checkpoint", checkpointID))
	return errors.BatchAborted(checkpointID, cause)
}
