package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"dogs/internal/bundle"
	"dogs/internal/content"
	"dogs/internal/errors"
	"dogs/internal/vfs"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo is an in-memory repo recording the order of mutating calls.
type mockRepo struct {
	files map[string][]byte
	calls []string

	failWriteAt int // 1-based write call that fails; 0 disables
	writeCount  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{files: map[string][]byte{}}
}

func (m *mockRepo) Read(path string) ([]byte, bool, error) {
	data, ok := m.files[path]
	return data, ok, nil
}

func (m *mockRepo) Write(path string, data []byte) (string, error) {
	m.writeCount++
	if m.failWriteAt != 0 && m.writeCount == m.failWriteAt {
		return "", errors.Storage("write", path, fmt.Errorf("disk full"))
	}
	m.calls = append(m.calls, "write "+path)
	m.files[path] = data
	return fmt.Sprintf("commit-%d", len(m.calls)), nil
}

func (m *mockRepo) Delete(path string) (string, error) {
	m.calls = append(m.calls, "delete "+path)
	delete(m.files, path)
	return fmt.Sprintf("commit-%d", len(m.calls)), nil
}

// mockCheckpointer records checkpoint traffic.
type mockCheckpointer struct {
	created   []string
	restored  []string
	createErr error
}

func (m *mockCheckpointer) Create(label string) (*vfs.Checkpoint, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, label)
	return &vfs.Checkpoint{ID: fmt.Sprintf("cp-%d", len(m.created)), Label: label}, nil
}

func (m *mockCheckpointer) Restore(id string) error {
	m.restored = append(m.restored, id)
	return nil
}

func writeBundle(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "change.dogs")
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestApplySingleCreate(t *testing.T) {
	repo := newMockRepo()
	cps := &mockCheckpointer{}
	applier := NewApplier(repo, cps, nil)

	path := writeBundle(t, "```\noperation: CREATE\nfile_path: /test.txt\n```\n```\nNew file content\n```\n")
	result, err := applier.Apply(path, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.AppliedCount)
	assert.Equal(t, "Successfully applied 1 changes", result.Message)
	assert.Equal(t, "cp-1", result.CheckpointID)

	data, found, _ := repo.Read("/test.txt")
	assert.True(t, found)
	assert.Equal(t, "New file content\n", string(data))

	// Checkpoint retained, never restored.
	assert.Len(t, cps.created, 1)
	assert.Contains(t, cps.created[0], path)
	assert.Empty(t, cps.restored)
}

func TestApplyOrderPreserved(t *testing.T) {
	repo := newMockRepo()
	applier := NewApplier(repo, &mockCheckpointer{}, nil)

	path := writeBundle(t, "```\noperation: CREATE\nfile_path: /file1.txt\n```\n```\na\n```\n"+
		"```\noperation: DELETE\nfile_path: /file2.txt\n```\n")
	result, err := applier.Apply(path, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.AppliedCount)
	assert.Equal(t, []string{"write /file1.txt", "delete /file2.txt"}, repo.calls)
}

func TestApplyStopsAtFirstFailureAndRollsBack(t *testing.T) {
	repo := newMockRepo()
	repo.failWriteAt = 2
	cps := &mockCheckpointer{}
	applier := NewApplier(repo, cps, nil)

	path := writeBundle(t, "```\noperation: CREATE\nfile_path: /file1.txt\n```\n```\na\n```\n"+
		"```\noperation: CREATE\nfile_path: /file2.txt\n```\n```\nb\n```\n"+
		"```\noperation: CREATE\nfile_path: /file3.txt\n```\n```\nc\n```\n")
	result, err := applier.Apply(path, "")
	assert.Nil(t, result)

	var aborted *errors.BatchAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, "cp-1", aborted.CheckpointID)
	assert.Contains(t, aborted.Error(), "cp-1")
	assert.Contains(t, aborted.Error(), "disk full")

	// The third write was never attempted; restore ran exactly once.
	assert.Equal(t, 2, repo.writeCount)
	assert.Equal(t, []string{"cp-1"}, cps.restored)
}

func TestApplyRejectsEmptyBundle(t *testing.T) {
	cps := &mockCheckpointer{}
	applier := NewApplier(newMockRepo(), cps, nil)

	path := writeBundle(t, "This is just plain text")
	result, err := applier.Apply(path, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "No valid changes found")
	// Rejection happens before any side effect.
	assert.Empty(t, cps.created)
}

func TestApplyUnknownOperationsOnly(t *testing.T) {
	repo := newMockRepo()
	applier := NewApplier(repo, &mockCheckpointer{}, nil)

	path := writeBundle(t, "```\noperation: RENAME\nfile_path: /a.txt\n```\n```\nfull content\n```\n")
	result, err := applier.Apply(path, "")
	require.NoError(t, err)

	// "Changes were found" is distinct from "changes were applied".
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.AppliedCount)
	assert.Empty(t, repo.calls)
}

func TestApplyMixedOperations(t *testing.T) {
	repo := newMockRepo()
	repo.files["/mod.txt"] = []byte("old")
	repo.files["/del.txt"] = []byte("bye")
	applier := NewApplier(repo, &mockCheckpointer{}, nil)

	path := writeBundle(t, "```\noperation: CREATE\nfile_path: /new.txt\n```\n```\nn\n```\n"+
		"```\noperation: MODIFY\nfile_path: /mod.txt\n```\n```\nm\n```\n"+
		"```\noperation: DELETE\nfile_path: /del.txt\n```\n")
	result, err := applier.Apply(path, "")
	require.NoError(t, err)

	assert.Equal(t, 3, result.AppliedCount)
	assert.Equal(t, []string{"write /new.txt", "write /mod.txt", "delete /del.txt"}, repo.calls)
}

func TestApplyExistencePolicy(t *testing.T) {
	t.Run("CreateConflictsWithExisting", func(t *testing.T) {
		repo := newMockRepo()
		repo.files["/exists.txt"] = []byte("here")
		cps := &mockCheckpointer{}
		applier := NewApplier(repo, cps, nil)

		cs := bundle.Parse([]byte("```\noperation: CREATE\nfile_path: /exists.txt\n```\n```\nx\n```\n"), "b")
		_, err := applier.ApplyBundle(cs, "")

		var conflict *errors.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "/exists.txt", conflict.Path)
		assert.Len(t, cps.restored, 1)
	})

	t.Run("ModifyRequiresExisting", func(t *testing.T) {
		applier := NewApplier(newMockRepo(), &mockCheckpointer{}, nil)

		cs := bundle.Parse([]byte("```\noperation: MODIFY\nfile_path: /absent.txt\n```\n```\nx\n```\n"), "b")
		_, err := applier.ApplyBundle(cs, "")

		var notFound *errors.NotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("DeleteOfMissingPathCounts", func(t *testing.T) {
		repo := newMockRepo()
		applier := NewApplier(repo, &mockCheckpointer{}, nil)

		cs := bundle.Parse([]byte("```\noperation: DELETE\nfile_path: /ghost.txt\n```\n"), "b")
		result, err := applier.ApplyBundle(cs, "")
		require.NoError(t, err)
		assert.Equal(t, 1, result.AppliedCount)
	})
}

func TestApplyCheckpointFailurePropagates(t *testing.T) {
	repo := newMockRepo()
	cps := &mockCheckpointer{createErr: &errors.CheckpointError{Err: fmt.Errorf("db closed")}}
	applier := NewApplier(repo, cps, nil)

	cs := bundle.Parse([]byte("```\noperation: DELETE\nfile_path: /x\n```\n"), "b")
	_, err := applier.ApplyBundle(cs, "")

	// Propagated unchanged: no apply attempted, no rollback needed.
	var cpErr *errors.CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.Empty(t, repo.calls)
	assert.Empty(t, cps.restored)
}

// flakyRepo passes through to a real repo but fails the nth write. Used to
// prove atomicity against the real store, not just the mocks.
type flakyRepo struct {
	*vfs.Repo
	failAt int
	writes int
}

func (f *flakyRepo) Write(path string, data []byte) (string, error) {
	f.writes++
	if f.writes == f.failAt {
		return "", errors.Storage("write", path, fmt.Errorf("injected failure"))
	}
	return f.Repo.Write(path, data)
}

func setupRealStore(t *testing.T) (*vfs.Repo, *vfs.Manager) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := content.NewBlobStore(db, content.Options{Root: t.TempDir()})
	require.NoError(t, err)

	repo := vfs.NewRepo(db, blobs, nil)
	return repo, vfs.NewManager(db, repo, nil)
}

func TestApplyAtomicityEndToEnd(t *testing.T) {
	repo, manager := setupRealStore(t)

	_, err := repo.Write("/keep.txt", []byte("original"))
	require.NoError(t, err)
	_, err = repo.Write("/victim.txt", []byte("survives rollback"))
	require.NoError(t, err)

	// The applier issues two writes (modify, then create); fail the second.
	flaky := &flakyRepo{Repo: repo, failAt: 2}
	applier := NewApplier(flaky, manager, nil)

	cs := bundle.Parse([]byte(
		"```\noperation: MODIFY\nfile_path: /keep.txt\n```\n```\nclobbered\n```\n"+
			"```\noperation: DELETE\nfile_path: /victim.txt\n```\n"+
			"```\noperation: CREATE\nfile_path: /new.txt\n```\n```\nnever lands\n```\n"), "atomic.dogs")

	_, err = applier.ApplyBundle(cs, "")
	var aborted *errors.BatchAbortedError
	require.ErrorAs(t, err, &aborted)

	// Every artifact reads exactly as it did before the apply started.
	data, found, err := repo.Read("/keep.txt")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "original", string(data))

	data, found, err = repo.Read("/victim.txt")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "survives rollback", string(data))

	_, found, err = repo.Read("/new.txt")
	require.NoError(t, err)
	assert.False(t, found)
}
