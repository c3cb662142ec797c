package vfs

import (
	"testing"

	"dogs/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRestore(t *testing.T) {
	repo, manager := setupRepo(t)

	t.Run("RestoreRewindsModifiedArtifact", func(t *testing.T) {
		_, err := repo.Write("/file.txt", []byte("before"))
		require.NoError(t, err)

		cp, err := manager.Create("test")
		require.NoError(t, err)

		_, err = repo.Write("/file.txt", []byte("after"))
		require.NoError(t, err)
		_, err = repo.Write("/file.txt", []byte("after again"))
		require.NoError(t, err)

		require.NoError(t, manager.Restore(cp.ID))

		data, found, err := repo.Read("/file.txt")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("before"), data)
	})

	t.Run("RestoreResurrectsDeletedArtifact", func(t *testing.T) {
		_, err := repo.Write("/doomed.txt", []byte("keep me"))
		require.NoError(t, err)

		cp, err := manager.Create("pre-delete")
		require.NoError(t, err)

		_, err = repo.Delete("/doomed.txt")
		require.NoError(t, err)

		require.NoError(t, manager.Restore(cp.ID))

		data, found, err := repo.Read("/doomed.txt")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("keep me"), data)
	})

	t.Run("RestoreRemovesArtifactCreatedAfterCheckpoint", func(t *testing.T) {
		cp, err := manager.Create("pre-create")
		require.NoError(t, err)

		_, err = repo.Write("/newcomer.txt", []byte("should vanish"))
		require.NoError(t, err)

		require.NoError(t, manager.Restore(cp.ID))

		_, found, err := repo.Read("/newcomer.txt")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("RestoreIsIdempotentWhenNothingDiverged", func(t *testing.T) {
		_, err := repo.Write("/stable.txt", []byte("unchanged"))
		require.NoError(t, err)

		cp, err := manager.Create("noop")
		require.NoError(t, err)

		before, err := repo.History("/stable.txt")
		require.NoError(t, err)

		require.NoError(t, manager.Restore(cp.ID))

		// No compensating commit was needed.
		after, err := repo.History("/stable.txt")
		require.NoError(t, err)
		assert.Equal(t, len(before), len(after))
	})

	t.Run("UnknownCheckpoint", func(t *testing.T) {
		err := manager.Restore("no-such-checkpoint")
		var notFound *errors.CheckpointNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestCheckpointFrontier(t *testing.T) {
	repo, manager := setupRepo(t)

	_, err := repo.Write("/one.txt", []byte("1"))
	require.NoError(t, err)
	head, err := repo.Write("/two.txt", []byte("2"))
	require.NoError(t, err)

	cp, err := manager.Create("frontier")
	require.NoError(t, err)
	assert.Len(t, cp.Frontier, 2)
	assert.Equal(t, head, cp.Frontier["/two.txt"])

	t.Run("RetainedAndListed", func(t *testing.T) {
		later, err := manager.Create("second")
		require.NoError(t, err)

		checkpoints, err := manager.List()
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(checkpoints), 2)
		// Oldest first.
		assert.Equal(t, cp.ID, checkpoints[0].ID)
		assert.Equal(t, later.ID, checkpoints[len(checkpoints)-1].ID)
	})

	t.Run("GetRoundTrip", func(t *testing.T) {
		got, err := manager.Get(cp.ID)
		require.NoError(t, err)
		assert.Equal(t, cp.Label, got.Label)
		assert.Equal(t, cp.Frontier, got.Frontier)
	})
}

// The core invariant: restore(C) then read(A) returns exactly the
// content A had when C was created, no matter how many commits landed in
// between.
func TestCheckpointInvariant(t *testing.T) {
	repo, manager := setupRepo(t)

	states := map[string][]byte{
		"/a.txt": []byte("alpha v1"),
		"/b.txt": []byte("beta v1\nwith two lines\n"),
		"/c.bin": {0x00, 0x01, 0x02},
	}
	for path, data := range states {
		_, err := repo.Write(path, data)
		require.NoError(t, err)
	}

	cp, err := manager.Create("invariant")
	require.NoError(t, err)

	// Churn: modify, delete, re-create, and add paths.
	_, err = repo.Write("/a.txt", []byte("alpha v2"))
	require.NoError(t, err)
	_, err = repo.Delete("/b.txt")
	require.NoError(t, err)
	_, err = repo.Write("/b.txt", []byte("beta reborn"))
	require.NoError(t, err)
	_, err = repo.Write("/d.txt", []byte("new file"))
	require.NoError(t, err)

	require.NoError(t, manager.Restore(cp.ID))

	for path, want := range states {
		got, found, err := repo.Read(path)
		require.NoError(t, err)
		assert.True(t, found, path)
		assert.Equal(t, want, got, path)
	}
	_, found, err := repo.Read("/d.txt")
	require.NoError(t, err)
	assert.False(t, found)
}
