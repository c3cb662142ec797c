package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		result := Compare([]byte("a\nb\n"), []byte("a\nb\n"))
		assert.False(t, result.Changed())
	})

	t.Run("AddAndRemove", func(t *testing.T) {
		result := Compare([]byte("one\ntwo\nthree\n"), []byte("one\n2\nthree\n"))
		assert.Equal(t, 1, result.Additions)
		assert.Equal(t, 1, result.Deletions)
	})

	t.Run("AgainstEmpty", func(t *testing.T) {
		result := Compare(nil, []byte("new\nfile\n"))
		assert.Equal(t, 2, result.Additions)
		assert.Equal(t, 0, result.Deletions)
	})

	t.Run("Format", func(t *testing.T) {
		result := Compare([]byte("old\n"), []byte("new\n"))
		out := result.Format()
		assert.Contains(t, out, "- old")
		assert.Contains(t, out, "+ new")
	})
}
