package filelock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first := NewFileLock(path)
	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	second := NewFileLock(path)
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired, "second holder must be rejected")

	require.NoError(t, first.Unlock())

	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired, "lock is free after release")
	require.NoError(t, second.Unlock())
}

func TestLockBlocksUntilAvailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	lock := NewFileLock(path)
	require.NoError(t, lock.Lock())
	assert.Equal(t, path, lock.Path())
	require.NoError(t, lock.Unlock())
}
