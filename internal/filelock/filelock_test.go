package filelock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.NoError(t, Lock(f))
	require.NoError(t, Unlock(f))
}

func TestLockSerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared")

	const writers = 20
	const line = "0123456789abcdef0123456789abcdef\n"

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				t.Error(err)
				return
			}
			defer func() { _ = f.Close() }()

			if err := Lock(f); err != nil {
				t.Error(err)
				return
			}
			defer func() { _ = Unlock(f) }()

			if _, err := f.WriteString(line); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, writers*len(line))
}

func TestLockErrorNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Locking a closed descriptor fails at the OS level.
	err = Lock(f)
	require.Error(t, err)

	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, path, lockErr.Path)
	assert.Equal(t, "lock", lockErr.Op)
}
