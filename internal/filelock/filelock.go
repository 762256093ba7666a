// Package filelock provides an advisory, exclusive, cross-platform lock on
// an open file. It is used to keep concurrent readers and writers of a
// shared transport file from interleaving partial records.
//
// The lock is advisory: it only binds cooperating processes that also take
// the lock. Acquisition never retries internally; callers are expected to
// release in a deferred call so the lock is dropped on any exit path.
package filelock

import (
	"fmt"
	"os"
)

// LockError reports a failed lock or unlock system call.
type LockError struct {
	Path string
	Op   string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("filelock: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// Lock acquires an exclusive advisory lock on f, blocking until the lock
// is available.
func Lock(f *os.File) error {
	if err := lock(f); err != nil {
		return &LockError{Path: f.Name(), Op: "lock", Err: err}
	}
	return nil
}

// Unlock releases the lock held on f.
func Unlock(f *os.File) error {
	if err := unlock(f); err != nil {
		return &LockError{Path: f.Name(), Op: "unlock", Err: err}
	}
	return nil
}
