package fsutil

import (
	"errors"
	"os"
)

// ErrLocked is returned by Lock when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// FileLock is an exclusive advisory lock on a file, released by Unlock.
type FileLock struct {
	f *os.File
}

// Lock acquires an exclusive, non-blocking lock on path, creating the file if
// needed. It returns ErrLocked if another process already holds it.
func Lock(path string) (*FileLock, error) {
	f, err := acquireFileLock(path)
	if err != nil {
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	return releaseFileLock(f)
}
