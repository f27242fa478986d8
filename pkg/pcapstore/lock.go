package pcapstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// datasetLock is the single-writer guard for a dataset directory.
//
// The lock is an flock(2) on <dataset>.lock held for the writer's lifetime.
// The file body carries a uuid token so a stale lock can be told apart from
// a live one when debugging; the flock itself is what enforces exclusivity.
type datasetLock struct {
	path  string
	file  fs.File
	token string
}

// acquireDatasetLock takes the exclusive writer lock, failing fast when
// another writer holds it.
func acquireDatasetLock(fsys fs.FS, dir, datasetName string) (*datasetLock, error) {
	path := filepath.Join(dir, lockFileName(datasetName))

	file, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, newPathError(KindIO, "open lock file", path, -1, err)
	}

	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if err == unix.EWOULDBLOCK {
			return nil, newPathError(KindInvalidState, "lock dataset", path, -1,
				fmt.Errorf("another writer is active"))
		}

		return nil, newPathError(KindIO, "lock dataset", path, -1, err)
	}

	token := uuid.NewString()

	_, err = file.Write([]byte(token + "\n"))
	if err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()

		return nil, newPathError(KindIO, "write lock token", path, -1, err)
	}

	return &datasetLock{path: path, file: file, token: token}, nil
}

// release drops the lock and removes the lock file.
// Order matters: remove while holding the lock, then unlock, then close.
func (l *datasetLock) release(fsys fs.FS) error {
	if l.file == nil {
		return nil
	}

	_ = fsys.Remove(l.path)
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)

	err := l.file.Close()
	l.file = nil

	if err != nil {
		return newPathError(KindIO, "release lock", l.path, -1, err)
	}

	return nil
}

// ownerToken reports the token written by the lock holder, for diagnostics.
func (l *datasetLock) ownerToken() string {
	return strings.TrimSpace(l.token)
}
