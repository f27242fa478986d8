package pcapstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

func Test_DatasetLock_Blocks_Second_Writer_When_Held(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := fs.NewReal()

	first, err := acquireDatasetLock(fsys, dir, "set")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = acquireDatasetLock(fsys, dir, "set")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second acquire err = %v, want ErrInvalidState", err)
	}

	if err := first.release(fsys); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := acquireDatasetLock(fsys, dir, "set")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}

	if second.ownerToken() == "" {
		t.Fatal("owner token is empty")
	}

	_ = second.release(fsys)
}

func Test_DatasetLock_Removes_Lock_File_When_Released(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := fs.NewReal()

	lock, err := acquireDatasetLock(fsys, dir, "set")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	path := filepath.Join(dir, "set.lock")

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing while held: %v", err)
	}

	if err := lock.release(fsys); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("lock file still present after release: %v", err)
	}
}
