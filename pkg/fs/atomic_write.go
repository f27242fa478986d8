package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// tmpSuffix is appended to the target name for the staging file.
const tmpSuffix = ".tmp"

// ErrDirSync reports that the parent directory could not be synced after
// the rename. The new file is in place, but the rename itself is not yet
// guaranteed to survive a crash. Detect with errors.Is(err, ErrDirSync).
var ErrDirSync = errors.New("fs: dir sync")

// WriteFileAtomic replaces path with data, atomically and durably.
//
// The sequence is the sidecar-index discipline: write everything to
// path+".tmp", fsync it, rename it over path, then fsync the parent
// directory. Readers therefore only ever observe the old file or the
// complete new one, never a partial write. A staging file left behind by a
// crashed earlier attempt is silently overwritten.
func WriteFileAtomic(fsys FS, path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("fs: path is empty")
	}

	tmpPath := path + tmpSuffix

	tmp, err := fsys.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("fs: create staging file %q: %w", tmpPath, err)
	}

	err = writeAll(tmp, data)
	if err == nil {
		err = tmp.Sync()
		if err != nil {
			err = fmt.Errorf("fs: sync staging file %q: %w", tmpPath, err)
		}
	}

	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("fs: close staging file %q: %w", tmpPath, closeErr)
	}

	if err != nil {
		_ = fsys.Remove(tmpPath)
		return err
	}

	err = fsys.Rename(tmpPath, path)
	if err != nil {
		_ = fsys.Remove(tmpPath)
		return fmt.Errorf("fs: rename %q over %q: %w", tmpPath, path, err)
	}

	return syncDir(fsys, filepath.Dir(path))
}

// writeAll writes data fully to the staging file.
func writeAll(file File, data []byte) error {
	// The io.Writer contract guarantees a non-nil error on a short write.
	_, err := file.Write(data)
	if err != nil {
		return fmt.Errorf("fs: write staging file: %w", err)
	}

	return nil
}

// syncDir fsyncs a directory so a completed rename in it is durable.
func syncDir(fsys FS, dir string) error {
	handle, err := fsys.Open(dir)
	if err != nil {
		return fmt.Errorf("%w: open %q: %w", ErrDirSync, dir, err)
	}

	syncErr := handle.Sync()
	closeErr := handle.Close()

	if syncErr != nil {
		return fmt.Errorf("%w: %q: %w", ErrDirSync, dir, syncErr)
	}

	if closeErr != nil {
		return fmt.Errorf("%w: close %q: %w", ErrDirSync, dir, closeErr)
	}

	return nil
}
