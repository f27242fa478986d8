// Package fs is the small filesystem seam pcapstore reads and writes
// through.
//
// Dataset readers, writers and the index manager never touch the [os]
// package directly; they take an [FS] so tests can substitute failing or
// in-memory filesystems. [Real] is the production implementation and
// [WriteFileAtomic] is the durable whole-file replacement used for the
// sidecar index.
package fs

import (
	"io"
	"os"
)

// File is an open OS-backed file. [os.File] satisfies it.
//
// The surface is exactly what pcapstore needs from a handle: streaming
// reads and writes, absolute seeks for index-directed repositioning, Sync
// for finalize durability, Stat for size/mtime checks, and Fd so the
// dataset writer lock can flock(2) the descriptor. Fd must stay valid until
// Close.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the OS file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the file's info. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to stable storage. See [os.File.Sync].
	Sync() error
}

// FS is the set of filesystem operations pcapstore performs.
//
// Methods mirror their [os] equivalents, including error values, so
// callers can keep classifying failures with os.IsNotExist and friends.
// Paths use OS semantics (path/filepath), not io/fs slash paths.
//
// Implementations must be safe for concurrent use: independent readers of
// one dataset share a single FS value.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with explicit flags and permissions. See
	// [os.OpenFile]. Data files are created with os.O_EXCL so rotation can
	// never silently truncate captured packets.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads a whole file into memory. See [os.ReadFile].
	// Used for the sidecar index, which is small; packet data is streamed
	// through Open instead.
	ReadFile(path string) ([]byte, error)

	// ReadDir lists a directory sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and any missing parents. See
	// [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info, with [os.ErrNotExist] for missing paths.
	// See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error

	// Rename replaces newpath with oldpath. See [os.Rename]. Atomic on a
	// single filesystem, which is what [WriteFileAtomic] relies on.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
