package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

func Test_Real_Stat_Returns_NotExist_When_Path_Is_Missing(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()

	_, err := fsys.Stat(filepath.Join(t.TempDir(), "missing.pcap"))

	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want os.IsNotExist", err)
	}
}

func Test_Real_OpenFile_Fails_With_Excl_When_File_Exists(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	path := filepath.Join(t.TempDir(), "data.pcap")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)

	if !os.IsExist(err) {
		t.Fatalf("err = %v, want os.IsExist", err)
	}
}

func Test_Real_ReadDir_Returns_Entries_Sorted_When_Dir_Is_Populated(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	dir := t.TempDir()

	for _, name := range []string{"b.pcap", "a.pcap", "c.pidx"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	want := []string{"a.pcap", "b.pcap", "c.pidx"}
	if len(entries) != len(want) {
		t.Fatalf("entry count = %d, want %d", len(entries), len(want))
	}

	for i, e := range entries {
		if e.Name() != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Name(), want[i])
		}
	}
}

func Test_Real_Rename_Replaces_Target_When_Target_Exists(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "set.pidx.tmp")
	newPath := filepath.Join(dir, "set.pidx")

	if err := os.WriteFile(oldPath, []byte("new"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := os.WriteFile(newPath, []byte("old"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := fsys.Rename(oldPath, newPath); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, err := fsys.ReadFile(newPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "new" {
		t.Fatalf("contents = %q, want %q", got, "new")
	}
}
