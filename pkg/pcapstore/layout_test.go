package pcapstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

func Test_DataFileName_Derives_From_First_Packet_Time_When_Generated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		ts     time.Time
		want   string
	}{
		{
			name:   "whole second",
			prefix: "data",
			ts:     time.Unix(1701432000, 0),
			want:   "data_20231201_120000_000000000.pcap",
		},
		{
			name:   "nanosecond suffix",
			prefix: "data",
			ts:     time.Unix(1701432000, 999_999_999),
			want:   "data_20231201_120000_999999999.pcap",
		},
		{
			name:   "custom prefix",
			prefix: "capture",
			ts:     time.Unix(0, 1),
			want:   "capture_19700101_000000_000000001.pcap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := dataFileName(tt.prefix, tt.ts); got != tt.want {
				t.Fatalf("dataFileName = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_DataFileName_Orders_Lexicographically_When_Times_Increase(t *testing.T) {
	t.Parallel()

	times := []time.Time{
		time.Unix(1701432000, 0),
		time.Unix(1701432000, 1),
		time.Unix(1701432000, 999_999_999),
		time.Unix(1701432001, 0),
		time.Unix(1735689600, 500),
	}

	for i := 1; i < len(times); i++ {
		prev := dataFileName("data", times[i-1])
		next := dataFileName("data", times[i])

		if prev >= next {
			t.Fatalf("names out of order: %q >= %q", prev, next)
		}
	}
}

func Test_ValidateFilePrefix_Rejects_Path_Escapes_When_Checked(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"a/b", `a\b`, ".."} {
		if err := validateFilePrefix(bad); err == nil {
			t.Fatalf("prefix %q accepted, want error", bad)
		}
	}

	if err := validateFilePrefix("capture-1"); err != nil {
		t.Fatalf("prefix rejected: %v", err)
	}
}

func Test_ScanDataFiles_Returns_Sorted_Data_Files_When_Dir_Is_Mixed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, name := range []string{
		"data_20231201_120001_000000000.pcap",
		"data_20231201_120000_000000000.pcap",
		"set.pidx",
		"set.lock",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	if err := os.Mkdir(filepath.Join(dir, "sub.pcap"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := scanDataFiles(fs.NewReal(), dir)
	if err != nil {
		t.Fatalf("scanDataFiles: %v", err)
	}

	want := []string{
		"data_20231201_120000_000000000.pcap",
		"data_20231201_120001_000000000.pcap",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("file list mismatch (-want +got):\n%s", diff)
	}
}
