package pcapstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// Dataset layout constants.
const (
	// DataFileExt is the extension of packet data files.
	DataFileExt = ".pcap"

	// IndexFileExt is the extension of the sidecar index.
	IndexFileExt = ".pidx"

	// defaultFilePrefix is the prefix of generated data file names.
	defaultFilePrefix = "data"

	// timestampLayout formats the second-resolution part of file names.
	timestampLayout = "20060102_150405"
)

// dataFileName derives the name of a data file from the capture time of its
// first packet: <prefix>_YYYYMMDD_HHMMSS_NNNNNNNNN<ext>. The nine-digit
// suffix is the nanosecond-of-second value, so lexicographic order equals
// capture-time order.
func dataFileName(prefix string, ts time.Time) string {
	utc := ts.UTC()

	return fmt.Sprintf("%s_%s_%09d%s", prefix, utc.Format(timestampLayout), utc.Nanosecond(), DataFileExt)
}

// validateFilePrefix rejects prefixes that would break the naming scheme or
// escape the dataset directory.
func validateFilePrefix(prefix string) error {
	if strings.ContainsAny(prefix, "/\\") {
		return fmt.Errorf("file name prefix %q contains a path separator", prefix)
	}

	if strings.Contains(prefix, "..") {
		return fmt.Errorf("file name prefix %q contains a parent reference", prefix)
	}

	return nil
}

// indexFileName returns the sidecar file name for a dataset.
func indexFileName(datasetName string) string {
	return datasetName + IndexFileExt
}

// lockFileName returns the writer lock file name for a dataset.
func lockFileName(datasetName string) string {
	return datasetName + ".lock"
}

// scanDataFiles lists the data file names in dir, sorted lexicographically.
// Only regular files with the data extension are returned; the sidecar index
// and lock files never match because they use different extensions.
func scanDataFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, newPathError(KindDirectoryNotFound, "scan dataset", dir, -1, err)
	}

	var names []string

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), DataFileExt) {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}
