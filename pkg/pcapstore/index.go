package pcapstore

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// indexVersion is the sidecar schema version.
const indexVersion = "1.0"

// hashPrefix tags the digest algorithm in file_hash values.
const hashPrefix = "sha256:"

// Index is the sidecar index of a dataset: per-file statistics plus a
// timestamp table mapping capture times to physical packet locations.
//
// The exported fields mirror the XML sidecar schema exactly. Lookup state is
// derived and rebuilt after load; it is never serialized.
type Index struct {
	XMLName        xml.Name    `xml:"pidx_index"`
	Version        string      `xml:"version"`
	Description    string      `xml:"description"`
	CreatedTime    string      `xml:"created_time"`
	StartTimestamp uint64      `xml:"start_timestamp"`
	EndTimestamp   uint64      `xml:"end_timestamp"`
	TotalPackets   uint64      `xml:"total_packets"`
	TotalDuration  uint64      `xml:"total_duration"`
	Files          []IndexFile `xml:"files>file"`

	// byTimestamp resolves exact timestamp hits in O(1).
	byTimestamp map[uint64]seekInfo

	// sortedTs is the ordered view of byTimestamp keys for O(log n)
	// lower-bound search.
	sortedTs []uint64

	// cumCounts[i] is the number of packets in files before index i;
	// the final entry is the dataset total.
	cumCounts []uint64
}

// IndexFile is one file table entry.
type IndexFile struct {
	FileName       string        `xml:"file_name"`
	FileHash       string        `xml:"file_hash"`
	FileSize       uint64        `xml:"file_size"`
	PacketCount    uint64        `xml:"packet_count"`
	StartTimestamp uint64        `xml:"start_timestamp"`
	EndTimestamp   uint64        `xml:"end_timestamp"`
	Packets        []IndexPacket `xml:"packets>packet"`
}

// IndexPacket records one packet's location within its file.
// PacketSize is the full on-disk record size, header included.
type IndexPacket struct {
	TimestampNs uint64 `xml:"timestamp_ns"`
	ByteOffset  uint64 `xml:"byte_offset"`
	PacketSize  uint64 `xml:"packet_size"`
}

// seekInfo locates a packet for timestamp seeks.
type seekInfo struct {
	fileIndex  int
	byteOffset uint64
	packetSize uint64
}

// BuildIndex scans every data file in dir, in name order, and constructs a
// fresh index. Packets are checked structurally only; CRC verification is
// skipped. A trailing partial packet in a file is treated as end-of-file for
// that file and does not appear in the index.
//
// now supplies the created_time metadata; nil means time.Now.
func BuildIndex(fsys fs.FS, dir, datasetName string, now func() time.Time) (*Index, error) {
	if now == nil {
		now = time.Now
	}

	names, err := scanDataFiles(fsys, dir)
	if err != nil {
		return nil, err
	}

	ix := &Index{
		Version:     indexVersion,
		Description: fmt.Sprintf("packet index for dataset %q", datasetName),
		CreatedTime: now().UTC().Format(time.RFC3339),
	}

	for _, name := range names {
		entry, err := scanFileForIndex(fsys, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		entry.FileName = name
		ix.Files = append(ix.Files, entry)
	}

	ix.recomputeTotals()
	ix.buildLookups()

	return ix, nil
}

// scanFileForIndex streams one file, recording packet locations and hashing
// every byte of the file, trailing garbage included.
func scanFileForIndex(fsys fs.FS, path string) (IndexFile, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return IndexFile{}, wrapOpenError("index data file", path, err)
	}

	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return IndexFile{}, newPathError(KindIO, "stat data file", path, -1, err)
	}

	hasher := sha256.New()
	br := bufio.NewReader(io.TeeReader(file, hasher))

	entry := IndexFile{FileSize: uint64(info.Size())}

	hdr := make([]byte, fileHeaderSize)

	_, err = io.ReadFull(br, hdr)
	if err != nil {
		// A file too short for even the header is structurally corrupt.
		return IndexFile{}, newPathError(KindCorruptedHeader, "read file header", path, 0, err)
	}

	_, err = decodeFileHeader(hdr)
	if err != nil {
		return IndexFile{}, attachPath(err, path, 0)
	}

	offset := int64(fileHeaderSize)
	pktHdr := make([]byte, packetHeaderSize)

	for {
		_, readErr := io.ReadFull(br, pktHdr)
		if readErr == io.EOF {
			break
		}

		if readErr == io.ErrUnexpectedEOF {
			// Truncated trailing header: end of indexable data.
			break
		}

		if readErr != nil {
			return IndexFile{}, newPathError(KindIO, "read packet header", path, offset, readErr)
		}

		h, decodeErr := decodePacketHeader(pktHdr)
		if decodeErr != nil {
			return IndexFile{}, attachPath(decodeErr, path, offset)
		}

		skipped, discardErr := br.Discard(int(h.Length))
		if discardErr == io.EOF || skipped < int(h.Length) {
			// Truncated trailing payload: end of indexable data.
			break
		}

		if discardErr != nil {
			return IndexFile{}, newPathError(KindIO, "skip packet payload", path, offset, discardErr)
		}

		ts := h.timestampNs()
		if entry.PacketCount == 0 {
			entry.StartTimestamp = ts
		}

		entry.EndTimestamp = ts
		entry.Packets = append(entry.Packets, IndexPacket{
			TimestampNs: ts,
			ByteOffset:  uint64(offset),
			PacketSize:  packetHeaderSize + uint64(h.Length),
		})
		entry.PacketCount++
		offset += packetHeaderSize + int64(h.Length)
	}

	// Pull any unconsumed bytes through the tee so the digest covers the
	// whole file exactly as it is on disk.
	_, err = io.Copy(io.Discard, br)
	if err != nil {
		return IndexFile{}, newPathError(KindIO, "hash data file", path, -1, err)
	}

	entry.FileHash = hashPrefix + hex.EncodeToString(hasher.Sum(nil))

	return entry, nil
}

// recomputeTotals derives the dataset-level aggregates from the file table.
func (ix *Index) recomputeTotals() {
	ix.TotalPackets = 0
	ix.StartTimestamp = 0
	ix.EndTimestamp = 0

	first := true

	for _, f := range ix.Files {
		ix.TotalPackets += f.PacketCount

		if f.PacketCount == 0 {
			continue
		}

		if first || f.StartTimestamp < ix.StartTimestamp {
			ix.StartTimestamp = f.StartTimestamp
		}

		if first || f.EndTimestamp > ix.EndTimestamp {
			ix.EndTimestamp = f.EndTimestamp
		}

		first = false
	}

	ix.TotalDuration = 0
	if ix.EndTimestamp > ix.StartTimestamp {
		ix.TotalDuration = ix.EndTimestamp - ix.StartTimestamp
	}
}

// buildLookups derives the timestamp table and the packet-count prefix sums.
// When two packets share a timestamp, the first encountered (earlier file,
// earlier offset) wins.
func (ix *Index) buildLookups() {
	ix.byTimestamp = make(map[uint64]seekInfo, ix.TotalPackets)
	ix.cumCounts = make([]uint64, len(ix.Files)+1)

	for i, f := range ix.Files {
		ix.cumCounts[i+1] = ix.cumCounts[i] + f.PacketCount

		for _, p := range f.Packets {
			if _, exists := ix.byTimestamp[p.TimestampNs]; exists {
				continue
			}

			ix.byTimestamp[p.TimestampNs] = seekInfo{
				fileIndex:  i,
				byteOffset: p.ByteOffset,
				packetSize: p.PacketSize,
			}
		}
	}

	ix.sortedTs = make([]uint64, 0, len(ix.byTimestamp))
	for ts := range ix.byTimestamp {
		ix.sortedTs = append(ix.sortedTs, ts)
	}

	sort.Slice(ix.sortedTs, func(a, b int) bool { return ix.sortedTs[a] < ix.sortedTs[b] })
}

// LoadIndex reads and parses a sidecar. The caller decides whether to
// Validate it against the directory afterwards.
func LoadIndex(fsys fs.FS, path string) (*Index, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, wrapOpenError("load index", path, err)
	}

	var ix Index

	err = xml.Unmarshal(data, &ix)
	if err != nil {
		return nil, newPathError(KindSerialization, "parse index", path, -1, err)
	}

	ix.buildLookups()

	return &ix, nil
}

// Save persists the index to path atomically: the sidecar is written to a
// temp file, fsynced, then renamed over path.
func (ix *Index) Save(fsys fs.FS, path string) error {
	body, err := xml.MarshalIndent(ix, "", "  ")
	if err != nil {
		return newPathError(KindSerialization, "encode index", path, -1, err)
	}

	var buf bytes.Buffer

	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')

	err = fs.WriteFileAtomic(fsys, path, buf.Bytes(), 0o644)
	if err != nil {
		return newPathError(KindIO, "save index", path, -1, err)
	}

	return nil
}

// Validate confirms the index still describes the directory: the data file
// listing is unchanged, and every file's size and SHA-256 digest match.
// Any mismatch, including a missing file, yields false without error;
// errors are reserved for I/O failures.
func (ix *Index) Validate(fsys fs.FS, dir string) (bool, error) {
	names, err := scanDataFiles(fsys, dir)
	if err != nil {
		return false, err
	}

	if len(names) != len(ix.Files) {
		return false, nil
	}

	for i, f := range ix.Files {
		if names[i] != f.FileName {
			return false, nil
		}

		path := filepath.Join(dir, f.FileName)

		info, statErr := fsys.Stat(path)
		if statErr != nil {
			return false, nil
		}

		if uint64(info.Size()) != f.FileSize {
			return false, nil
		}

		digest, hashErr := hashFile(fsys, path)
		if hashErr != nil {
			return false, hashErr
		}

		if digest != f.FileHash {
			return false, nil
		}
	}

	return true, nil
}

// hashFile computes the prefixed SHA-256 digest of a file's bytes.
func hashFile(fsys fs.FS, path string) (string, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return "", wrapOpenError("hash data file", path, err)
	}

	defer func() { _ = file.Close() }()

	hasher := sha256.New()

	_, err = io.Copy(hasher, file)
	if err != nil {
		return "", newPathError(KindIO, "hash data file", path, -1, err)
	}

	return hashPrefix + hex.EncodeToString(hasher.Sum(nil)), nil
}

// lowerBoundTimestamp finds the smallest observed timestamp >= ns.
// Exact hits resolve through the hash table in O(1); misses fall back to a
// binary search over the sorted keys.
func (ix *Index) lowerBoundTimestamp(ns uint64) (uint64, seekInfo, bool) {
	if info, ok := ix.byTimestamp[ns]; ok {
		return ns, info, true
	}

	i := sort.Search(len(ix.sortedTs), func(i int) bool { return ix.sortedTs[i] >= ns })
	if i == len(ix.sortedTs) {
		return 0, seekInfo{}, false
	}

	ts := ix.sortedTs[i]

	return ts, ix.byTimestamp[ts], true
}

// packetLocation resolves the k-th packet of the dataset to its file and
// in-file entry. The file search is a linear prefix-sum walk; file counts
// are expected to be tiny next to packet counts.
func (ix *Index) packetLocation(k uint64) (int, IndexPacket, bool) {
	if k >= ix.TotalPackets {
		return 0, IndexPacket{}, false
	}

	for i := range ix.Files {
		if k < ix.cumCounts[i+1] {
			return i, ix.Files[i].Packets[k-ix.cumCounts[i]], true
		}
	}

	return 0, IndexPacket{}, false
}

// globalIndexOf converts a (file, byte offset) location back to the packet's
// global position. The per-file packet table is ordered by offset, so this
// is a binary search.
func (ix *Index) globalIndexOf(fileIndex int, byteOffset uint64) (uint64, bool) {
	if fileIndex < 0 || fileIndex >= len(ix.Files) {
		return 0, false
	}

	packets := ix.Files[fileIndex].Packets

	i := sort.Search(len(packets), func(i int) bool { return packets[i].ByteOffset >= byteOffset })
	if i == len(packets) || packets[i].ByteOffset != byteOffset {
		return 0, false
	}

	return ix.cumCounts[fileIndex] + uint64(i), true
}
