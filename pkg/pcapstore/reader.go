package pcapstore

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// Reader stitches a dataset's ordered data files into one logical packet
// stream with index-backed random access.
//
// Multiple independent readers may operate on the same dataset concurrently;
// a single Reader is not safe for use in multiple goroutines.
type Reader struct {
	fsys   fs.FS
	dir    string
	name   string
	cfg    ReaderConfig
	logger *slog.Logger
	clock  func() time.Time

	index *Index
	files []string

	active     *fileReader
	activeFile int

	// position is the global packet index: packets delivered since the
	// start of the stream, valid and invalid alike.
	position uint64

	eof    bool
	closed bool

	// fileInfo caches per-file metadata and packet locations, keyed by
	// file name. Entries are dropped when the file's size or mtime no
	// longer match.
	fileInfo *lru.Cache[string, fileInfo]
}

// fileInfo is one cached entry of the reader's private file cache.
type fileInfo struct {
	size    int64
	modTime time.Time
	packets []IndexPacket
}

// OpenReader opens the dataset <baseDir>/<name> for reading.
//
// Initialization scans the directory, loads and validates the sidecar index
// (rebuilding it when absent or invalid), and opens the first data file.
// logger may be nil for silent operation.
func OpenReader(fsys fs.FS, baseDir, name string, cfg ReaderConfig, logger *slog.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if name == "" {
		return nil, newError(KindInvalidArgument, "open reader", fmt.Errorf("dataset name is empty"))
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dir := filepath.Join(baseDir, name)

	info, err := fsys.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, newPathError(KindDirectoryNotFound, "open reader", dir, -1, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	cache, err := lru.New[string, fileInfo](cfg.IndexCacheSize)
	if err != nil {
		return nil, newError(KindInvalidArgument, "open reader", err)
	}

	r := &Reader{
		fsys:       fsys,
		dir:        dir,
		name:       name,
		cfg:        cfg,
		logger:     logger,
		clock:      clock,
		activeFile: -1,
		fileInfo:   cache,
	}

	err = r.initialize()
	if err != nil {
		return nil, err
	}

	return r, nil
}

// initialize loads or rebuilds the index and positions the reader at the
// start of the stream.
func (r *Reader) initialize() error {
	files, err := scanDataFiles(r.fsys, r.dir)
	if err != nil {
		return err
	}

	r.files = files

	indexPath := filepath.Join(r.dir, indexFileName(r.name))

	ix, loadErr := LoadIndex(r.fsys, indexPath)
	if loadErr == nil {
		valid, validateErr := ix.Validate(r.fsys, r.dir)
		if validateErr != nil {
			return validateErr
		}

		if !valid {
			r.logger.Info("index is stale, rebuilding", "dataset", r.name)
			ix = nil
		}
	} else if ErrorKind(loadErr) != KindFileNotFound && ErrorKind(loadErr) != KindSerialization {
		return loadErr
	}

	if ix == nil || loadErr != nil {
		ix, err = r.rebuildIndex(indexPath)
		if err != nil {
			return err
		}
	}

	r.index = ix

	return r.Reset()
}

// rebuildIndex regenerates the sidecar from the directory contents.
func (r *Reader) rebuildIndex(indexPath string) (*Index, error) {
	ix, err := BuildIndex(r.fsys, r.dir, r.name, r.clock)
	if err != nil {
		return nil, err
	}

	err = ix.Save(r.fsys, indexPath)
	if err != nil {
		return nil, err
	}

	r.logger.Info("index rebuilt", "dataset", r.name, "packets", ix.TotalPackets)

	return ix, nil
}

// RebuildIndex discards the in-memory index, rebuilds it from the directory
// and persists the new sidecar. The read position is reset to the start.
func (r *Reader) RebuildIndex() error {
	if r.closed {
		return newError(KindInvalidState, "rebuild index", fmt.Errorf("reader is closed"))
	}

	ix, err := r.rebuildIndex(filepath.Join(r.dir, indexFileName(r.name)))
	if err != nil {
		return err
	}

	files, err := scanDataFiles(r.fsys, r.dir)
	if err != nil {
		return err
	}

	r.index = ix
	r.files = files
	r.fileInfo.Purge()

	return r.Reset()
}

// Index returns the loaded index. The returned value is shared; callers
// must treat it as read-only.
func (r *Reader) Index() *Index {
	return r.index
}

// FileCount returns the number of data files in the dataset.
func (r *Reader) FileCount() int {
	return len(r.files)
}

// TotalPackets returns the dataset packet count from the index.
func (r *Reader) TotalPackets() uint64 {
	return r.index.TotalPackets
}

// CurrentPacketIndex returns the global index of the next packet to be read.
func (r *Reader) CurrentPacketIndex() uint64 {
	return r.position
}

// IsEOF reports whether the stream is exhausted.
func (r *Reader) IsEOF() bool {
	return r.eof
}

// Progress returns the fraction of the stream consumed so far.
// The second result is false when the dataset is empty.
func (r *Reader) Progress() (float64, bool) {
	if r.index.TotalPackets == 0 {
		return 0, false
	}

	return float64(r.position) / float64(r.index.TotalPackets), true
}

// ReadPacket returns the next packet of the logical stream, advancing
// through data files as each is exhausted. At end of stream it returns
// io.EOF and sets the EOF flag. Checksum corruption is surfaced on the
// packet, not as an error; structural corruption is fatal for the stream.
func (r *Reader) ReadPacket() (ValidatedPacket, error) {
	if r.closed {
		return ValidatedPacket{}, newError(KindInvalidState, "read packet", fmt.Errorf("reader is closed"))
	}

	if r.eof {
		return ValidatedPacket{}, io.EOF
	}

	for {
		if r.active == nil {
			ok, err := r.advanceFile()
			if err != nil {
				return ValidatedPacket{}, err
			}

			if !ok {
				r.eof = true
				return ValidatedPacket{}, io.EOF
			}

			continue
		}

		pkt, err := r.active.readPacket()
		if err == io.EOF {
			closeErr := r.active.close()
			r.active = nil

			if closeErr != nil {
				return ValidatedPacket{}, closeErr
			}

			continue
		}

		if err != nil {
			return ValidatedPacket{}, err
		}

		r.position++

		return pkt, nil
	}
}

// advanceFile opens the next data file, skipping nothing. Returns false when
// no files remain.
func (r *Reader) advanceFile() (bool, error) {
	next := r.activeFile + 1
	if next >= len(r.files) {
		return false, nil
	}

	err := r.openFileAt(next)
	if err != nil {
		return false, err
	}

	return true, nil
}

// openFileAt replaces the active file reader with one for files[i].
func (r *Reader) openFileAt(i int) error {
	if r.active != nil {
		_ = r.active.close()
		r.active = nil
	}

	fr, err := openFileReader(r.fsys, filepath.Join(r.dir, r.files[i]), r.cfg)
	if err != nil {
		return err
	}

	r.active = fr
	r.activeFile = i

	return nil
}

// ReadPackets reads up to count packets, stopping early at end of stream.
// A short (or empty) result with a nil error means EOF was reached.
func (r *Reader) ReadPackets(count int) ([]ValidatedPacket, error) {
	if count < 0 {
		return nil, newError(KindInvalidArgument, "read packets", fmt.Errorf("count %d is negative", count))
	}

	packets := make([]ValidatedPacket, 0, count)

	for len(packets) < count {
		pkt, err := r.ReadPacket()
		if err == io.EOF {
			break
		}

		if err != nil {
			return packets, err
		}

		packets = append(packets, pkt)
	}

	return packets, nil
}

// ReadPacketData returns the next packet's payload only. The CRC is still
// computed; a packet that fails verification is returned all the same, with
// the validity bit dropped.
func (r *Reader) ReadPacketData() ([]byte, error) {
	pkt, err := r.ReadPacket()
	if err != nil {
		return nil, err
	}

	return pkt.Packet.Payload, nil
}

// ReadVerifiedPacket is the strict variant of ReadPacket: a stored CRC that
// does not match the payload is returned as a KindChecksumMismatch error
// instead of data. The stream still advances past the bad packet.
func (r *Reader) ReadVerifiedPacket() (*Packet, error) {
	pkt, err := r.ReadPacket()
	if err != nil {
		return nil, err
	}

	if !pkt.IsValid {
		return nil, newPathError(KindChecksumMismatch, "verify packet", r.dir, -1,
			fmt.Errorf("packet %d failed CRC verification", r.position-1))
	}

	p := pkt.Packet

	return &p, nil
}

// SeekToPacket positions the stream so the next read returns the k-th
// packet. k equal to the total positions at end of stream.
func (r *Reader) SeekToPacket(k uint64) error {
	if r.closed {
		return newError(KindInvalidState, "seek", fmt.Errorf("reader is closed"))
	}

	total := r.index.TotalPackets

	if k > total {
		return newError(KindInvalidArgument, "seek",
			fmt.Errorf("packet index %d beyond dataset total %d", k, total))
	}

	if k == total {
		if r.active != nil {
			_ = r.active.close()
			r.active = nil
		}

		r.activeFile = len(r.files) - 1
		r.position = total
		r.eof = true

		return nil
	}

	fileIdx, _, ok := r.index.packetLocation(k)
	if !ok {
		return newError(KindInvalidArgument, "seek", fmt.Errorf("packet index %d not in index", k))
	}

	info, err := r.fileInfoFor(fileIdx)
	if err != nil {
		return err
	}

	inFile := k - r.index.cumCounts[fileIdx]
	offset := info.packets[inFile].ByteOffset

	if r.active == nil || r.activeFile != fileIdx {
		err = r.openFileAt(fileIdx)
		if err != nil {
			return err
		}
	}

	err = r.active.seekToByteOffset(int64(offset))
	if err != nil {
		return err
	}

	r.position = k
	r.eof = false

	return nil
}

// SeekToTimestamp positions the stream at the packet with the smallest
// observed capture timestamp >= ns and returns that timestamp. When every
// observed timestamp is smaller than ns, the seek fails with
// KindInvalidArgument and the position is unchanged.
func (r *Reader) SeekToTimestamp(ns uint64) (uint64, error) {
	if r.closed {
		return 0, newError(KindInvalidState, "seek", fmt.Errorf("reader is closed"))
	}

	ts, info, ok := r.index.lowerBoundTimestamp(ns)
	if !ok {
		return 0, newError(KindInvalidArgument, "seek to timestamp",
			fmt.Errorf("no packet at or after timestamp %d", ns))
	}

	k, ok := r.index.globalIndexOf(info.fileIndex, info.byteOffset)
	if !ok {
		return 0, newError(KindCorruptedData, "seek to timestamp",
			fmt.Errorf("timestamp table points outside the file table"))
	}

	err := r.SeekToPacket(k)
	if err != nil {
		return 0, err
	}

	return ts, nil
}

// SkipPackets advances past up to n packets without decoding them and
// returns the number actually skipped, which is smaller than n only at end
// of stream.
func (r *Reader) SkipPackets(n uint64) (uint64, error) {
	if r.closed {
		return 0, newError(KindInvalidState, "skip", fmt.Errorf("reader is closed"))
	}

	target := r.position + n
	if target > r.index.TotalPackets || target < r.position {
		target = r.index.TotalPackets
	}

	skipped := target - r.position

	err := r.SeekToPacket(target)
	if err != nil {
		return 0, err
	}

	return skipped, nil
}

// Reset rewinds the stream to the first packet.
func (r *Reader) Reset() error {
	if r.closed {
		return newError(KindInvalidState, "reset", fmt.Errorf("reader is closed"))
	}

	if r.index.TotalPackets == 0 {
		if r.active != nil {
			_ = r.active.close()
			r.active = nil
		}

		r.activeFile = -1
		r.position = 0
		r.eof = true

		return nil
	}

	err := r.SeekToPacket(0)
	if err != nil {
		return err
	}

	return nil
}

// fileInfoFor returns the cached metadata for files[i], refreshing the entry
// when the file's size or mtime changed since it was cached.
func (r *Reader) fileInfoFor(i int) (fileInfo, error) {
	name := r.files[i]
	path := filepath.Join(r.dir, name)

	stat, err := r.fsys.Stat(path)
	if err != nil {
		return fileInfo{}, wrapOpenError("stat data file", path, err)
	}

	cached, ok := r.fileInfo.Get(name)
	if ok && cached.size == stat.Size() && cached.modTime.Equal(stat.ModTime()) {
		return cached, nil
	}

	if ok {
		r.fileInfo.Remove(name)
	}

	entry := fileInfo{
		size:    stat.Size(),
		modTime: stat.ModTime(),
		packets: r.index.Files[i].Packets,
	}

	r.fileInfo.Add(name, entry)

	return entry, nil
}

// Close releases the active file handle and the cache. Safe to call
// multiple times.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	r.fileInfo.Purge()

	if r.active == nil {
		return nil
	}

	err := r.active.close()
	r.active = nil

	return err
}
