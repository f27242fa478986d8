package pcapstore

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// Writer appends packets to a dataset, rotating data files at the configured
// packet cap and persisting the sidecar index on finalize.
//
// A dataset accepts one writer at a time; the constructor takes an exclusive
// lock and a second writer fails with KindInvalidState. Not safe for use in
// multiple goroutines.
type Writer struct {
	fsys   fs.FS
	dir    string
	name   string
	cfg    WriterConfig
	logger *slog.Logger
	clock  func() time.Time

	lock   *datasetLock
	active *fileWriter

	totalWritten uint64
	finalized    bool
	closed       bool

	// indexEpochNs anchors the capture-time window for IndexFlushInterval.
	indexEpochNs   uint64
	haveIndexEpoch bool
	lastPacketNs   uint64
}

// NewWriter creates (or reuses) the dataset directory <baseDir>/<name> and
// locks it for writing. logger may be nil for silent operation.
//
// The caller must arrange for Close to run on every exit path:
//
//	w, err := pcapstore.NewWriter(fsys, base, "capture", cfg, nil)
//	if err != nil { ... }
//	defer w.Close()
func NewWriter(fsys fs.FS, baseDir, name string, cfg WriterConfig, logger *slog.Logger) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if name == "" {
		return nil, newError(KindInvalidArgument, "create writer", fmt.Errorf("dataset name is empty"))
	}

	dir := filepath.Join(baseDir, name)

	err := fsys.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, newPathError(KindIO, "create dataset dir", dir, -1, err)
	}

	lock, err := acquireDatasetLock(fsys, dir, name)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Writer{
		fsys:   fsys,
		dir:    dir,
		name:   name,
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		lock:   lock,
	}, nil
}

// DatasetDir returns the dataset directory path.
func (w *Writer) DatasetDir() string {
	return w.dir
}

// PacketsWritten returns the number of packets accepted so far.
func (w *Writer) PacketsWritten() uint64 {
	return w.totalWritten
}

// WritePacket appends one packet, rotating to a new data file when the
// active one is full. With AutoFlush set, the buffer is drained to the OS
// before returning.
func (w *Writer) WritePacket(p *Packet) error {
	err := w.writeOne(p)
	if err != nil {
		return err
	}

	if w.cfg.AutoFlush {
		return w.active.flush()
	}

	return nil
}

// WritePackets appends packets in order as a single buffered loop.
// Rotation is honored mid-batch. On failure the current packet is aborted
// and no further packets of the batch are written.
func (w *Writer) WritePackets(packets []*Packet) error {
	for _, p := range packets {
		err := w.writeOne(p)
		if err != nil {
			return err
		}
	}

	if w.cfg.AutoFlush && w.active != nil {
		return w.active.flush()
	}

	return nil
}

func (w *Writer) writeOne(p *Packet) error {
	if w.closed || w.finalized {
		return newError(KindInvalidState, "write packet", fmt.Errorf("writer is finalized"))
	}

	err := w.checkPacket(p)
	if err != nil {
		return err
	}

	if w.active == nil || w.active.count() >= uint64(w.cfg.MaxPacketsPerFile) {
		err = w.rotate(p.Time)
		if err != nil {
			return err
		}
	}

	err = w.active.writePacket(p)
	if err != nil {
		return err
	}

	w.totalWritten++
	w.lastPacketNs = p.TimestampNs()

	if !w.haveIndexEpoch {
		w.indexEpochNs = w.lastPacketNs
		w.haveIndexEpoch = true
	}

	return nil
}

func (w *Writer) checkPacket(p *Packet) error {
	if p == nil {
		return newError(KindInvalidArgument, "write packet", fmt.Errorf("packet is nil"))
	}

	if len(p.Payload) > w.cfg.MaxPacketSize {
		return newError(KindInvalidPacketSize, "write packet",
			fmt.Errorf("payload %d bytes exceeds limit %d", len(p.Payload), w.cfg.MaxPacketSize))
	}

	sec := p.Time.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return newError(KindInvalidArgument, "write packet",
			fmt.Errorf("capture time %v outside the representable range", p.Time))
	}

	return nil
}

// rotate finalizes the active file and opens a new one named after the
// incoming packet's capture time.
func (w *Writer) rotate(firstPacketTime time.Time) error {
	err := w.closeActive()
	if err != nil {
		return err
	}

	name := dataFileName(w.cfg.FileNamePrefix, firstPacketTime)

	fw, err := newFileWriter(w.fsys, filepath.Join(w.dir, name), w.cfg)
	if err != nil {
		return err
	}

	w.active = fw
	w.logger.Debug("opened data file", "dataset", w.name, "file", name)

	return nil
}

// closeActive finalizes the active file writer and, when the configured
// capture-time window has elapsed, re-persists the index.
func (w *Writer) closeActive() error {
	if w.active == nil {
		return nil
	}

	err := w.active.finalize()
	w.active = nil

	if err != nil {
		return err
	}

	if w.cfg.IndexFlushInterval > 0 && w.haveIndexEpoch &&
		w.lastPacketNs-w.indexEpochNs >= uint64(w.cfg.IndexFlushInterval.Nanoseconds()) {
		err = w.saveIndex()
		if err != nil {
			return err
		}

		w.indexEpochNs = w.lastPacketNs
	}

	return nil
}

// Flush drains the active file's buffer to the OS. No fsync is issued;
// durability comes from Finalize.
func (w *Writer) Flush() error {
	if w.closed || w.finalized {
		return newError(KindInvalidState, "flush", fmt.Errorf("writer is finalized"))
	}

	if w.active == nil {
		return nil
	}

	return w.active.flush()
}

// Finalize closes the active data file and writes the sidecar index.
// It is idempotent: repeat calls after a success are no-ops, so the sidecar
// bytes are unchanged.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}

	if w.closed {
		return newError(KindInvalidState, "finalize", fmt.Errorf("writer is closed"))
	}

	err := w.closeActive()
	if err != nil {
		return err
	}

	err = w.saveIndex()
	if err != nil {
		return err
	}

	w.finalized = true
	w.logger.Info("dataset finalized", "dataset", w.name, "packets", w.totalWritten)

	return nil
}

// saveIndex rebuilds the index from the directory and persists it.
func (w *Writer) saveIndex() error {
	ix, err := BuildIndex(w.fsys, w.dir, w.name, w.clock)
	if err != nil {
		return err
	}

	return ix.Save(w.fsys, filepath.Join(w.dir, indexFileName(w.name)))
}

// Close finalizes (if not already done) and releases the writer lock.
// Safe to call multiple times and from a defer alongside an explicit
// Finalize.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	finalizeErr := w.Finalize()

	w.closed = true

	releaseErr := w.lock.release(w.fsys)

	if finalizeErr != nil {
		return finalizeErr
	}

	return releaseErr
}
