package pcapstore

import (
	"bufio"
	"fmt"
	"os"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// fileWriter appends packets to a single data file.
//
// The file header is emitted by the first packet write, never repeated.
// Not safe for use in multiple goroutines.
type fileWriter struct {
	fsys fs.FS
	path string
	file fs.File
	bw   *bufio.Writer

	maxPacketSize int

	headerWritten bool
	packetCount   uint64

	// err is sticky: after any write failure the buffered state is
	// unreliable and every further write fails with the same error.
	err error

	hdrBuf [packetHeaderSize]byte
}

// newFileWriter creates path exclusively. Creation fails if the file exists,
// so rotation can never silently truncate captured data.
func newFileWriter(fsys fs.FS, path string, cfg WriterConfig) (*fileWriter, error) {
	file, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, newPathError(KindIO, "create data file", path, -1, err)
	}

	return &fileWriter{
		fsys:          fsys,
		path:          path,
		file:          file,
		bw:            bufio.NewWriterSize(file, cfg.BufferSize),
		maxPacketSize: cfg.MaxPacketSize,
	}, nil
}

// writePacket appends one packet. The caller has already validated the
// payload size and timestamp range.
func (w *fileWriter) writePacket(p *Packet) error {
	if w.err != nil {
		return w.err
	}

	if !w.headerWritten {
		_, err := w.bw.Write(encodeFileHeader(newFileHeader()))
		if err != nil {
			return w.fail("write file header", err)
		}

		w.headerWritten = true
	}

	encodePacketHeader(w.hdrBuf[:], p.header())

	_, err := w.bw.Write(w.hdrBuf[:])
	if err != nil {
		return w.fail("write packet header", err)
	}

	_, err = w.bw.Write(p.Payload)
	if err != nil {
		return w.fail("write packet payload", err)
	}

	w.packetCount++

	return nil
}

// count returns the number of packets written so far.
func (w *fileWriter) count() uint64 {
	return w.packetCount
}

// flush drains the buffer to the OS. No fsync is issued.
func (w *fileWriter) flush() error {
	if w.err != nil {
		return w.err
	}

	err := w.bw.Flush()
	if err != nil {
		return w.fail("flush", err)
	}

	return nil
}

// finalize flushes, fsyncs and closes the file.
func (w *fileWriter) finalize() error {
	if w.file == nil {
		return nil
	}

	flushErr := w.flush()

	var syncErr error
	if flushErr == nil {
		syncErr = w.file.Sync()
	}

	closeErr := w.file.Close()
	w.file = nil

	if flushErr != nil {
		return flushErr
	}

	if syncErr != nil {
		return newPathError(KindIO, "sync data file", w.path, -1, syncErr)
	}

	if closeErr != nil {
		return newPathError(KindIO, "close data file", w.path, -1, closeErr)
	}

	return nil
}

// fail records a sticky write error. A partially written packet may remain
// in the file; the index build treats it as end-of-file.
func (w *fileWriter) fail(op string, cause error) error {
	w.err = newPathError(KindIO, op, w.path, -1, fmt.Errorf("write aborted: %w", cause))
	return w.err
}
