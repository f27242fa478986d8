package pcapstore

import (
	"bufio"
	"fmt"
	"io"

	"github.com/calvinalkan/pcapstore/pkg/fs"
)

// fileReader streams validated packets out of a single data file.
//
// Not safe for use in multiple goroutines.
type fileReader struct {
	fsys fs.FS
	path string
	file fs.File
	br   *bufio.Reader

	header FileHeader

	// offset is the byte position of the next packet header.
	offset int64

	maxPacketSize int

	// hdrBuf is decoding scratch reused across reads.
	hdrBuf [packetHeaderSize]byte
}

// openFileReader opens path and verifies its file header.
func openFileReader(fsys fs.FS, path string, cfg ReaderConfig) (*fileReader, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, wrapOpenError("open data file", path, err)
	}

	r := &fileReader{
		fsys:          fsys,
		path:          path,
		file:          file,
		br:            bufio.NewReaderSize(file, cfg.BufferSize),
		maxPacketSize: cfg.MaxPacketSize,
	}

	hdr := make([]byte, fileHeaderSize)

	n, err := io.ReadFull(r.br, hdr)
	if err != nil {
		_ = file.Close()

		return nil, newPathError(KindCorruptedHeader, "read file header", path, int64(n), err)
	}

	r.header, err = decodeFileHeader(hdr)
	if err != nil {
		_ = file.Close()

		return nil, attachPath(err, path, 0)
	}

	r.offset = fileHeaderSize

	return r, nil
}

// readPacket decodes the next packet.
//
// At EOF on a packet boundary it returns io.EOF. Structural corruption
// (truncated header or payload, oversized or malformed length fields) is a
// fatal error for this file. A CRC mismatch is not an error: the packet is
// delivered with IsValid=false and reading continues at the next boundary.
func (r *fileReader) readPacket() (ValidatedPacket, error) {
	start := r.offset

	n, err := io.ReadFull(r.br, r.hdrBuf[:])
	if err == io.EOF {
		return ValidatedPacket{}, io.EOF
	}

	if err != nil {
		// Mid-header EOF or read failure: no packet boundary to resume at.
		return ValidatedPacket{}, truncationError("read packet header", r.path, start,
			packetHeaderSize, n, err)
	}

	hdr, err := decodePacketHeader(r.hdrBuf[:])
	if err != nil {
		return ValidatedPacket{}, attachPath(err, r.path, start)
	}

	if int64(hdr.Length) > int64(r.maxPacketSize) {
		return ValidatedPacket{}, newPathError(KindInvalidPacketSize, "read packet", r.path, start,
			fmt.Errorf("declared length %d exceeds limit %d", hdr.Length, r.maxPacketSize))
	}

	payload := make([]byte, hdr.Length)

	n, err = io.ReadFull(r.br, payload)
	if err != nil {
		return ValidatedPacket{}, truncationError("read packet payload", r.path,
			start+packetHeaderSize, int(hdr.Length), n, err)
	}

	r.offset = start + packetHeaderSize + int64(hdr.Length)

	return ValidatedPacket{
		Packet:  Packet{Time: packetTime(hdr), Payload: payload},
		IsValid: Checksum(payload) == hdr.Checksum,
	}, nil
}

// seekToByteOffset repositions the reader absolutely and clears decoding
// scratch. The offset must point at a packet header start; callers obtain
// offsets only from the index.
func (r *fileReader) seekToByteOffset(offset int64) error {
	if offset < fileHeaderSize {
		return newPathError(KindInvalidArgument, "seek", r.path, offset,
			fmt.Errorf("offset %d is inside the file header", offset))
	}

	_, err := r.file.Seek(offset, io.SeekStart)
	if err != nil {
		return newPathError(KindIO, "seek", r.path, offset, err)
	}

	r.br.Reset(r.file)
	r.offset = offset

	return nil
}

func (r *fileReader) close() error {
	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil

	if err != nil {
		return newPathError(KindIO, "close data file", r.path, -1, err)
	}

	return nil
}

// truncationError builds the KindPacketSizeExceeds error for a read that hit
// EOF before the declared byte count, or failed outright.
func truncationError(op, path string, pos int64, expected, got int, cause error) error {
	if cause == io.ErrUnexpectedEOF || cause == io.EOF {
		return newPathError(KindPacketSizeExceeds, op, path, pos,
			&SizeExceedsDetail{Expected: int64(expected), Remaining: int64(got)})
	}

	return newPathError(KindIO, op, path, pos, cause)
}

// attachPath fills positional context into a codec error.
func attachPath(err error, path string, pos int64) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}

	clone := *e
	clone.Path = path
	clone.Pos = pos

	return &clone
}
