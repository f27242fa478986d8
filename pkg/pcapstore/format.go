package pcapstore

import (
	"encoding/binary"
	"hash/crc32"
)

// Container format constants. All multi-byte fields are little-endian
// regardless of host byte order.
const (
	// Magic bytes at the start of every data file.
	fileMagic = 0xD4C3B2A1

	// File format version.
	versionMajor = 0x0002
	versionMinor = 0x0004

	// Fixed header sizes in bytes.
	fileHeaderSize   = 16
	packetHeaderSize = 16

	// Upper bound for the nanosecond field of a packet header.
	maxNanoseconds = 999_999_999
)

// File header field offsets (bytes from file start).
const (
	offMagic    = 0x0 // uint32
	offMajor    = 0x4 // uint16
	offMinor    = 0x6 // uint16
	offTimezone = 0x8 // int32
	offAccuracy = 0xC // uint32
)

// Packet header field offsets (bytes from record start).
const (
	offSeconds  = 0x0 // uint32
	offNanos    = 0x4 // uint32
	offLength   = 0x8 // uint32
	offChecksum = 0xC // uint32
)

// FileHeader is the 16-byte header at offset 0 of every data file.
type FileHeader struct {
	Magic             uint32
	MajorVersion      uint16
	MinorVersion      uint16
	TimezoneOffset    int32  // signed seconds offset from UTC
	TimestampAccuracy uint32 // declared nanosecond precision
}

// newFileHeader returns a header with the current format constants,
// UTC timezone and nanosecond accuracy.
func newFileHeader() FileHeader {
	return FileHeader{
		Magic:             fileMagic,
		MajorVersion:      versionMajor,
		MinorVersion:      versionMinor,
		TimezoneOffset:    0,
		TimestampAccuracy: 1,
	}
}

// PacketHeader is the 16-byte header preceding every payload.
type PacketHeader struct {
	Seconds  uint32 // UTC seconds since epoch
	Nanos    uint32 // 0 <= Nanos < 1e9
	Length   uint32 // payload byte count
	Checksum uint32 // CRC32 of the payload only
}

// timestampNs returns the capture time as nanoseconds since epoch.
func (h PacketHeader) timestampNs() uint64 {
	return uint64(h.Seconds)*uint64(nanosPerSecond) + uint64(h.Nanos)
}

const nanosPerSecond = 1_000_000_000

// Checksum computes the CRC32 of payload using the standard polynomial
// 0xEDB88320 with initial value 0xFFFFFFFF and final XOR 0xFFFFFFFF.
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// encodeFileHeader serializes h into a fresh 16-byte slice.
func encodeFileHeader(h FileHeader) []byte {
	buf := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint16(buf[offMajor:], h.MajorVersion)
	binary.LittleEndian.PutUint16(buf[offMinor:], h.MinorVersion)
	binary.LittleEndian.PutUint32(buf[offTimezone:], uint32(h.TimezoneOffset))
	binary.LittleEndian.PutUint32(buf[offAccuracy:], h.TimestampAccuracy)

	return buf
}

// decodeFileHeader parses a file header from buf.
// Fails with KindCorruptedHeader if buf is truncated and KindInvalidFormat
// if the magic does not match.
func decodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < fileHeaderSize {
		return FileHeader{}, newError(KindCorruptedHeader, "decode file header", nil)
	}

	h := FileHeader{
		Magic:             binary.LittleEndian.Uint32(buf[offMagic:]),
		MajorVersion:      binary.LittleEndian.Uint16(buf[offMajor:]),
		MinorVersion:      binary.LittleEndian.Uint16(buf[offMinor:]),
		TimezoneOffset:    int32(binary.LittleEndian.Uint32(buf[offTimezone:])),
		TimestampAccuracy: binary.LittleEndian.Uint32(buf[offAccuracy:]),
	}

	if h.Magic != fileMagic {
		return FileHeader{}, newError(KindInvalidFormat, "decode file header", nil)
	}

	return h, nil
}

// encodePacketHeader serializes h into dst, which must hold at least 16 bytes.
func encodePacketHeader(dst []byte, h PacketHeader) {
	binary.LittleEndian.PutUint32(dst[offSeconds:], h.Seconds)
	binary.LittleEndian.PutUint32(dst[offNanos:], h.Nanos)
	binary.LittleEndian.PutUint32(dst[offLength:], h.Length)
	binary.LittleEndian.PutUint32(dst[offChecksum:], h.Checksum)
}

// decodePacketHeader parses a packet header from buf.
// Fails with KindCorruptedHeader if buf is truncated and KindTimestampParse
// if the nanosecond field is out of range.
func decodePacketHeader(buf []byte) (PacketHeader, error) {
	if len(buf) < packetHeaderSize {
		return PacketHeader{}, newError(KindCorruptedHeader, "decode packet header", nil)
	}

	h := PacketHeader{
		Seconds:  binary.LittleEndian.Uint32(buf[offSeconds:]),
		Nanos:    binary.LittleEndian.Uint32(buf[offNanos:]),
		Length:   binary.LittleEndian.Uint32(buf[offLength:]),
		Checksum: binary.LittleEndian.Uint32(buf[offChecksum:]),
	}

	if h.Nanos > maxNanoseconds {
		return PacketHeader{}, newError(KindTimestampParse, "decode packet header", nil)
	}

	return h, nil
}
