package pcapstore

import (
	"encoding/binary"
	"errors"
	"testing"
)

func Test_FileHeader_Roundtrips_When_Encoded_And_Decoded(t *testing.T) {
	t.Parallel()

	in := FileHeader{
		Magic:             fileMagic,
		MajorVersion:      versionMajor,
		MinorVersion:      versionMinor,
		TimezoneOffset:    -3600,
		TimestampAccuracy: 1,
	}

	buf := encodeFileHeader(in)

	if len(buf) != fileHeaderSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), fileHeaderSize)
	}

	out, err := decodeFileHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out != in {
		t.Fatalf("roundtrip = %+v, want %+v", out, in)
	}
}

func Test_FileHeader_Encodes_LittleEndian_Magic_When_Serialized(t *testing.T) {
	t.Parallel()

	buf := encodeFileHeader(newFileHeader())

	// 0xD4C3B2A1 little-endian on disk.
	want := []byte{0xA1, 0xB2, 0xC3, 0xD4}
	for i, b := range want {
		if buf[i] != b {
			t.Fatalf("magic byte %d = %#x, want %#x", i, buf[i], b)
		}
	}

	if got := binary.LittleEndian.Uint16(buf[4:6]); got != 0x0002 {
		t.Fatalf("major = %#x, want 0x0002", got)
	}

	if got := binary.LittleEndian.Uint16(buf[6:8]); got != 0x0004 {
		t.Fatalf("minor = %#x, want 0x0004", got)
	}
}

func Test_DecodeFileHeader_Fails_With_InvalidFormat_When_Magic_Mismatches(t *testing.T) {
	t.Parallel()

	buf := encodeFileHeader(newFileHeader())
	buf[0] = 0x00

	_, err := decodeFileHeader(buf)

	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("err = %v, want ErrInvalidFormat", err)
	}
}

func Test_DecodeFileHeader_Fails_With_CorruptedHeader_When_Truncated(t *testing.T) {
	t.Parallel()

	buf := encodeFileHeader(newFileHeader())

	_, err := decodeFileHeader(buf[:10])

	if !errors.Is(err, ErrCorruptedHeader) {
		t.Fatalf("err = %v, want ErrCorruptedHeader", err)
	}
}

func Test_PacketHeader_Roundtrips_When_Encoded_And_Decoded(t *testing.T) {
	t.Parallel()

	tests := []PacketHeader{
		{Seconds: 0, Nanos: 0, Length: 0, Checksum: 0},
		{Seconds: 1701432000, Nanos: 999_999_999, Length: 3, Checksum: 0xDEADBEEF},
		{Seconds: 0xFFFFFFFF, Nanos: 500_000_000, Length: 0xFFFF, Checksum: 1},
	}

	for _, in := range tests {
		buf := make([]byte, packetHeaderSize)
		encodePacketHeader(buf, in)

		out, err := decodePacketHeader(buf)
		if err != nil {
			t.Fatalf("decode %+v: %v", in, err)
		}

		if out != in {
			t.Fatalf("roundtrip = %+v, want %+v", out, in)
		}
	}
}

func Test_DecodePacketHeader_Fails_With_TimestampParse_When_Nanos_Overflow(t *testing.T) {
	t.Parallel()

	buf := make([]byte, packetHeaderSize)
	encodePacketHeader(buf, PacketHeader{Seconds: 1, Length: 0})
	binary.LittleEndian.PutUint32(buf[offNanos:], 1_000_000_000)

	_, err := decodePacketHeader(buf)

	if !errors.Is(err, ErrTimestampParse) {
		t.Fatalf("err = %v, want ErrTimestampParse", err)
	}
}

func Test_DecodePacketHeader_Fails_With_CorruptedHeader_When_Truncated(t *testing.T) {
	t.Parallel()

	buf := make([]byte, packetHeaderSize)
	encodePacketHeader(buf, PacketHeader{Seconds: 1})

	_, err := decodePacketHeader(buf[:8])

	if !errors.Is(err, ErrCorruptedHeader) {
		t.Fatalf("err = %v, want ErrCorruptedHeader", err)
	}
}

func Test_Checksum_Matches_Known_CRC32_Vector_When_Computed(t *testing.T) {
	t.Parallel()

	// The standard CRC-32 check value for "123456789".
	if got := Checksum([]byte("123456789")); got != 0xCBF43926 {
		t.Fatalf("crc = %#x, want 0xCBF43926", got)
	}

	// Empty payload checksums to zero with this polynomial and XOR scheme.
	if got := Checksum(nil); got != 0 {
		t.Fatalf("crc(nil) = %#x, want 0", got)
	}
}
