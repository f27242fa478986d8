package pcapstore_test

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/pcapstore/pkg/fs"
	"github.com/calvinalkan/pcapstore/pkg/pcapstore"
)

// buildDataset writes packets into <base>/<name> and finalizes the index.
func buildDataset(t *testing.T, base, name string, cfg pcapstore.WriterConfig, packets []*pcapstore.Packet) {
	t.Helper()

	w, err := pcapstore.NewWriter(fs.NewReal(), base, name, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, w.WritePackets(packets))
	require.NoError(t, w.Close())
}

// numberedPackets returns count packets with timestamps i*1ms and "#i" payloads.
func numberedPackets(count int) []*pcapstore.Packet {
	packets := make([]*pcapstore.Packet, 0, count)

	for i := 0; i < count; i++ {
		ts := time.Unix(0, int64(i)*1_000_000).UTC()
		packets = append(packets, pcapstore.NewPacket(ts, []byte(fmt.Sprintf("#%d", i))))
	}

	return packets
}

// readAll drains the reader, failing the test on any structural error.
func readAll(t *testing.T, r *pcapstore.Reader) []pcapstore.ValidatedPacket {
	t.Helper()

	var out []pcapstore.ValidatedPacket

	for {
		pkt, err := r.ReadPacket()
		if err == io.EOF {
			return out
		}

		require.NoError(t, err)
		out = append(out, pkt)
	}
}

func Test_Reader_Roundtrips_Packets_In_Order_When_Dataset_Spans_Files(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	cfg := pcapstore.DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 7

	packets := numberedPackets(100)
	buildDataset(t, base, "set", cfg, packets)

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	require.Equal(t, uint64(100), r.TotalPackets())
	require.Equal(t, 15, r.FileCount()) // ceil(100/7)

	got := readAll(t, r)
	require.Len(t, got, 100)

	for i, pkt := range got {
		require.True(t, pkt.IsValid, "packet %d", i)
		require.Equal(t, string(packets[i].Payload), string(pkt.Packet.Payload), "packet %d", i)
		require.True(t, pkt.Packet.Time.Equal(packets[i].Time), "packet %d", i)
	}

	require.True(t, r.IsEOF())
	require.Equal(t, uint64(100), r.CurrentPacketIndex())

	progress, ok := r.Progress()
	require.True(t, ok)
	require.InDelta(t, 1.0, progress, 1e-9)
}

func Test_Reader_Seek_Commutes_With_Read_When_Positioned_By_Packet_Index(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	cfg := pcapstore.DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 9

	packets := numberedPackets(50)
	buildDataset(t, base, "set", cfg, packets)

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	for _, k := range []uint64{0, 1, 8, 9, 17, 49} {
		require.NoError(t, r.SeekToPacket(k))
		require.Equal(t, k, r.CurrentPacketIndex())

		pkt, err := r.ReadPacket()
		require.NoError(t, err)
		require.Equal(t, string(packets[k].Payload), string(pkt.Packet.Payload), "k=%d", k)
	}

	// Seeking to the total positions at end of stream.
	require.NoError(t, r.SeekToPacket(50))
	require.True(t, r.IsEOF())

	_, err = r.ReadPacket()
	require.Equal(t, io.EOF, err)

	// Beyond the total is an error.
	err = r.SeekToPacket(51)
	require.ErrorIs(t, err, pcapstore.ErrInvalidArgument)
}

func Test_Reader_SeekToTimestamp_Lands_On_Lower_Bound_When_No_Exact_Match(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	cfg := pcapstore.DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 10

	buildDataset(t, base, "set", cfg, numberedPackets(100))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	ts, err := r.SeekToTimestamp(50_500_000)
	require.NoError(t, err)
	require.Equal(t, uint64(51_000_000), ts)

	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "#51", string(pkt.Packet.Payload))

	// Exact hit.
	ts, err = r.SeekToTimestamp(7_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(7_000_000), ts)

	pkt, err = r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "#7", string(pkt.Packet.Payload))

	// Past every observed timestamp.
	_, err = r.SeekToTimestamp(99_000_001)
	require.ErrorIs(t, err, pcapstore.ErrInvalidArgument)
}

func Test_Reader_SeekToTimestamp_Resolves_First_Occurrence_When_Timestamps_Collide(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	ts := time.Unix(1701432000, 0).UTC()
	packets := []*pcapstore.Packet{
		pcapstore.NewPacket(ts, []byte("first")),
		pcapstore.NewPacket(ts, []byte("dup")),
		pcapstore.NewPacket(ts.Add(time.Second), []byte("later")),
	}

	cfg := pcapstore.DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 2

	buildDataset(t, base, "set", cfg, packets)

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	got, err := r.SeekToTimestamp(uint64(ts.Unix()) * 1_000_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(ts.Unix())*1_000_000_000, got)

	// Both colliding packets sit in the first file; the earlier one wins the tie.
	require.Equal(t, uint64(0), r.CurrentPacketIndex())

	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "first", string(pkt.Packet.Payload))
}

func Test_Reader_Counts_Corrupted_Packet_As_Data_When_Payload_Flipped_On_Disk(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	packets := numberedPackets(100)
	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), packets)

	// Flip one byte inside packet 50's payload. Offsets: 16-byte file
	// header, then 16+len records in order.
	offset := int64(16)
	for i := 0; i < 50; i++ {
		offset += 16 + int64(len(packets[i].Payload))
	}

	offset += 16 // into the payload of packet 50

	dir := filepath.Join(base, "set")
	files := datasetFiles(t, dir)
	require.Len(t, files, 1)

	path := filepath.Join(dir, files[0])

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[offset] ^= 0x40
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	got := readAll(t, r)
	require.Len(t, got, 100)

	invalid := 0

	for i, pkt := range got {
		if !pkt.IsValid {
			invalid++

			require.Equal(t, 50, i)
		} else {
			require.Equal(t, string(packets[i].Payload), string(pkt.Packet.Payload))
		}
	}

	require.Equal(t, 1, invalid)
	require.Equal(t, uint64(100), r.CurrentPacketIndex())
}

func Test_Reader_Fails_With_PacketSizeExceeds_When_Last_File_Truncated(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	cfg := pcapstore.DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 40

	buildDataset(t, base, "set", cfg, numberedPackets(100))

	dir := filepath.Join(base, "set")
	files := datasetFiles(t, dir)
	require.Len(t, files, 3)

	last := filepath.Join(dir, files[2])

	info, err := os.Stat(last)
	require.NoError(t, err)

	// Cut into the final packet's payload.
	require.NoError(t, os.Truncate(last, info.Size()-2))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	delivered := 0

	for {
		_, err := r.ReadPacket()
		if err == nil {
			delivered++
			continue
		}

		require.ErrorIs(t, err, pcapstore.ErrPacketSizeExceeds)

		break
	}

	require.Equal(t, 99, delivered)
}

func Test_Reader_Rebuilds_Index_When_Sidecar_Is_Deleted(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	cfg := pcapstore.DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 6
	cfg.Clock = fixedClock()

	buildDataset(t, base, "set", cfg, numberedPackets(20))

	sidecar := filepath.Join(base, "set", "set.pidx")

	original, err := os.ReadFile(sidecar)
	require.NoError(t, err)

	require.NoError(t, os.Remove(sidecar))

	rcfg := pcapstore.DefaultReaderConfig()
	rcfg.Clock = fixedClock()

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", rcfg, nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	rebuilt, err := os.ReadFile(sidecar)
	require.NoError(t, err)

	// With a pinned clock the rebuild reproduces the sidecar byte for byte.
	require.Equal(t, string(original), string(rebuilt))

	valid, err := r.Index().Validate(fs.NewReal(), filepath.Join(base, "set"))
	require.NoError(t, err)
	require.True(t, valid)

	require.Len(t, readAll(t, r), 20)
}

func Test_Reader_Rebuilds_Index_When_Sidecar_Is_Garbage(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), numberedPackets(5))

	sidecar := filepath.Join(base, "set", "set.pidx")
	require.NoError(t, os.WriteFile(sidecar, []byte("not xml at all"), 0o644))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	require.Equal(t, uint64(5), r.TotalPackets())
	require.Len(t, readAll(t, r), 5)
}

func Test_Reader_Handles_Empty_Dataset_When_No_Packets_Were_Written(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	w, err := pcapstore.NewWriter(fs.NewReal(), base, "empty", pcapstore.DefaultWriterConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "empty", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	require.Equal(t, uint64(0), r.TotalPackets())
	require.True(t, r.IsEOF())

	_, ok := r.Progress()
	require.False(t, ok)

	_, err = r.ReadPacket()
	require.Equal(t, io.EOF, err)
}

func Test_Reader_Fails_With_DirectoryNotFound_When_Dataset_Missing(t *testing.T) {
	t.Parallel()

	_, err := pcapstore.OpenReader(fs.NewReal(), t.TempDir(), "nope", pcapstore.DefaultReaderConfig(), nil)
	require.ErrorIs(t, err, pcapstore.ErrDirectoryNotFound)
}

func Test_Reader_ReadPackets_Stops_At_EOF_When_Count_Exceeds_Remaining(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), numberedPackets(5))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	got, err := r.ReadPackets(3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	got, err = r.ReadPackets(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, r.IsEOF())
}

func Test_Reader_SkipPackets_Clamps_To_Total_When_Skipping_Past_End(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), numberedPackets(10))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	skipped, err := r.SkipPackets(4)
	require.NoError(t, err)
	require.Equal(t, uint64(4), skipped)

	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "#4", string(pkt.Packet.Payload))

	skipped, err = r.SkipPackets(100)
	require.NoError(t, err)
	require.Equal(t, uint64(5), skipped)
	require.True(t, r.IsEOF())

	require.NoError(t, r.Reset())
	require.Equal(t, uint64(0), r.CurrentPacketIndex())
	require.False(t, r.IsEOF())

	pkt, err = r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "#0", string(pkt.Packet.Payload))
}

func Test_Reader_ReadVerifiedPacket_Fails_With_ChecksumMismatch_When_Packet_Corrupt(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	packets := numberedPackets(3)
	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), packets)

	dir := filepath.Join(base, "set")
	files := datasetFiles(t, dir)
	path := filepath.Join(dir, files[0])

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Corrupt the first packet's payload.
	data[16+16] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	_, err = r.ReadVerifiedPacket()
	require.ErrorIs(t, err, pcapstore.ErrChecksumMismatch)

	// The stream advanced past the bad packet.
	p, err := r.ReadVerifiedPacket()
	require.NoError(t, err)
	require.Equal(t, "#1", string(p.Payload))
}

func Test_Reader_ReadPacketData_Returns_Payload_When_Packet_Is_Corrupt(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), numberedPackets(2))

	dir := filepath.Join(base, "set")
	files := datasetFiles(t, dir)
	path := filepath.Join(dir, files[0])

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[16+16] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	payload, err := r.ReadPacketData()
	require.NoError(t, err)
	require.Len(t, payload, 2) // "#0" with one byte flipped
}

func Test_Reader_RebuildIndex_Regenerates_Sidecar_When_Forced(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), numberedPackets(8))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	require.Len(t, readAll(t, r), 8)

	require.NoError(t, r.RebuildIndex())
	require.Equal(t, uint64(0), r.CurrentPacketIndex())
	require.False(t, r.IsEOF())
	require.Len(t, readAll(t, r), 8)
}

func Test_Reader_Rejects_Operations_When_Closed(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	buildDataset(t, base, "set", pcapstore.DefaultWriterConfig(), numberedPackets(2))

	r, err := pcapstore.OpenReader(fs.NewReal(), base, "set", pcapstore.DefaultReaderConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close()) // idempotent

	_, err = r.ReadPacket()
	require.ErrorIs(t, err, pcapstore.ErrInvalidState)

	err = r.SeekToPacket(0)
	require.ErrorIs(t, err, pcapstore.ErrInvalidState)

	_, err = r.SeekToTimestamp(0)
	require.ErrorIs(t, err, pcapstore.ErrInvalidState)
}
