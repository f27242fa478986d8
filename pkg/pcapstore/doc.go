// Package pcapstore reads and writes packet-capture datasets: directories of
// append-only, timestamped binary files with an XML sidecar index for random
// access by packet position or capture timestamp.
//
// The container format is pcap-flavored but deliberately incompatible with
// libpcap: the magic number is repurposed and versioning is independent.
// Payloads are opaque bytes; each packet carries a CRC32 that is verified on
// read and surfaced per packet, never as a stream error.
//
// # Basic Usage
//
//	fsys := fs.NewReal()
//
//	w, err := pcapstore.NewWriter(fsys, base, "capture", pcapstore.DefaultWriterConfig(), nil)
//	if err != nil { ... }
//	defer w.Close()
//
//	w.WritePacket(pcapstore.NewPacket(ts, payload))
//	// Close finalizes the open file and persists the sidecar index.
//
//	r, err := pcapstore.OpenReader(fsys, base, "capture", pcapstore.DefaultReaderConfig(), nil)
//	if err != nil { ... }
//	defer r.Close()
//
//	for {
//	    pkt, err := r.ReadPacket()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	    _ = pkt.IsValid // CRC verdict, corruption is data not error
//	}
//
// # Concurrency
//
// pcapstore uses a multi-reader, single-writer model:
//   - Any number of [Reader] instances may read one dataset concurrently
//   - Only one [Writer] may be active per dataset (enforced with a lock file)
//   - Individual readers and writers are NOT safe for concurrent use
//
// # Error Handling
//
// All errors are [*Error] values classified by [Kind]; match them with
// errors.Is against the Err* sentinels or with [ErrorKind]. A CRC mismatch
// during streaming reads is not an error: the packet is delivered with
// IsValid=false. Structural corruption (bad magic, truncated header, payload
// running past the file) is fatal to the affected file and is reported with
// a byte position.
package pcapstore
