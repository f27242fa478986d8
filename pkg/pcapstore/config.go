package pcapstore

import (
	"fmt"
	"time"
)

// Configuration limits and defaults.
const (
	// DefaultBufferSize is the buffered I/O size for readers and writers.
	DefaultBufferSize = 32 * 1024

	// MinBufferSize is the smallest accepted buffer size.
	MinBufferSize = 4 * 1024

	// DefaultIndexCacheSize is the default per-reader file-info cache capacity.
	DefaultIndexCacheSize = 1000

	// DefaultMaxPacketSize is the safety ceiling for payload sizes.
	DefaultMaxPacketSize = 16 * 1024 * 1024

	// DefaultMaxPacketsPerFile is the rotation threshold for dataset writers.
	DefaultMaxPacketsPerFile = 1000
)

// ReaderConfig configures dataset and single-file readers.
// The zero value is not valid; start from [DefaultReaderConfig].
type ReaderConfig struct {
	// BufferSize is the buffered read size in bytes. Minimum [MinBufferSize].
	BufferSize int

	// IndexCacheSize is the maximum number of per-file info entries the
	// reader keeps in its private LRU cache. Minimum 1.
	IndexCacheSize int

	// MaxPacketSize is the largest accepted payload size in bytes.
	// A packet header declaring a larger length fails the read.
	MaxPacketSize int

	// ReadTimeout, if nonzero, is advisory: plain files have no portable
	// deadline support, so it is validated and recorded but not enforced.
	ReadTimeout time.Duration

	// Clock supplies the current time for index metadata. Nil means
	// time.Now. Packet timestamps never come from this clock.
	Clock func() time.Time
}

// DefaultReaderConfig returns the default reader configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		BufferSize:     DefaultBufferSize,
		IndexCacheSize: DefaultIndexCacheSize,
		MaxPacketSize:  DefaultMaxPacketSize,
	}
}

// Validate reports the first problem with the configuration, or nil.
func (c *ReaderConfig) Validate() error {
	if c.BufferSize < MinBufferSize {
		return newError(KindInvalidArgument, "validate reader config",
			fmt.Errorf("buffer size %d below minimum %d", c.BufferSize, MinBufferSize))
	}

	if c.IndexCacheSize < 1 {
		return newError(KindInvalidArgument, "validate reader config",
			fmt.Errorf("index cache size %d, must be at least 1", c.IndexCacheSize))
	}

	if c.MaxPacketSize < 1 {
		return newError(KindInvalidArgument, "validate reader config",
			fmt.Errorf("max packet size %d, must be positive", c.MaxPacketSize))
	}

	if c.ReadTimeout < 0 {
		return newError(KindInvalidArgument, "validate reader config",
			fmt.Errorf("read timeout %v is negative", c.ReadTimeout))
	}

	return nil
}

// Reset restores all fields to their defaults.
func (c *ReaderConfig) Reset() {
	*c = DefaultReaderConfig()
}

// WriterConfig configures dataset and single-file writers.
// The zero value is not valid; start from [DefaultWriterConfig].
type WriterConfig struct {
	// BufferSize is the buffered write size in bytes. Minimum [MinBufferSize].
	BufferSize int

	// IndexCacheSize mirrors the reader setting for tooling that opens a
	// reader over a freshly written dataset.
	IndexCacheSize int

	// MaxPacketSize is the largest accepted payload size in bytes.
	MaxPacketSize int

	// MaxPacketsPerFile is the rotation threshold. Minimum 1.
	MaxPacketsPerFile int

	// FileNamePrefix replaces the "data" prefix of generated file names.
	// The timestamp portion of the naming scheme is fixed.
	FileNamePrefix string

	// AutoFlush drains the write buffer to the OS after every write call.
	// No fsync is issued; durability still requires Finalize.
	AutoFlush bool

	// WriteTimeout, if nonzero, is advisory like ReaderConfig.ReadTimeout.
	WriteTimeout time.Duration

	// IndexFlushInterval re-persists the index during long captures.
	// The interval is measured in packet capture time, never wall time:
	// once the span of packet timestamps since the last index save reaches
	// the interval, the index is saved at the next rotation boundary.
	// Zero means the index is only written on finalize.
	IndexFlushInterval time.Duration

	// Clock supplies the current time for index metadata. Nil means
	// time.Now. Packet timestamps and file names never come from this clock.
	Clock func() time.Time
}

// DefaultWriterConfig returns the default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BufferSize:        DefaultBufferSize,
		IndexCacheSize:    DefaultIndexCacheSize,
		MaxPacketSize:     DefaultMaxPacketSize,
		MaxPacketsPerFile: DefaultMaxPacketsPerFile,
		FileNamePrefix:    defaultFilePrefix,
	}
}

// Validate reports the first problem with the configuration, or nil.
func (c *WriterConfig) Validate() error {
	if c.BufferSize < MinBufferSize {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("buffer size %d below minimum %d", c.BufferSize, MinBufferSize))
	}

	if c.IndexCacheSize < 1 {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("index cache size %d, must be at least 1", c.IndexCacheSize))
	}

	if c.MaxPacketSize < 1 {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("max packet size %d, must be positive", c.MaxPacketSize))
	}

	if c.MaxPacketsPerFile < 1 {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("max packets per file %d, must be at least 1", c.MaxPacketsPerFile))
	}

	if c.FileNamePrefix == "" {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("file name prefix is empty"))
	}

	if err := validateFilePrefix(c.FileNamePrefix); err != nil {
		return newError(KindInvalidArgument, "validate writer config", err)
	}

	if c.WriteTimeout < 0 {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("write timeout %v is negative", c.WriteTimeout))
	}

	if c.IndexFlushInterval < 0 {
		return newError(KindInvalidArgument, "validate writer config",
			fmt.Errorf("index flush interval %v is negative", c.IndexFlushInterval))
	}

	return nil
}

// Reset restores all fields to their defaults.
func (c *WriterConfig) Reset() {
	*c = DefaultWriterConfig()
}
