package pcapstore

import (
	"errors"
	"fmt"
	"os"
)

// Kind classifies pcapstore errors. The numeric values are stable and safe
// to log or persist.
type Kind int

// Error classification codes.
//
// Callers MUST classify errors with errors.Is against the Err* sentinels
// below, or with [ErrorKind]. Messages are not part of the contract.
const (
	KindUnknown           Kind = 0
	KindFileNotFound      Kind = 1001
	KindDirectoryNotFound Kind = 1002
	KindInvalidFormat     Kind = 2001
	KindCorruptedHeader   Kind = 2002
	KindCorruptedData     Kind = 2003
	KindChecksumMismatch  Kind = 2004
	KindPacketSizeExceeds Kind = 2005
	KindTimestampParse    Kind = 2006
	KindInvalidPacketSize Kind = 3001
	KindInvalidArgument   Kind = 3002
	KindInvalidState      Kind = 3003
	KindIO                Kind = 4001
	KindSerialization     Kind = 4002
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file not found"
	case KindDirectoryNotFound:
		return "directory not found"
	case KindInvalidFormat:
		return "invalid format"
	case KindCorruptedHeader:
		return "corrupted header"
	case KindCorruptedData:
		return "corrupted data"
	case KindChecksumMismatch:
		return "checksum mismatch"
	case KindPacketSizeExceeds:
		return "packet size exceeds remaining bytes"
	case KindTimestampParse:
		return "timestamp parse error"
	case KindInvalidPacketSize:
		return "invalid packet size"
	case KindInvalidArgument:
		return "invalid argument"
	case KindInvalidState:
		return "invalid state"
	case KindIO:
		return "io error"
	case KindSerialization:
		return "serialization error"
	default:
		return "unknown error"
	}
}

// Sentinel errors, one per kind.
//
// Matching is by kind: errors.Is(err, ErrCorruptedHeader) is true for every
// pcapstore error whose kind is [KindCorruptedHeader], regardless of how much
// context it carries.
var (
	ErrFileNotFound      = &Error{Kind: KindFileNotFound}
	ErrDirectoryNotFound = &Error{Kind: KindDirectoryNotFound}
	ErrInvalidFormat     = &Error{Kind: KindInvalidFormat}
	ErrCorruptedHeader   = &Error{Kind: KindCorruptedHeader}
	ErrCorruptedData     = &Error{Kind: KindCorruptedData}
	ErrChecksumMismatch  = &Error{Kind: KindChecksumMismatch}
	ErrPacketSizeExceeds = &Error{Kind: KindPacketSizeExceeds}
	ErrTimestampParse    = &Error{Kind: KindTimestampParse}
	ErrInvalidPacketSize = &Error{Kind: KindInvalidPacketSize}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrIO                = &Error{Kind: KindIO}
	ErrSerialization     = &Error{Kind: KindSerialization}
)

// Error is the error type returned by all fallible pcapstore operations.
type Error struct {
	// Kind is the machine-readable classification.
	Kind Kind

	// Op names the operation that failed, e.g. "read packet".
	Op string

	// Path is the file or directory involved, when known.
	Path string

	// Pos is the byte position within Path where the failure was detected,
	// or -1 when no position is meaningful.
	Pos int64

	// Err is the wrapped cause, may be nil.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Path != "" {
		msg += " (" + e.Path
		if e.Pos >= 0 {
			msg += fmt.Sprintf(" @%d", e.Pos)
		}

		msg += ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so the Err* sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return e.Kind == t.Kind
}

// ErrorKind extracts the kind from err.
// Returns [KindUnknown] for nil and for foreign errors.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// SizeExceedsDetail carries the measurements of a packet whose declared
// length ran past the end of its file. It is wrapped inside an [Error] of
// kind [KindPacketSizeExceeds] and extracted with errors.As.
type SizeExceedsDetail struct {
	// Expected is the byte count the header declared.
	Expected int64

	// Remaining is the byte count actually available.
	Remaining int64
}

func (d *SizeExceedsDetail) Error() string {
	return fmt.Sprintf("expected %d bytes, %d remaining", d.Expected, d.Remaining)
}

// newError builds an *Error without positional context.
func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Pos: -1}
}

// newPathError builds an *Error carrying a path and byte position.
func newPathError(kind Kind, op, path string, pos int64, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Pos: pos, Err: err}
}

// wrapOpenError classifies errors from opening files or directories.
func wrapOpenError(op, path string, err error) *Error {
	if os.IsNotExist(err) {
		return newPathError(KindFileNotFound, op, path, -1, err)
	}

	return newPathError(KindIO, op, path, -1, err)
}
