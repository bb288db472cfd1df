// Package errs defines the error taxonomy shared by every pktreplay package.
//
// All failures crossing a package boundary are *Error values carrying a Kind.
// Callers test for a category with errors.Is:
//
//	if errors.Is(err, errs.ChecksumMismatch) { ... }
//
// InvalidFormat also matches its sub-kinds (CorruptedHeader, CorruptedData,
// ChecksumMismatch). Errors from the os and net packages are mapped once,
// at the boundary, with FromOS and FromNet.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	Unknown Kind = iota
	FileNotFound
	DirectoryNotFound
	InsufficientPermissions
	InvalidFormat
	CorruptedHeader
	CorruptedData
	ChecksumMismatch
	InvalidPacketSize
	InvalidArgument
	InvalidState
	BufferOverflow
	OutOfMemory
	IO
	Network
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case FileNotFound:
		return "file not found"
	case DirectoryNotFound:
		return "directory not found"
	case InsufficientPermissions:
		return "insufficient permissions"
	case InvalidFormat:
		return "invalid format"
	case CorruptedHeader:
		return "corrupted header"
	case CorruptedData:
		return "corrupted data"
	case ChecksumMismatch:
		return "checksum mismatch"
	case InvalidPacketSize:
		return "invalid packet size"
	case InvalidArgument:
		return "invalid argument"
	case InvalidState:
		return "invalid state"
	case BufferOverflow:
		return "buffer overflow"
	case OutOfMemory:
		return "out of memory"
	case IO:
		return "i/o error"
	case Network:
		return "network error"
	default:
		return "unknown error"
	}
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is the concrete error type returned by pktreplay packages.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "record.read"
	Path string // file or address involved, may be empty
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is e's Kind, or InvalidFormat when e is one of
// the corruption kinds.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	if !ok {
		return false
	}
	if k == e.Kind {
		return true
	}
	return k == InvalidFormat && e.Kind.isFormat()
}

func (k Kind) isFormat() bool {
	return k == CorruptedHeader || k == CorruptedData || k == ChecksumMismatch
}

// E builds an *Error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds an *Error whose cause is a formatted message.
func Ef(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithPath builds an *Error bound to a file or address.
func WithPath(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// FromOS maps an error from the os package. Errors that are already *Error
// pass through unchanged.
func FromOS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return WithPath(FileNotFound, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return WithPath(InsufficientPermissions, op, path, err)
	default:
		return WithPath(IO, op, path, err)
	}
}

// FromOSDir is FromOS for directory operations: a missing path maps to
// DirectoryNotFound.
func FromOSDir(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return WithPath(DirectoryNotFound, op, path, err)
	}
	return FromOS(op, path, err)
}

// FromNet maps an error from the net package.
func FromNet(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return WithPath(Network, op, addr, fmt.Errorf("timeout: %w", err))
	}
	return WithPath(Network, op, addr, err)
}
