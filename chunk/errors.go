package chunk

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by errors.Is against *Error.
var (
	ErrOpen       = errors.New("open failed")
	ErrState      = errors.New("operation on closed file")
	ErrNavigation = errors.New("chunk does not exist")
	ErrRead       = errors.New("read failed")
	ErrWrite      = errors.New("write failed")
	ErrSchema     = errors.New("invalid table schema")
)

// Kind classifies an Error.
type Kind int

const (
	KindOpen Kind = iota + 1
	KindState
	KindNavigation
	KindRead
	KindWrite
	KindSchema
)

// String returns the name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindState:
		return "state"
	case KindNavigation:
		return "navigation"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindOpen:
		return ErrOpen
	case KindState:
		return ErrState
	case KindNavigation:
		return ErrNavigation
	case KindRead:
		return ErrRead
	case KindWrite:
		return ErrWrite
	case KindSchema:
		return ErrSchema
	default:
		return nil
	}
}

// Backend status codes. Values follow CFITSIO numbering so that callers
// porting status checks keep their constants.
const (
	StatusNone           = 0
	StatusFileNotOpened  = 104
	StatusNotImage       = 233
	StatusNotTable       = 235
	StatusBadTForm       = 261
	StatusBadHDUNum      = 301
	StatusBadColNum      = 302
	StatusBadRowNum      = 307
	StatusBadElemNum     = 308
	StatusBadDataType    = 410
	StatusNumOverflow    = 412
	StatusRowsTerminated = 307
)

// Error is the single error type raised by chunked files. Status carries the
// backend status code, 0 when not applicable.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Status  int
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op + ": " + e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Op, e.Path, e.Message)
	}
	if e.Status != StatusNone {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusNone
}

// KindOf returns the kind carried by err, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// OpenError builds a KindOpen error.
func OpenError(op, path string, cause error) *Error {
	return &Error{Kind: KindOpen, Op: op, Path: path, Message: "cannot open file", Cause: cause}
}

// StateError builds the error returned for operations on a closed file.
func StateError(op, path string) *Error {
	return &Error{Kind: KindState, Op: op, Path: path, Message: "operation on closed file"}
}

// NavigationError builds the error returned for a missing chunk.
func NavigationError(op, path string, index, count int) *Error {
	return &Error{
		Kind:    KindNavigation,
		Op:      op,
		Path:    path,
		Message: fmt.Sprintf("chunk %d does not exist (file has %d)", index, count),
		Status:  StatusBadHDUNum,
	}
}

// ReadError builds a KindRead error.
func ReadError(op, path string, status int, format string, args ...any) *Error {
	return &Error{Kind: KindRead, Op: op, Path: path, Message: fmt.Sprintf(format, args...), Status: status}
}

// WriteError builds a KindWrite error.
func WriteError(op, path string, status int, format string, args ...any) *Error {
	return &Error{Kind: KindWrite, Op: op, Path: path, Message: fmt.Sprintf(format, args...), Status: status}
}

// SchemaError builds a KindSchema error.
func SchemaError(op string, format string, args ...any) *Error {
	return &Error{Kind: KindSchema, Op: op, Message: fmt.Sprintf(format, args...), Status: StatusBadTForm}
}
