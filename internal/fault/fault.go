// Package fault classifies the failures of host introspection commands.
//
// Errors carry a Kind so callers can branch on what went wrong without
// parsing messages; the message itself is only rendered at the boundary.
package fault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// Kind is the category of a command failure.
type Kind int

const (
	IOError Kind = iota
	NotFound
	PermissionDenied
	InvalidAddress
	SerializationError
	ConnectionError
	ReadError
	// InvalidRequest is a malformed command request at the bridge.
	InvalidRequest
)

var kindNames = map[Kind]string{
	IOError:            "IOError",
	NotFound:           "NotFound",
	PermissionDenied:   "PermissionDenied",
	InvalidAddress:     "InvalidAddress",
	SerializationError: "SerializationError",
	ConnectionError:    "ConnectionError",
	ReadError:          "ReadError",
	InvalidRequest:     "InvalidRequest",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the kind by name so JSON bodies stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return IOError, false
}

// UnmarshalText accepts the names produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown error kind %q", b)
	}
	*k = parsed
	return nil
}

// Error is a classified command failure.
type Error struct {
	Kind Kind
	Op   string // command or step that failed, e.g. "folder_size" or "send"
	Path string // path, mount point or address the failure is about
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case NotFound:
		if e.Op == "drive_size" {
			return fmt.Sprintf("%s not found among mounted volumes", e.Path)
		}
		if e.Path != "" {
			return fmt.Sprintf("%s does not exist", e.Path)
		}
	case InvalidAddress:
		return "invalid address or port: " + e.cause()
	case SerializationError:
		return "failed to serialize message: " + e.cause()
	case ConnectionError:
		return "failed to connect: " + e.cause()
	case ReadError:
		if e.Op == "send" {
			return "failed to send message: " + e.cause()
		}
		return "failed to read response: " + e.cause()
	case InvalidRequest:
		return "invalid request: " + e.cause()
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.cause())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.cause())
}

func (e *Error) cause() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// New builds a classified error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// FromFS classifies a filesystem error. Errors that are already classified
// pass through unchanged.
func FromFS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return New(NotFound, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return New(PermissionDenied, op, path, err)
	default:
		return New(IOError, op, path, err)
	}
}

// KindOf reports the kind of the first classified error in err's chain.
// Unclassified errors, including context cancellation, are IOError.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return IOError
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Canceled reports whether err stems from a cancelled or expired context.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
