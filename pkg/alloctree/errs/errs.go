// Package errs defines the error kind taxonomy shared by every allocator in
// this module.
package errs

import "fmt"

// Kind classifies why an allocator operation failed.
type Kind int

const (
	// OutOfMemory means no satisfiable free region exists in the instance.
	OutOfMemory Kind = iota + 1

	// CapacityExceeded means the request exceeds the allocator's configured
	// maxima (size or alignment).
	CapacityExceeded

	// Misconfigured means the switcher routed to an empty local slot.
	Misconfigured

	// SourceExhausted means a Memory Source's Obtain call failed.
	SourceExhausted

	// InvariantViolation names a broken internal invariant. No code in this
	// module constructs it; a failed debug.Assert panics with its own error
	// value instead.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "out of memory"
	case CapacityExceeded:
		return "capacity exceeded"
	case Misconfigured:
		return "misconfigured local slot"
	case SourceExhausted:
		return "memory source exhausted"
	case InvariantViolation:
		return "invariant violation"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every fallible allocator
// operation. Recover it out of a wrapped error with [github.com/alloctree/alloctree/pkg/xerrors.AsA].
type Error struct {
	Kind Kind
	Msg  string
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is reports whether target has the same Kind as e, so that
// errors.Is(err, errs.Of(errs.OutOfMemory)) style checks work, with the
// target built by [Of].
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

// Of constructs a sentinel *Error for use with errors.Is, carrying only a
// Kind and no message.
func Of(kind Kind) *Error { return &Error{Kind: kind} }
