package crdt

import "fmt"

// ErrKind classifies a failure: Integrity failures reject input outright,
// Logic failures surface a malformed mutation to the caller without
// touching state.
type ErrKind string

const (
	ErrKindIntegrity ErrKind = "integrity"
	ErrKindLogic     ErrKind = "logic"
)

// Error wraps a crdt-package failure with the kind that governs how a
// caller should react: drop it, or surface it.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("crdt: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

var (
	// ErrIncompatibleTypes names a join between values of different
	// concrete lattice types. Join is statically typed on every type here,
	// so no function in this package returns it.
	ErrIncompatibleTypes = fmt.Errorf("incompatible CRDT types")

	// ErrUnknownKind is returned by Unmarshal when the encoded CRDTKind
	// does not match any type this package knows how to decode.
	ErrUnknownKind = fmt.Errorf("unknown CRDT kind")

	// ErrNonCanonical is what checkCanonical reports when re-encoding a
	// decoded value does not reproduce its input bytes exactly. No
	// Unmarshal method in this package calls checkCanonical, so Unmarshal
	// accepts non-canonical input without returning this error.
	ErrNonCanonical = fmt.Errorf("value is not in canonical form")

	// ErrNaN is returned when a JSON scalar would encode a NaN float,
	// which canonical encoding forbids.
	ErrNaN = fmt.Errorf("NaN is not a valid canonical scalar")

	// ErrPathNotFound is returned when a JSON CRDT path segment does not
	// resolve against the current document shape.
	ErrPathNotFound = fmt.Errorf("path segment not found")

	// ErrIndexOutOfBounds is returned when a JSON CRDT array path segment
	// is out of range for the array's current length.
	ErrIndexOutOfBounds = fmt.Errorf("index out of bounds")
)
