package plist

import "fmt"

// Kind enumerates the taxonomy of errors this package returns. Callers that
// care about the reason for a failure should switch on Kind rather than
// inspect the message text.
type Kind int

const (
	// InputMalformed covers truncated input, a bad magic number, an
	// invalid trailer, or a length that runs past the object region.
	InputMalformed Kind = iota
	// IndexOutOfRange covers a UID or object index that points outside
	// $objects.
	IndexOutOfRange
	// UnsupportedType covers a value the generator or archiver was
	// asked to emit but does not know how to represent.
	UnsupportedType
	// UnsupportedClass covers an archive $classname with no built-in
	// handler and no registered adapter.
	UnsupportedClass
	// SchemaViolation covers an archive missing $version/$archiver/
	// $top/$objects, or whose $objects[0] is not "$null".
	SchemaViolation
	// Overflow covers an object count or byte size that exceeds what
	// the chosen widths can express.
	Overflow
)

func (k Kind) String() string {
	switch k {
	case InputMalformed:
		return "InputMalformed"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	case UnsupportedType:
		return "UnsupportedType"
	case UnsupportedClass:
		return "UnsupportedClass"
	case SchemaViolation:
		return "SchemaViolation"
	case Overflow:
		return "Overflow"
	default:
		return "Unknown"
	}
}

// Error is the single error type this package returns. It carries enough
// context (offset, index, class name) for a caller to report a useful
// diagnostic without string-matching the message.
type Error struct {
	Kind      Kind
	Message   string
	Offset    int    // byte offset, when applicable, else -1
	Index     int    // object/UID index, when applicable, else -1
	ClassName string // archive $classname, when applicable
}

func (e *Error) Error() string {
	switch {
	case e.ClassName != "":
		return fmt.Sprintf("plist: %s: %s (class %q)", e.Kind, e.Message, e.ClassName)
	case e.Offset >= 0:
		return fmt.Sprintf("plist: %s: %s (offset %d)", e.Kind, e.Message, e.Offset)
	case e.Index >= 0:
		return fmt.Sprintf("plist: %s: %s (index %d)", e.Kind, e.Message, e.Index)
	default:
		return fmt.Sprintf("plist: %s: %s", e.Kind, e.Message)
	}
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Offset: -1, Index: -1}
}

func errAtOffset(kind Kind, offset int, message string) *Error {
	return &Error{Kind: kind, Message: message, Offset: offset, Index: -1}
}

func errAtIndex(kind Kind, index int, message string) *Error {
	return &Error{Kind: kind, Message: message, Offset: -1, Index: index}
}

func errUnsupportedClass(name string) *Error {
	return &Error{Kind: UnsupportedClass, Message: "no handler registered for class", ClassName: name, Offset: -1, Index: -1}
}

// IsUnsupportedClass reports whether err is an UnsupportedClass error, and
// if so returns the offending class name.
func IsUnsupportedClass(err error) (string, bool) {
	pe, ok := err.(*Error)
	if !ok || pe.Kind != UnsupportedClass {
		return "", false
	}
	return pe.ClassName, true
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == kind
}
