package errors

import (
	stderrors "errors"
	"fmt"
	"io"
)

import (
	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an Error. Callers match on it with errors.Is against
// the Err* sentinels or with KindOf.
type Kind uint8

const (
	InternalError Kind = iota
	ConstructionError
	IndexError
	AllocationError
	CodecError
)

func (k Kind) String() string {
	switch k {
	case ConstructionError:
		return "construction error"
	case IndexError:
		return "index error"
	case AllocationError:
		return "allocation error"
	case CodecError:
		return "codec error"
	default:
		return "internal error"
	}
}

// Sentinels for errors.Is. They carry no message and no stack.
var (
	ErrInternal     = &Error{Kind: InternalError}
	ErrConstruction = &Error{Kind: ConstructionError}
	ErrIndex        = &Error{Kind: IndexError}
	ErrAllocation   = &Error{Kind: AllocationError}
	ErrCodec        = &Error{Kind: CodecError}
)

// Error is a classified error. Err always carries the stack of the point
// where the error was made, print it with %+v.
type Error struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Errorf makes an InternalError. These signal a broken invariant inside
// the region (an unknown chunk flag, a bad offset) rather than a misuse.
func Errorf(format string, args ...interface{}) error {
	return newError(InternalError, pkgerrors.Errorf(format, args...))
}

func Constructionf(format string, args ...interface{}) error {
	return newError(ConstructionError, pkgerrors.Errorf(format, args...))
}

func Allocationf(format string, args ...interface{}) error {
	return newError(AllocationError, pkgerrors.Errorf(format, args...))
}

func Codecf(format string, args ...interface{}) error {
	return newError(CodecError, pkgerrors.Errorf(format, args...))
}

// OutOfRange makes the IndexError for a positional access at i into a
// sequence of the given size.
func OutOfRange(i, size int) error {
	return newError(IndexError, pkgerrors.Errorf("index %d out of range [0, %d)", i, size))
}

// Wrap classifies err as kind. An err which is already an *Error keeps
// its own kind and only gains the message.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return &Error{Kind: e.Kind, Err: pkgerrors.WithMessagef(e.Err, format, args...)}
	}
	return newError(kind, pkgerrors.Wrapf(err, format, args...))
}

// KindOf reports the Kind of the first *Error in err's chain. Errors
// from outside this package are InternalError.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) String() string {
	return e.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, which makes the sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.Err != nil {
			fmt.Fprintf(s, "%v: %+v", e.Kind, e.Err)
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
