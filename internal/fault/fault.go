// Package fault defines the error taxonomy shared by every stage of the
// dataset build. All faults are fatal: the build aborts on the first one and
// no partial output is produced.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	Configuration Kind = iota + 1
	UnitMismatch
	MissingCoordinateValue
	DisjointCoordinates
	MissingAttribute
	DuplicateAxisMember
)

// Sentinels for use with errors.Is. Every *Error unwraps to the sentinel of
// its Kind.
var (
	ErrConfiguration          = errors.New("configuration error")
	ErrUnitMismatch           = errors.New("unit mismatch")
	ErrMissingCoordinateValue = errors.New("missing coordinate value")
	ErrDisjointCoordinates    = errors.New("disjoint coordinates")
	ErrMissingAttribute       = errors.New("missing attribute")
	ErrDuplicateAxisMember    = errors.New("duplicate axis member")
)

func (k Kind) sentinel() error {
	switch k {
	case Configuration:
		return ErrConfiguration
	case UnitMismatch:
		return ErrUnitMismatch
	case MissingCoordinateValue:
		return ErrMissingCoordinateValue
	case DisjointCoordinates:
		return ErrDisjointCoordinates
	case MissingAttribute:
		return ErrMissingAttribute
	case DuplicateAxisMember:
		return ErrDuplicateAxisMember
	}
	return nil
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure carrying the source, dimension and variable
// it concerns. Empty fields are omitted from the message.
type Error struct {
	Kind     Kind
	Source   string
	Dim      string
	Variable string
	Msg      string
	Err      error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())

	var where []string
	if e.Source != "" {
		where = append(where, fmt.Sprintf("source %q", e.Source))
	}
	if e.Variable != "" {
		where = append(where, fmt.Sprintf("variable %q", e.Variable))
	}
	if e.Dim != "" {
		where = append(where, fmt.Sprintf("dim %q", e.Dim))
	}
	if len(where) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(where, ", "))
		b.WriteString(")")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WithSource returns a copy of e attributed to the named source.
func (e *Error) WithSource(name string) *Error {
	c := *e
	c.Source = name
	return &c
}

// WithDim returns a copy of e attributed to the named dimension.
func (e *Error) WithDim(dim string) *Error {
	c := *e
	c.Dim = dim
	return &c
}

// WithVariable returns a copy of e attributed to the named variable.
func (e *Error) WithVariable(name string) *Error {
	c := *e
	c.Variable = name
	return &c
}

// InSource attributes the first *Error in err's chain to the named source if
// it does not yet name one. The chain itself is returned unchanged.
func InSource(err error, name string) error {
	var fe *Error
	if errors.As(err, &fe) && fe.Source == "" {
		fe.Source = name
	}
	return err
}

// KindOf reports the Kind of err, or zero if err is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
