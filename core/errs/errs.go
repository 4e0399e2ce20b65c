// Package errs defines the typed error taxonomy shared by the command bridge.
// Every typed error carries a stable identifier which is reported back to
// the requester alongside the free-text message.
package errs

import "errors"

// Kind groups identifiers by the stage that raised them.
type Kind string

const (
	KindParsing    Kind = "parsing"
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindOperation  Kind = "operation"
)

// Error is an identified error. Two Errors match with errors.Is when their
// identifiers are equal, whatever their cause.
type Error struct {
	Kind Kind
	ID   string
	Msg  string
	Err  error
}

// New returns a sentinel Error.
func New(kind Kind, id, msg string) *Error {
	return &Error{Kind: kind, ID: id, Msg: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same identifier.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.ID == e.ID
}

// Identifier returns the stable identifier.
func (e *Error) Identifier() string { return e.ID }

// ErrorKind returns the taxonomy group of the error.
func (e *Error) ErrorKind() Kind { return e.Kind }

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

type identified interface {
	error
	Identifier() string
}

type kinded interface {
	error
	ErrorKind() Kind
}

// Identifier returns the identifier of the first typed error in err's chain.
func Identifier(err error) (string, bool) {
	var id identified
	if errors.As(err, &id) {
		return id.Identifier(), true
	}
	return "", false
}

// KindOf returns the kind of the first kinded error in err's chain.
func KindOf(err error) (Kind, bool) {
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind(), true
	}
	return "", false
}
