package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the pipeline recovers from it.
type Kind string

const (
	KindStartup    Kind = "startup"
	KindValidation Kind = "validation"
	KindRetrieval  Kind = "retrieval"
	KindGeneration Kind = "generation"
)

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrGeneration)
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && e.Kind == t.Kind
}

var (
	ErrStartup    = &Error{Kind: KindStartup}
	ErrValidation = &Error{Kind: KindValidation}
	ErrRetrieval  = &Error{Kind: KindRetrieval}
	ErrGeneration = &Error{Kind: KindGeneration}
)

// Wrap attaches kind and op to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of the outermost *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
