package message

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIdentity = errors.New("missing identity")
	ErrMissingField    = errors.New("missing required field")
	ErrReservedKeyword = errors.New("reserved keyword in context")
	ErrUnknownType     = errors.New("unknown message type")
	ErrNilMessage      = errors.New("nil message")
)

// ValidationError reports which rule an event broke. It unwraps to one of
// ErrNilMessage, ErrMissingIdentity, ErrMissingField or ErrReservedKeyword.
type ValidationError struct {
	Type  Type
	Rule  error
	Field string
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Rule, ErrNilMessage):
		return e.Rule.Error()
	case errors.Is(e.Rule, ErrMissingIdentity):
		return fmt.Sprintf("%s: %v: either userId or anonymousId is required", e.Type, e.Rule)
	case errors.Is(e.Rule, ErrReservedKeyword):
		return fmt.Sprintf("%s: %v: context key %q is owned by the library", e.Type, e.Rule, e.Field)
	default:
		return fmt.Sprintf("%s: %v: %s", e.Type, e.Rule, e.Field)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Rule
}
