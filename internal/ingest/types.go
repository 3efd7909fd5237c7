package ingest

import (
	"errors"
	"time"

	"github.com/kon-rad/rudder-analytics-go/batcher"
	"github.com/kon-rad/rudder-analytics-go/message"
)

const (
	QueueCapacity = 1024

	DefaultFlushInterval  = 10 * time.Second
	DefaultFlushMaxEvents = 10
	DefaultFlushTimeout   = 2 * time.Minute
)

// Rejection reasons, as stored in the delivery log.
const (
	ReasonMissingIdentity = "missing_identity"
	ReasonMissingField    = "missing_field"
	ReasonReservedKeyword = "reserved_keyword"
	ReasonTooLarge        = "message_too_large"
	ReasonUnknown         = "invalid"
)

// RejectionReason classifies an error returned by batcher.Accept or
// message.Validate.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, message.ErrMissingIdentity):
		return ReasonMissingIdentity
	case errors.Is(err, message.ErrMissingField):
		return ReasonMissingField
	case errors.Is(err, message.ErrReservedKeyword):
		return ReasonReservedKeyword
	case errors.Is(err, batcher.ErrMessageTooLarge):
		return ReasonTooLarge
	default:
		return ReasonUnknown
	}
}

// TryEnqueue hands msg to the worker without blocking. It reports false when
// the queue is full.
func TryEnqueue(ch chan<- message.Message, msg message.Message) bool {
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
