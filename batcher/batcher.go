// Package batcher accumulates wire-ready events into size-bounded batches.
//
// A Batcher has a single owner. It is not safe for concurrent use; callers
// that share a stream between goroutines must serialize access themselves or
// run one Batcher per goroutine.
//
//	b, _ := batcher.New(nil)
//	for _, msg := range msgs {
//		rejected, err := b.Accept(msg)
//		if err != nil {
//			// invalid or too large to ever send
//			continue
//		}
//		if rejected != nil {
//			send(b.Finalize())
//			b, _ = batcher.New(nil)
//			_, _ = b.Accept(rejected)
//		}
//	}
//	send(b.Finalize())
package batcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kon-rad/rudder-analytics-go/document"
	"github.com/kon-rad/rudder-analytics-go/message"
	"github.com/kon-rad/rudder-analytics-go/wire"
)

const (
	MaxMessageSize = 32 * 1024
	MaxBatchSize   = 512 * 1024
)

var (
	ErrMessageTooLarge = errors.New("message too large")

	// ErrFinalized is the panic value raised when a Batcher is used after
	// Finalize.
	ErrFinalized = errors.New("batcher: use after finalize")
)

// SizeError reports a serialized event that exceeds the per-message ceiling.
type SizeError struct {
	Type  message.Type
	Size  int
	Limit int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %v: %d bytes exceeds limit of %d", e.Type, ErrMessageTooLarge, e.Size, e.Limit)
}

func (e *SizeError) Unwrap() error {
	return ErrMessageTooLarge
}

type Batcher struct {
	buf       []wire.Envelope
	byteCount int
	context   document.Document
	now       func() time.Time
	finalized bool
}

type Option func(*Batcher)

// WithClock replaces time.Now for timestamping accepted events and the
// finalized batch.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) {
		b.now = now
	}
}

// New returns an empty Batcher. sharedContext, when non-nil, is stamped on the
// finalized batch and used as the weaker overlay under each event's own
// context. It is subject to the same reserved-key rule as event contexts.
func New(sharedContext document.Document, opts ...Option) (*Batcher, error) {
	if key, ok := message.ReservedKeyConflict(sharedContext); ok {
		return nil, &message.ValidationError{Type: "batch", Rule: message.ErrReservedKeyword, Field: key}
	}
	b := &Batcher{
		context: document.Clone(sharedContext),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Accept validates msg, renders it to wire form and appends it to the
// buffer.
//
// It returns (nil, nil) when msg was accepted. It returns (msg, nil) when
// accepting msg would push the batch past MaxBatchSize; msg is handed back
// untouched and the caller should finalize this Batcher and retry msg on a
// new one. Validation failures and messages larger than MaxMessageSize are
// returned as errors and leave the buffer unchanged.
func (b *Batcher) Accept(msg message.Message) (message.Message, error) {
	if b.finalized {
		panic(ErrFinalized)
	}
	if err := message.Validate(msg); err != nil {
		return nil, err
	}

	owned := message.Clone(msg)
	if b.context != nil {
		owned = message.WithContext(owned, document.Merge(b.context, owned.Context()), owned.Timestamp())
	}
	env := wire.ToWire(owned, b.now())

	size, err := encodedSize(env)
	if err != nil {
		return nil, err
	}
	if size > MaxMessageSize {
		return nil, &SizeError{Type: msg.Type(), Size: size, Limit: MaxMessageSize}
	}

	// Each member costs one extra byte for its separator in the batch list.
	projected := b.byteCount + size + 1
	if projected > MaxBatchSize {
		return msg, nil
	}

	b.byteCount = projected
	b.buf = append(b.buf, env)
	return nil, nil
}

// Finalize consumes the Batcher and returns its batch. The batch-level
// timestamps are taken now; members keep the timestamps from Accept.
func (b *Batcher) Finalize() wire.Batch {
	if b.finalized {
		panic(ErrFinalized)
	}
	b.finalized = true
	out := wire.NewBatch(b.buf, b.context, b.now())
	b.buf = nil
	return out
}

// Len is the number of accepted events.
func (b *Batcher) Len() int {
	return len(b.buf)
}

// Size is the running byte count: the encoded size of every accepted event
// plus one separator byte each.
func (b *Batcher) Size() int {
	return b.byteCount
}

func (b *Batcher) Empty() bool {
	return len(b.buf) == 0
}

func encodedSize(env wire.Envelope) (int, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", env.Type(), err)
	}
	return len(raw), nil
}
