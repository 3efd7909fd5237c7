// Package wire renders validated events into the canonical envelopes posted
// to the data plane.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kon-rad/rudder-analytics-go/document"
	"github.com/kon-rad/rudder-analytics-go/message"
)

const (
	LibraryName    = "RudderStack Go SDK"
	LibraryVersion = "1.0.0"

	// Channel is stamped on every envelope sent by this library.
	Channel = "server"

	BatchPath = "/v1/batch"
)

// LibraryContext returns a fresh copy of the library identity context that
// every outgoing context is built on.
func LibraryContext() document.Document {
	return document.Document{
		"library": map[string]any{
			"name":    LibraryName,
			"version": LibraryVersion,
		},
	}
}

// Path returns the data plane route for a single event of kind t.
func Path(t message.Type) string {
	return "/v1/" + string(t)
}

// Envelope is one event in wire form. Message carries the merged context and
// the resolved original timestamp; the remaining fields pass through as the
// caller set them.
type Envelope struct {
	Message message.Message
	SentAt  time.Time
	Channel string
}

type envelopeHeader struct {
	Type    message.Type `json:"type"`
	Channel string       `json:"channel"`
	SentAt  time.Time    `json:"sentAt"`
}

// ToWire never fails; msg must already have passed message.Validate.
func ToWire(msg message.Message, now time.Time) Envelope {
	ts := msg.Timestamp()
	if ts.IsZero() {
		ts = now
	}
	ctx := document.Merge(LibraryContext(), msg.Context())
	return Envelope{
		Message: message.WithContext(msg, ctx, ts),
		SentAt:  now,
		Channel: Channel,
	}
}

func (e Envelope) Type() message.Type {
	return e.Message.Type()
}

func (e Envelope) Path() string {
	return Path(e.Type())
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Message == nil {
		return nil, fmt.Errorf("marshal envelope: nil message")
	}
	body, err := json.Marshal(e.Message)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Type(), err)
	}
	header, err := json.Marshal(envelopeHeader{
		Type:    e.Type(),
		Channel: e.Channel,
		SentAt:  e.SentAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s header: %w", e.Type(), err)
	}
	return joinObjects(body, header), nil
}

// joinObjects concatenates the members of two encoded JSON objects whose keys
// do not overlap.
func joinObjects(a, b []byte) []byte {
	if bytes.Equal(a, []byte("{}")) {
		return b
	}
	if bytes.Equal(b, []byte("{}")) {
		return a
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a[:len(a)-1]...)
	out = append(out, ',')
	return append(out, b[1:]...)
}

// Batch is the envelope for several events submitted in one request. Context
// and Integrations encode as null when unset.
type Batch struct {
	Messages          []Envelope        `json:"batch"`
	Context           document.Document `json:"context"`
	Integrations      document.Document `json:"integrations"`
	OriginalTimestamp time.Time         `json:"originalTimestamp"`
	SentAt            time.Time         `json:"sentAt"`
}

// NewBatch stamps members with the shared context and a single batch-level
// timestamp pair taken at now.
func NewBatch(members []Envelope, ctx document.Document, now time.Time) Batch {
	if members == nil {
		members = []Envelope{}
	}
	return Batch{
		Messages:          members,
		Context:           ctx,
		OriginalTimestamp: now,
		SentAt:            now,
	}
}

func (b Batch) Path() string {
	return BatchPath
}

func (b Batch) MarshalJSON() ([]byte, error) {
	type batchFields Batch
	return json.Marshal(struct {
		batchFields
		Type string `json:"type"`
	}{batchFields(b), "batch"})
}
