// Package message defines the analytics events accepted from application
// code and the validation rules an event must pass before it is sent.
package message

import (
	"time"

	"github.com/kon-rad/rudder-analytics-go/document"
)

// Type is the lowercase event kind used as the wire discriminator.
type Type string

const (
	TypeIdentify Type = "identify"
	TypeTrack    Type = "track"
	TypePage     Type = "page"
	TypeScreen   Type = "screen"
	TypeGroup    Type = "group"
	TypeAlias    Type = "alias"
)

// Types lists every event kind that may be sent, alone or inside a batch.
var Types = []Type{TypeIdentify, TypeTrack, TypePage, TypeScreen, TypeGroup, TypeAlias}

// Message is one of Identify, Track, Page, Screen, Group or Alias. The set is
// closed; batches are built by the batcher and never nest.
type Message interface {
	Type() Type

	// Context is the caller-supplied context, before any merge.
	Context() document.Document
	// Timestamp is the caller-supplied original timestamp; zero when unset.
	Timestamp() time.Time

	// withContext returns a copy carrying ctx and ts.
	withContext(ctx document.Document, ts time.Time) Message
	clone() Message
	identity() (userID, anonymousID string)
}

// Identify ties a user to their traits.
type Identify struct {
	UserID            string            `json:"userId,omitempty"`
	AnonymousID       string            `json:"anonymousId,omitempty"`
	Traits            document.Document `json:"traits,omitempty"`
	OriginalTimestamp time.Time         `json:"originalTimestamp,omitzero"`
	ContextDoc        document.Document `json:"context,omitempty"`
	Integrations      document.Document `json:"integrations,omitempty"`
}

// Track records an action the user performed.
type Track struct {
	UserID            string            `json:"userId,omitempty"`
	AnonymousID       string            `json:"anonymousId,omitempty"`
	Event             string            `json:"event"`
	Properties        document.Document `json:"properties,omitempty"`
	OriginalTimestamp time.Time         `json:"originalTimestamp,omitzero"`
	ContextDoc        document.Document `json:"context,omitempty"`
	Integrations      document.Document `json:"integrations,omitempty"`
}

// Page records a web page view.
type Page struct {
	UserID            string            `json:"userId,omitempty"`
	AnonymousID       string            `json:"anonymousId,omitempty"`
	Name              string            `json:"name"`
	Properties        document.Document `json:"properties,omitempty"`
	OriginalTimestamp time.Time         `json:"originalTimestamp,omitzero"`
	ContextDoc        document.Document `json:"context,omitempty"`
	Integrations      document.Document `json:"integrations,omitempty"`
}

// Screen records a mobile screen view.
type Screen struct {
	UserID            string            `json:"userId,omitempty"`
	AnonymousID       string            `json:"anonymousId,omitempty"`
	Name              string            `json:"name"`
	Properties        document.Document `json:"properties,omitempty"`
	OriginalTimestamp time.Time         `json:"originalTimestamp,omitzero"`
	ContextDoc        document.Document `json:"context,omitempty"`
	Integrations      document.Document `json:"integrations,omitempty"`
}

// Group associates a user with a group.
type Group struct {
	UserID            string            `json:"userId,omitempty"`
	AnonymousID       string            `json:"anonymousId,omitempty"`
	GroupID           string            `json:"groupId"`
	Traits            document.Document `json:"traits,omitempty"`
	OriginalTimestamp time.Time         `json:"originalTimestamp,omitzero"`
	ContextDoc        document.Document `json:"context,omitempty"`
	Integrations      document.Document `json:"integrations,omitempty"`
}

// Alias merges a previous identity into UserID. Both ids are required and
// there is no anonymous id fallback.
type Alias struct {
	UserID            string            `json:"userId"`
	PreviousID        string            `json:"previousId"`
	Traits            document.Document `json:"traits,omitempty"`
	OriginalTimestamp time.Time         `json:"originalTimestamp,omitzero"`
	ContextDoc        document.Document `json:"context,omitempty"`
	Integrations      document.Document `json:"integrations,omitempty"`
}

func (Identify) Type() Type { return TypeIdentify }
func (Track) Type() Type    { return TypeTrack }
func (Page) Type() Type     { return TypePage }
func (Screen) Type() Type   { return TypeScreen }
func (Group) Type() Type    { return TypeGroup }
func (Alias) Type() Type    { return TypeAlias }

func (m Identify) Context() document.Document { return m.ContextDoc }
func (m Track) Context() document.Document    { return m.ContextDoc }
func (m Page) Context() document.Document     { return m.ContextDoc }
func (m Screen) Context() document.Document   { return m.ContextDoc }
func (m Group) Context() document.Document    { return m.ContextDoc }
func (m Alias) Context() document.Document    { return m.ContextDoc }

func (m Identify) Timestamp() time.Time { return m.OriginalTimestamp }
func (m Track) Timestamp() time.Time    { return m.OriginalTimestamp }
func (m Page) Timestamp() time.Time     { return m.OriginalTimestamp }
func (m Screen) Timestamp() time.Time   { return m.OriginalTimestamp }
func (m Group) Timestamp() time.Time    { return m.OriginalTimestamp }
func (m Alias) Timestamp() time.Time    { return m.OriginalTimestamp }

func (m Identify) identity() (string, string) { return m.UserID, m.AnonymousID }
func (m Track) identity() (string, string)    { return m.UserID, m.AnonymousID }
func (m Page) identity() (string, string)     { return m.UserID, m.AnonymousID }
func (m Screen) identity() (string, string)   { return m.UserID, m.AnonymousID }
func (m Group) identity() (string, string)    { return m.UserID, m.AnonymousID }
func (m Alias) identity() (string, string)    { return m.UserID, "" }

func (m Identify) withContext(ctx document.Document, ts time.Time) Message {
	m.ContextDoc, m.OriginalTimestamp = ctx, ts
	return m
}

func (m Track) withContext(ctx document.Document, ts time.Time) Message {
	m.ContextDoc, m.OriginalTimestamp = ctx, ts
	return m
}

func (m Page) withContext(ctx document.Document, ts time.Time) Message {
	m.ContextDoc, m.OriginalTimestamp = ctx, ts
	return m
}

func (m Screen) withContext(ctx document.Document, ts time.Time) Message {
	m.ContextDoc, m.OriginalTimestamp = ctx, ts
	return m
}

func (m Group) withContext(ctx document.Document, ts time.Time) Message {
	m.ContextDoc, m.OriginalTimestamp = ctx, ts
	return m
}

func (m Alias) withContext(ctx document.Document, ts time.Time) Message {
	m.ContextDoc, m.OriginalTimestamp = ctx, ts
	return m
}

// WithContext returns a copy of msg carrying ctx as its context and ts as
// its original timestamp. msg itself is left untouched.
func WithContext(msg Message, ctx document.Document, ts time.Time) Message {
	return msg.withContext(ctx, ts)
}

func (m Identify) clone() Message {
	m.Traits, m.ContextDoc, m.Integrations = document.Clone(m.Traits), document.Clone(m.ContextDoc), document.Clone(m.Integrations)
	return m
}

func (m Track) clone() Message {
	m.Properties, m.ContextDoc, m.Integrations = document.Clone(m.Properties), document.Clone(m.ContextDoc), document.Clone(m.Integrations)
	return m
}

func (m Page) clone() Message {
	m.Properties, m.ContextDoc, m.Integrations = document.Clone(m.Properties), document.Clone(m.ContextDoc), document.Clone(m.Integrations)
	return m
}

func (m Screen) clone() Message {
	m.Properties, m.ContextDoc, m.Integrations = document.Clone(m.Properties), document.Clone(m.ContextDoc), document.Clone(m.Integrations)
	return m
}

func (m Group) clone() Message {
	m.Traits, m.ContextDoc, m.Integrations = document.Clone(m.Traits), document.Clone(m.ContextDoc), document.Clone(m.Integrations)
	return m
}

func (m Alias) clone() Message {
	m.Traits, m.ContextDoc, m.Integrations = document.Clone(m.Traits), document.Clone(m.ContextDoc), document.Clone(m.Integrations)
	return m
}

// Clone returns a deep copy of msg; no document is shared with the original.
func Clone(msg Message) Message {
	return msg.clone()
}
