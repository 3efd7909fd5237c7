package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/kon-rad/rudder-analytics-go/batcher"
	"github.com/kon-rad/rudder-analytics-go/document"
	"github.com/kon-rad/rudder-analytics-go/message"
)

// maxRequestBytes bounds what is read from a request body. Anything between
// batcher.MaxMessageSize and this limit is parsed and refused with 413.
const maxRequestBytes = 1 << 20

type IngestEnqueuer interface {
	Enqueue(msg message.Message) bool
}

type IngestHandlers struct {
	enqueuer IngestEnqueuer
	shared   document.Document
}

// NewIngestHandlers returns handlers that check events against the same
// shared context the flush worker stamps on its batches.
func NewIngestHandlers(enqueuer IngestEnqueuer, shared document.Document) *IngestHandlers {
	return &IngestHandlers{enqueuer: enqueuer, shared: shared}
}

// Post returns the handler for POST /v1/<t>.
func (h *IngestHandlers) Post(t message.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}

		msg, err := message.Decode(t, body)
		if err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := h.check(msg); err != nil {
			if errors.Is(err, batcher.ErrMessageTooLarge) {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !h.enqueuer.Enqueue(msg) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "queue full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// check runs msg through a scratch Batcher so the caller hears about
// validation and size failures before the event is queued.
func (h *IngestHandlers) check(msg message.Message) error {
	probe, err := batcher.New(h.shared)
	if err != nil {
		return err
	}
	_, err = probe.Accept(msg)
	return err
}
