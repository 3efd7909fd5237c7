// Package push delivers wire envelopes and batches to the data plane over
// HTTP.
package push

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/kon-rad/rudder-analytics-go/wire"
)

const (
	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
)

// Delivery is one POST to the data plane, after retries.
type Delivery struct {
	DeliveryID   string
	CreatedAt    int64
	Path         string
	Status       string
	StatusCode   int
	Events       int
	Bytes        int
	Attempts     int
	ErrorMessage string
	DurationMS   int64
}

// Recorder receives one entry per delivery, successful or not.
type Recorder interface {
	RecordDelivery(ctx context.Context, d Delivery) error
}

type Result struct {
	DeliveryID string
	StatusCode int
	Attempts   int
	Events     int
	Bytes      int
}

// StatusError is a non-2xx answer from the data plane.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push status %d", e.StatusCode)
	}
	return fmt.Sprintf("push status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

type Pusher struct {
	endpoint    string
	writeKey    string
	httpClient  *http.Client
	gzip        bool
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	recorder    Recorder
	logger      *slog.Logger
}

type Option func(*Pusher)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Pusher) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func WithGzip(enabled bool) Option {
	return func(p *Pusher) {
		p.gzip = enabled
	}
}

func WithRetries(maxRetries int, baseBackoff time.Duration) Option {
	return func(p *Pusher) {
		if maxRetries < 1 {
			maxRetries = 1
		}
		p.maxRetries = maxRetries
		p.baseBackoff = baseBackoff
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Pusher) {
		p.recorder = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pusher) {
		p.logger = logger
	}
}

// New returns a Pusher posting to dataPlaneURL, authenticating with
// writeKey as the basic-auth user and an empty password.
func New(dataPlaneURL, writeKey string, opts ...Option) *Pusher {
	p := &Pusher{
		endpoint:    strings.TrimRight(dataPlaneURL, "/"),
		writeKey:    writeKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  5,
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send posts a single event to its per-kind route.
func (p *Pusher) Send(ctx context.Context, env wire.Envelope) (Result, error) {
	return p.post(ctx, env.Path(), env, 1)
}

// SendBatch posts a finalized batch to /v1/batch. An empty batch is not sent.
func (p *Pusher) SendBatch(ctx context.Context, batch wire.Batch) (Result, error) {
	if len(batch.Messages) == 0 {
		return Result{}, nil
	}
	return p.post(ctx, batch.Path(), batch, len(batch.Messages))
}

func (p *Pusher) post(ctx context.Context, path string, payload any, events int) (Result, error) {
	if p.endpoint == "" {
		return Result{}, errors.New("data plane url not configured")
	}
	if p.writeKey == "" {
		return Result{}, errors.New("write key not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode payload: %w", err)
	}
	res := Result{
		DeliveryID: uuid.NewString(),
		Events:     events,
		Bytes:      len(body),
	}
	if p.gzip {
		if body, err = compress(body); err != nil {
			return res, err
		}
	}

	started := time.Now()
	res.StatusCode, res.Attempts, err = p.sendWithRetry(ctx, p.endpoint+path, body)
	p.record(ctx, path, res, started, err)
	if err != nil {
		p.logger.Warn("delivery failed",
			"path", path,
			"delivery_id", res.DeliveryID,
			"events", events,
			"attempts", res.Attempts,
			"error", err,
		)
		return res, err
	}
	p.logger.Debug("delivered",
		"path", path,
		"delivery_id", res.DeliveryID,
		"events", events,
		"size", humanize.Bytes(uint64(res.Bytes)),
	)
	return res, nil
}

func (p *Pusher) record(ctx context.Context, path string, res Result, started time.Time, sendErr error) {
	if p.recorder == nil {
		return
	}
	d := Delivery{
		DeliveryID: res.DeliveryID,
		CreatedAt:  started.UnixMilli(),
		Path:       path,
		Status:     DeliveryOK,
		StatusCode: res.StatusCode,
		Events:     res.Events,
		Bytes:      res.Bytes,
		Attempts:   res.Attempts,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if sendErr != nil {
		d.Status = DeliveryFailed
		d.ErrorMessage = sendErr.Error()
	}
	// The request context may already be cancelled; the log entry is still
	// wanted.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := p.recorder.RecordDelivery(recCtx, d); err != nil {
		p.logger.Warn("record delivery failed", "delivery_id", res.DeliveryID, "error", err)
	}
}

func (p *Pusher) sendWithRetry(ctx context.Context, url string, body []byte) (statusCode int, attempts int, err error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		attempts = attempt + 1
		statusCode, err = p.do(ctx, url, body)
		if err == nil {
			return statusCode, attempts, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return statusCode, attempts, err
		}
		if attempt == p.maxRetries-1 {
			break
		}

		maxSleep := p.baseBackoff * time.Duration(1<<attempt)
		if maxSleep > p.maxBackoff {
			maxSleep = p.maxBackoff
		}
		sleep := time.Duration(rand.Int64N(int64(maxSleep) + 1))
		select {
		case <-ctx.Done():
			return statusCode, attempts, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return statusCode, attempts, fmt.Errorf("push failed after %d attempts: %w", attempts, lastErr)
}

func (p *Pusher) do(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.SetBasicAuth(p.writeKey, "")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("gzip payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip payload: %w", err)
	}
	return buf.Bytes(), nil
}
