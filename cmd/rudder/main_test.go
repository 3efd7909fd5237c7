package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kon-rad/rudder-analytics-go/batcher"
	"github.com/kon-rad/rudder-analytics-go/message"
)

type request struct {
	path string
	user string
	body map[string]any
}

type upstream struct {
	mu       sync.Mutex
	requests []request
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "bad gzip", http.StatusBadRequest)
			return
		}
		reader = zr
	}
	var body map[string]any
	if err := json.NewDecoder(reader).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	user, _, _ := r.BasicAuth()
	u.mu.Lock()
	u.requests = append(u.requests, request{path: r.URL.Path, user: user, body: body})
	u.mu.Unlock()
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrackCommandPostsEnvelope(t *testing.T) {
	u := &upstream{}
	srv := httptest.NewServer(u)
	defer srv.Close()

	out, err := run(t, `{"userId":"u-1","event":"Signed Up","properties":{"plan":"pro"}}`,
		"track", "--write-key", "wk", "--data-plane-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "sent track to /v1/track")

	require.Len(t, u.requests, 1)
	got := u.requests[0]
	assert.Equal(t, "/v1/track", got.path)
	assert.Equal(t, "wk", got.user)
	assert.Equal(t, "track", got.body["type"])
	assert.Equal(t, "server", got.body["channel"])
	ctx, ok := got.body["context"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, ctx, "library")
}

func TestIdentifyAnonymousFlag(t *testing.T) {
	u := &upstream{}
	srv := httptest.NewServer(u)
	defer srv.Close()

	_, err := run(t, `{"traits":{"email":"a@example.com"}}`,
		"identify", "--anonymous", "--write-key", "wk", "--data-plane-url", srv.URL)
	require.NoError(t, err)
	require.Len(t, u.requests, 1)
	id, _ := u.requests[0].body["anonymousId"].(string)
	assert.Len(t, id, 36)
}

func TestKindCommandReportsValidationError(t *testing.T) {
	u := &upstream{}
	srv := httptest.NewServer(u)
	defer srv.Close()

	_, err := run(t, `{"traits":{"email":"a@example.com"}}`,
		"identify", "--write-key", "wk", "--data-plane-url", srv.URL)
	require.ErrorIs(t, err, message.ErrMissingIdentity)
	assert.Empty(t, u.requests)
}

func TestBatchCommandSplitsAtCeiling(t *testing.T) {
	u := &upstream{}
	srv := httptest.NewServer(u)
	defer srv.Close()

	blob := strings.Repeat("x", 30*1024)
	var lines strings.Builder
	const total = 25
	for i := 0; i < total; i++ {
		fmt.Fprintf(&lines, `{"type":"track","userId":"u-%d","event":"Bulk","properties":{"blob":%q}}`+"\n", i, blob)
	}
	lines.WriteString("\n")

	out, err := run(t, lines.String(), "batch", "--write-key", "wk", "--data-plane-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("sent %d events in 2 batches", total))

	u.mu.Lock()
	defer u.mu.Unlock()
	require.Len(t, u.requests, 2)
	seen := 0
	for _, r := range u.requests {
		assert.Equal(t, "/v1/batch", r.path)
		assert.Equal(t, "batch", r.body["type"])
		members, ok := r.body["batch"].([]any)
		require.True(t, ok)
		seen += len(members)
	}
	assert.Equal(t, total, seen)
}

func TestPackLinesRejectsBadLine(t *testing.T) {
	_, err := packLines(strings.NewReader(`{"type":"track","userId":"u","event":"ok"}`+"\n"+`{"type":"track","event":"anon"}`), nil)
	require.ErrorIs(t, err, message.ErrMissingIdentity)
	assert.Contains(t, err.Error(), "line 2")

	_, err = packLines(strings.NewReader(`{"type":"unknown"}`), nil)
	require.ErrorIs(t, err, message.ErrUnknownType)
}

func TestPackLinesKeepsOrderAcrossBatches(t *testing.T) {
	blob := strings.Repeat("y", 31*1024)
	var lines strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&lines, `{"type":"page","userId":"u-%d","name":"P","properties":{"blob":%q}}`+"\n", i, blob)
	}

	batches, err := packLines(strings.NewReader(lines.String()), nil)
	require.NoError(t, err)
	require.Greater(t, len(batches), 2)

	next := 0
	for _, b := range batches {
		raw, err := json.Marshal(b.Messages)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(raw), batcher.MaxBatchSize+1)
		for _, env := range b.Messages {
			assert.Equal(t, fmt.Sprintf("u-%d", next), env.Message.(message.Page).UserID)
			next++
		}
	}
	assert.Equal(t, 40, next)
}

func TestEnvCommandPrintsVariables(t *testing.T) {
	out, err := run(t, "", "env")
	require.NoError(t, err)
	assert.Contains(t, out, "RUDDER_WRITE_KEY")
	assert.Contains(t, out, "RUDDER_DATA_PLANE_URL")
}
