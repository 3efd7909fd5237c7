package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/kon-rad/rudder-analytics-go/document"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.DataPlaneURL != "https://hosted.rudderlabs.com" {
		t.Fatalf("data plane url = %q", cfg.DataPlaneURL)
	}
	if cfg.FlushInterval != 10*time.Second || cfg.FlushMaxEvents != 10 {
		t.Fatalf("flush defaults = %s/%d, want 10s/10", cfg.FlushInterval, cfg.FlushMaxEvents)
	}
	if !cfg.Gzip {
		t.Fatalf("gzip should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"RUDDER_WRITE_KEY":        "wk",
		"RUDDER_FLUSH_INTERVAL":   "250ms",
		"RUDDER_FLUSH_MAX_EVENTS": "3",
		"RUDDER_GZIP":             "false",
	}))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.WriteKey != "wk" || cfg.FlushInterval != 250*time.Millisecond || cfg.FlushMaxEvents != 3 || cfg.Gzip {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsNonPositiveFlushSize(t *testing.T) {
	t.Parallel()

	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"RUDDER_FLUSH_MAX_EVENTS": "0",
	}))
	if err == nil {
		t.Fatalf("expected error for zero flush size")
	}
}

func TestSharedContextFromYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "context.yaml")
	body := "app:\n  name: shop\n  build: 42\nlocale: en-US\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg := &Config{SharedContextFile: path}
	doc, err := cfg.SharedContext()
	if err != nil {
		t.Fatalf("SharedContext() error = %v", err)
	}
	if doc["locale"] != "en-US" {
		t.Fatalf("locale = %v", doc["locale"])
	}
	if want := (document.Document{"name": "shop", "build": 42}); !document.Equal(want, asDocument(doc["app"])) {
		t.Fatalf("unexpected app context: %#v", doc["app"])
	}
}

func asDocument(v any) document.Document {
	switch o := v.(type) {
	case document.Document:
		return o
	case map[string]any:
		return o
	default:
		return nil
	}
}

func TestSharedContextUnset(t *testing.T) {
	t.Parallel()

	doc, err := (&Config{}).SharedContext()
	if err != nil || doc != nil {
		t.Fatalf("SharedContext() = %v, %v; want nil, nil", doc, err)
	}
}

func TestParseSharedContextRejectsList(t *testing.T) {
	t.Parallel()

	if _, err := ParseSharedContext([]byte("- a\n- b\n")); err == nil {
		t.Fatalf("expected error for non-mapping yaml")
	}
}

func TestWriteHelpListsVariables(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	WriteHelp(&buf, "v1")
	for _, name := range []string{"RUDDER_WRITE_KEY", "RUDDER_FLUSH_INTERVAL", "RUDDER_SHARED_CONTEXT_FILE"} {
		if !strings.Contains(buf.String(), name) {
			t.Fatalf("help missing %s", name)
		}
	}
}
