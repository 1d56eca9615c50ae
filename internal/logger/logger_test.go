package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("not json: %v (%q)", err, b)
	}
	return m
}

func TestSlog_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", Service: "poi-cache"}, &buf)
	log := NewSlog(&zl).With("component", "pipeline")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCacheOutcome(ctx, "miss")
	log.InfoContext(ctx, "resolved", "features", 3, "took", 5*time.Millisecond, "err", errors.New("boom"))

	m := decodeLine(t, buf.Bytes())
	if m["msg"] != "resolved" || m["level"] != "info" {
		t.Fatalf("unexpected envelope: %v", m)
	}
	for k, want := range map[string]any{
		"request_id":    "req-1",
		"cache_outcome": "miss",
		"service":       "poi-cache",
		"component":     "pipeline",
		"features":      3.0,
		"err":           "boom",
	} {
		if m[k] != want {
			t.Fatalf("%s: got %v want %v", k, m[k], want)
		}
	}
	if _, ok := m["timestamp"]; !ok {
		t.Fatal("missing timestamp")
	}
}

func TestSlog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	t.Cleanup(func() { Build(Config{Level: "info"}, &bytes.Buffer{}) })
	log := NewSlog(&zl)

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	log.Warn("kept")
	if m := decodeLine(t, buf.Bytes()); m["level"] != "warn" {
		t.Fatalf("level: %v", m["level"])
	}
}

func TestSlog_Groups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug"}, &buf)
	t.Cleanup(func() { Build(Config{Level: "info"}, &bytes.Buffer{}) })
	NewSlog(&zl).WithGroup("fetch").Debug("sub", "included", "cafe")

	m := decodeLine(t, buf.Bytes())
	if m["fetch.included"] != "cafe" {
		t.Fatalf("group prefix missing: %v", m)
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("want 16 hex chars, got %q", id)
	}
}
