package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLogRequestLevelFollowsStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{status: 200, level: "INFO"},
		{status: 404, level: "WARN"},
		{status: 503, level: "ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		LogRequest(context.Background(), NewLogger(&buf, "debug"), tc.status, slog.String("path", "/healthz"))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("log not valid JSON: %v", err)
		}
		if entry["level"] != tc.level {
			t.Fatalf("status %d: level=%v, want %s", tc.status, entry["level"], tc.level)
		}
		if entry["path"] != "/healthz" || entry["status"] != float64(tc.status) {
			t.Fatalf("unexpected fields: %v", entry)
		}
	}
}

func TestSetLoggerSwapsShared(t *testing.T) {
	var buf bytes.Buffer
	prev := SetLogger(NewLogger(&buf, "info"))
	defer SetLogger(prev)

	Logger().Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"hello"`)) {
		t.Fatalf("shared logger not replaced: %q", buf.String())
	}
}

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "usermanager-test", "")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
