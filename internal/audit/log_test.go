package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"credence.dev/internal/auth"
	"credence.dev/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, &auth.Principal{
		Kind: auth.TypeUser,
		User: &auth.User{ID: "user-42"},
	})

	if err := LogEvent(ctx, "auth.login", map[string]any{"email": "alice@example.com"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "auth.login" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["subject"] != "user-42" {
		t.Fatalf("unexpected subject: %v", entry["subject"])
	}
	if entry["subject_type"] != "user" {
		t.Fatalf("unexpected subject type: %v", entry["subject_type"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["email"] != "alice@example.com" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
