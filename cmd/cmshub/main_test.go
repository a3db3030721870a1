package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/integrations"
	"github.com/cmshub/cmshub/internal/store"
)

func TestEmitCommandError_StructuredForScopedCommands(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "cmshub serve",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["app"]; got != "cmshub" {
		t.Fatalf("app = %v, want %q", got, "cmshub")
	}
	if got := payload["command"]; got != "cmshub serve" {
		t.Fatalf("command = %v, want %q", got, "cmshub serve")
	}
	if got := payload["exit_code"]; got != float64(1) {
		t.Fatalf("exit_code = %v, want %v", got, 1)
	}
	if got := payload["error"]; got != "boom" {
		t.Fatalf("error = %v, want %q", got, "boom")
	}
}

func TestEmitCommandError_FallsBackToJSONWhenLoggingEnvInvalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "invalid")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "cmshub integrations fetch",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("expected JSON fallback log, got parse error: %v", err)
	}
}

func TestEmitCommandError_PlainOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "cmshub drivers list",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("plain boom"), "command failed", 1, &out)
	if got := out.String(); got != "plain boom\n" {
		t.Fatalf("output = %q, want %q", got, "plain boom\n")
	}
}

func TestEmitCommandError_CanceledOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "cmshub drivers list",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(context.Canceled, "command canceled", 130, &out)
	if got := out.String(); got != "canceled\n" {
		t.Fatalf("output = %q, want %q", got, "canceled\n")
	}
}

func TestRunMainExitCodes(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{CommandPath: "cmshub drivers describe"})
	t.Cleanup(resetCommandExecutionContext)

	tests := []struct {
		name    string
		err     error
		want    int
		wantOut string
	}{
		{name: "ok", err: nil, want: 0},
		{name: "plain", err: errors.New("boom"), want: 1, wantOut: "boom\n"},
		{name: "canceled", err: fmt.Errorf("fetch: %w", context.Canceled), want: 130, wantOut: "canceled\n"},
		{name: "exit error", err: notFoundError(errors.New("driver not found")), want: 2, wantOut: "driver not found\n"},
		{name: "silent", err: negativeResult(), want: 3},
		{name: "unknown endpoint", err: registry.UnsupportedEndpoint("onec", "invoices"), want: 2, wantOut: "onec: unsupported endpoint \"invoices\"\n"},
		{name: "missing integration", err: fmt.Errorf("load: %w", store.ErrNotFound), want: 2, wantOut: "load: " + store.ErrNotFound.Error() + "\n"},
		{name: "inactive integration", err: integrations.ErrInactiveIntegration, want: 2, wantOut: integrations.ErrInactiveIntegration.Error() + "\n"},
	}
	for _, test := range tests {
		var out bytes.Buffer
		got := runMain(func() error { return test.err }, &out)
		if got != test.want {
			t.Fatalf("%s: runMain() = %d, want %d", test.name, got, test.want)
		}
		if out.String() != test.wantOut {
			t.Fatalf("%s: output = %q, want %q", test.name, out.String(), test.wantOut)
		}
	}
}
