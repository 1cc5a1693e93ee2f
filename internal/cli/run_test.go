package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/wasmvisor/wasmvisor/internal/cliutil"
)

const runManifest = `plane:
  async_threading: true
workloads:
  burst:
    module: burst.wasm
    threads: 2
    lifespan: 20ms
    exit_code: 0
`

func TestRunCommandStreamsEventsUntilCompletion(t *testing.T) {
	path := writeManifest(t, runManifest)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--file", path, "run", "--json"})

	if err := root.Execute(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var sawStart, sawExit bool
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var record cliutil.LogRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("expected JSON log line, got %q: %v", line, err)
		}
		switch record.Event {
		case "thread-started":
			sawStart = true
		case "thread-exited":
			sawExit = true
		}
	}
	if !sawStart || !sawExit {
		t.Fatalf("expected thread lifecycle events, got:\n%s", out.String())
	}
}

func TestRunCommandStartsAPIServer(t *testing.T) {
	path := writeManifest(t, runManifest)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--file", path, "run", "--json", "--api", "127.0.0.1:0"})

	if err := root.Execute(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Control API listening on") {
		t.Fatalf("expected API listen banner, got:\n%s", out.String())
	}
}

func TestRunCommandRejectsMissingManifest(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--file", "does-not-exist.yaml", "run"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}
