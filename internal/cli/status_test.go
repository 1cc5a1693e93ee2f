package cli

import (
	"bytes"
	stdcontext "context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wasmvisor/wasmvisor/internal/api"
)

func TestFetchStatus(t *testing.T) {
	report := api.StatusReport{
		GeneratedAt: time.Unix(1000, 0).UTC(),
		ActiveTasks: 2,
		Processes: []api.ProcessReport{
			{PID: 1, Module: "abcdef01", State: "running", Threads: []api.ThreadReport{{TID: 1, Main: true}}},
			{PID: 2, PPID: 1, Module: "deadbeef", State: "exited", ExitCode: 3},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	got, err := fetchStatus(stdcontext.Background(), addr)
	if err != nil {
		t.Fatalf("fetchStatus: %v", err)
	}
	if got.ActiveTasks != 2 || len(got.Processes) != 2 {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestFetchStatusRejectsErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if _, err := fetchStatus(stdcontext.Background(), addr); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestStatusCommandRendersTable(t *testing.T) {
	report := api.StatusReport{
		GeneratedAt: time.Unix(1000, 0).UTC(),
		ActiveTasks: 3,
		Processes: []api.ProcessReport{
			{PID: 7, Module: "abcdef01", State: "running", Threads: []api.ThreadReport{{TID: 7, Main: true}}},
			{PID: 9, PPID: 7, Module: "deadbeef", State: "exited", ExitCode: 5},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"status", "--addr", strings.TrimPrefix(srv.URL, "http://")})

	if err := root.Execute(); err != nil {
		t.Fatalf("status command failed: %v", err)
	}

	rendered := out.String()
	for _, want := range []string{"PID", "abcdef01", "running", "exited", "Active tasks: 3"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, rendered)
		}
	}
}

func TestRenderStatusFormats(t *testing.T) {
	report := &api.StatusReport{
		GeneratedAt: time.Unix(1000, 0).UTC(),
		ActiveTasks: 1,
		Processes: []api.ProcessReport{
			{PID: 4, Module: "abcdef01", State: "running"},
		},
	}

	var buf bytes.Buffer
	if err := renderStatus(&buf, report, "yaml"); err != nil {
		t.Fatalf("renderStatus yaml: %v", err)
	}
	for _, want := range []string{"active_tasks: 1", "pid: 4", "state: running"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected yaml output to contain %q, got:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := renderStatus(&buf, report, "json"); err != nil {
		t.Fatalf("renderStatus json: %v", err)
	}
	var decoded api.StatusReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output did not round-trip: %v", err)
	}
	if decoded.ActiveTasks != 1 || len(decoded.Processes) != 1 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := renderStatus(&buf, report, "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
