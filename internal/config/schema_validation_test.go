package config

import (
	"strings"
	"testing"
)

func TestSchemaRejectsWrongTypes(t *testing.T) {
	_, err := Parse(strings.NewReader("plane:\n  max_tasks: many\n"))
	if err == nil {
		t.Fatal("non-integer max_tasks accepted")
	}
	if !strings.Contains(err.Error(), "plane.max_tasks") {
		t.Fatalf("expected error to name the offending field, got %v", err)
	}
}

func TestSchemaRejectsMalformedDuration(t *testing.T) {
	_, err := Parse(strings.NewReader("workloads:\n  w:\n    module: m\n    lifespan: fast\n"))
	if err == nil {
		t.Fatal("malformed duration accepted")
	}
}

func TestFormatInstanceLocation(t *testing.T) {
	cases := map[string]string{
		"":                         "manifest",
		"/":                        "manifest",
		"/plane/max_tasks":         "plane.max_tasks",
		"/workloads/w/intervals/0": "workloads.w.intervals[0]",
		"/workloads/a~1b/module":   "workloads.a/b.module",
	}
	for ptr, want := range cases {
		if got := formatInstanceLocation(ptr); got != want {
			t.Fatalf("formatInstanceLocation(%q) = %q, want %q", ptr, got, want)
		}
	}
}
