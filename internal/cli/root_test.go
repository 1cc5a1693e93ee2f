package cli

import (
	"bytes"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	expected := []string{"run", "status", "top", "config"}
	for _, name := range expected {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRootCommandManifestFlag(t *testing.T) {
	root, ctx := newRootCommand()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--file", "custom.yaml", "config", "lint"})

	// Lint fails against a missing file, but the flag must still land in
	// the shared context.
	_ = root.Execute()

	if *ctx.manifestFile != "custom.yaml" {
		t.Fatalf("expected manifest flag to propagate, got %q", *ctx.manifestFile)
	}
}
