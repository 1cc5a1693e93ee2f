package main

import (
	"github.com/wasmvisor/wasmvisor/internal/cli"
	"github.com/wasmvisor/wasmvisor/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
