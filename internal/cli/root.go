package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wasmvisor/wasmvisor/internal/task"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var manifestFile string

	root := &cobra.Command{
		Use:   "wasmvisor",
		Short: "Process and thread control plane for sandboxed workloads",
	}

	root.PersistentFlags().
		StringVarP(&manifestFile, "file", "f", "plane.yaml", "Path to plane manifest")

	ctx := &context{manifestFile: &manifestFile}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))
	root.AddCommand(newTopCmd(ctx))
	root.AddCommand(newConfigCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	manifestFile *string

	mu    sync.RWMutex
	plane *task.ControlPlane
}

func (c *context) setPlane(plane *task.ControlPlane) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plane = plane
}

func (c *context) currentPlane() *task.ControlPlane {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plane
}
