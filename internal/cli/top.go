package cli

import (
	stdcontext "context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wasmvisor/wasmvisor/internal/api"
	"github.com/wasmvisor/wasmvisor/internal/tui"
)

func newTopCmd(ctx *context) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Watch processes of a running plane interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput(cmd) {
				return fmt.Errorf("top requires an interactive terminal")
			}

			fetch := func(fetchCtx stdcontext.Context) (*api.StatusReport, error) {
				return fetchStatus(fetchCtx, addr)
			}
			top := tui.NewTop(fetch, tui.WithInterval(interval))
			return top.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAPIAddr, "address of the running plane's HTTP control API")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval")
	return cmd
}
