package cli

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wasmvisor/wasmvisor/internal/api"
)

const defaultAPIAddr = "127.0.0.1:7663"

func newStatusCmd(ctx *context) *cobra.Command {
	var (
		addr   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display a summary of processes tracked by a running plane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := fetchStatus(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), report, output)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAPIAddr, "address of the running plane's HTTP control API")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func renderStatus(out io.Writer, report *api.StatusReport, format string) error {
	switch format {
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tPPID\tMODULE\tSTATE\tTHREADS\tCHILDREN\tEXIT")
		for _, proc := range report.Processes {
			exit := "-"
			if proc.State == "exited" {
				exit = fmt.Sprintf("%d", proc.ExitCode)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%d\t%s\n",
				proc.PID, proc.PPID, proc.Module, proc.State,
				len(proc.Threads), len(proc.Children), exit)
		}
		w.Flush()
		fmt.Fprintf(out, "\nActive tasks: %d\n", report.ActiveTasks)
		fmt.Fprintf(out, "Generated at %s\n", report.GeneratedAt.Format(time.RFC3339))
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func fetchStatus(ctx stdcontext.Context, addr string) (*api.StatusReport, error) {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	reqCtx, cancel := stdcontext.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://%s/v1/status", addr), nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query plane at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plane at %s returned %s", addr, resp.Status)
	}
	var report api.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &report, nil
}
