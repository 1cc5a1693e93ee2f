package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wasmvisor/wasmvisor/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with plane manifest files",
	}
	cmd.AddCommand(newConfigLintCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a plane manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(manifestPath(cmd)); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			return nil
		},
	}
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved plane manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(manifestPath(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if doc.Plane.MaxTasks != nil {
				fmt.Fprintf(out, "max_tasks: %d\n", *doc.Plane.MaxTasks)
			} else {
				fmt.Fprintln(out, "max_tasks: unlimited")
			}
			fmt.Fprintf(out, "async_threading: %t\n", doc.Plane.AsyncThreading)
			if doc.API.Listen != "" {
				fmt.Fprintf(out, "api: %s\n", doc.API.Listen)
			}

			names := make([]string, 0, len(doc.Workloads))
			for name := range doc.Workloads {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				wl := doc.Workloads[name]
				threads := wl.Threads
				if threads < 1 {
					threads = 1
				}
				fmt.Fprintf(out, "workload %s: module=%s threads=%d", name, wl.Module, threads)
				if wl.Lifespan.Duration > 0 {
					fmt.Fprintf(out, " lifespan=%s", wl.Lifespan.Duration)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	return cmd
}

func manifestPath(cmd *cobra.Command) string {
	path := "plane.yaml"
	if flag := cmd.Flag("file"); flag != nil {
		if value := flag.Value.String(); value != "" {
			path = value
		}
	} else if inherited := cmd.InheritedFlags().Lookup("file"); inherited != nil {
		if value := inherited.Value.String(); value != "" {
			path = value
		}
	}
	return path
}
