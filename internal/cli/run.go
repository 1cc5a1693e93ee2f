package cli

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apihttp "github.com/wasmvisor/wasmvisor/internal/api/http"
	"github.com/wasmvisor/wasmvisor/internal/cliutil"
	"github.com/wasmvisor/wasmvisor/internal/config"
	"github.com/wasmvisor/wasmvisor/internal/engine"
	"github.com/wasmvisor/wasmvisor/internal/logmux"
	"github.com/wasmvisor/wasmvisor/internal/probe"
	"github.com/wasmvisor/wasmvisor/internal/task"
	"github.com/wasmvisor/wasmvisor/internal/tui"
)

var newAPIServer = apihttp.NewServer

const eventBuffer = 256

func newRunCmd(ctx *context) *cobra.Command {
	var (
		apiAddr  string
		useTUI   bool
		jsonLogs bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workloads defined in the plane manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(*ctx.manifestFile)
			if err != nil {
				return err
			}

			runCtx, cancel := stdcontext.WithCancel(cmd.Context())
			defer cancel()

			planeEvents := make(chan task.Event, eventBuffer)
			engineEvents := make(chan task.Event, eventBuffer)
			mux := logmux.New(eventBuffer)
			mux.Add(planeEvents)
			mux.Add(engineEvents)

			plane := task.New(doc.PlaneConfig(), task.WithEvents(planeEvents))
			ctx.setPlane(plane)
			defer ctx.setPlane(nil)

			addr := apiAddr
			if addr == "" {
				addr = doc.API.Listen
			}
			var stopAPI func() error
			if addr != "" {
				stopAPI, err = startAPIServer(runCtx, cmd, ctx, addr)
				if err != nil {
					return err
				}
				defer func() {
					if err := stopAPI(); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "error: api server: %v\n", err)
					}
				}()
			}

			eng := engine.New(plane, engineEvents)
			startErr := func() error {
				for _, spec := range engine.SpecsFromManifest(doc) {
					if _, err := eng.StartWorkload(runCtx, spec); err != nil {
						return fmt.Errorf("start workload %s: %w", spec.Name, err)
					}
				}
				return nil
			}()
			if startErr != nil {
				cancel()
			}

			// The mux output closes once every workload settled and
			// both producers are drained.
			go func() {
				eng.Wait()
				close(planeEvents)
				close(engineEvents)
				mux.Close()
			}()

			if startErr == nil && useTUI {
				if !supportsInteractiveOutput(cmd) {
					return fmt.Errorf("tui requires an interactive terminal")
				}
				ui := tui.New()
				return ui.Run(runCtx, mux.Output())
			}

			streamEvents(cmd, mux.Output(), jsonLogs)
			return startErr
		},
	}

	cmd.Flags().StringVar(&apiAddr, "api", "", "address for the HTTP control API (overrides the manifest)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "render an interactive status interface instead of log output")
	cmd.Flags().BoolVar(&jsonLogs, "json", false, "force JSON log output even on a terminal")
	return cmd
}

// streamEvents prints lifecycle events until the muxed stream closes,
// which happens once every workload settled.
func streamEvents(cmd *cobra.Command, events <-chan task.Event, jsonLogs bool) {
	out := cmd.OutOrStdout()
	pretty := !jsonLogs && supportsInteractiveOutput(cmd)
	enc := json.NewEncoder(out)

	for evt := range events {
		if pretty {
			fmt.Fprintln(out, cliutil.FormatEvent(evt))
			continue
		}
		cliutil.EncodeLogEvent(enc, cmd.ErrOrStderr(), evt)
	}
}

func startAPIServer(runCtx stdcontext.Context, cmd *cobra.Command, ctx *context, addr string) (func() error, error) {
	control := NewControlAPI(ctx)
	if control == nil {
		return nil, errors.New("control API unavailable")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	server, err := newAPIServer(apihttp.Config{Addr: addr, Controller: control, Listener: listener})
	if err != nil {
		listener.Close()
		return nil, err
	}
	serverCtx, cancel := stdcontext.WithCancel(runCtx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(serverCtx)
	}()

	health := probe.NewHTTP(fmt.Sprintf("http://%s/healthz", server.Addr()), time.Second)
	if err := probe.Wait(serverCtx, health, 20*time.Millisecond, 2*time.Second); err != nil {
		cancel()
		if runErr := <-errCh; runErr != nil && !errors.Is(runErr, stdcontext.Canceled) && !errors.Is(runErr, http.ErrServerClosed) {
			return nil, runErr
		}
		return nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Control API listening on %s\n", server.Addr())
	return func() error {
		cancel()
		err := <-errCh
		if err != nil && !errors.Is(err, stdcontext.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, nil
}

func supportsInteractiveOutput(cmd *cobra.Command) bool {
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
