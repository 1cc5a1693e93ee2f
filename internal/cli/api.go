package cli

import (
	stdcontext "context"
	"fmt"
	"slices"
	"time"

	"github.com/wasmvisor/wasmvisor/internal/api"
	"github.com/wasmvisor/wasmvisor/internal/task"
)

// ControlAPI exposes plane inspection operations for the HTTP control
// surface.
type ControlAPI struct {
	ctx *context
}

// NewControlAPI constructs a ControlAPI wrapper around the shared CLI context.
func NewControlAPI(ctx *context) *ControlAPI {
	if ctx == nil {
		return nil
	}
	return &ControlAPI{ctx: ctx}
}

// Status returns a snapshot of every tracked process.
func (apiCtrl *ControlAPI) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	plane, err := apiCtrl.livePlane(ctx)
	if err != nil {
		return nil, err
	}

	procs := plane.Processes()
	slices.SortFunc(procs, func(a, b *task.Process) int { return int(a.PID()) - int(b.PID()) })

	reports := make([]api.ProcessReport, 0, len(procs))
	for _, proc := range procs {
		reports = append(reports, processReport(proc))
	}
	return &api.StatusReport{
		GeneratedAt: time.Now(),
		ActiveTasks: plane.ActiveTasks(),
		Processes:   reports,
	}, nil
}

// Process returns the report for a single PID.
func (apiCtrl *ControlAPI) Process(ctx stdcontext.Context, pid uint32) (*api.ProcessReport, error) {
	plane, err := apiCtrl.livePlane(ctx)
	if err != nil {
		return nil, err
	}
	proc := plane.GetProcess(task.ProcessID(pid))
	if proc == nil {
		return nil, fmt.Errorf("%w: pid %d", api.ErrUnknownProcess, pid)
	}
	report := processReport(proc)
	return &report, nil
}

func (apiCtrl *ControlAPI) livePlane(ctx stdcontext.Context) (*task.ControlPlane, error) {
	if apiCtrl == nil || apiCtrl.ctx == nil {
		return nil, api.ErrNotRunning
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	plane := apiCtrl.ctx.currentPlane()
	if plane == nil {
		return nil, fmt.Errorf("%w: start one with `wasmvisor run`", api.ErrNotRunning)
	}
	return plane, nil
}

func processReport(proc *task.Process) api.ProcessReport {
	report := api.ProcessReport{
		PID:    uint32(proc.PID()),
		PPID:   uint32(proc.PPID()),
		Module: proc.ModuleHash().Short(),
		State:  "running",
	}
	if res := proc.Status().TryResult(); res != nil {
		report.State = "exited"
		report.ExitCode = uint32(res.Code)
	}
	for _, thread := range proc.Threads() {
		tr := api.ThreadReport{
			TID:  uint32(thread.TID()),
			Main: thread.IsMain(),
		}
		if res := thread.Status().TryResult(); res != nil {
			tr.Finished = true
			tr.ExitCode = uint32(res.Code)
		}
		report.Threads = append(report.Threads, tr)
	}
	for _, child := range proc.Children() {
		report.Children = append(report.Children, uint32(child.PID()))
	}
	for _, interval := range proc.SignalIntervals() {
		report.Intervals = append(report.Intervals, api.IntervalReport{
			Signal: uint8(interval.Signal),
			Every:  interval.Interval.String(),
			Repeat: interval.Repeat,
		})
	}
	return report
}

// Ensure interface compliance at compile time.
var _ api.Controller = (*ControlAPI)(nil)
