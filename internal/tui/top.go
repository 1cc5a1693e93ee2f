package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/wasmvisor/wasmvisor/internal/api"
)

const defaultTopInterval = time.Second

// FetchFunc retrieves a status snapshot from a running plane.
type FetchFunc func(context.Context) (*api.StatusReport, error)

// TopOption configures a Top view.
type TopOption func(*Top)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) TopOption {
	return func(t *Top) {
		if d > 0 {
			t.interval = d
		}
	}
}

// Top renders a periodically refreshed process table fed by a status
// endpoint rather than an in-process event stream.
type Top struct {
	app      *tview.Application
	table    *tview.Table
	footer   *tview.TextView
	fetch    FetchFunc
	interval time.Duration

	mu       sync.Mutex
	report   *api.StatusReport
	fetchErr error

	stopOnce sync.Once
}

// NewTop constructs a Top view polling the supplied fetch function.
func NewTop(fetch FetchFunc, opts ...TopOption) *Top {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	footer := tview.NewTextView().SetDynamicColors(true)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(footer, 1, 0, false)

	top := &Top{
		app:      app,
		table:    table,
		footer:   footer,
		fetch:    fetch,
		interval: defaultTopInterval,
	}
	for _, opt := range opts {
		opt(top)
	}

	app.SetRoot(flex, true)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q') {
			go top.Stop()
			return nil
		}
		return event
	})

	return top
}

// Run polls until the context is cancelled or the user quits.
func (t *Top) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		t.Stop()
	}()

	go t.poll(ctx)

	return t.app.Run()
}

// Stop terminates the application loop.
func (t *Top) Stop() {
	t.stopOnce.Do(func() {
		t.app.Stop()
	})
}

func (t *Top) poll(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh(ctx)
		}
	}
}

func (t *Top) refresh(ctx context.Context) {
	report, err := t.fetch(ctx)

	t.mu.Lock()
	t.fetchErr = err
	if err == nil {
		t.report = report
	}
	t.mu.Unlock()

	t.app.QueueUpdateDraw(t.render)
}

func (t *Top) render() {
	t.mu.Lock()
	report := t.report
	fetchErr := t.fetchErr
	t.mu.Unlock()

	t.table.Clear()
	headers := []string{"PID", "PPID", "MODULE", "STATE", "THREADS", "CHILDREN", "EXIT"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		t.table.SetCell(0, col, cell)
	}

	if report != nil {
		for row, proc := range report.Processes {
			exit := "-"
			if proc.State == "exited" {
				exit = fmt.Sprintf("%d", proc.ExitCode)
			}
			values := []string{
				fmt.Sprintf("%d", proc.PID),
				fmt.Sprintf("%d", proc.PPID),
				proc.Module,
				proc.State,
				fmt.Sprintf("%d", len(proc.Threads)),
				fmt.Sprintf("%d", len(proc.Children)),
				exit,
			}
			for col, value := range values {
				t.table.SetCell(row+1, col, tview.NewTableCell(value))
			}
		}
	}

	t.footer.Clear()
	switch {
	case fetchErr != nil:
		fmt.Fprintf(t.footer, "[red]fetch failed: %v[-]", fetchErr)
	case report != nil:
		fmt.Fprintf(t.footer, "active tasks: %d  refreshed %s  (q to quit)",
			report.ActiveTasks, report.GeneratedAt.Format(time.Kitchen))
	default:
		fmt.Fprint(t.footer, "waiting for first snapshot (q to quit)")
	}
}
