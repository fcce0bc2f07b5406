package tui

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"shotprobe/pkg/models"
)

// TUI is the full-screen view of a probe run. It implements ui.Display and
// is registered on the prober as an observer.
type TUI struct {
	program *tea.Program
	model   *Model
}

// Option configures the TUI program
type Option func(*options)

type options struct {
	input     io.Reader
	output    io.Writer
	altScreen bool
}

// WithIO replaces the terminal, mainly for tests
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.input = in
		o.output = out
		o.altScreen = false
	}
}

// NewTUI creates a TUI for a run of checks attempts. onStop is called when
// the user asks to stop the run.
func NewTUI(checks, workers int, initial models.Stats, onStop func(), opts ...Option) *TUI {
	o := options{altScreen: true}
	for _, opt := range opts {
		opt(&o)
	}

	model := NewModel(checks, workers, initial)
	model.onStop = onStop

	var progOpts []tea.ProgramOption
	if o.altScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	if o.input != nil {
		progOpts = append(progOpts, tea.WithInput(o.input))
	}
	if o.output != nil {
		progOpts = append(progOpts, tea.WithOutput(o.output))
	}

	return &TUI{
		program: tea.NewProgram(&model, progOpts...),
		model:   &model,
	}
}

// Run blocks until the user exits the TUI
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Stop exits the TUI
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// OnEvent forwards an attempt to the program
func (t *TUI) OnEvent(e models.Event) {
	t.Send(EventMsg{Event: e})
}

// OnFinish tells the program the run is over
func (t *TUI) OnFinish(stats models.Stats, runErr error) {
	t.Send(FinishMsg{Stats: stats, Err: runErr})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogSuccess logs a success message
func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log("SUCCESS", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
