package ui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/host"
)

// Options configures the terminal renderer.
type Options struct {
	Input  io.Reader
	Output io.Writer
	Title  string
	// Path is shown next to the title.
	Path      string
	AltScreen bool
}

// TUI is a host.Renderer backed by a bubbletea program. Bind a controller
// before Run so key presses reach the runtime.
type TUI struct {
	model *model
	prog  *tea.Program
	ctx   context.Context
}

var (
	_ host.Renderer       = (*TUI)(nil)
	_ host.StatusRenderer = (*TUI)(nil)
)

// New creates a TUI that stops when ctx is done. Nothing is drawn until
// Run; Render and Status block until Run has started.
func New(ctx context.Context, opts Options) *TUI {
	if opts.Title == "" {
		opts.Title = "hotswap"
	}
	m := newModel(opts.Title, opts.Path, nil)

	popts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		popts = append(popts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		popts = append(popts, tea.WithOutput(opts.Output))
	}
	if opts.AltScreen {
		popts = append(popts, tea.WithAltScreen())
	}
	return &TUI{
		model: m,
		prog:  tea.NewProgram(m, popts...),
		ctx:   ctx,
	}
}

// Bind routes key presses to ctl. It must be called before Run.
func (t *TUI) Bind(ctl Controller) {
	t.model.ctl = ctl
}

// Run draws until the user quits or the context is done.
func (t *TUI) Run() error {
	_, err := t.prog.Run()
	if err != nil && t.ctx.Err() != nil {
		return nil
	}
	return err
}

// Quit stops the program. Safe to call when it is not running.
func (t *TUI) Quit() {
	t.prog.Quit()
}

// Render hands v to the program.
func (t *TUI) Render(v contract.View) {
	t.prog.Send(viewMsg{view: v})
}

// Status shows st on the status line.
func (t *TUI) Status(st host.Status) {
	t.prog.Send(statusMsg{status: st})
}
