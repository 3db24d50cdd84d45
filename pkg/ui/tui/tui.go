package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"flickrbackup/pkg/albums"
	"flickrbackup/pkg/backup"
)

// TUI shows a running backup as a live dashboard. It implements
// backup.Observer; its methods are safe to call from the runner goroutine.
type TUI struct {
	program *tea.Program
}

// New creates a TUI. cancel is called when the user asks to stop.
func New(cancel context.CancelFunc, opts ...tea.ProgramOption) *TUI {
	model := NewModel(cancel)
	return &TUI{program: tea.NewProgram(model, opts...)}
}

// Run blocks until Finish is called or the program is killed, then returns
// what the run reported
func (t *TUI) Run() (*backup.Summary, error) {
	final, err := t.program.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(Model)
	if !ok {
		return nil, nil
	}
	return m.Summary()
}

// Finish ends the program with the result of the run
func (t *TUI) Finish(summary *backup.Summary, err error) {
	t.program.Send(RunFinishedMsg{Summary: summary, Err: err})
}

func (t *TUI) AlbumStarted(plan *backup.AlbumPlan) {
	t.program.Send(AlbumStartedMsg{Title: plan.Title, Photos: len(plan.Targets)})
}

func (t *TUI) PhotoFinished(r backup.Result) {
	t.program.Send(PhotoFinishedMsg{Result: r})
}

func (t *TUI) AlbumFailed(album *albums.Album, err error) {
	t.program.Send(AlbumFailedMsg{Title: album.Title, Err: err})
}
