package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"flickrbackup/pkg/backup"
)

const (
	levelInfo    = "INFO"
	levelSuccess = "OK"
	levelWarn    = "WARN"
	levelError   = "ERROR"
)

// LogLine is one entry of the activity log
type LogLine struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the bubbletea model of a running backup
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	album      string
	albumTotal int
	albumDone  int

	downloaded int
	copied     int
	skipped    int
	inProgress int
	failed     int
	planned    int
	albums     int
	bytes      int64

	logs    []LogLine
	maxLogs int

	started  time.Time
	summary  *backup.Summary
	runErr   error
	finished bool
	quitting bool

	// onQuit is called when the user asks to stop
	onQuit func()

	width int
}

// NewModel creates the model. onQuit may be nil.
func NewModel(onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = headerStyle

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return Model{
		spinner:  s,
		progress: p,
		maxLogs:  8,
		started:  time.Now(),
		onQuit:   onQuit,
	}
}

// Init starts the spinner
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Summary returns the final summary once the run has finished
func (m Model) Summary() (*backup.Summary, error) {
	return m.summary, m.runErr
}

func (m *Model) addLog(level, message string) {
	m.logs = append(m.logs, LogLine{Time: time.Now(), Level: level, Message: message})
	if len(m.logs) > m.maxLogs {
		m.logs = m.logs[len(m.logs)-m.maxLogs:]
	}
}

func (m *Model) albumPercent() float64 {
	if m.albumTotal == 0 {
		return 0
	}
	return float64(m.albumDone) / float64(m.albumTotal)
}
