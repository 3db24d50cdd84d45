package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"flickrbackup/pkg/backup"
)

// AlbumStartedMsg is sent when the runner starts an album
type AlbumStartedMsg struct {
	Title  string
	Photos int
}

// PhotoFinishedMsg carries the outcome of one photo
type PhotoFinishedMsg struct {
	Result backup.Result
}

// AlbumFailedMsg is sent when an album is given up
type AlbumFailedMsg struct {
	Title string
	Err   error
}

// RunFinishedMsg ends the program
type RunFinishedMsg struct {
	Summary *backup.Summary
	Err     error
}

// Update handles all messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 30; w > 10 && w < 80 {
			m.progress.Width = w
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case AlbumStartedMsg:
		m.album = msg.Title
		m.albumTotal = msg.Photos
		m.albumDone = 0
		m.albums++
		m.addLog(levelInfo, fmt.Sprintf("Scanning album %s (%d photos)", msg.Title, msg.Photos))
		return m, nil

	case PhotoFinishedMsg:
		m.albumDone++
		r := msg.Result
		switch r.State {
		case backup.StateDownloaded:
			m.downloaded++
			m.bytes += r.Bytes
			m.addLog(levelSuccess, r.Path)
		case backup.StateCopied:
			m.copied++
			m.bytes += r.Bytes
			m.addLog(levelSuccess, r.Path+" (from "+r.CopiedFrom+")")
		case backup.StateSkipped:
			m.skipped++
		case backup.StateInProgress:
			m.inProgress++
			m.addLog(levelWarn, r.Path+" is being written by another run")
		case backup.StatePlanned:
			m.planned++
			m.addLog(levelInfo, "would download "+r.Path)
		case backup.StateFailed:
			m.failed++
			m.addLog(levelError, fmt.Sprintf("%s: %v", r.Path, r.Err))
		}
		return m, nil

	case AlbumFailedMsg:
		m.addLog(levelError, fmt.Sprintf("album %s: %v", msg.Title, msg.Err))
		return m, nil

	case RunFinishedMsg:
		m.finished = true
		m.summary = msg.Summary
		m.runErr = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.quitting {
			return m, nil
		}
		// the runner stops after the current photo and sends RunFinishedMsg
		m.quitting = true
		m.addLog(levelWarn, "Stopping after the current photo...")
		if m.onQuit != nil {
			m.onQuit()
			return m, nil
		}
		return m, tea.Quit
	}
	return m, nil
}
