package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"flickrbackup/pkg/ui"
)

// View renders the dashboard
func (m Model) View() string {
	if m.finished {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, m.renderAlbum(), "", m.renderStats())),
		m.renderLogs(),
	}

	help := "q: stop after current photo"
	if m.quitting {
		help = "stopping..."
	}
	sections = append(sections, helpStyle.Render(help))

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderHeader() string {
	elapsed := time.Since(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s", m.spinner.View(), headerStyle.Render("flickrbackup"), dimStyle.Render(ui.FormatDuration(elapsed)))
}

func (m Model) renderAlbum() string {
	if m.album == "" {
		return dimStyle.Render("Listing albums...")
	}
	title := albumStyle.Render(m.album)
	count := dimStyle.Render(fmt.Sprintf("%d/%d", m.albumDone, m.albumTotal))
	return lipgloss.JoinVertical(lipgloss.Left, title, m.progress.ViewAs(m.albumPercent())+" "+count)
}

func (m Model) renderStats() string {
	row := func(label, value string) string {
		return statsLabelStyle.Render(label) + value
	}

	rows := []string{
		row("downloaded", successStyle.Render(fmt.Sprint(m.downloaded))),
		row("skipped", fmt.Sprint(m.skipped)),
	}
	if m.copied > 0 {
		rows = append(rows, row("copied", fmt.Sprint(m.copied)))
	}
	if m.inProgress > 0 {
		rows = append(rows, row("in progress", warningStyle.Render(fmt.Sprint(m.inProgress))))
	}
	if m.planned > 0 {
		rows = append(rows, row("planned", fmt.Sprint(m.planned)))
	}
	failed := fmt.Sprint(m.failed)
	if m.failed > 0 {
		failed = errorStyle.Render(failed)
	}
	rows = append(rows,
		row("failed", failed),
		row("albums", fmt.Sprint(m.albums)),
		row("written", ui.FormatBytes(m.bytes)),
	)
	return strings.Join(rows, "\n")
}

func (m Model) renderLogs() string {
	if len(m.logs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		ts := dimStyle.Render(l.Time.Format("15:04:05"))
		level := levelStyle(l.Level).Render(fmt.Sprintf("%-5s", l.Level))
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, level, truncate(l.Message, m.width-18)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
