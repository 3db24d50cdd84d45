package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"flickrbackup/pkg/backup"
)

var (
	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(0, 2)

	summaryTitle = lipgloss.NewStyle().Bold(true)
	summaryLabel = lipgloss.NewStyle().Width(12)
)

// maxListedFailures caps the failures printed below the summary
const maxListedFailures = 10

// RenderSummary renders the end-of-run counts
func RenderSummary(s *backup.Summary, dryRun bool) string {
	title := "Backup complete"
	if dryRun {
		title = "Dry run complete"
	}

	rows := []string{summaryTitle.Render(title), ""}
	row := func(label, value string) {
		rows = append(rows, summaryLabel.Render(label)+value)
	}

	if dryRun {
		row("planned", Cyan(fmt.Sprint(s.Planned)))
	} else {
		row("downloaded", Green(fmt.Sprint(s.Downloaded)))
		if s.Copied > 0 {
			row("copied", fmt.Sprint(s.Copied))
		}
	}
	row("skipped", fmt.Sprint(s.Skipped))
	if s.InProgress > 0 {
		row("in progress", Yellow(fmt.Sprint(s.InProgress)))
	}
	if s.Failed > 0 {
		row("failed", Red(fmt.Sprint(s.Failed)))
	} else {
		row("failed", "0")
	}
	albums := fmt.Sprint(s.AlbumsScanned)
	if s.AlbumsFailed > 0 {
		albums += Red(fmt.Sprintf(" (%d failed)", s.AlbumsFailed))
	}
	row("albums", albums)
	if !dryRun {
		row("written", FormatBytes(s.Bytes))
	}
	row("elapsed", FormatDuration(s.Duration))

	body := summaryBox.Render(strings.Join(rows, "\n"))

	if len(s.Failures) > 0 {
		var b strings.Builder
		b.WriteString(body)
		b.WriteString("\n")
		for i, f := range s.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  %s\n", Dim(fmt.Sprintf("... and %d more", len(s.Failures)-maxListedFailures)))
				break
			}
			fmt.Fprintf(&b, "  %s %s: %v\n", Red("✗"), f.Path, f.Err)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return body
}

// PrintSummary prints the summary. It is printed in quiet mode too.
func PrintSummary(s *backup.Summary, dryRun bool) {
	printf(true, "\n%s\n", RenderSummary(s, dryRun))
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
