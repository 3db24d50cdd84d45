package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Banner printed at the start of interactive commands
const Banner = `
  ┌─┐┬  ┬┌─┐┬┌─┬─┐  ┌┐ ┌─┐┌─┐┬┌─┬ ┬┌─┐
  ├┤ │  ││  ├┴┐├┬┘  ├┴┐├─┤│  ├┴┐│ │├─┘
  └  ┴─┘┴└─┘┴ ┴┴└─  └─┘┴ ┴└─┘┴ ┴└─┘┴
`

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1A3"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C757D"))
)

// Color functions for terminal output
var (
	Cyan    = colorize(cyan)
	Yellow  = colorize(yellow)
	Red     = colorize(red)
	Green   = colorize(green)
	Magenta = colorize(magenta)
	Dim     = colorize(dim)
)

var (
	mu        sync.Mutex
	out       io.Writer = os.Stdout
	quietMode bool
	noColor   bool
)

func colorize(style lipgloss.Style) func(string) string {
	return func(text string) string {
		mu.Lock()
		plain := noColor
		mu.Unlock()
		if plain {
			return text
		}
		return style.Render(text)
	}
}

// SetOutput redirects all terminal output to w
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	quietMode = quiet
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return quietMode
}

// SetNoColor disables styling
func SetNoColor(disabled bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = disabled
}

func printf(always bool, format string, args ...interface{}) {
	mu.Lock()
	w, quiet := out, quietMode
	mu.Unlock()
	if quiet && !always {
		return
	}
	fmt.Fprintf(w, format, args...)
}

// PrintBanner prints the banner and version
func PrintBanner(version string) {
	printf(false, "%s%s\n\n", Cyan(Banner), Dim("  flickrbackup "+version))
}

// PrintError prints an error message in red. Errors are printed in quiet
// mode too.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	printf(true, "%s\n", Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	printf(false, "%s\n", Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	printf(false, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	printf(false, "%s\n", Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	printf(false, "%s\n", Magenta(msg))
}

// Println prints an unstyled line
func Println(msg string) {
	printf(false, "%s\n", msg)
}
