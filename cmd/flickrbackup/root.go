package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// Process exit codes
const (
	exitOK          = 0
	exitFatal       = 1
	exitInterrupted = 130
)

// errInterrupted is returned when a signal or the user stopped the run
var errInterrupted = errors.New("interrupted")

// rootCmd runs a backup when given a destination
var rootCmd = &cobra.Command{
	Use:   "flickrbackup [flags] <destination>",
	Short: "Mirror your Flickr albums to a local directory",
	Long: `flickrbackup copies every album of a Flickr account into a local directory
tree, one folder per album, and downloads only what is not there yet.

Files are named <ordinal>-<photo id>.<ext> so that a plain directory listing
shows photos in album order. Each file is written under a temporary name and
renamed once complete, so an interrupted run never leaves a broken photo.

Credentials (username, api_key, api_secret) come from flickr-backup.yaml in
the destination or current directory, FLICKRBACKUP_* environment variables,
or a stored account (see 'flickrbackup auth login').`,
	Example: `  # Back up into ~/Pictures/flickr
  flickrbackup ~/Pictures/flickr

  # Show what would be downloaded without writing anything
  flickrbackup --dry-run ~/Pictures/flickr

  # Use a stored account and the live dashboard
  flickrbackup --account personal --tui ~/Pictures/flickr`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuietMode(true)
		}
		if noColor {
			ui.SetNoColor(true)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), args[0])
	},
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	return exitCode(rootCmd.ExecuteContext(context.Background()))
}

// exitCode prints err and maps it to an exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled):
		ui.PrintWarning("Interrupted", "files written so far are complete; run again to continue")
		return exitInterrupted
	case errs.IsKind(err, errs.KindConfiguration):
		ui.PrintError("Configuration error", err.Error())
	case errs.IsKind(err, errs.KindAuthentication):
		ui.PrintError("Authentication failed", err.Error())
	case errs.IsKind(err, errs.KindRemoteService):
		ui.PrintError("Flickr is not reachable", err.Error())
	case errs.IsKind(err, errs.KindFilesystem):
		ui.PrintError("Destination error", err.Error())
	default:
		ui.PrintError("Error", err.Error())
	}
	return exitFatal
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is <destination>/flickr-backup.yaml or ./flickr-backup.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors and the summary")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every photo and debug logs")

	rootCmd.SetVersionTemplate(`flickrbackup {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
