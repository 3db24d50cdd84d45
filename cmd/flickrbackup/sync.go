package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"flickrbackup/pkg/albums"
	"flickrbackup/pkg/auth"
	"flickrbackup/pkg/backup"
	"flickrbackup/pkg/config"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/flickr"
	"flickrbackup/pkg/logger"
	"flickrbackup/pkg/manifest"
	"flickrbackup/pkg/storage"
	"flickrbackup/pkg/ui"
	"flickrbackup/pkg/ui/tui"
)

var (
	// Sync flags
	accountName     string
	dryRun          bool
	rateLimit       int
	maxRetries      int
	downloadTimeout time.Duration
	minPadWidth     int
	manifestBackend string
	useTUI          bool
	notify          bool
)

// remoteClient is what a run needs from Flickr
type remoteClient interface {
	albums.Source
	backup.Remote
	Close()
}

// newRemote builds the Flickr client for one run
var newRemote = func(cfg *config.Config, log logger.Logger) (remoteClient, error) {
	return flickr.NewClient(cfg, log)
}

// newCredentialManager opens the stored accounts
var newCredentialManager = auth.NewManager

var syncCmd = &cobra.Command{
	Use:   "sync <destination>",
	Short: "Download new photos of every album into destination",
	Long: `Download every photo that is not yet present under destination.

Albums become directories named after their title. Photos already on disk
are skipped without contacting the download servers, so running sync again
only fetches what was added since.`,
	Example: `  flickrbackup sync ~/Pictures/flickr
  flickrbackup sync --manifest badger --rate-limit 30 /mnt/backup/flickr`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	addSyncFlags(syncCmd.Flags())
	// the root command syncs too
	addSyncFlags(rootCmd.Flags())
}

func addSyncFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&accountName, "account", "a", "", "use a stored account for missing credentials")
	fs.BoolVar(&dryRun, "dry-run", false, "list what would be downloaded without writing")
	fs.IntVar(&rateLimit, "rate-limit", 0, "API requests per minute (default from config: 60)")
	fs.IntVar(&maxRetries, "max-retries", 0, "attempts per API call (default from config: 3)")
	fs.DurationVar(&downloadTimeout, "download-timeout", 0, "timeout per photo (default from config: 60s)")
	fs.IntVar(&minPadWidth, "min-pad-width", 0, "minimum digits of the file ordinal (default from config: 4)")
	fs.StringVar(&manifestBackend, "manifest", "", "download ledger: json, badger or none")
	fs.BoolVar(&useTUI, "tui", false, "show a live dashboard instead of log lines")
	fs.BoolVar(&notify, "notify", false, "send a desktop notification when done")
}

func syncFlags() map[string]interface{} {
	flags := map[string]interface{}{
		"account":          accountName,
		"dry-run":          dryRun,
		"rate-limit":       rateLimit,
		"max-retries":      maxRetries,
		"download-timeout": downloadTimeout,
		"min-pad-width":    minPadWidth,
		"manifest":         manifestBackend,
		"log-level":        effectiveLogLevel(),
	}
	return flags
}

// effectiveLogLevel applies --quiet and --verbose unless a level was given
func effectiveLogLevel() string {
	switch {
	case logLevel != "":
		return logLevel
	case verbose:
		return "debug"
	case quiet:
		return "error"
	}
	return ""
}

func runSync(parent context.Context, root string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	root, err := checkDestination(root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, root, syncFlags())
	if err != nil {
		return err
	}
	if noColor {
		cfg.Logging.NoColor = true
	}

	var console io.Writer = os.Stderr
	if useTUI && cfg.Logging.File == "" {
		console = io.Discard
	}
	log, err := logger.NewWithWriter(&cfg.Logging, console)
	if err != nil {
		return errs.Configuration("logger", err.Error())
	}

	if err := applyStoredAccount(cfg, log); err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	remote, err := newRemote(cfg, log)
	if err != nil {
		return err
	}
	defer remote.Close()

	ledger, err := manifest.Open(cfg.Manifest, root, log)
	if err != nil {
		return errs.Filesystem("manifest.open", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.WithError(err).Warn("Failed to close manifest")
		}
	}()

	store := storage.NewOSManager(root, storage.Options{
		StaleClaimAfter: cfg.Storage.StaleClaimAfter,
		VerifyContent:   cfg.Download.VerifyContent,
	})

	opts := backup.Options{
		MinPadWidth: cfg.Layout.MinPadWidth,
		DryRun:      cfg.Download.DryRun,
		Timeout:     cfg.Download.Timeout,
		Manifest:    ledger,
		Logger:      log,
	}
	newRunner := func(observer backup.Observer) *backup.Runner {
		opts.Observer = observer
		return backup.NewRunner(albums.NewEnumerator(remote, log), remote, store, opts)
	}

	log.WithFields(map[string]interface{}{
		"destination": root,
		"user":        cfg.Flickr.Username,
		"dry_run":     cfg.Download.DryRun,
		"manifest":    cfg.Manifest.Backend,
	}).Info("Starting backup")

	var summary *backup.Summary
	var runErr error
	if useTUI {
		summary, runErr = runWithTUI(ctx, cancel, newRunner)
	} else {
		ui.PrintBanner(version)
		ui.PrintInfo("Destination", root)
		summary, runErr = newRunner(ui.NewProgress(verbose)).Run(ctx)
	}

	if summary != nil {
		ui.PrintSummary(summary, cfg.Download.DryRun)
		if notify {
			if err := ui.NewNotifier().NotifySummary(summary.Downloaded, summary.Skipped, summary.Failed); err != nil {
				log.WithError(err).Debug("Desktop notification failed")
			}
		}
	}

	if ctx.Err() != nil {
		log.Warn("Backup interrupted")
		return errInterrupted
	}
	if runErr != nil {
		log.WithError(runErr).Error("Backup failed")
	}
	return runErr
}

// runWithTUI drives the dashboard and the runner together. The dashboard
// ends when the runner reports its result.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, newRunner func(backup.Observer) *backup.Runner) (*backup.Summary, error) {
	dashboard := tui.New(cancel)
	runner := newRunner(dashboard)

	var summary *backup.Summary
	var runErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, runErr = runner.Run(gctx)
		dashboard.Finish(summary, runErr)
		return nil
	})
	g.Go(func() error {
		if _, err := dashboard.Run(); err != nil {
			return fmt.Errorf("terminal UI failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, runErr
}

// applyStoredAccount fills missing credentials from the account named by
// --account or flickr.account
func applyStoredAccount(cfg *config.Config, log logger.Logger) error {
	name := cfg.Flickr.Account
	if name == "" {
		return nil
	}

	manager, err := newCredentialManager()
	if err != nil {
		return errs.Configuration("auth", err.Error())
	}
	account, err := manager.Retrieve(name)
	if err != nil {
		return errs.Configuration("auth", fmt.Sprintf("account %q: %v (see 'flickrbackup auth list')", name, err))
	}

	account.ApplyTo(&cfg.Flickr)
	log.WithField("account", name).Info("Using stored credentials")
	return nil
}

// checkDestination requires root to be an existing directory we can write
// to, and returns it cleaned
func checkDestination(root string) (string, error) {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return "", errs.Filesystem("destination", err)
	}
	if !info.IsDir() {
		return "", errs.Filesystem("destination", fmt.Errorf("%s is not a directory", root))
	}

	scratch, err := os.CreateTemp(root, ".flickrbackup-write-*")
	if err != nil {
		return "", errs.Filesystem("destination", fmt.Errorf("%s is not writable: %w", root, err))
	}
	name := scratch.Name()
	scratch.Close()
	os.Remove(name)

	return root, nil
}
