package backup

import (
	"context"
	"time"

	"flickrbackup/pkg/albums"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/logger"
	"flickrbackup/pkg/manifest"
	"flickrbackup/pkg/storage"
)

// Summary aggregates the outcomes of one run
type Summary struct {
	Downloaded    int
	Copied        int // already on disk under an older ordinal
	Skipped       int
	InProgress    int // held by another live run, not on disk yet
	Failed        int
	Planned       int
	AlbumsScanned int
	AlbumsFailed  int
	Bytes         int64
	Duration      time.Duration
	Failures      []Result
}

// Total returns the number of photos that reached a terminal state
func (s *Summary) Total() int {
	return s.Downloaded + s.Copied + s.Skipped + s.InProgress + s.Failed + s.Planned
}

func (s *Summary) add(r Result) {
	switch r.State {
	case StateDownloaded:
		s.Downloaded++
		s.Bytes += r.Bytes
	case StateCopied:
		s.Copied++
		s.Bytes += r.Bytes
	case StateSkipped:
		s.Skipped++
	case StateInProgress:
		s.InProgress++
	case StatePlanned:
		s.Planned++
	case StateFailed:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
}

// Observer receives progress while a run advances. All methods are called
// from the goroutine running Run.
type Observer interface {
	AlbumStarted(plan *AlbumPlan)
	PhotoFinished(r Result)
	AlbumFailed(album *albums.Album, err error)
}

type nopObserver struct{}

func (nopObserver) AlbumStarted(*AlbumPlan)          {}
func (nopObserver) PhotoFinished(Result)             {}
func (nopObserver) AlbumFailed(*albums.Album, error) {}

// Options configures a Runner
type Options struct {
	MinPadWidth int
	DryRun      bool
	Timeout     time.Duration
	Manifest    manifest.Manifest
	Observer    Observer
	Logger      logger.Logger
}

// Runner drives one full pass: every album, every photo, in listing order
type Runner struct {
	enumerator *albums.Enumerator
	planner    Planner
	executor   *Executor
	store      *storage.Manager
	manifest   manifest.Manifest
	dryRun     bool
	observer   Observer
	logger     logger.Logger
}

// NewRunner wires a runner from its parts
func NewRunner(enumerator *albums.Enumerator, remote Remote, store *storage.Manager, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.Manifest == nil {
		opts.Manifest = manifest.Nop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Runner{
		enumerator: enumerator,
		planner:    NewPlanner(opts.MinPadWidth),
		executor: NewExecutor(remote, store, ExecutorOptions{
			DryRun:   opts.DryRun,
			Timeout:  opts.Timeout,
			Manifest: opts.Manifest,
			Logger:   opts.Logger,
		}),
		store:    store,
		manifest: opts.Manifest,
		dryRun:   opts.DryRun,
		observer: opts.Observer,
		logger:   opts.Logger.WithField("component", "backup"),
	}
}

// Run performs the pass. It returns an error only for failures that end the
// whole run: listing albums, authentication, or ctx being done. Every other
// failure is reported in the summary, which is returned in all cases.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	defer func() {
		summary.Duration = time.Since(start)
		r.flush()
	}()
	logger.LogComponentStart(r.logger, "backup", map[string]interface{}{
		"dry_run":       r.dryRun,
		"min_pad_width": r.planner.MinPadWidth,
	})

	for album, err := range r.enumerator.Albums(ctx) {
		if album == nil {
			return summary, err
		}
		summary.AlbumsScanned++

		if err != nil {
			if errs.IsKind(err, errs.KindAuthentication) || ctx.Err() != nil {
				return summary, err
			}
			summary.AlbumsFailed++
			r.observer.AlbumFailed(album, err)
			r.logger.WithError(err).WithField("album", album.Title).Warn("Skipping album, photos could not be listed")
			continue
		}

		if err := r.syncAlbum(ctx, album, summary); err != nil {
			return summary, err
		}
		r.flush()
	}

	r.logger.InfoWithFields("Backup pass complete", map[string]interface{}{
		"downloaded":  summary.Downloaded,
		"copied":      summary.Copied,
		"skipped":     summary.Skipped,
		"in_progress": summary.InProgress,
		"failed":      summary.Failed,
		"planned":     summary.Planned,
		"albums":      summary.AlbumsScanned,
	})
	return summary, nil
}

func (r *Runner) syncAlbum(ctx context.Context, album *albums.Album, summary *Summary) error {
	plan := r.planner.Plan(album)
	log := r.logger.WithFields(map[string]interface{}{
		"album":    plan.Title,
		"album_id": plan.AlbumID,
		"dir":      plan.Dir,
	})

	r.observer.AlbumStarted(plan)
	log.InfoWithFields("Scanning album", map[string]interface{}{"photos": len(plan.Targets)})
	r.warnRetitled(plan, log)

	if !r.dryRun {
		if err := r.store.EnsureDir(plan.Dir); err != nil {
			summary.AlbumsFailed++
			r.observer.AlbumFailed(album, err)
			log.WithError(err).Error("Cannot create album directory, skipping album")
			for _, t := range plan.Targets {
				res := Result{
					AlbumID: plan.AlbumID,
					Album:   plan.Title,
					Photo:   t.Photo,
					Path:    t.Path,
					State:   StateFailed,
					Err:     err,
				}
				summary.add(res)
				r.observer.PhotoFinished(res)
			}
			return nil
		}
	}

	for _, t := range plan.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := r.executor.Sync(ctx, plan, t)
		summary.add(res)
		r.observer.PhotoFinished(res)
	}
	return ctx.Err()
}

// warnRetitled reports photos of the same album recorded under another
// directory. The old files stay where they are.
func (r *Runner) warnRetitled(plan *AlbumPlan, log logger.Logger) {
	dirs, err := r.manifest.AlbumDirs(plan.AlbumID)
	if err != nil {
		log.WithError(err).Warn("Failed to read manifest")
		return
	}
	for _, d := range dirs {
		if d != plan.Dir {
			log.WithField("previous_dir", d).Warn("Album appears to have been retitled, previous files are left in place")
		}
	}
}

func (r *Runner) flush() {
	if err := r.manifest.Flush(); err != nil {
		r.logger.WithError(err).Warn("Failed to save manifest")
	}
}
