package backup

import (
	"context"
	"errors"
	"io"
	"time"

	"flickrbackup/pkg/albums"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/logger"
	"flickrbackup/pkg/manifest"
	"flickrbackup/pkg/storage"
)

// State is the lifecycle of one photo within a run. StateCopied means the
// photo was on disk under an older ordinal and was copied to its current
// name. StateInProgress means another live run holds the claim and the
// photo is not on disk yet.
type State string

const (
	StatePending    State = "pending"
	StateSkipped    State = "skipped"
	StateDownloaded State = "downloaded"
	StateCopied     State = "copied"
	StateInProgress State = "in progress"
	StateFailed     State = "failed"
	StatePlanned    State = "planned"
)

// ReasonExists is the skip reason of a target already on disk
const ReasonExists = "exists"

// Remote fetches the bytes of a photo
type Remote interface {
	Open(ctx context.Context, photo albums.Photo) (io.ReadCloser, error)
}

// Result is the terminal outcome of one photo
type Result struct {
	AlbumID    string
	Album      string
	Photo      albums.Photo
	Path       string
	State      State
	Reason     string
	Bytes      int64
	MIME       string
	CopiedFrom string // earlier path of a copied photo
	Err        error
	Duration   time.Duration
}

// ExecutorOptions configures an Executor
type ExecutorOptions struct {
	DryRun bool
	// Timeout bounds fetching and writing one photo. Zero means no limit.
	Timeout  time.Duration
	Manifest manifest.Manifest
	Logger   logger.Logger
}

// Executor syncs single photos into the local tree
type Executor struct {
	remote   Remote
	store    *storage.Manager
	manifest manifest.Manifest
	dryRun   bool
	timeout  time.Duration
	logger   logger.Logger
}

// NewExecutor creates an executor writing through store
func NewExecutor(remote Remote, store *storage.Manager, opts ExecutorOptions) *Executor {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.Manifest == nil {
		opts.Manifest = manifest.Nop()
	}
	return &Executor{
		remote:   remote,
		store:    store,
		manifest: opts.Manifest,
		dryRun:   opts.DryRun,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
}

// Sync brings one target of plan into the local tree. A target that already
// exists is never fetched again.
func (e *Executor) Sync(ctx context.Context, plan *AlbumPlan, t Target) Result {
	start := time.Now()
	res := Result{
		AlbumID: plan.AlbumID,
		Album:   plan.Title,
		Photo:   t.Photo,
		Path:    t.Path,
		State:   StatePending,
	}

	e.sync(ctx, plan, t, &res)

	res.Duration = time.Since(start)
	logger.LogPhotoOutcome(e.logger, plan.Title, t.Photo.ID, t.Path, string(res.State), res.Err)
	return res
}

func (e *Executor) sync(ctx context.Context, plan *AlbumPlan, t Target, res *Result) {
	exists, err := e.store.Exists(t.Path)
	if err != nil {
		res.fail(err)
		return
	}
	if exists {
		res.skip(ReasonExists)
		return
	}
	if e.dryRun {
		res.State = StatePlanned
		return
	}

	claim, err := e.store.Claim(t.Path)
	switch {
	case errors.Is(err, storage.ErrClaimHeld):
		res.State = StateInProgress
		return
	case errors.Is(err, storage.ErrAlreadyExists):
		res.skip(ReasonExists)
		return
	case err != nil:
		res.fail(err)
		return
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	body, from, err := e.open(ctx, plan, t)
	if err != nil {
		claim.Abort()
		res.fail(err)
		return
	}
	defer body.Close()

	written, err := claim.Write(body)
	if err != nil {
		claim.Abort()
		res.fail(err)
		return
	}
	if err := claim.Commit(); err != nil {
		res.fail(err)
		return
	}

	res.State = StateDownloaded
	if from != "" {
		res.State = StateCopied
		res.CopiedFrom = from
	}
	res.Bytes = written.Bytes
	res.MIME = written.MIME

	entry := manifest.Entry{
		AlbumID:    plan.AlbumID,
		AlbumTitle: plan.Title,
		PhotoID:    t.Photo.ID,
		Path:       t.Path,
		Bytes:      written.Bytes,
	}
	if err := e.manifest.Record(entry); err != nil {
		e.logger.WithError(err).WithField("path", t.Path).Warn("Failed to record download in manifest")
	}
}

// open returns the bytes for t. A photo the manifest saw under another path
// that is still on disk is read from there instead of fetched; from is that
// path. The earlier file is left in place.
func (e *Executor) open(ctx context.Context, plan *AlbumPlan, t Target) (body io.ReadCloser, from string, err error) {
	if p := e.previousPath(plan, t); p != "" {
		f, err := e.store.Open(p)
		if err == nil {
			return f, p, nil
		}
		e.logger.WithError(err).WithField("path", p).Warn("Cannot read earlier copy, fetching photo")
	}

	body, err = e.remote.Open(ctx, t.Photo)
	if err != nil {
		return nil, "", asDownload(t.Photo, err)
	}
	return body, "", nil
}

func (e *Executor) previousPath(plan *AlbumPlan, t Target) string {
	entry, ok, err := e.manifest.Lookup(plan.AlbumID, t.Photo.ID)
	if err != nil {
		e.logger.WithError(err).WithField("photo_id", t.Photo.ID).Warn("Failed to read manifest")
		return ""
	}
	if !ok || entry.Path == "" || entry.Path == t.Path {
		return ""
	}
	if exists, err := e.store.Exists(entry.Path); err != nil || !exists {
		return ""
	}
	return entry.Path
}

func (r *Result) skip(reason string) {
	r.State = StateSkipped
	r.Reason = reason
}

func (r *Result) fail(err error) {
	r.State = StateFailed
	r.Err = err
}

// asDownload keeps typed errors and tags anything else as a download failure
func asDownload(photo albums.Photo, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.Download("fetch photo "+photo.ID, err)
}
