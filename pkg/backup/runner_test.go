package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flickrbackup/pkg/albums"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/logger"
	"flickrbackup/pkg/manifest"
	"flickrbackup/pkg/storage"
)

func jpeg(id string) []byte {
	return append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), []byte("photo "+id)...)
}

type fakeSource struct {
	albums   []albums.Album
	photos   map[string][]albums.Photo
	listErr  error
	photoErr map[string]error
}

func (f *fakeSource) ListAlbums(ctx context.Context) ([]albums.Album, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.albums, nil
}

func (f *fakeSource) ListAlbumPhotos(ctx context.Context, albumID string) ([]albums.Photo, error) {
	if err := f.photoErr[albumID]; err != nil {
		return nil, err
	}
	return f.photos[albumID], nil
}

type fakeRemote struct {
	fail   map[string]error
	opened []string
	onOpen func(photo albums.Photo)
}

func (f *fakeRemote) Open(ctx context.Context, photo albums.Photo) (io.ReadCloser, error) {
	f.opened = append(f.opened, photo.ID)
	if f.onOpen != nil {
		f.onOpen(photo)
	}
	if err := f.fail[photo.ID]; err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(jpeg(photo.ID))), nil
}

type recordingObserver struct {
	started  []string
	results  []Result
	failures []string
}

func (o *recordingObserver) AlbumStarted(plan *AlbumPlan) { o.started = append(o.started, plan.Dir) }
func (o *recordingObserver) PhotoFinished(r Result)       { o.results = append(o.results, r) }
func (o *recordingObserver) AlbumFailed(album *albums.Album, err error) {
	o.failures = append(o.failures, album.Title)
}

func vacation(ids ...string) *fakeSource {
	photos := make([]albums.Photo, 0, len(ids))
	for _, id := range ids {
		photos = append(photos, albums.Photo{ID: id, Extension: "jpg", Media: albums.MediaPhoto})
	}
	return &fakeSource{
		albums: []albums.Album{{ID: "72157", Title: "Vacation 2023"}},
		photos: map[string][]albums.Photo{"72157": photos},
	}
}

func run(t *testing.T, src albums.Source, remote Remote, store *storage.Manager, opts Options) *Summary {
	t.Helper()
	r := NewRunner(albums.NewEnumerator(src, nil), remote, store, opts)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	return summary
}

func listDir(t *testing.T, store *storage.Manager, dir string) []string {
	t.Helper()
	infos, err := store.Filesystem().ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names
}

func TestVacation2023Scenario(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	src := vacation("A", "B", "C")
	remote := &fakeRemote{}

	// first run downloads everything
	s := run(t, src, remote, store, Options{})
	assert.Equal(t, 3, s.Downloaded)
	assert.Equal(t, 0, s.Skipped)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, []string{"0001-A.jpg", "0002-B.jpg", "0003-C.jpg"}, listDir(t, store, "Vacation 2023"))

	got, err := util.ReadFile(store.Filesystem(), "Vacation 2023/0002-B.jpg")
	require.NoError(t, err)
	assert.Equal(t, jpeg("B"), got)

	// second run without remote change fetches nothing
	remote.opened = nil
	s = run(t, src, remote, store, Options{})
	assert.Equal(t, 0, s.Downloaded)
	assert.Equal(t, 3, s.Skipped)
	assert.Empty(t, remote.opened)

	// a photo appended remotely gets the next ordinal
	src.photos["72157"] = append(src.photos["72157"], albums.Photo{ID: "D", Extension: "jpg"})
	s = run(t, src, remote, store, Options{})
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 3, s.Skipped)
	assert.Equal(t, []string{"D"}, remote.opened)
	assert.Equal(t, []string{"0001-A.jpg", "0002-B.jpg", "0003-C.jpg", "0004-D.jpg"}, listDir(t, store, "Vacation 2023"))
}

func TestPartialFailureIsIsolated(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	src := vacation("A", "B", "C")
	remote := &fakeRemote{fail: map[string]error{
		"B": errs.Download("fetch photo B", errors.New("connection reset")),
	}}
	obs := &recordingObserver{}

	s := run(t, src, remote, store, Options{Observer: obs})
	assert.Equal(t, 2, s.Downloaded)
	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "B", s.Failures[0].Photo.ID)
	assert.True(t, errs.IsKind(s.Failures[0].Err, errs.KindDownload))
	assert.Equal(t, []string{"0001-A.jpg", "0003-C.jpg"}, listDir(t, store, "Vacation 2023"))
	require.Len(t, obs.results, 3)

	// the failed photo is retried on the next run, nothing else is fetched
	remote.fail = nil
	remote.opened = nil
	s = run(t, src, remote, store, Options{})
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, []string{"B"}, remote.opened)
}

func TestUntypedRemoteErrorBecomesDownloadError(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	remote := &fakeRemote{fail: map[string]error{"A": errors.New("boom")}}

	s := run(t, vacation("A"), remote, store, Options{})
	require.Len(t, s.Failures, 1)
	assert.True(t, errs.IsKind(s.Failures[0].Err, errs.KindDownload))
}

func TestBadContentFailsOnlyThatPhoto(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	src := vacation("A", "B")

	s := run(t, src, htmlFor("A"), store, Options{})
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, []string{"0002-B.jpg"}, listDir(t, store, "Vacation 2023"))
}

type htmlRemote struct {
	fakeRemote
	html string
}

func htmlFor(id string) *htmlRemote {
	return &htmlRemote{html: id}
}

func (h *htmlRemote) Open(ctx context.Context, photo albums.Photo) (io.ReadCloser, error) {
	if photo.ID == h.html {
		return io.NopCloser(bytes.NewReader([]byte("<html><body>gone</body></html>"))), nil
	}
	return h.fakeRemote.Open(ctx, photo)
}

func TestAlbumDirectoryFailureIsFatalForAlbumOnly(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	require.NoError(t, util.WriteFile(store.Filesystem(), "Broken", []byte("not a dir"), 0644))

	src := &fakeSource{
		albums: []albums.Album{{ID: "1", Title: "Broken"}, {ID: "2", Title: "Good"}},
		photos: map[string][]albums.Photo{
			"1": {{ID: "A", Extension: "jpg"}, {ID: "B", Extension: "jpg"}},
			"2": {{ID: "C", Extension: "jpg"}},
		},
	}
	remote := &fakeRemote{}
	obs := &recordingObserver{}

	s := run(t, src, remote, store, Options{Observer: obs})
	assert.Equal(t, 2, s.AlbumsScanned)
	assert.Equal(t, 1, s.AlbumsFailed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, []string{"C"}, remote.opened)
	assert.Equal(t, []string{"Broken"}, obs.failures)
	for _, f := range s.Failures {
		assert.True(t, errs.IsKind(f.Err, errs.KindFilesystem))
	}
}

func TestAlbumListingFailureIsFatal(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{})
	src := &fakeSource{listErr: errs.Authentication("flickr.people.findByUsername", "Invalid API Key", 100)}

	r := NewRunner(albums.NewEnumerator(src, nil), &fakeRemote{}, store, Options{})
	s, err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindAuthentication))
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Total())
}

func TestPhotoListingFailureSkipsAlbum(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	src := &fakeSource{
		albums: []albums.Album{{ID: "1", Title: "Flaky"}, {ID: "2", Title: "Fine"}},
		photos: map[string][]albums.Photo{"2": {{ID: "C", Extension: "jpg"}}},
		photoErr: map[string]error{
			"1": errs.RemoteService("flickr.photosets.getPhotos", 503, errors.New("unavailable")),
		},
	}
	log := logger.NewTestLogger()

	s := run(t, src, &fakeRemote{}, store, Options{Logger: log})
	assert.Equal(t, 1, s.AlbumsFailed)
	assert.Equal(t, 1, s.Downloaded)
	assert.True(t, log.HasMessage("Skipping album, photos could not be listed"))
}

func TestPhotoListingAuthenticationFailureIsFatal(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{})
	src := &fakeSource{
		albums:   []albums.Album{{ID: "1", Title: "Private"}},
		photoErr: map[string]error{"1": errs.Authentication("flickr.photosets.getPhotos", "Insufficient permissions", 99)},
	}

	r := NewRunner(albums.NewEnumerator(src, nil), &fakeRemote{}, store, Options{})
	_, err := r.Run(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindAuthentication))
}

func TestDryRunWritesNothing(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	remote := &fakeRemote{}

	s := run(t, vacation("A", "B", "C"), remote, store, Options{DryRun: true})
	assert.Equal(t, 3, s.Planned)
	assert.Equal(t, 0, s.Downloaded)
	assert.Empty(t, remote.opened)

	ok, err := store.Exists("Vacation 2023")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDryRunStillReportsExisting(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	src := vacation("A", "B")
	run(t, vacation("A"), &fakeRemote{}, store, Options{})

	s := run(t, src, &fakeRemote{}, store, Options{DryRun: true})
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Planned)
}

func TestLiveClaimIsReportedInProgress(t *testing.T) {
	root := t.TempDir()
	store := storage.NewOSManager(root, storage.Options{VerifyContent: true})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Vacation 2023"), 0755))
	// a live process on this host is writing A right now
	host, err := os.Hostname()
	require.NoError(t, err)
	lock := filepath.Join(root, "Vacation 2023", "0001-A.jpg"+storage.LockSuffix)
	require.NoError(t, os.WriteFile(lock, []byte(fmt.Sprintf("%s %d\n", host, os.Getpid())), 0644))

	remote := &fakeRemote{}
	obs := &recordingObserver{}
	s := run(t, vacation("A", "B", "C"), remote, store, Options{Observer: obs})

	assert.Equal(t, 2, s.Downloaded)
	assert.Equal(t, 1, s.InProgress)
	assert.Equal(t, 0, s.Skipped, "a photo that is not on disk is never counted as skipped")
	assert.Equal(t, []string{"B", "C"}, remote.opened)
	require.Len(t, obs.results, 3)
	assert.Equal(t, StateInProgress, obs.results[0].State)

	_, err = os.Stat(filepath.Join(root, "Vacation 2023", "0001-A.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestLeftoverPartIsDownloadedAgain(t *testing.T) {
	root := t.TempDir()
	store := storage.NewOSManager(root, storage.Options{VerifyContent: true})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Vacation 2023"), 0755))
	// a killed run left B half written
	part := filepath.Join(root, "Vacation 2023", "0002-B.jpg"+storage.PartSuffix)
	require.NoError(t, os.WriteFile(part, []byte("half"), 0644))

	remote := &fakeRemote{}
	s := run(t, vacation("A", "B", "C"), remote, store, Options{})

	assert.Equal(t, 3, s.Downloaded)
	assert.Equal(t, 0, s.Skipped)
	assert.Equal(t, []string{"A", "B", "C"}, remote.opened)

	got, err := os.ReadFile(filepath.Join(root, "Vacation 2023", "0002-B.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpeg("B"), got)
	assert.NoFileExists(t, part)
}

func TestReorderCopiesInsteadOfFetching(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	m, err := manifest.OpenJSON(filepath.Join(t.TempDir(), "manifest.json"), nil)
	require.NoError(t, err)
	src := vacation("A", "B", "C")
	remote := &fakeRemote{}
	run(t, src, remote, store, Options{Manifest: m})

	// Z inserted at the front shifts every ordinal
	src.photos["72157"] = append([]albums.Photo{{ID: "Z", Extension: "jpg"}}, src.photos["72157"]...)
	remote.opened = nil
	obs := &recordingObserver{}
	s := run(t, src, remote, store, Options{Manifest: m, Observer: obs})

	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 3, s.Copied)
	assert.Equal(t, []string{"Z"}, remote.opened)
	assert.Equal(t, "Vacation 2023/0001-A.jpg", obs.results[1].CopiedFrom)

	// earlier names are left in place
	assert.Equal(t, []string{
		"0001-A.jpg", "0001-Z.jpg", "0002-A.jpg", "0002-B.jpg", "0003-B.jpg", "0003-C.jpg", "0004-C.jpg",
	}, listDir(t, store, "Vacation 2023"))
	got, err := util.ReadFile(store.Filesystem(), "Vacation 2023/0004-C.jpg")
	require.NoError(t, err)
	assert.Equal(t, jpeg("C"), got)

	e, ok, err := m.Lookup("72157", "C")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Vacation 2023/0004-C.jpg", e.Path)

	// the next run finds everything under its current name
	remote.opened = nil
	s = run(t, src, remote, store, Options{Manifest: m})
	assert.Equal(t, 4, s.Skipped)
	assert.Empty(t, remote.opened)
}

func TestReorderFetchesWhenEarlierCopyIsGone(t *testing.T) {
	store := storage.NewManager(memfs.New(), storage.Options{VerifyContent: true})
	m, err := manifest.OpenJSON(filepath.Join(t.TempDir(), "manifest.json"), nil)
	require.NoError(t, err)
	src := vacation("A", "B")
	run(t, src, &fakeRemote{}, store, Options{Manifest: m})
	require.NoError(t, store.Filesystem().Remove("Vacation 2023/0001-A.jpg"))

	src.photos["72157"] = []albums.Photo{src.photos["72157"][1], src.photos["72157"][0]}
	remote := &fakeRemote{}
	s := run(t, src, remote, store, Options{Manifest: m})

	assert.Equal(t, 1, s.Copied)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, []string{"A"}, remote.opened)
	assert.Equal(t, []string{"0001-B.jpg", "0002-A.jpg", "0002-B.jpg"}, listDir(t, store, "Vacation 2023"))
}

func TestLongAlbumTitleFitsOnDisk(t *testing.T) {
	root := t.TempDir()
	store := storage.NewOSManager(root, storage.Options{VerifyContent: true})
	src := vacation("A")
	src.albums[0].Title = strings.Repeat("Sommerferie ", 30)

	s := run(t, src, &fakeRemote{}, store, Options{})
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 0, s.AlbumsFailed)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.LessOrEqual(t, len(entries[0].Name()), MaxTitleBytes)
}

func TestRunLogsStart(t *testing.T) {
	log := logger.NewTestLogger()
	store := storage.NewManager(memfs.New(), storage.Options{})
	run(t, vacation(), &fakeRemote{}, store, Options{Logger: log, DryRun: true})
	assert.True(t, log.HasMessage("Component started"))
}

func TestCancellationStopsAfterCurrentPhoto(t *testing.T) {
	root := t.TempDir()
	store := storage.NewOSManager(root, storage.Options{VerifyContent: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := &fakeRemote{onOpen: func(albums.Photo) { cancel() }}

	r := NewRunner(albums.NewEnumerator(vacation("A", "B", "C"), nil), remote, store, Options{})
	s, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, []string{"A"}, remote.opened)

	entries, err := os.ReadDir(filepath.Join(root, "Vacation 2023"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0001-A.jpg", entries[0].Name())
}

func TestManifestRecordsAndDetectsRetitle(t *testing.T) {
	root := t.TempDir()
	store := storage.NewOSManager(root, storage.Options{VerifyContent: true})
	m, err := manifest.OpenJSON(manifest.DefaultPath(root, manifest.BackendJSON), nil)
	require.NoError(t, err)

	src := vacation("A", "B")
	run(t, src, &fakeRemote{}, store, Options{Manifest: m})

	e, ok, err := m.Lookup("72157", "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Vacation 2023/0002-B.jpg", e.Path)
	assert.FileExists(t, filepath.Join(root, manifest.Dir, "manifest.json"))

	src.albums[0].Title = "Italy 2023"
	log := logger.NewTestLogger()
	remote := &fakeRemote{}
	s := run(t, src, remote, store, Options{Manifest: m, Logger: log})

	// the new title gets its own tree, filled from the old one
	assert.Equal(t, 2, s.Copied)
	assert.Empty(t, remote.opened)
	assert.True(t, log.HasMessage("Album appears to have been retitled, previous files are left in place"))
	assert.FileExists(t, filepath.Join(root, "Vacation 2023", "0001-A.jpg"))
	assert.FileExists(t, filepath.Join(root, "Italy 2023", "0001-A.jpg"))
}
