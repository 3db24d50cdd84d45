package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "flickrbackup/pkg/errors"
)

func jpeg(payload string) []byte {
	return append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), payload...)
}

func newMemManager() *Manager {
	return NewManager(memfs.New(), Options{VerifyContent: true})
}

// save claims target, copies r into it and publishes it
func save(m *Manager, target string, r io.Reader) (*Written, error) {
	c, err := m.Claim(target)
	if err != nil {
		return nil, err
	}
	w, err := c.Write(r)
	if err != nil {
		c.Abort()
		return nil, err
	}
	return w, c.Commit()
}

func writeLock(t *testing.T, m *Manager, target, owner string) {
	t.Helper()
	require.NoError(t, util.WriteFile(m.Filesystem(), target+LockSuffix, []byte(owner), 0644))
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	m := newMemManager()

	require.NoError(t, m.EnsureDir("Vacation 2023"))
	require.NoError(t, m.EnsureDir("Vacation 2023"))

	ok, err := m.Exists("Vacation 2023")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureDirOverFileFails(t *testing.T) {
	m := newMemManager()
	require.NoError(t, util.WriteFile(m.Filesystem(), "taken", []byte("x"), 0644))

	err := m.EnsureDir("taken")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindFilesystem))
}

func TestClaimPublishesAtomically(t *testing.T) {
	m := newMemManager()
	require.NoError(t, m.EnsureDir("album"))

	data := jpeg(strings.Repeat("A", 10000))
	w, err := save(m, "album/0001-A.jpg", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), w.Bytes)
	assert.Equal(t, "image/jpeg", w.MIME)

	got, err := util.ReadFile(m.Filesystem(), "album/0001-A.jpg")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	for _, p := range []string{"album/0001-A.jpg" + PartSuffix, "album/0001-A.jpg" + LockSuffix} {
		ok, err := m.Exists(p)
		require.NoError(t, err)
		assert.False(t, ok, "%s must be gone after commit", p)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestInterruptedWriteLeavesNothing(t *testing.T) {
	m := newMemManager()
	require.NoError(t, m.EnsureDir("album"))

	r := &failingReader{data: jpeg(strings.Repeat("x", 5000)), err: errors.New("connection reset")}
	_, err := save(m, "album/0001-A.jpg", r)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDownload))

	for _, p := range []string{"album/0001-A.jpg", "album/0001-A.jpg" + PartSuffix, "album/0001-A.jpg" + LockSuffix} {
		ok, err := m.Exists(p)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
}

func TestVerifyContentRejectsHTML(t *testing.T) {
	m := newMemManager()

	_, err := save(m, "0001-A.jpg", strings.NewReader("<!DOCTYPE html><html><body>Photo not available</body></html>"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDownload))
	assert.Contains(t, err.Error(), "text/html")

	ok, _ := m.Exists("0001-A.jpg")
	assert.False(t, ok)
}

func TestVerifyContentRejectsEmpty(t *testing.T) {
	m := newMemManager()

	_, err := save(m, "0001-A.jpg", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty payload")
}

func TestVerifyContentOff(t *testing.T) {
	m := NewManager(memfs.New(), Options{})

	_, err := save(m, "notes.jpg", strings.NewReader("plain text"))
	assert.NoError(t, err)
}

func TestVideoContentAccepted(t *testing.T) {
	m := newMemManager()
	// ftyp box of an mp4
	mp4 := append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), make([]byte, 64)...)

	w, err := save(m, "0001-V.mp4", bytes.NewReader(mp4))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.MIME, "video/"), w.MIME)
}

func TestClaimHeldBlocksSecondWriter(t *testing.T) {
	m := newMemManager()

	first, err := m.Claim("0001-A.jpg")
	require.NoError(t, err)

	_, err = m.Claim("0001-A.jpg")
	assert.ErrorIs(t, err, ErrClaimHeld)

	_, err = first.Write(bytes.NewReader(jpeg("A")))
	require.NoError(t, err)
	require.NoError(t, first.Commit())

	// once published, a new claim sees the target
	_, err = m.Claim("0001-A.jpg")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	ok, _ := m.Exists("0001-A.jpg" + PartSuffix)
	assert.False(t, ok)
}

func TestAbortReleasesClaim(t *testing.T) {
	m := newMemManager()

	c, err := m.Claim("0001-A.jpg")
	require.NoError(t, err)
	c.Abort()
	c.Abort()

	c, err = m.Claim("0001-A.jpg")
	require.NoError(t, err)
	assert.Equal(t, "0001-A.jpg", c.Target())
	c.Abort()
}

func TestCommitTwiceFails(t *testing.T) {
	m := newMemManager()
	c, err := m.Claim("a.jpg")
	require.NoError(t, err)
	_, err = c.Write(bytes.NewReader(jpeg("a")))
	require.NoError(t, err)
	require.NoError(t, c.Commit())
	assert.Error(t, c.Commit())
}

func TestLeftoverPartWithoutLockIsOverwritten(t *testing.T) {
	root := t.TempDir()
	m := NewOSManager(root, Options{VerifyContent: true})

	// a killed run left its bytes but no lock
	part := filepath.Join(root, "0001-A.jpg"+PartSuffix)
	require.NoError(t, os.WriteFile(part, []byte("half of a much longer photo"), 0644))

	_, err := save(m, "0001-A.jpg", bytes.NewReader(jpeg("complete")))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "0001-A.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpeg("complete"), got)
	_, err = os.Stat(part)
	assert.True(t, os.IsNotExist(err))
}

func TestLockOfLiveProcessIsHeld(t *testing.T) {
	m := newMemManager()
	m.alive = func(int) (bool, bool) { return true, true }
	writeLock(t, m, "0001-A.jpg", m.host+" 4242\n")

	_, err := m.Claim("0001-A.jpg")
	assert.ErrorIs(t, err, ErrClaimHeld)

	// age does not matter while the owner runs
	m.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	_, err = m.Claim("0001-A.jpg")
	assert.ErrorIs(t, err, ErrClaimHeld)
}

func TestLockOfDeadProcessIsTakenOver(t *testing.T) {
	m := newMemManager()
	var asked int
	m.alive = func(pid int) (bool, bool) {
		asked = pid
		return false, true
	}
	writeLock(t, m, "0001-A.jpg", m.host+" 4242\n")

	w, err := save(m, "0001-A.jpg", bytes.NewReader(jpeg("complete")))
	require.NoError(t, err)
	assert.Positive(t, w.Bytes)
	assert.Equal(t, 4242, asked)

	ok, _ := m.Exists("0001-A.jpg" + LockSuffix)
	assert.False(t, ok)
}

func TestForeignLockAgesOut(t *testing.T) {
	m := NewManager(memfs.New(), Options{StaleClaimAfter: time.Minute, VerifyContent: true})
	m.alive = func(int) (bool, bool) {
		t.Fatal("processes of other hosts are never looked up")
		return false, false
	}
	writeLock(t, m, "0001-A.jpg", "elsewhere 4242\n")

	// fresh locks of other hosts are respected
	_, err := m.Claim("0001-A.jpg")
	assert.ErrorIs(t, err, ErrClaimHeld)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = save(m, "0001-A.jpg", bytes.NewReader(jpeg("complete")))
	require.NoError(t, err)
}

func TestUnreadableLockAgesOut(t *testing.T) {
	m := NewManager(memfs.New(), Options{StaleClaimAfter: time.Minute, VerifyContent: true})
	writeLock(t, m, "0001-A.jpg", "")

	_, err := m.Claim("0001-A.jpg")
	assert.ErrorIs(t, err, ErrClaimHeld)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = save(m, "0001-A.jpg", bytes.NewReader(jpeg("complete")))
	assert.NoError(t, err)
}

func TestLockNamesOwner(t *testing.T) {
	m := newMemManager()
	c, err := m.Claim("0001-A.jpg")
	require.NoError(t, err)
	defer c.Abort()

	host, pid, ok := m.readLock("0001-A.jpg" + LockSuffix)
	require.True(t, ok)
	assert.Equal(t, m.host, host)
	assert.Equal(t, os.Getpid(), pid)
}

func TestOpenPublishedFile(t *testing.T) {
	m := newMemManager()
	_, err := save(m, "0001-A.jpg", bytes.NewReader(jpeg("A")))
	require.NoError(t, err)

	r, err := m.Open("0001-A.jpg")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, jpeg("A"), got)

	_, err = m.Open("missing.jpg")
	assert.True(t, errs.IsKind(err, errs.KindFilesystem))
}

func TestOSManagerInterruptedWrite(t *testing.T) {
	root := t.TempDir()
	m := NewOSManager(root, Options{VerifyContent: true})
	require.NoError(t, m.EnsureDir("album"))

	r := io.MultiReader(bytes.NewReader(jpeg(strings.Repeat("y", 8000))), &failingReader{err: io.ErrUnexpectedEOF})
	_, err := save(m, "album/0001-A.jpg", r)
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "album"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "Vacation 2023/0001-A.jpg", Join("Vacation 2023", "0001-A.jpg"))
}
