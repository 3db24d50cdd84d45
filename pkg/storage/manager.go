package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	errs "flickrbackup/pkg/errors"
)

// PartSuffix marks the bytes of an in-progress download next to its final
// name
const PartSuffix = ".part"

// LockSuffix marks the claim of a target. The lock file names the host and
// process that hold it.
const LockSuffix = ".lock"

// sniffLen is how many leading bytes are inspected to detect content type
const sniffLen = 3072

var (
	// ErrClaimHeld means another live writer is currently producing the target
	ErrClaimHeld = errors.New("download already in progress")
	// ErrAlreadyExists means the target appeared while acquiring the claim
	ErrAlreadyExists = errors.New("target already exists")
)

// Options configures a Manager
type Options struct {
	// StaleClaimAfter is how long a lock whose owner cannot be checked is
	// honoured. Locks of this host are decided by whether their process
	// still runs.
	StaleClaimAfter time.Duration
	// VerifyContent rejects payloads that sniff as text or markup
	VerifyContent bool
}

// Manager treats a directory tree as a key-existence store. Files only ever
// appear under their final name once completely written.
type Manager struct {
	fs    billy.Filesystem
	opts  Options
	host  string
	pid   int
	now   func() time.Time
	alive func(pid int) (alive, known bool)
}

// NewManager creates a manager over fs. Paths are slash-separated and
// relative to the root of fs.
func NewManager(fsys billy.Filesystem, opts Options) *Manager {
	if opts.StaleClaimAfter <= 0 {
		opts.StaleClaimAfter = 10 * time.Minute
	}
	host, _ := os.Hostname()
	return &Manager{
		fs:    fsys,
		opts:  opts,
		host:  host,
		pid:   os.Getpid(),
		now:   time.Now,
		alive: processAlive,
	}
}

// NewOSManager creates a manager over the local directory root
func NewOSManager(root string, opts Options) *Manager {
	return NewManager(osfs.New(root), opts)
}

// Filesystem returns the underlying filesystem
func (m *Manager) Filesystem() billy.Filesystem {
	return m.fs
}

// EnsureDir creates dir and its parents. Existing directories are fine.
func (m *Manager) EnsureDir(dir string) error {
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return errs.Filesystem("mkdir "+dir, err)
	}
	info, err := m.fs.Stat(dir)
	if err != nil {
		return errs.Filesystem("stat "+dir, err)
	}
	if !info.IsDir() {
		return errs.Filesystem("mkdir "+dir, fmt.Errorf("%s exists and is not a directory", dir))
	}
	return nil
}

// Exists reports whether something is already published at p
func (m *Manager) Exists(p string) (bool, error) {
	_, err := m.fs.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errs.Filesystem("stat "+p, err)
	}
}

// Open opens a published file for reading
func (m *Manager) Open(p string) (io.ReadCloser, error) {
	f, err := m.fs.Open(p)
	if err != nil {
		return nil, errs.Filesystem("open "+p, err)
	}
	return f, nil
}

// Claim exclusively reserves target by creating target+".lock", then opens
// target+".part" for the bytes. A leftover ".part" without a lock is
// overwritten. It returns ErrClaimHeld when a live writer holds the lock
// and ErrAlreadyExists when target was published by someone else meanwhile.
func (m *Manager) Claim(target string) (*Claim, error) {
	lock := target + LockSuffix

	if err := m.createLock(lock); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return nil, errs.Filesystem("claim "+target, err)
		}
		if !m.abandoned(lock) {
			return nil, ErrClaimHeld
		}
		if rmErr := m.fs.Remove(lock); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, errs.Filesystem("remove stale claim "+lock, rmErr)
		}
		if err := m.createLock(lock); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil, ErrClaimHeld
			}
			return nil, errs.Filesystem("claim "+target, err)
		}
	}

	c := &Claim{manager: m, target: target, part: target + PartSuffix, lock: lock}

	// the test and the create happen under the lock
	exists, err := m.Exists(target)
	if err != nil {
		c.release()
		return nil, err
	}
	if exists {
		c.release()
		return nil, ErrAlreadyExists
	}

	c.file, err = m.fs.OpenFile(c.part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		c.release()
		return nil, errs.Filesystem("claim "+target, err)
	}
	return c, nil
}

func (m *Manager) createLock(p string) error {
	f, err := m.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%s %d\n", m.host, m.pid)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		m.fs.Remove(p)
		return werr
	}
	return nil
}

// abandoned reports whether the lock at p can be taken over: its process
// on this host is gone, or it cannot be checked and the lock is older than
// StaleClaimAfter.
func (m *Manager) abandoned(p string) bool {
	info, err := m.fs.Stat(p)
	if err != nil {
		// vanished meanwhile; let the retry decide
		return errors.Is(err, fs.ErrNotExist)
	}

	if host, pid, ok := m.readLock(p); ok && host == m.host {
		if alive, known := m.alive(pid); known {
			return !alive
		}
	}
	return m.now().Sub(info.ModTime()) > m.opts.StaleClaimAfter
}

func (m *Manager) readLock(p string) (host string, pid int, ok bool) {
	data, err := util.ReadFile(m.fs, p)
	if err != nil {
		return "", 0, false
	}
	if _, err := fmt.Sscan(string(data), &host, &pid); err != nil || pid <= 0 {
		return "", 0, false
	}
	return host, pid, true
}

// Written describes a completed write
type Written struct {
	Bytes int64
	MIME  string
}

// Claim is an exclusive reservation of one target path
type Claim struct {
	manager *Manager
	target  string
	part    string
	lock    string
	file    billy.File
	done    bool
}

// Target returns the final path of the claim
func (c *Claim) Target() string {
	return c.target
}

// Write copies r into the claim file. With content verification on, a
// payload that sniffs as text or markup is refused as a download error.
func (c *Claim) Write(r io.Reader) (*Written, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, errs.Download("read "+c.target, err)
	}
	head = head[:n]

	mime := mimetype.Detect(head)
	if c.manager.opts.VerifyContent {
		if n == 0 {
			return nil, errs.Download("verify "+c.target, errors.New("empty payload"))
		}
		if !acceptable(mime) {
			return nil, errs.Download("verify "+c.target, fmt.Errorf("unexpected content type %s", mime.String()))
		}
	}

	written, err := io.Copy(&partWriter{c.file}, io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		var we *writeError
		if errors.As(err, &we) {
			return nil, errs.Filesystem("write "+c.part, we.err)
		}
		return nil, errs.Download("read "+c.target, err)
	}

	return &Written{Bytes: written, MIME: mime.String()}, nil
}

// acceptable reports whether a sniffed type can be a photo or video
func acceptable(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "text/") || m.Is("application/json") || m.Is("application/xml") {
			return false
		}
	}
	return true
}

// Commit closes the part file, renames it to the target and releases the
// lock
func (c *Claim) Commit() error {
	if c.done {
		return errors.New("claim already finished")
	}
	c.done = true
	defer c.release()

	if err := c.file.Close(); err != nil {
		c.manager.fs.Remove(c.part)
		return errs.Filesystem("close "+c.part, err)
	}
	if err := c.manager.fs.Rename(c.part, c.target); err != nil {
		c.manager.fs.Remove(c.part)
		return errs.Filesystem("rename "+c.part, err)
	}
	return nil
}

// Abort discards the claim. It is safe to call after Commit.
func (c *Claim) Abort() {
	if c.done {
		return
	}
	c.done = true
	c.file.Close()
	c.manager.fs.Remove(c.part)
	c.release()
}

func (c *Claim) release() {
	c.manager.fs.Remove(c.lock)
}

// partWriter tags write failures so they can be told apart from read
// failures of the remote body
type partWriter struct{ w io.Writer }

func (p *partWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if err != nil {
		return n, &writeError{err}
	}
	return n, nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// Join joins slash-separated path elements
func Join(elem ...string) string {
	return path.Join(elem...)
}
