package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"flickrbackup/pkg/config"
	"flickrbackup/pkg/logger"
)

// Dir is the bookkeeping directory created under the backup root
const Dir = ".flickrbackup"

// Backend names accepted by Open
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Entry records one published photo
type Entry struct {
	AlbumID      string    `json:"album_id"`
	AlbumTitle   string    `json:"album_title"`
	PhotoID      string    `json:"photo_id"`
	Path         string    `json:"path"` // relative to the backup root, slash-separated
	Bytes        int64     `json:"bytes"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Manifest is a ledger of published photos. It is informational: the
// existence of a file on disk decides whether a photo is fetched, never the
// manifest.
type Manifest interface {
	// Record stores e, replacing any previous entry for the same album and photo
	Record(e Entry) error
	// Lookup returns the entry of photoID within albumID
	Lookup(albumID, photoID string) (*Entry, bool, error)
	// AlbumDirs returns the distinct directories photos of albumID were
	// written to, sorted
	AlbumDirs(albumID string) ([]string, error)
	// Flush persists pending records
	Flush() error
	Close() error
}

// DefaultPath returns the manifest location for backend under root
func DefaultPath(root, backend string) string {
	name := "manifest.json"
	if backend == BackendBadger {
		name = "manifest.db"
	}
	return filepath.Join(root, Dir, name)
}

// Open opens the manifest configured by cfg for the backup tree at root
func Open(cfg config.ManifestConfig, root string, log logger.Logger) (Manifest, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	backend := strings.ToLower(cfg.Backend)
	if backend == "" {
		backend = BackendJSON
	}
	p := cfg.Path
	if p == "" {
		p = DefaultPath(root, backend)
	}

	switch backend {
	case BackendJSON:
		return OpenJSON(p, log)
	case BackendBadger:
		return OpenBadger(p, log)
	case BackendNone:
		return Nop(), nil
	default:
		return nil, fmt.Errorf("unknown manifest backend %q", cfg.Backend)
	}
}

func entryKey(albumID, photoID string) string {
	return albumID + "/" + photoID
}

func albumDir(p string) string {
	return path.Dir(filepath.ToSlash(p))
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Nop returns a manifest that records nothing
func Nop() Manifest {
	return nopManifest{}
}

type nopManifest struct{}

func (nopManifest) Record(Entry) error                          { return nil }
func (nopManifest) Lookup(string, string) (*Entry, bool, error) { return nil, false, nil }
func (nopManifest) AlbumDirs(string) ([]string, error)          { return nil, nil }
func (nopManifest) Flush() error                                { return nil }
func (nopManifest) Close() error                                { return nil }
