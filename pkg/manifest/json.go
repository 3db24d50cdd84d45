package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flickrbackup/pkg/logger"
)

const fileVersion = 1

type jsonFile struct {
	Version   int              `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
	Entries   map[string]Entry `json:"entries"`
}

// JSONManifest keeps the ledger in memory and writes it to a single JSON
// file on Flush
type JSONManifest struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	dirty   bool
	logger  logger.Logger
}

// OpenJSON loads the manifest at p. A missing file starts an empty ledger.
func OpenJSON(p string, log logger.Logger) (*JSONManifest, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &JSONManifest{
		path:    p,
		entries: make(map[string]Entry),
		logger:  log.WithField("component", "manifest"),
	}

	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var data jsonFile
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", p, err)
	}
	if data.Entries != nil {
		m.entries = data.Entries
	}

	m.logger.DebugWithFields("Manifest loaded", map[string]interface{}{
		"path":    p,
		"entries": len(m.entries),
	})
	return m, nil
}

func (m *JSONManifest) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.DownloadedAt.IsZero() {
		e.DownloadedAt = time.Now().UTC()
	}
	m.entries[entryKey(e.AlbumID, e.PhotoID)] = e
	m.dirty = true
	return nil
}

func (m *JSONManifest) Lookup(albumID, photoID string) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryKey(albumID, photoID)]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (m *JSONManifest) AlbumDirs(albumID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirs := make(map[string]struct{})
	for _, e := range m.entries {
		if e.AlbumID == albumID {
			dirs[albumDir(e.Path)] = struct{}{}
		}
	}
	return sortedKeys(dirs), nil
}

// Flush writes the ledger atomically: encode to a temporary file, sync,
// then rename over the previous manifest
func (m *JSONManifest) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary manifest file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	data := jsonFile{Version: fileVersion, UpdatedAt: time.Now().UTC(), Entries: m.entries}
	if err := encoder.Encode(&data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync manifest file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close manifest file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace manifest file: %w", err)
	}

	m.dirty = false
	m.logger.DebugWithFields("Manifest saved", map[string]interface{}{
		"path":    m.path,
		"entries": len(m.entries),
	})
	return nil
}

func (m *JSONManifest) Close() error {
	return m.Flush()
}
