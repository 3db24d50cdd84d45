package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"flickrbackup/pkg/logger"
)

const entryPrefix = "e:"

// BadgerManifest stores one key per entry in a badger database. Records are
// durable as soon as Record returns.
type BadgerManifest struct {
	db     *badger.DB
	logger logger.Logger
}

// OpenBadger opens or creates the badger database in directory p
func OpenBadger(p string, log logger.Logger) (*BadgerManifest, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}

	opts := badger.DefaultOptions(p)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	log.WithField("component", "manifest").DebugWithFields("Manifest opened", map[string]interface{}{
		"path":    p,
		"backend": BackendBadger,
	})
	return &BadgerManifest{db: db, logger: log.WithField("component", "manifest")}, nil
}

func badgerKey(albumID, photoID string) []byte {
	return []byte(entryPrefix + entryKey(albumID, photoID))
}

func (m *BadgerManifest) Record(e Entry) error {
	if e.DownloadedAt.IsZero() {
		e.DownloadedAt = time.Now().UTC()
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(e.AlbumID, e.PhotoID), val)
	})
}

func (m *BadgerManifest) Lookup(albumID, photoID string) (*Entry, bool, error) {
	var e Entry
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(albumID, photoID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

func (m *BadgerManifest) AlbumDirs(albumID string) ([]string, error) {
	prefix := []byte(entryPrefix + albumID + "/")
	dirs := make(map[string]struct{})

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				dirs[albumDir(e.Path)] = struct{}{}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(dirs), nil
}

func (m *BadgerManifest) Flush() error {
	return m.db.Sync()
}

func (m *BadgerManifest) Close() error {
	return m.db.Close()
}
