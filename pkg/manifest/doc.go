// Package manifest keeps a ledger of the photos a backup has published.
//
// Each entry maps an album ID and photo ID to the path the photo was written
// to. The ledger is used for reporting and to notice albums whose title (and
// therefore directory) changed between runs. Whether a photo is downloaded is
// decided by the filesystem alone.
//
// Backends:
//   - json: one indented file, rewritten atomically on Flush
//   - badger: an embedded key-value store, one key per entry
//   - none: records nothing
//
// Usage:
//
//	m, err := manifest.Open(cfg.Manifest, root, log)
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	m.Record(manifest.Entry{AlbumID: id, PhotoID: p.ID, Path: target})
package manifest
