// Package logger provides the structured logging interface used across
// flickrbackup.
//
// It wraps zerolog with a small Logger interface:
// - leveled methods (Debug, Info, Warn, Error)
// - derived loggers carrying fields (WithField, WithFields, WithError)
// - pretty console output on stderr, or JSON lines
// - optional JSON file output next to the console
//
// Basic Usage:
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("album", album.Title).Info("Syncing album")
//	log.WithError(err).Error("Failed to fetch photo")
//
// Tests use NewTestLogger to capture and assert on messages, or
// NewNopLogger to discard them.
package logger
