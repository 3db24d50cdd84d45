package albums

import (
	"context"
	"iter"

	"flickrbackup/pkg/logger"
)

// Media kinds reported by the remote listing
const (
	MediaPhoto = "photo"
	MediaVideo = "video"
)

// Album is one remote album with its photos in remote order
type Album struct {
	ID     string
	Title  string
	Photos []Photo
}

// Photo is one item of an album. Its bytes are fetched lazily.
type Photo struct {
	ID        string
	Title     string
	Extension string // lowercase, without the dot
	Index     int    // 1-based position within the album
	Media     string
	// URL is the original-size location when the listing already carries it
	URL string
}

// Source lists the remote albums of the configured user
type Source interface {
	// ListAlbums returns every album. Photos are left empty.
	ListAlbums(ctx context.Context) ([]Album, error)
	// ListAlbumPhotos returns the photos of one album in album order
	ListAlbumPhotos(ctx context.Context, albumID string) ([]Photo, error)
}

// Enumerator walks a Source album by album
type Enumerator struct {
	source Source
	logger logger.Logger
}

// NewEnumerator creates an enumerator over source
func NewEnumerator(source Source, log logger.Logger) *Enumerator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Enumerator{source: source, logger: log}
}

// Albums lists albums afresh on every call and yields each one with its
// photos. Index is assigned 1..n in the order the source returned them.
//
// A failure to list albums yields (nil, err) and ends the sequence. A failure
// to list one album's photos yields that album without photos together with
// the error, then continues with the next album.
func (e *Enumerator) Albums(ctx context.Context) iter.Seq2[*Album, error] {
	return func(yield func(*Album, error) bool) {
		list, err := e.source.ListAlbums(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		e.logger.WithField("albums", len(list)).Debug("Listed albums")

		for i := range list {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			album := &Album{ID: list[i].ID, Title: list[i].Title}
			photos, err := e.source.ListAlbumPhotos(ctx, album.ID)
			if err != nil {
				if !yield(album, err) {
					return
				}
				continue
			}

			album.Photos = make([]Photo, len(photos))
			for j, p := range photos {
				p.Index = j + 1
				album.Photos[j] = p
			}

			if !yield(album, nil) {
				return
			}
		}
	}
}
