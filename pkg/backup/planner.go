package backup

import (
	"flickrbackup/pkg/albums"
	"flickrbackup/pkg/manifest"
	"flickrbackup/pkg/storage"
)

// Target is one photo and the path it is published under, relative to the
// backup root
type Target struct {
	Photo albums.Photo
	Path  string
}

// AlbumPlan is the local layout computed for one album
type AlbumPlan struct {
	AlbumID string
	Title   string
	Dir     string
	Width   int
	Targets []Target
}

// Planner maps albums onto the local tree
type Planner struct {
	MinPadWidth int
}

// NewPlanner creates a planner. A non-positive width uses DefaultMinPadWidth.
func NewPlanner(minPadWidth int) Planner {
	if minPadWidth <= 0 {
		minPadWidth = DefaultMinPadWidth
	}
	return Planner{MinPadWidth: minPadWidth}
}

// Plan computes the directory of album and the target of every photo. The
// padding width depends on the number of photos, so all names of one album
// have equal length.
func (p Planner) Plan(album *albums.Album) *AlbumPlan {
	plan := &AlbumPlan{
		AlbumID: album.ID,
		Title:   album.Title,
		Dir:     SanitizeTitle(album.Title, album.ID),
		Width:   OrdinalWidth(len(album.Photos), p.MinPadWidth),
		Targets: make([]Target, 0, len(album.Photos)),
	}
	// the bookkeeping directory is not available to albums
	if plan.Dir == manifest.Dir {
		plan.Dir = "_" + plan.Dir
	}

	for i, photo := range album.Photos {
		if photo.Index == 0 {
			photo.Index = i + 1
		}
		name := PhotoFilename(photo.Index, plan.Width, photo.ID, photo.Extension)
		plan.Targets = append(plan.Targets, Target{
			Photo: photo,
			Path:  storage.Join(plan.Dir, name),
		})
	}
	return plan
}
