package ui

import (
	"fmt"

	"flickrbackup/pkg/albums"
	"flickrbackup/pkg/backup"
)

// Progress prints one line per album and per fetched photo. It implements
// backup.Observer.
type Progress struct {
	// Verbose also prints skipped photos
	Verbose bool

	albumTotal int
	albumDone  int
}

// NewProgress creates a line-oriented progress printer
func NewProgress(verbose bool) *Progress {
	return &Progress{Verbose: verbose}
}

func (p *Progress) AlbumStarted(plan *backup.AlbumPlan) {
	p.albumTotal = len(plan.Targets)
	p.albumDone = 0
	printf(false, "%s %s %s\n", Magenta("Scanning album:"), plan.Title, Dim(fmt.Sprintf("(%d photos)", p.albumTotal)))
}

func (p *Progress) PhotoFinished(r backup.Result) {
	p.albumDone++
	counter := Dim(fmt.Sprintf("[%d/%d]", p.albumDone, p.albumTotal))

	switch r.State {
	case backup.StateDownloaded:
		printf(false, " %s %s %s %s\n", Green("✓"), counter, r.Path, Dim(FormatBytes(r.Bytes)))
	case backup.StateCopied:
		printf(false, " %s %s %s %s\n", Green("↻"), counter, r.Path, Dim("(from "+r.CopiedFrom+")"))
	case backup.StateInProgress:
		printf(false, " %s %s %s %s\n", Yellow("…"), counter, r.Path, Dim("(being written by another run)"))
	case backup.StatePlanned:
		printf(false, " %s %s %s\n", Cyan("+"), counter, r.Path)
	case backup.StateFailed:
		printf(false, " %s %s %s: %v\n", Red("✗"), counter, r.Path, r.Err)
	case backup.StateSkipped:
		if p.Verbose {
			printf(false, " %s %s %s %s\n", Dim("•"), counter, r.Path, Dim("("+r.Reason+")"))
		}
	}
}

func (p *Progress) AlbumFailed(album *albums.Album, err error) {
	printf(false, " %s %s: %v\n", Red("✗ album failed"), album.Title, err)
}
