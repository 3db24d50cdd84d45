package flickr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"flickrbackup/pkg/albums"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/retry"
)

var videoFormats = map[string]bool{
	"mp4": true, "mov": true, "m4v": true, "avi": true,
	"3gp": true, "mts": true, "wmv": true, "mpg": true, "mpeg": true,
}

// UserID resolves the configured username to its NSID. The result is cached
// for the lifetime of the client.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if c.nsid != "" {
		return c.nsid, nil
	}

	var resp findByUsernameResponse
	params := url.Values{"username": {c.username}}
	if err := c.call(ctx, MethodFindByUsername, params, &resp); err != nil {
		return "", err
	}

	nsid := resp.User.NSID
	if nsid == "" {
		nsid = resp.User.ID
	}
	if nsid == "" {
		return "", errs.Authentication(MethodFindByUsername, fmt.Sprintf("no id returned for user %q", c.username), 0)
	}

	c.logger.WithFields(map[string]interface{}{
		"username": c.username,
		"nsid":     nsid,
	}).Debug("Resolved Flickr user")

	c.nsid = nsid
	return nsid, nil
}

// ListAlbums returns every photoset of the configured user
func (c *Client) ListAlbums(ctx context.Context) ([]albums.Album, error) {
	nsid, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var out []albums.Album
	for pageNum := 1; ; pageNum++ {
		var resp photosetsListResponse
		params := url.Values{
			"user_id":  {nsid},
			"page":     {strconv.Itoa(pageNum)},
			"per_page": {strconv.Itoa(c.perPage)},
		}
		if err := c.call(ctx, MethodPhotosetsList, params, &resp); err != nil {
			return nil, err
		}

		for _, ps := range resp.Photosets.Photoset {
			out = append(out, albums.Album{
				ID:    ps.ID,
				Title: strings.TrimSpace(ps.Title.Content),
			})
		}

		if pageNum >= int(resp.Photosets.Pages) || len(resp.Photosets.Photoset) == 0 {
			break
		}
	}

	return out, nil
}

// ListAlbumPhotos returns the photos of one photoset in album order
func (c *Client) ListAlbumPhotos(ctx context.Context, albumID string) ([]albums.Photo, error) {
	nsid, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var out []albums.Photo
	for pageNum := 1; ; pageNum++ {
		var resp photosetPhotosResponse
		params := url.Values{
			"photoset_id": {albumID},
			"user_id":     {nsid},
			"extras":      {photoExtras},
			"media":       {"all"},
			"page":        {strconv.Itoa(pageNum)},
			"per_page":    {strconv.Itoa(c.perPage)},
		}
		if err := c.call(ctx, MethodPhotosetPhotos, params, &resp); err != nil {
			return nil, err
		}

		for _, p := range resp.Photoset.Photo {
			out = append(out, toPhoto(p))
		}

		if pageNum >= int(resp.Photoset.Pages) || len(resp.Photoset.Photo) == 0 {
			break
		}
	}

	return out, nil
}

func toPhoto(e photoEntry) albums.Photo {
	media := e.Media
	if media == "" {
		media = albums.MediaPhoto
	}

	p := albums.Photo{
		ID:        e.ID,
		Title:     e.Title,
		Media:     media,
		Extension: extensionFor(e, media),
	}
	// url_o of a video is its poster frame
	if media == albums.MediaPhoto {
		p.URL = e.URLOriginal
	}
	return p
}

// extensionFor picks the local file extension of a listed photo
func extensionFor(e photoEntry, media string) string {
	format := cleanExtension(e.OriginalFormat)

	if media == albums.MediaVideo {
		if videoFormats[format] {
			return format
		}
		return "mp4"
	}
	if format != "" {
		return format
	}
	if u, err := url.Parse(e.URLOriginal); err == nil && e.URLOriginal != "" {
		if ext := cleanExtension(path.Ext(u.Path)); ext != "" {
			return ext
		}
	}
	return "jpg"
}

func cleanExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// PhotoURL returns the location of the original-size bytes of a photo,
// asking photos.getSizes when the listing did not carry it.
func (c *Client) PhotoURL(ctx context.Context, photo albums.Photo) (string, error) {
	if photo.URL != "" {
		return photo.URL, nil
	}

	var resp sizesResponse
	params := url.Values{"photo_id": {photo.ID}}
	if err := c.call(ctx, MethodPhotoSizes, params, &resp); err != nil {
		return "", err
	}

	source := pickSize(resp.Sizes.Size, photo.Media)
	if source == "" {
		return "", errs.RemoteService(MethodPhotoSizes, http.StatusNotFound,
			fmt.Errorf("no downloadable size for photo %s", photo.ID))
	}
	return source, nil
}

// pickSize prefers the original label for the media kind, then the largest
// size of that kind, then the largest size of any kind.
func pickSize(sizes []sizeEntry, media string) string {
	want := SizeOriginal
	if media == albums.MediaVideo {
		want = SizeVideoOriginal
	}
	for _, s := range sizes {
		if s.Label == want && s.Source != "" {
			return s.Source
		}
	}

	var best, bestAny *sizeEntry
	for i := range sizes {
		s := &sizes[i]
		if s.Source == "" {
			continue
		}
		area := int(s.Width) * int(s.Height)
		if bestAny == nil || area > int(bestAny.Width)*int(bestAny.Height) {
			bestAny = s
		}
		if s.Media == media || (s.Media == "" && media != albums.MediaVideo) {
			if best == nil || area > int(best.Width)*int(best.Height) {
				best = s
			}
		}
	}
	if best != nil {
		return best.Source
	}
	if bestAny != nil {
		return bestAny.Source
	}
	return ""
}

// Open resolves and starts downloading the bytes of photo. Every failure is
// reported as a download error.
func (c *Client) Open(ctx context.Context, photo albums.Photo) (io.ReadCloser, error) {
	op := "fetch photo " + photo.ID

	source, err := c.PhotoURL(ctx, photo)
	if err != nil {
		return nil, errs.Download(op, err)
	}

	body, err := c.Fetch(ctx, source)
	if err != nil {
		return nil, errs.Download(op, err)
	}
	return body, nil
}

// Fetch GETs rawURL and returns the response body. Establishing the
// response is retried; reading the body is not.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, errs.RemoteService("fetch", http.StatusBadRequest, err)
		}

		resp, err := c.doRequest(req, "fetch")
		if err != nil {
			return nil, err
		}
		if err := c.checkResponseStatus(resp, "fetch"); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp.Body, nil
	})
}
