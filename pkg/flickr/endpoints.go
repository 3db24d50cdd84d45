package flickr

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	// DefaultEndpoint is the Flickr REST endpoint
	DefaultEndpoint = "https://api.flickr.com/services/rest/"

	MethodFindByUsername = "flickr.people.findByUsername"
	MethodPhotosetsList  = "flickr.photosets.getList"
	MethodPhotosetPhotos = "flickr.photosets.getPhotos"
	MethodPhotoSizes     = "flickr.photos.getSizes"

	// MaxPerPage is the largest page size the photoset methods accept
	MaxPerPage = 500

	photoExtras = "original_format,media,url_o"
)

// Size labels, in order of preference
const (
	SizeOriginal      = "Original"
	SizeVideoOriginal = "Video Original"
)

// buildQuery adds the common parameters and the request signature to params
// and returns the encoded query string.
func buildQuery(method, apiKey, apiSecret string, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("method", method)
	q.Set("api_key", apiKey)
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	q.Set("api_sig", sign(apiSecret, q))
	return q.Encode()
}

// sign computes the Flickr api_sig: md5 of the secret followed by every
// key and value, keys sorted.
func sign(secret string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "api_sig" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
