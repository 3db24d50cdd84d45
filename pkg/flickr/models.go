package flickr

import (
	"bytes"
	"strconv"
)

// flexInt decodes integers that Flickr sometimes sends as strings
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// content is Flickr's {"_content": "..."} wrapper
type content struct {
	Content string `json:"_content"`
}

// envelope carries the status fields present on every response
type envelope struct {
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type findByUsernameResponse struct {
	User struct {
		ID       string  `json:"id"`
		NSID     string  `json:"nsid"`
		Username content `json:"username"`
	} `json:"user"`
}

type page struct {
	Page  flexInt `json:"page"`
	Pages flexInt `json:"pages"`
	Total flexInt `json:"total"`
}

type photosetsListResponse struct {
	Photosets struct {
		page
		Photoset []photosetEntry `json:"photoset"`
	} `json:"photosets"`
}

type photosetEntry struct {
	ID          string  `json:"id"`
	Primary     string  `json:"primary"`
	Photos      flexInt `json:"photos"`
	Videos      flexInt `json:"videos"`
	Title       content `json:"title"`
	Description content `json:"description"`
}

type photosetPhotosResponse struct {
	Photoset struct {
		page
		ID    string       `json:"id"`
		Title string       `json:"title"`
		Photo []photoEntry `json:"photo"`
	} `json:"photoset"`
}

type photoEntry struct {
	ID             string `json:"id"`
	Secret         string `json:"secret"`
	Server         string `json:"server"`
	Title          string `json:"title"`
	OriginalFormat string `json:"originalformat"`
	Media          string `json:"media"`
	URLOriginal    string `json:"url_o"`
}

type sizesResponse struct {
	Sizes struct {
		Size []sizeEntry `json:"size"`
	} `json:"sizes"`
}

type sizeEntry struct {
	Label  string  `json:"label"`
	Width  flexInt `json:"width"`
	Height flexInt `json:"height"`
	Source string  `json:"source"`
	Media  string  `json:"media"`
}
