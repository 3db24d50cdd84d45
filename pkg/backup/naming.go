package backup

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinPadWidth is the ordinal width used for albums of up to 9999 photos
const DefaultMinPadWidth = 4

const unsafeChars = `/\:*?"<>|`

// MaxTitleBytes bounds a sanitized title. Most filesystems reject names
// longer than 255 bytes.
const MaxTitleBytes = 200

// SanitizeTitle turns a remote title into a single safe path segment.
// Path separators, reserved characters and control characters become
// spaces, runs of whitespace collapse to one space and trailing dots are
// dropped. Titles longer than MaxTitleBytes are cut on a rune boundary.
// A title with nothing usable left yields fallback.
func SanitizeTitle(title, fallback string) string {
	var b strings.Builder
	b.Grow(len(title))

	space := false
	for _, r := range title {
		if strings.ContainsRune(unsafeChars, r) || unicode.IsControl(r) || unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	s := strings.TrimRight(truncate(b.String(), MaxTitleBytes), ". ")
	if s == "" || s == "." || s == ".." {
		if fallback == "" {
			return "_"
		}
		return SanitizeTitle(fallback, "_")
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// OrdinalWidth returns the zero padding used for an album of count photos:
// at least minWidth digits, wider when count itself needs more.
func OrdinalWidth(count, minWidth int) int {
	if minWidth < 1 {
		minWidth = 1
	}
	if d := len(strconv.Itoa(count)); count > 0 && d > minWidth {
		return d
	}
	return minWidth
}

// PhotoFilename returns "<ordinal>-<id>.<ext>". Within one album all names
// share the same width, so they sort in album order.
func PhotoFilename(index, width int, photoID, ext string) string {
	id := SanitizeTitle(photoID, "photo")
	id = strings.ReplaceAll(id, " ", "_")
	if ext == "" {
		return fmt.Sprintf("%0*d-%s", width, index, id)
	}
	return fmt.Sprintf("%0*d-%s.%s", width, index, id, ext)
}
