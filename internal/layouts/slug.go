package layouts

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify normalizes a layout name into a bundle slug: unicode decomposition
// with combining marks removed, lowercased, runs of non-alphanumerics
// collapsed to single hyphens.
func Slugify(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range decomposed {
		switch {
		case unicode.IsMark(r):
			// drop combining marks left over from decomposition
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
