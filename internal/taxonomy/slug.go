package taxonomy

import (
	"regexp"
	"strings"

	"github.com/sells-group/activity-cli/internal/textsim"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Slugify converts a tag name to its canonical form.
// "Deep Work" -> "deep-work", "1:1 Meetings" -> "1-1-meetings".
func Slugify(s string) string {
	s = textsim.Normalize(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
