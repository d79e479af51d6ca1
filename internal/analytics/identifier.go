package analytics

import (
	"net/url"
	"regexp"
	"strings"
)

// indexPageRe captures the directory name of an index.php landing page.
var indexPageRe = regexp.MustCompile(`/([^/]+)/index\.php$`)

// ExtractIdentifier derives the stable join key from a landing-page URL:
// the directory holding index.php when present, otherwise the penultimate
// path segment. Empty when the URL carries no usable path.
func ExtractIdentifier(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" && u.Opaque == "" && !strings.Contains(rawURL, "://") {
		// Bare paths parse into Path already; anything else is unusable.
		path = rawURL
	}

	if m := indexPageRe.FindStringSubmatch(path); m != nil {
		return m[1]
	}

	segments := []string{}
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) >= 2 {
		return segments[len(segments)-2]
	}
	if len(segments) == 1 {
		return segments[0]
	}
	return ""
}
