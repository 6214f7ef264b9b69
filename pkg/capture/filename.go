package capture

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var ErrNoFilename = errors.New("no numeric segment to name the capture after")

var numericSegment = regexp.MustCompile(`\d{3,6}`)

// FilenameFromURL returns the first run of 3 to 6 digits in the path and query of rawURL,
// e.g. "/pages/04821" -> "04821". Longer runs are truncated to their first six digits.
func FilenameFromURL(rawURL string) (string, error) {
	name := numericSegment.FindString(relativeURL(rawURL))
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrNoFilename, rawURL)
	}
	return name, nil
}

// relativeURL strips scheme and host so port numbers never end up in a derived filename.
func relativeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.RequestURI()
}
