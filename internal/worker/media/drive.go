package media

import (
	"net/url"
	"regexp"
	"strings"
)

var driveFilePath = regexp.MustCompile(`/d/([a-zA-Z0-9_-]{10,})`)

// DirectURL rewrites Google Drive share links into direct download links.
// Any other reference is returned unchanged.
func DirectURL(ref string) string {
	ref = strings.TrimSpace(ref)

	u, err := url.Parse(ref)
	if err != nil || !strings.HasSuffix(u.Hostname(), "drive.google.com") {
		return ref
	}

	id := ""
	if m := driveFilePath.FindStringSubmatch(u.Path); m != nil {
		id = m[1]
	} else if q := u.Query().Get("id"); q != "" {
		id = q
	}

	if id == "" {
		return ref
	}

	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id) + "&confirm=t"
}
