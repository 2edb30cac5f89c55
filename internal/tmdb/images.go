package tmdb

import "strings"

const imageBaseURL = "https://image.tmdb.org/t/p"

// Common image sizes.
const (
	PosterSize   = "w500"
	BackdropSize = "w1280"
	LogoSize     = "w92"
)

// ImageURL turns a catalog image path into an absolute URL. Nil or empty paths
// yield "".
func ImageURL(path *string, size string) string {
	if path == nil || strings.TrimSpace(*path) == "" {
		return ""
	}
	if size == "" {
		size = "original"
	}
	p := *path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return imageBaseURL + "/" + size + p
}
