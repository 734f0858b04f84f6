package fetch

import (
	"path/filepath"
	"strings"

	"github.com/rwtk/fetchr/internal/headerparse"
)

// ResolveFilename picks a local file name for a finished header exchange,
// in priority order: an attachment disposition's filename parameter, the
// last path segment of the final redirect Location, then the last path
// segment of the request URL. An empty result (URL ending in "/") falls
// back to "index.html".
//
// Disposition-supplied names are reduced to their base name, so a header
// like `filename="../../etc/passwd"` cannot escape the output directory.
func ResolveFilename(d *headerparse.Disposition, location, rawURL string) string {
	if d != nil && d.Type == "attachment" {
		if v, ok := d.Param("filename"); ok {
			if name := filepath.Base(v.Value); usableName(name) {
				return name
			}
		}
	}
	source := rawURL
	if location != "" {
		source = location
	}
	if i := strings.IndexByte(source, '?'); i >= 0 {
		source = source[:i]
	}
	name := source[strings.LastIndexByte(source, '/')+1:]
	if !usableName(name) {
		return "index.html"
	}
	return name
}

func usableName(name string) bool {
	switch name {
	case "", ".", "..", "/", "\\":
		return false
	}
	return true
}
