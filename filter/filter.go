package filter

import (
	"sort"
	"strings"

	imapv2 "github.com/emersion/go-imap/v2"
)

// extTypes maps filename extensions to the MIME types this tool knows about,
// mirroring the platform mime databases. Only entries in the image category
// feed the search criteria; the rest exist so the category filter has
// something to reject.
var extTypes = map[string]string{
	"avif": "image/avif",
	"bmp":  "image/bmp",
	"gif":  "image/gif",
	"heic": "image/heic",
	"ico":  "image/vnd.microsoft.icon",
	"jpe":  "image/jpeg",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"pbm":  "image/x-portable-bitmap",
	"pgm":  "image/x-portable-graymap",
	"png":  "image/png",
	"pnm":  "image/x-portable-anymap",
	"ppm":  "image/x-portable-pixmap",
	"svg":  "image/svg+xml",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
	"xbm":  "image/x-xbitmap",

	"css":  "text/css",
	"csv":  "text/csv",
	"doc":  "application/msword",
	"eml":  "message/rfc822",
	"gz":   "application/gzip",
	"html": "text/html",
	"json": "application/json",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"zip":  "application/zip",
}

// ImageExtensions returns the sorted list of filename extensions whose MIME
// type falls in the image category.
func ImageExtensions() []string {
	var exts []string
	for ext, mimeType := range extTypes {
		if strings.HasPrefix(mimeType, "image/") {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// IsImagePart reports whether a MIME content type names an image payload.
// Content-Disposition deliberately plays no role here: inline images count
// the same as attached ones.
func IsImagePart(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

// Criteria builds the server-side search: a disjunction of TEXT terms over
// the image extensions, optionally ANDed with a caller-supplied filter
// string passed through verbatim. Part headers carry attachment filenames,
// so TEXT matches them; false positives only cost a fetch, since part
// eligibility is re-checked message-side.
func Criteria(extra string) *imapv2.SearchCriteria {
	criteria := disjunction(ImageExtensions())
	if s := strings.TrimSpace(extra); s != "" {
		criteria.Text = append(criteria.Text, s)
	}
	return criteria
}

// disjunction folds the terms into nested binary ORs: OR(a, OR(b, ...)).
// No terms means no constraint: the empty criteria matches everything.
func disjunction(terms []string) *imapv2.SearchCriteria {
	if len(terms) == 0 {
		return &imapv2.SearchCriteria{}
	}
	criteria := imapv2.SearchCriteria{Text: []string{"." + terms[len(terms)-1]}}
	for i := len(terms) - 2; i >= 0; i-- {
		criteria = imapv2.SearchCriteria{
			Or: [][2]imapv2.SearchCriteria{{
				{Text: []string{"." + terms[i]}},
				criteria,
			}},
		}
	}
	return &criteria
}
