package extract

import (
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode"

	"github.com/jhillyerd/enmime"
)

// NameSource tags where an attachment's filename came from.
type NameSource int

const (
	// NameFromHeader means the Content-Disposition filename parameter.
	NameFromHeader NameSource = iota
	// NameFromContentType means the Content-Type name parameter.
	NameFromContentType
	// NameSynthesized means neither header carried a usable name.
	NameSynthesized
)

func (s NameSource) String() string {
	switch s {
	case NameFromHeader:
		return "header"
	case NameFromContentType:
		return "content-type"
	default:
		return "synthesized"
	}
}

// ResolveName determines the human filename for a part and reports where it
// came from. Parts with no usable name anywhere get a synthesized sequential
// name; the sequence counter lives for the run only.
func ResolveName(part *enmime.Part, seq func() int) (string, NameSource) {
	if part.FileName != "" {
		if dispositionFilename(part) != "" {
			return part.FileName, NameFromHeader
		}
		return part.FileName, NameFromContentType
	}
	return fmt.Sprintf("attachment-%06d.data", seq()), NameSynthesized
}

func dispositionFilename(part *enmime.Part) string {
	disposition := part.Header.Get("Content-Disposition")
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// Sanitize strips shell- and filesystem-hazardous characters from an
// attachment name, keeping letters, digits, dots, dashes, underscores and
// spaces.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Timestamp renders the message date as the sortable filename prefix.
func Timestamp(date time.Time) string {
	return date.Format("2006-01-02_15-04-05")
}

// FileName combines the timestamp prefix with the sanitized resolved name.
func FileName(name string, date time.Time) string {
	return Timestamp(date) + "_" + Sanitize(name)
}
