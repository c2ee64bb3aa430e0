package media

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is how an attachment is presented.
type Kind string

const (
	KindImage       Kind = "image"
	KindDocument    Kind = "document"
	KindUnsupported Kind = "unsupported"
)

func baseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Classify maps a content type to its presentation kind.
func Classify(contentType string) Kind {
	mt := baseType(contentType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case mt == "application/pdf":
		return KindDocument
	}
	if known := mimetype.Lookup(mt); known != nil && known.Is("application/pdf") {
		return KindDocument
	}
	return KindUnsupported
}

// Extension returns the canonical file extension for a content type, with the
// leading dot, or "" when unknown.
func Extension(contentType string) string {
	if known := mimetype.Lookup(baseType(contentType)); known != nil {
		return known.Extension()
	}
	return ""
}
