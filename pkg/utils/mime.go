package utils

import (
	"net/http"
	"strings"
)

// Attachment kind labels derived from MIME types.
const (
	KindImage  = "image"
	KindText   = "text"
	KindBinary = "binary"
)

// DetectMime analyzes a byte slice to determine its MIME type.
// It returns "application/octet-stream" if identification fails.
func DetectMime(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}

// KindFromMime maps a MIME type to the coarse attachment kind used by the
// message model: "image", "text" or "binary".
func KindFromMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/xml",
		mt == "application/x-yaml",
		mt == "application/javascript":
		return KindText
	default:
		return KindBinary
	}
}
