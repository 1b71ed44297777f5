package cascade

import (
	"strings"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
)

// Accepted upload content types and the encoding each one declares
var allowedMimeTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
}

// RawImage is an uploaded image with its declared content type
type RawImage struct {
	Data     []byte
	MimeType string
}

// NormalizeMimeType lowercases a content type, strips parameters and
// qualifies bare subtypes ("png" becomes "image/png").
func NormalizeMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt != "" && !strings.Contains(mt, "/") {
		mt = "image/" + mt
	}
	return mt
}

// IsSupportedMimeType reports whether mimeType may enter the cascade
func IsSupportedMimeType(mimeType string) bool {
	_, ok := allowedMimeTypes[NormalizeMimeType(mimeType)]
	return ok
}

// DeclaredFormat is the image encoding named by the content type, or ""
func (r RawImage) DeclaredFormat() string {
	return allowedMimeTypes[NormalizeMimeType(r.MimeType)]
}

// Validate rejects missing payloads and unsupported content types
func (r RawImage) Validate() error {
	if len(r.Data) == 0 {
		return apperrors.NewInvalidInputError("no image data provided", nil)
	}
	if !IsSupportedMimeType(r.MimeType) {
		return apperrors.NewUnsupportedFormatError(r.MimeType)
	}
	return nil
}
