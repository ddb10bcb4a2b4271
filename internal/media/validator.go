// Package media decides whether an upload is something the pipeline can turn
// into audio. The decision is made from the filename alone; content bytes are
// never inspected.
package media

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
)

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Content  []byte
}

// Extension returns the lowercased extension of the upload, including the dot.
func (u Upload) Extension() string {
	return strings.ToLower(filepath.Ext(u.Filename))
}

// Stem returns the base name without its extension. It names the artifact.
func (u Upload) Stem() string {
	return Stem(u.Filename)
}

var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
	".m4a":  true,
	".opus": true,
	".wma":  true,
	".mp4":  true,
	".avi":  true,
	".mkv":  true,
	".mov":  true,
}

var allowedMediaTypes = map[string]bool{
	"audio/mpeg":       true,
	"audio/wav":        true,
	"audio/x-wav":      true,
	"audio/flac":       true,
	"audio/x-flac":     true,
	"audio/aac":        true,
	"audio/x-aac":      true,
	"audio/ogg":        true,
	"audio/x-ogg":      true,
	"audio/mp4":        true,
	"audio/x-m4a":      true,
	"audio/opus":       true,
	"audio/x-opus":     true,
	"audio/x-ms-wma":   true,
	"video/mp4":        true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"video/quicktime":  true,
}

// Fixed so the verdict does not depend on the host's mime.types.
var mediaTypesByExtension = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/x-wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".m4a":  "audio/mp4",
	".opus": "audio/opus",
	".wma":  "audio/x-ms-wma",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".txt":  "text/plain",
	".srt":  "application/x-subrip",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// MediaType derives the media type from the filename. It returns "" when the
// extension is unknown.
func MediaType(filename string) string {
	return mediaTypesByExtension[strings.ToLower(filepath.Ext(filename))]
}

// Validate accepts or rejects an upload. When both the extension and the
// media type are unacceptable the extension failure is reported.
func Validate(u Upload) error {
	return validate(u, MediaType)
}

func validate(u Upload, mediaTypeOf func(string) string) error {
	const op = "validate"

	if strings.TrimSpace(u.Filename) == "" {
		return apperr.New(apperr.KindInvalidRequest, "", op, "filename is required")
	}

	ext := u.Extension()
	mediaType := mediaTypeOf(u.Filename)

	extOK := allowedExtensions[ext]
	typeOK := allowedMediaTypes[mediaType]

	switch {
	case !extOK:
		return apperr.New(apperr.KindValidation, apperr.ReasonUnsupportedExtension, op,
			"extension %q is not supported; allowed: %s", ext, strings.Join(AllowedExtensions(), ", "))
	case !typeOK:
		return apperr.New(apperr.KindValidation, apperr.ReasonUnsupportedMediaType, op,
			"media type %q is not supported", mediaType)
	}
	return nil
}

// AllowedExtensions lists the accepted extensions in sorted order.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// DefaultStem names artifacts whose upload name has no usable base.
const DefaultStem = "transcription"

// Stem returns the base name of filename without its extension. Client paths
// using either separator are reduced to their last element.
func Stem(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" || stem == ".." {
		return DefaultStem
	}
	return stem
}
