package media

import (
	"encoding/json"

	"github.com/google/uuid"
)

type Kind int

const (
	KindImage Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "VIDEO"
	}

	return "IMAGE"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// imageMimeExtensions and videoMimeExtensions double as the mime
// allow-lists and the mapping to the on-disk extension used when the
// source format is kept. Normalized video output is always mp4
// regardless of the source container.
var (
	imageMimeExtensions = map[string]string{
		"image/jpeg": ".jpg",
		"image/jpg":  ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}

	videoMimeExtensions = map[string]string{
		"video/mp4":       ".mp4",
		"video/quicktime": ".mov",
		"video/x-msvideo": ".avi",
		"video/webm":      ".webm",
	}
)

// RawUpload is one caller-submitted file, exactly as it was received.
// The size and mime type are the *declared* values from the upload
// framing; they are only trusted for cheap pre-validation.
type RawUpload struct {
	Filename string
	MimeType string
	Size     int64
	Content  []byte
}

// KindOf derives the pipeline kind from the declared mime type. The
// boolean is false when the mime is in neither allow-list.
func KindOf(mimeType string) (Kind, bool) {
	if _, ok := imageMimeExtensions[mimeType]; ok {
		return KindImage, true
	}
	if _, ok := videoMimeExtensions[mimeType]; ok {
		return KindVideo, true
	}

	return KindImage, false
}

// IsImageMime reports whether the mime type is an allowed image format.
func IsImageMime(mimeType string) bool {
	_, ok := imageMimeExtensions[mimeType]
	return ok
}

// IsVideoMime reports whether the mime type is an allowed video format.
func IsVideoMime(mimeType string) bool {
	_, ok := videoMimeExtensions[mimeType]
	return ok
}

// ExtensionFor returns the canonical file extension (with leading dot)
// for an allowed mime type, or ".bin" when the mime is unknown. Output
// filenames are NEVER derived from the user-supplied filename.
func ExtensionFor(mimeType string) string {
	if ext, ok := imageMimeExtensions[mimeType]; ok {
		return ext
	}
	if ext, ok := videoMimeExtensions[mimeType]; ok {
		return ext
	}

	return ".bin"
}

// Descriptor is the durable record describing one successfully processed
// upload. Ownership passes to the caller once the batch returns; the
// pipeline never persists these.
type Descriptor struct {
	ID           uuid.UUID `json:"id"`
	Kind         Kind      `json:"kind"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`

	// Order is the 1-based position of the source upload in its batch.
	Order int `json:"order"`

	// Duration is the whole-second runtime; zero for images.
	Duration int `json:"duration,omitempty"`

	// Size is the byte size of the STORED artifact, after
	// compression/transcoding. It can differ arbitrarily from the
	// declared upload size.
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}
