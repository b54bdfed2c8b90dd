// Package policy holds the per-batch upload constraints and the cheap
// pre-flight validation pass that enforces them before any transcoding
// work is scheduled.
package policy

import (
	"github.com/casavista/mediapipe/internal/media"
)

const (
	megabyte = 1 << 20

	DefaultMaxFiles         = 10
	DefaultMaxVideos        = 3
	DefaultMaxImageBytes    = 5 * megabyte
	DefaultMaxVideoBytes    = 100 * megabyte
	DefaultMaxAvatarBytes   = 2 * megabyte
	DefaultMaxVideoSeconds  = 120
	DefaultMaxVideoWidth    = 1920
	DefaultMaxVideoHeight   = 1080
	DefaultThumbnailWidth   = 1280
	DefaultThumbnailHeight  = 720
	DefaultThumbnailQuality = 90
	DefaultAvatarBox        = 200
	DefaultAvatarQuality    = 80
)

// Batch captures every constraint applied to one submitted batch of
// uploads. The zero value is NOT usable; construct with Default and
// override fields as needed.
type Batch struct {
	MaxFiles        int   `yaml:"max_files" env:"POLICY_MAX_FILES" env-default:"10" validate:"gt=0"`
	MaxVideos       int   `yaml:"max_videos" env:"POLICY_MAX_VIDEOS" env-default:"3" validate:"gte=0"`
	MaxImageBytes   int64 `yaml:"max_image_bytes" env:"POLICY_MAX_IMAGE_BYTES" env-default:"5242880" validate:"gt=0"`
	MaxVideoBytes   int64 `yaml:"max_video_bytes" env:"POLICY_MAX_VIDEO_BYTES" env-default:"104857600" validate:"gt=0"`
	MaxVideoSeconds int   `yaml:"max_video_seconds" env:"POLICY_MAX_VIDEO_SECONDS" env-default:"120" validate:"gt=0"`
	MaxVideoWidth   int   `yaml:"max_video_width" env:"POLICY_MAX_VIDEO_WIDTH" env-default:"1920" validate:"gt=0"`
	MaxVideoHeight  int   `yaml:"max_video_height" env:"POLICY_MAX_VIDEO_HEIGHT" env-default:"1080" validate:"gt=0"`
}

// Default returns the batch policy the marketplace ships with: at most
// ten files of which three may be videos, 5MB images, 100MB/120s/1080p
// videos.
func Default() Batch {
	return Batch{
		MaxFiles:        DefaultMaxFiles,
		MaxVideos:       DefaultMaxVideos,
		MaxImageBytes:   DefaultMaxImageBytes,
		MaxVideoBytes:   DefaultMaxVideoBytes,
		MaxVideoSeconds: DefaultMaxVideoSeconds,
		MaxVideoWidth:   DefaultMaxVideoWidth,
		MaxVideoHeight:  DefaultMaxVideoHeight,
	}
}

// Validate runs the ordered fast-fail checks over the DECLARED metadata
// of every upload in the batch. No file content is read here; content
// level enforcement (real duration, resolution) happens inside the
// video transcoder where it requires decoding anyway.
//
// Check order: batch size, video count, mime allow-lists, per-kind
// declared size ceilings.
func Validate(uploads []media.RawUpload, batch Batch) error {
	if len(uploads) > batch.MaxFiles {
		return media.NewValidationError(media.TooManyFiles,
			"batch contains %d files, at most %d are allowed", len(uploads), batch.MaxFiles)
	}

	videoCount := 0
	for _, upload := range uploads {
		if media.IsVideoMime(upload.MimeType) {
			videoCount++
		}
	}
	if videoCount > batch.MaxVideos {
		return media.NewValidationError(media.TooManyVideos,
			"batch contains %d videos, at most %d are allowed", videoCount, batch.MaxVideos)
	}

	for _, upload := range uploads {
		if _, ok := media.KindOf(upload.MimeType); !ok {
			return media.NewValidationError(media.UnsupportedType,
				"file '%s' has unsupported type '%s'", upload.Filename, upload.MimeType)
		}
	}

	for _, upload := range uploads {
		kind, _ := media.KindOf(upload.MimeType)
		limit := batch.MaxImageBytes
		if kind == media.KindVideo {
			limit = batch.MaxVideoBytes
		}

		if upload.Size > limit {
			return media.NewValidationError(media.FileTooLarge,
				"file '%s' is %d bytes, the %s limit is %d bytes", upload.Filename, upload.Size, kind, limit)
		}
	}

	return nil
}
