// Package avatar is the narrow single-image variant of the pipeline
// used for user profile pictures: one small square image per owning
// identity, with older files for the same identity purged on upload.
package avatar

import (
	"fmt"
	"time"

	"github.com/casavista/mediapipe/internal/image"
	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/policy"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/pkg/logger"
)

var log = logger.Get("Avatar")

type Service struct {
	store      *store.Store
	compressor *image.Compressor
}

func NewService(mediaStore *store.Store, compressor *image.Compressor) *Service {
	return &Service{store: mediaStore, compressor: compressor}
}

// Save validates and stores a new avatar for the given identity,
// compressed to a 200x200 cover crop. The filename embeds the owner ID
// and a millisecond timestamp; the timestamp both avoids client cache
// staleness and gives each upload a fresh name. After a successful
// write every OLDER avatar file for the same identity is purged, so at
// most one current file per identity remains.
func (s *Service) Save(upload media.RawUpload, ownerID string) (*media.Descriptor, error) {
	if !media.IsImageMime(upload.MimeType) {
		return nil, media.NewValidationError(media.UnsupportedType,
			"avatar '%s' has unsupported type '%s', only JPEG, PNG and WebP are accepted",
			upload.Filename, upload.MimeType)
	}

	if upload.Size > policy.DefaultMaxAvatarBytes {
		return nil, media.NewValidationError(media.FileTooLarge,
			"avatar '%s' is %d bytes, at most %d are allowed",
			upload.Filename, upload.Size, policy.DefaultMaxAvatarBytes)
	}

	name := fmt.Sprintf("%s_%d%s", ownerID, time.Now().UnixMilli(), media.ExtensionFor(upload.MimeType))
	artifact := s.store.AllocateNamed(store.Avatars, name)

	opts := &image.ResizeOptions{
		Width:   policy.DefaultAvatarBox,
		Height:  policy.DefaultAvatarBox,
		Fit:     image.FitCover,
		Quality: policy.DefaultAvatarQuality,
	}
	descriptor, err := s.compressor.CompressTo(upload, artifact, opts)
	if err != nil {
		return nil, err
	}

	s.purgeStale(ownerID, artifact.Path)

	log.Emit(logger.SUCCESS, "Stored avatar '%s' for identity '%s'\n", artifact.Name, ownerID)
	return descriptor, nil
}

// purgeStale removes superseded avatar files for the identity. Failures
// here are warnings, never errors - a stale file costs disk space, not
// correctness.
func (s *Service) purgeStale(ownerID string, keepPath string) {
	stale, err := s.store.List(store.Avatars, ownerID+"_")
	if err != nil {
		log.Emit(logger.WARNING, "Could not list old avatars for '%s': %s\n", ownerID, err.Error())
		return
	}

	for _, path := range stale {
		if path == keepPath {
			continue
		}
		if err := s.store.Delete(path); err != nil {
			log.Emit(logger.WARNING, "Could not remove old avatar '%s': %s\n", path, err.Error())
			continue
		}
		log.Emit(logger.REMOVE, "Removed superseded avatar '%s'\n", path)
	}
}
