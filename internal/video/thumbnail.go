package video

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/policy"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/pkg/logger"
	"github.com/disintegration/imaging"
)

var thumbLog = logger.Get("Thumbnail")

// captureOffsetSeconds skips the first second of footage; frame zero is
// frequently black or a fade-in.
const captureOffsetSeconds = 1

type ThumbnailExtractor struct {
	tool  Tool
	store *store.Store
}

func NewThumbnailExtractor(tool Tool, mediaStore *store.Store) *ThumbnailExtractor {
	return &ThumbnailExtractor{tool: tool, store: mediaStore}
}

// Extract captures a representative frame from the normalized video and
// composes it into a uniform cover-cropped JPEG. The intermediate
// capture is always removed; on error no thumbnail artifact remains.
func (e *ThumbnailExtractor) Extract(ctx context.Context, videoPath string) (string, error) {
	capture, err := e.store.Temp("capture-*.jpg")
	if err != nil {
		return "", media.NewProcessingError(media.ThumbnailGeneration, err)
	}
	defer e.store.Delete(capture)

	shotOpts := ScreenshotOptions{
		AtSecond: captureOffsetSeconds,
		Height:   policy.DefaultThumbnailHeight,
	}
	if err := e.tool.Screenshot(ctx, videoPath, capture, shotOpts); err != nil {
		return "", media.NewProcessingError(media.ThumbnailGeneration,
			fmt.Errorf("failed to capture frame from '%s': %w", videoPath, err))
	}

	frame, err := imaging.Open(capture)
	if err != nil {
		return "", media.NewProcessingError(media.ThumbnailGeneration,
			fmt.Errorf("failed to decode captured frame: %w", err))
	}

	// Cover-crop to the exact thumbnail box so every video in a listing
	// renders at identical dimensions, whatever the source aspect ratio.
	composed := imaging.Fill(frame,
		policy.DefaultThumbnailWidth, policy.DefaultThumbnailHeight,
		imaging.Center, imaging.Lanczos)

	encoded := &bytes.Buffer{}
	if err := imaging.Encode(encoded, composed, imaging.JPEG,
		imaging.JPEGQuality(policy.DefaultThumbnailQuality)); err != nil {
		return "", media.NewProcessingError(media.ThumbnailGeneration,
			fmt.Errorf("failed to encode thumbnail: %w", err))
	}

	artifact := e.store.Allocate(store.Thumbnails, ".jpg")
	if err := os.WriteFile(artifact.Path, encoded.Bytes(), 0o644); err != nil {
		e.store.Delete(artifact.Path)
		return "", media.NewProcessingError(media.ThumbnailGeneration,
			fmt.Errorf("failed to write thumbnail '%s': %w", artifact.Name, err))
	}

	thumbLog.Emit(logger.SUCCESS, "Composed thumbnail '%s' (%dx%d)\n",
		artifact.Name, policy.DefaultThumbnailWidth, policy.DefaultThumbnailHeight)

	return artifact.Path, nil
}
