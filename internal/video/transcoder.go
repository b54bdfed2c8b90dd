package video

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/policy"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/pkg/logger"
)

var transcodeLog = logger.Get("Transcoder")

// Normalization target: H.264 in MP4 with AAC audio, tuned for
// progressive web playback. CRF 28 trades some quality for a much
// smaller artifact; lower values mean larger/better output.
const (
	normalizedCodec        = "libx264"
	normalizedCRF          = 28
	normalizedPreset       = "medium"
	normalizedAudioCodec   = "aac"
	normalizedAudioBitrate = "128k"
	normalizedPixelFormat  = "yuv420p"
	normalizedExtension    = ".mp4"

	// NormalizedMime is the mime type of every transcoded artifact,
	// regardless of the source container.
	NormalizedMime = "video/mp4"
)

type Transcoder struct {
	tool   Tool
	store  *store.Store
	policy policy.Batch
}

func NewTranscoder(tool Tool, mediaStore *store.Store, batchPolicy policy.Batch) *Transcoder {
	return &Transcoder{tool: tool, store: mediaStore, policy: batchPolicy}
}

// Transcode persists the upload to a private scratch file, probes it,
// enforces the duration policy, and re-encodes it to the normalized
// target. On ANY return path the scratch input is removed; on error no
// output artifact remains either.
//
// The returned metadata carries the probed duration/resolution but the
// byte size of the normalized artifact.
func (t *Transcoder) Transcode(ctx context.Context, upload media.RawUpload) (store.Artifact, *Metadata, error) {
	scratch, err := t.store.Temp("upload-*" + media.ExtensionFor(upload.MimeType))
	if err != nil {
		return store.Artifact{}, nil, fmt.Errorf("failed to stage video '%s': %w", upload.Filename, err)
	}
	defer t.store.Delete(scratch)

	if err := os.WriteFile(scratch, upload.Content, 0o600); err != nil {
		return store.Artifact{}, nil, fmt.Errorf("failed to stage video '%s': %w", upload.Filename, err)
	}

	meta, err := t.tool.Probe(ctx, scratch)
	if err != nil {
		return store.Artifact{}, nil, media.NewProcessingError(media.MetadataProbeFailure,
			fmt.Errorf("failed to probe '%s': %w", upload.Filename, err))
	}

	transcodeLog.Emit(logger.INFO, "Source '%s': %dx%d, %.1fs, %d bytes (%s)\n",
		upload.Filename, meta.Width, meta.Height, meta.Duration, meta.Size, meta.Format)

	if meta.Duration > float64(t.policy.MaxVideoSeconds) {
		return store.Artifact{}, nil, media.NewValidationError(media.VideoTooLong,
			"video '%s' runs %ds, at most %ds are allowed",
			upload.Filename, int(math.Round(meta.Duration)), t.policy.MaxVideoSeconds)
	}

	artifact := t.store.Allocate(store.Videos, normalizedExtension)
	opts := EncodeOptions{
		VideoCodec:   normalizedCodec,
		CRF:          normalizedCRF,
		Preset:       normalizedPreset,
		AudioCodec:   normalizedAudioCodec,
		AudioBitrate: normalizedAudioBitrate,
		PixelFormat:  normalizedPixelFormat,
		FastStart:    true,
	}
	if meta.Width > t.policy.MaxVideoWidth || meta.Height > t.policy.MaxVideoHeight {
		opts.Filter = downscaleFilter(t.policy.MaxVideoWidth, t.policy.MaxVideoHeight)
		transcodeLog.Emit(logger.INFO, "Source '%s' exceeds %dx%d, downscaling\n",
			upload.Filename, t.policy.MaxVideoWidth, t.policy.MaxVideoHeight)
	}

	if err := t.tool.Transcode(ctx, scratch, artifact.Path, opts); err != nil {
		// A failed encode may have flushed a partial container.
		t.store.Delete(artifact.Path)
		return store.Artifact{}, nil, media.NewProcessingError(media.VideoCodec,
			fmt.Errorf("failed to transcode '%s': %w", upload.Filename, err))
	}

	// The progress stream closing does not carry the process exit
	// status; an encoder that died mid-flush leaves a truncated
	// container behind and no error above. Re-probing the output is
	// the authoritative success check.
	if _, err := t.tool.Probe(ctx, artifact.Path); err != nil {
		t.store.Delete(artifact.Path)
		return store.Artifact{}, nil, media.NewProcessingError(media.VideoCodec,
			fmt.Errorf("transcode of '%s' produced an unreadable artifact: %w", upload.Filename, err))
	}

	exists, finalSize := t.store.Stat(artifact.Path)
	if !exists {
		return store.Artifact{}, nil, media.NewProcessingError(media.VideoCodec,
			fmt.Errorf("transcode of '%s' produced no output", upload.Filename))
	}

	transcodeLog.Emit(logger.SUCCESS, "Normalized '%s' to '%s' (%d bytes)\n",
		upload.Filename, artifact.Name, finalSize)

	result := *meta
	result.Size = finalSize
	return artifact, &result, nil
}

// downscaleFilter scales to fit inside the cap while preserving aspect
// ratio, then pads the remainder to the exact target box.
func downscaleFilter(width int, height int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height)
}
