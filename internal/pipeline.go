// Package internal wires the media pipeline together: store, image
// compressor, video transcoder, thumbnail extractor, batch
// orchestrator, and the avatar variant, all constructed from one
// explicit PipelineConfig.
package internal

import (
	"context"

	"github.com/casavista/mediapipe/internal/avatar"
	"github.com/casavista/mediapipe/internal/batch"
	"github.com/casavista/mediapipe/internal/image"
	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/internal/video"
	"github.com/casavista/mediapipe/pkg/logger"
)

var log = logger.Get("Pipeline")

// Pipeline is the top-level entry point callers hold. Batches of
// property media go through Process; single profile images go through
// SaveAvatar.
type Pipeline struct {
	Store *store.Store

	batches *batch.Orchestrator
	avatars *avatar.Service
}

// New constructs the full pipeline from the provided config. The media
// store root and its subdirectories are created if missing.
func New(config PipelineConfig) (*Pipeline, error) {
	mediaStore, err := store.New(config.StoreRoot, config.URLPrefix)
	if err != nil {
		return nil, err
	}

	tool := video.NewTool(config.Ffmpeg)
	compressor := image.NewCompressor(mediaStore)
	transcoder := video.NewTranscoder(tool, mediaStore, config.Policy)
	thumbnailer := video.NewThumbnailExtractor(tool, mediaStore)

	log.Emit(logger.INFO, "Media pipeline ready (store root '%s')\n", mediaStore.Root())

	return &Pipeline{
		Store:   mediaStore,
		batches: batch.NewOrchestrator(config.Policy, mediaStore, compressor, transcoder, thumbnailer, config.Concurrency),
		avatars: avatar.NewService(mediaStore, compressor),
	}, nil
}

// Process runs one batch atomically; see batch.Orchestrator.Process.
func (p *Pipeline) Process(ctx context.Context, uploads []media.RawUpload) ([]media.Descriptor, error) {
	return p.batches.Process(ctx, uploads)
}

// SaveAvatar stores a new profile image for the identity, purging any
// previous one; see avatar.Service.Save.
func (p *Pipeline) SaveAvatar(upload media.RawUpload, ownerID string) (*media.Descriptor, error) {
	return p.avatars.Save(upload, ownerID)
}
