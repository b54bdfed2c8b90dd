// Package batch sequences the media pipeline for one submitted group of
// uploads: validation, concurrent per-file dispatch, aggregation, and
// rollback on failure. A batch is atomic - callers either receive a
// descriptor for every upload or find no trace of the batch on disk.
package batch

import (
	"context"
	"errors"
	"math"
	"runtime"

	"github.com/casavista/mediapipe/internal/image"
	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/policy"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/internal/video"
	"github.com/casavista/mediapipe/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.Get("Batch")

// Concurrency bounds the per-batch fan-out. Image compression is cheap
// and may run wide; video transcodes are CPU-bound and memory-heavy, so
// they are additionally gated by a smaller semaphore.
type Concurrency struct {
	Images int `yaml:"image_parallelism" env:"IMAGE_PARALLELISM" env-default:"0"`
	Videos int `yaml:"video_parallelism" env:"VIDEO_PARALLELISM" env-default:"0"`
}

func (c Concurrency) imageLimit() int {
	if c.Images > 0 {
		return c.Images
	}

	return runtime.NumCPU()
}

func (c Concurrency) videoLimit() int {
	if c.Videos > 0 {
		return c.Videos
	}

	return max(1, runtime.NumCPU()/2)
}

type Orchestrator struct {
	policy      policy.Batch
	store       *store.Store
	compressor  *image.Compressor
	transcoder  *video.Transcoder
	thumbnailer *video.ThumbnailExtractor
	videoSem    chan struct{}
	imageLimit  int
}

func NewOrchestrator(
	batchPolicy policy.Batch,
	mediaStore *store.Store,
	compressor *image.Compressor,
	transcoder *video.Transcoder,
	thumbnailer *video.ThumbnailExtractor,
	concurrency Concurrency,
) *Orchestrator {
	return &Orchestrator{
		policy:      batchPolicy,
		store:       mediaStore,
		compressor:  compressor,
		transcoder:  transcoder,
		thumbnailer: thumbnailer,
		videoSem:    make(chan struct{}, concurrency.videoLimit()),
		imageLimit:  concurrency.imageLimit(),
	}
}

// Process runs the full pipeline over one batch. On success it returns
// one descriptor per upload in input order, with 1-based Order set. On
// failure it purges every artifact the batch wrote and returns a
// *batch.Error identifying the failing file.
//
// Uploads are dispatched concurrently; the first failure cancels
// outstanding siblings since their output is about to be discarded
// anyway.
func (o *Orchestrator) Process(ctx context.Context, uploads []media.RawUpload) ([]media.Descriptor, error) {
	if len(uploads) == 0 {
		return nil, &Error{Index: -1, Err: errors.New("batch contains no uploads")}
	}

	if err := policy.Validate(uploads, o.policy); err != nil {
		log.Emit(logger.WARNING, "Batch rejected during validation: %s\n", err.Error())
		return nil, &Error{Index: -1, Err: err}
	}

	log.Emit(logger.NEW, "Processing batch of %d uploads\n", len(uploads))

	cleanup := newCleanupList(o.store)
	results := make([]media.Descriptor, len(uploads))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.imageLimit)
	for i, upload := range uploads {
		i, upload := i, upload
		group.Go(func() error {
			// A sibling may already have failed while this task was
			// queued behind the limit.
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			descriptor, err := o.processOne(groupCtx, upload, cleanup)
			if err != nil {
				return &Error{Index: i, Filename: upload.Filename, Err: err}
			}

			descriptor.Order = i + 1
			results[i] = *descriptor
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.Emit(logger.REMOVE, "Batch failed, purging artifacts: %s\n", err.Error())
		cleanup.purge()

		var batchErr *Error
		if errors.As(err, &batchErr) {
			return nil, batchErr
		}

		return nil, &Error{Index: -1, Err: err}
	}

	log.Emit(logger.SUCCESS, "Batch of %d uploads complete\n", len(uploads))
	return results, nil
}

func (o *Orchestrator) processOne(ctx context.Context, upload media.RawUpload, cleanup *cleanupList) (*media.Descriptor, error) {
	kind, _ := media.KindOf(upload.MimeType)
	if kind == media.KindVideo {
		return o.processVideo(ctx, upload, cleanup)
	}

	return o.processImage(upload, cleanup)
}

func (o *Orchestrator) processImage(upload media.RawUpload, cleanup *cleanupList) (*media.Descriptor, error) {
	artifact := o.store.Allocate(store.Images, media.ExtensionFor(upload.MimeType))
	cleanup.add(artifact.Path)

	return o.compressor.CompressTo(upload, artifact, nil)
}

func (o *Orchestrator) processVideo(ctx context.Context, upload media.RawUpload, cleanup *cleanupList) (*media.Descriptor, error) {
	select {
	case o.videoSem <- struct{}{}:
		defer func() { <-o.videoSem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	artifact, meta, err := o.transcoder.Transcode(ctx, upload)
	if err != nil {
		return nil, err
	}
	cleanup.add(artifact.Path)

	thumbnailPath, err := o.thumbnailer.Extract(ctx, artifact.Path)
	if err != nil {
		return nil, err
	}
	cleanup.add(thumbnailPath)

	return &media.Descriptor{
		ID:           artifact.ID,
		Kind:         media.KindVideo,
		URL:          o.store.PublicURL(artifact.Path),
		ThumbnailURL: o.store.PublicURL(thumbnailPath),
		Duration:     int(math.Round(meta.Duration)),
		Size:         meta.Size,
		MimeType:     video.NormalizedMime,
	}, nil
}
