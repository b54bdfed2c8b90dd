// Package image normalizes still images: decode, optional cover-fit
// resize, and re-encode at a web-friendly quality. WebP is handled via
// the x/image decoder and the chai2010 encoder since the standard
// library cannot write it.
package image

import (
	"bytes"
	"fmt"
	goimage "image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/pkg/logger"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// Register the WebP decoder with the image registry so that
	// imaging.Decode can read webp uploads.
	_ "golang.org/x/image/webp"
)

var log = logger.Get("ImageComp")

type Fit int

const (
	// FitCover scales to fill the target box and crops the centered
	// overflow; the result is exactly the requested size.
	FitCover Fit = iota

	// FitContain scales to fit inside the target box, preserving the
	// source aspect ratio without cropping.
	FitContain
)

// ResizeOptions is the closed parameter set for a resize+re-encode
// pass. A nil *ResizeOptions means "re-encode only, keep dimensions".
type ResizeOptions struct {
	Width   int
	Height  int
	Fit     Fit
	Quality int
}

// defaultQuality applies to both the JPEG and WebP encoders when the
// caller does not override it.
const defaultQuality = 85

type Compressor struct {
	store *store.Store
}

func NewCompressor(mediaStore *store.Store) *Compressor {
	return &Compressor{store: mediaStore}
}

// Compress decodes the upload, optionally resizes it, and writes the
// re-encoded result to a freshly allocated slot in the image class of
// the store. The returned descriptor's Order is left for the caller.
func (c *Compressor) Compress(upload media.RawUpload, opts *ResizeOptions) (*media.Descriptor, error) {
	artifact := c.store.Allocate(store.Images, media.ExtensionFor(upload.MimeType))
	return c.CompressTo(upload, artifact, opts)
}

// CompressTo is the allocation-free variant used by pipelines that
// control their own naming (avatars). Nothing is left on disk when an
// error is returned.
func (c *Compressor) CompressTo(upload media.RawUpload, artifact store.Artifact, opts *ResizeOptions) (*media.Descriptor, error) {
	img, err := imaging.Decode(bytes.NewReader(upload.Content), imaging.AutoOrientation(true))
	if err != nil {
		return nil, media.NewProcessingError(media.ImageCodec,
			fmt.Errorf("failed to decode '%s': %w", upload.Filename, err))
	}

	if opts != nil {
		bounds := img.Bounds()
		srcW, srcH := bounds.Dx(), bounds.Dy()

		switch opts.Fit {
		case FitContain:
			// Fit only ever shrinks; smaller sources pass through.
			img = imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
		default:
			// Cover fit never enlarges. When covering the box would
			// require upscaling, the oversized axis is still center
			// cropped to the target; a fully smaller source is kept
			// at its source dimensions.
			scale := math.Max(float64(opts.Width)/float64(srcW), float64(opts.Height)/float64(srcH))
			if scale < 1 {
				img = imaging.Fill(img, opts.Width, opts.Height, imaging.Center, imaging.Lanczos)
			} else {
				img = imaging.CropCenter(img, min(srcW, opts.Width), min(srcH, opts.Height))
			}
		}
	}

	encoded := &bytes.Buffer{}
	if err := encode(encoded, img, artifact.Path, quality(opts)); err != nil {
		return nil, media.NewProcessingError(media.ImageCodec,
			fmt.Errorf("failed to re-encode '%s': %w", upload.Filename, err))
	}

	// The encode ran fully in memory, so a write failure cannot leave
	// a partially encoded image; a partially WRITTEN file still can,
	// hence the removal below.
	if err := os.WriteFile(artifact.Path, encoded.Bytes(), 0o644); err != nil {
		c.store.Delete(artifact.Path)
		return nil, fmt.Errorf("failed to write image artifact '%s': %w", artifact.Name, err)
	}

	_, storedSize := c.store.Stat(artifact.Path)
	log.Emit(logger.SUCCESS, "Compressed '%s' (%d bytes declared) to '%s' (%d bytes stored)\n",
		upload.Filename, upload.Size, artifact.Name, storedSize)

	return &media.Descriptor{
		ID:       artifact.ID,
		Kind:     media.KindImage,
		URL:      c.store.PublicURL(artifact.Path),
		Size:     storedSize,
		MimeType: storedMime(artifact.Path),
	}, nil
}

// encode picks the output codec from the target path's extension. The
// extension comes from the declared mime, so a jpeg stays a jpeg, a png
// stays a png, a webp stays a webp.
func encode(out *bytes.Buffer, img goimage.Image, path string, quality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return imaging.Encode(out, img, imaging.PNG,
			imaging.PNGCompressionLevel(png.BestCompression))
	case ".webp":
		return webp.Encode(out, img, &webp.Options{Quality: float32(quality)})
	default:
		return imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}

func quality(opts *ResizeOptions) int {
	if opts != nil && opts.Quality > 0 {
		return opts.Quality
	}

	return defaultQuality
}

func storedMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
