// Package video normalizes uploaded footage to a web-deliverable MP4
// and extracts representative thumbnail frames. All interaction with
// the host's ffmpeg/ffprobe binaries happens behind the Tool interface
// so the pipeline can be exercised without real encodes.
package video

import "context"

// Metadata is the probed container/stream information for a video
// file. After a successful transcode, Size reflects the NORMALIZED
// artifact rather than the probed source.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	Size     int64
	Format   string
}

// EncodeOptions is the closed set of parameters for a normalization
// encode. Fields map one-to-one onto ffmpeg arguments.
type EncodeOptions struct {
	VideoCodec   string
	CRF          uint32
	Preset       string
	AudioCodec   string
	AudioBitrate string
	PixelFormat  string

	// FastStart relocates container metadata ahead of the media
	// payload so playback can begin before the download completes.
	FastStart bool

	// Filter is an optional ffmpeg filtergraph (-vf), used for the
	// downscale-and-pad pass when the source exceeds the resolution cap.
	Filter string
}

// ScreenshotOptions controls single-frame capture.
type ScreenshotOptions struct {
	// AtSecond is the timestamp of the captured frame.
	AtSecond int

	// Height scales the captured frame to this height, preserving the
	// source aspect ratio. Zero keeps the source resolution.
	Height int
}

// Tool abstracts the external media-processing binary. The concrete
// implementation forks ffmpeg/ffprobe; tests substitute a fake.
type Tool interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
	Transcode(ctx context.Context, inputPath string, outputPath string, opts EncodeOptions) error
	Screenshot(ctx context.Context, inputPath string, outputPath string, opts ScreenshotOptions) error
}
