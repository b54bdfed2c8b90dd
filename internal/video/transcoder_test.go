package video_test

import (
	"bytes"
	"context"
	"errors"
	goimage "image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/internal/policy"
	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/internal/video"
	"github.com/casavista/mediapipe/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.FATAL)
}

// fakeTool stands in for the forked ffmpeg/ffprobe binaries. Transcode
// writes a placeholder artifact; Screenshot writes a real JPEG so that
// the thumbnail composition stage can decode it. Probes of the encoded
// output (paths under videos/) fail with verifyErr when set, so the
// post-encode integrity check can be exercised separately from the
// source probe.
type fakeTool struct {
	meta          video.Metadata
	probeErr      error
	verifyErr     error
	transcodeErr  error
	screenshotErr error

	frameWidth  int
	frameHeight int

	lastEncodeOpts *video.EncodeOptions
}

func (tool *fakeTool) Probe(_ context.Context, path string) (*video.Metadata, error) {
	probingOutput := strings.Contains(path, string(filepath.Separator)+"videos"+string(filepath.Separator))
	if probingOutput && tool.verifyErr != nil {
		return nil, tool.verifyErr
	}
	if !probingOutput && tool.probeErr != nil {
		return nil, tool.probeErr
	}

	meta := tool.meta
	return &meta, nil
}

func (tool *fakeTool) Transcode(_ context.Context, _ string, outputPath string, opts video.EncodeOptions) error {
	tool.lastEncodeOpts = &opts
	if tool.transcodeErr != nil {
		// Simulate a partially flushed container before the failure.
		os.WriteFile(outputPath, []byte("partial"), 0o644)
		return tool.transcodeErr
	}

	return os.WriteFile(outputPath, []byte("normalized video payload"), 0o644)
}

func (tool *fakeTool) Screenshot(_ context.Context, _ string, outputPath string, _ video.ScreenshotOptions) error {
	if tool.screenshotErr != nil {
		return tool.screenshotErr
	}

	img := goimage.NewNRGBA(goimage.Rect(0, 0, tool.frameWidth, tool.frameHeight))
	for y := 0; y < tool.frameHeight; y++ {
		for x := 0; x < tool.frameWidth; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, nil); err != nil {
		return err
	}

	return os.WriteFile(outputPath, buf.Bytes(), 0o644)
}

func validMeta() video.Metadata {
	return video.Metadata{Duration: 90, Width: 1920, Height: 1080, Size: 50 << 20, Format: "mov,mp4,m4a,3gp,3g2,mj2"}
}

func videoUpload() media.RawUpload {
	content := []byte("raw camera footage")
	return media.RawUpload{Filename: "tour.mp4", MimeType: "video/mp4", Size: int64(len(content)), Content: content}
}

func newTranscoder(t *testing.T, tool video.Tool) (*video.Transcoder, *store.Store) {
	s, err := store.New(t.TempDir(), "/uploads")
	require.NoError(t, err)
	return video.NewTranscoder(tool, s, policy.Default()), s
}

func requireEmptyDir(t *testing.T, dir string) {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "expected no files left in %s", dir)
}

func Test_Transcode_NormalizesValidVideo(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{meta: validMeta()}
	transcoder, s := newTranscoder(t, tool)

	artifact, meta, err := transcoder.Transcode(context.Background(), videoUpload())
	require.NoError(t, err)

	assert.True(t, s.Exists(artifact.Path))
	assert.Equal(t, filepath.Join(s.Root(), "videos"), filepath.Dir(artifact.Path))
	assert.Equal(t, float64(90), meta.Duration)

	// Metadata size must reflect the normalized artifact, not the probe.
	_, storedSize := s.Stat(artifact.Path)
	assert.Equal(t, storedSize, meta.Size)

	// Scratch input is removed on success.
	requireEmptyDir(t, filepath.Join(s.Root(), "tmp"))

	// Source already within the resolution cap: no downscale filter.
	require.NotNil(t, tool.lastEncodeOpts)
	assert.Empty(t, tool.lastEncodeOpts.Filter)
	assert.Equal(t, "libx264", tool.lastEncodeOpts.VideoCodec)
	assert.Equal(t, uint32(28), tool.lastEncodeOpts.CRF)
	assert.Equal(t, "medium", tool.lastEncodeOpts.Preset)
	assert.Equal(t, "aac", tool.lastEncodeOpts.AudioCodec)
	assert.Equal(t, "128k", tool.lastEncodeOpts.AudioBitrate)
	assert.True(t, tool.lastEncodeOpts.FastStart)
}

func Test_Transcode_DownscalesOversizedSource(t *testing.T) {
	t.Parallel()

	meta := validMeta()
	meta.Width, meta.Height = 3840, 2160
	tool := &fakeTool{meta: meta}
	transcoder, _ := newTranscoder(t, tool)

	_, _, err := transcoder.Transcode(context.Background(), videoUpload())
	require.NoError(t, err)

	require.NotNil(t, tool.lastEncodeOpts)
	assert.Contains(t, tool.lastEncodeOpts.Filter, "scale=1920:1080")
	assert.Contains(t, tool.lastEncodeOpts.Filter, "pad=1920:1080")
}

func Test_Transcode_RejectsOverlongVideoAndCleansUp(t *testing.T) {
	t.Parallel()

	meta := validMeta()
	meta.Duration = 150.4
	tool := &fakeTool{meta: meta}
	transcoder, s := newTranscoder(t, tool)

	_, _, err := transcoder.Transcode(context.Background(), videoUpload())
	assert.True(t, errors.Is(err, &media.ValidationError{Kind: media.VideoTooLong}), "expected VideoTooLong, got %v", err)
	assert.Contains(t, err.Error(), "150")

	// No encode ran: the tool never saw encode options.
	assert.Nil(t, tool.lastEncodeOpts)

	requireEmptyDir(t, filepath.Join(s.Root(), "tmp"))
	requireEmptyDir(t, filepath.Join(s.Root(), "videos"))
}

func Test_Transcode_ProbeFailureCleansUp(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{probeErr: errors.New("moov atom not found")}
	transcoder, s := newTranscoder(t, tool)

	_, _, err := transcoder.Transcode(context.Background(), videoUpload())
	assert.True(t, errors.Is(err, media.NewProcessingError(media.MetadataProbeFailure, nil)), "expected probe failure, got %v", err)

	requireEmptyDir(t, filepath.Join(s.Root(), "tmp"))
	requireEmptyDir(t, filepath.Join(s.Root(), "videos"))
}

// An encoder can exit non-zero after flushing part of the container
// without the progress stream reporting any error. The transcoder must
// catch that by verifying the output rather than trusting the stream.
func Test_Transcode_SilentEncoderDeathRemovesTruncatedOutput(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{meta: validMeta(), verifyErr: errors.New("moov atom not found")}
	transcoder, s := newTranscoder(t, tool)

	_, _, err := transcoder.Transcode(context.Background(), videoUpload())
	assert.True(t, errors.Is(err, media.NewProcessingError(media.VideoCodec, nil)), "expected video codec failure, got %v", err)

	// The encode itself "completed"; only the output verification can
	// have flagged it.
	assert.NotNil(t, tool.lastEncodeOpts)

	requireEmptyDir(t, filepath.Join(s.Root(), "tmp"))
	requireEmptyDir(t, filepath.Join(s.Root(), "videos"))
}

func Test_Transcode_EncoderFailureRemovesPartialOutput(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{meta: validMeta(), transcodeErr: errors.New("encoder exploded")}
	transcoder, s := newTranscoder(t, tool)

	_, _, err := transcoder.Transcode(context.Background(), videoUpload())
	assert.True(t, errors.Is(err, media.NewProcessingError(media.VideoCodec, nil)), "expected video codec failure, got %v", err)

	requireEmptyDir(t, filepath.Join(s.Root(), "tmp"))
	requireEmptyDir(t, filepath.Join(s.Root(), "videos"))
}
