package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/casavista/mediapipe/pkg/logger"
	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

var log = logger.Get("FFmpeg")

// ToolConfig locates the ffmpeg/ffprobe binaries on the host.
type ToolConfig struct {
	FfmpegBinPath  string `yaml:"ffmpeg_bin" env:"FFMPEG_BIN" env-default:"/usr/bin/ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_bin" env:"FFPROBE_BIN" env-default:"/usr/bin/ffprobe"`
}

type ffmpegTool struct {
	config ToolConfig
}

// NewTool returns the ffmpeg-backed implementation of Tool.
func NewTool(config ToolConfig) Tool {
	return &ffmpegTool{config: config}
}

func (tool *ffmpegTool) libConfig(progress bool) *ffmpeg.Config {
	return &ffmpeg.Config{
		ProgressEnabled: progress,
		FfmpegBinPath:   tool.config.FfmpegBinPath,
		FfprobeBinPath:  tool.config.FfprobeBinPath,
	}
}

// Probe extracts container and primary-video-stream metadata using
// ffprobe. The underlying library offers no context hook for probing;
// probe calls are near-instant so this is acceptable.
func (tool *ffmpegTool) Probe(_ context.Context, path string) (*Metadata, error) {
	rawMeta, err := ffmpeg.New(tool.libConfig(false)).Input(path).GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %w", err)
	}

	var videoStream transcoder.Streams
	for _, stream := range rawMeta.GetStreams() {
		if stream.GetCodecType() == "video" {
			videoStream = stream
			break
		}
	}
	if videoStream == nil {
		return nil, errors.New("file contains no video stream")
	}

	duration, err := strconv.ParseFloat(rawMeta.GetFormat().GetDuration(), 64)
	if err != nil {
		return nil, fmt.Errorf("container reports unparsable duration '%s'", rawMeta.GetFormat().GetDuration())
	}

	// Container size is informational; a malformed value is not fatal.
	size, _ := strconv.ParseInt(rawMeta.GetFormat().GetSize(), 10, 64)

	return &Metadata{
		Duration: duration,
		Width:    videoStream.GetWidth(),
		Height:   videoStream.GetHeight(),
		Size:     size,
		Format:   rawMeta.GetFormat().GetFormatName(),
	}, nil
}

// Transcode runs a full normalization encode, draining the progress
// channel until the underlying command exits. Cancelling the context
// kills the ffmpeg process.
func (tool *ffmpegTool) Transcode(ctx context.Context, inputPath string, outputPath string, opts EncodeOptions) error {
	overwrite := true
	libOpts := ffmpeg.Options{
		VideoCodec: &opts.VideoCodec,
		Crf:        &opts.CRF,
		Preset:     &opts.Preset,
		AudioCodec: &opts.AudioCodec,
		PixFmt:     &opts.PixelFormat,
		Overwrite:  &overwrite,
	}
	if opts.AudioBitrate != "" {
		libOpts.AudioBitrate = &opts.AudioBitrate
	}
	if opts.FastStart {
		fastStart := "faststart"
		libOpts.MovFlags = &fastStart
	}
	if opts.Filter != "" {
		libOpts.VideoFilter = &opts.Filter
	}

	return tool.run(ctx, inputPath, outputPath, libOpts)
}

// Screenshot captures a single frame as a JPEG at the requested offset.
func (tool *ffmpegTool) Screenshot(ctx context.Context, inputPath string, outputPath string, opts ScreenshotOptions) error {
	overwrite := true
	seekTime := strconv.Itoa(opts.AtSecond)
	frames := 1
	outputFormat := "image2"
	libOpts := ffmpeg.Options{
		SeekTime:     &seekTime,
		Vframes:      &frames,
		OutputFormat: &outputFormat,
		Overwrite:    &overwrite,
	}
	if opts.Height > 0 {
		// -2 keeps the width divisible by two while preserving aspect.
		filter := fmt.Sprintf("scale=-2:%d", opts.Height)
		libOpts.VideoFilter = &filter
	}

	return tool.run(ctx, inputPath, outputPath, libOpts)
}

func (tool *ffmpegTool) run(ctx context.Context, inputPath string, outputPath string, opts ffmpeg.Options) error {
	instance := ffmpeg.
		New(tool.libConfig(true)).
		Input(inputPath).
		Output(outputPath).
		WithContext(&ctx)

	progressChannel, err := instance.Start(opts)
	if err != nil {
		return parseFfmpegError(err)
	}

	for prog := range progressChannel {
		log.Emit(logger.VERBOSE, "Progress %.1f%% (frames=%s time=%s speed=%s)\n",
			prog.GetProgress(), prog.GetFramesProcessed(), prog.GetCurrentTime(), prog.GetSpeed())
	}

	// The progress channel closing does not distinguish completion
	// from cancellation; surface the latter explicitly.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return nil
}

// parseFfmpegError tries to pick out the relevant information from the
// HUGE output log ffmpeg produces on failure. The error contains lots of
// detail about how the binary was compiled; the useful part is the
// 'message' JSON encoded inside.
func parseFfmpegError(err error) error {
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		// We failed to extract the info.. just use the entire string
		return errors.New(groups[1])
	}

	if exception, ok := out["error"].(map[string]interface{}); ok {
		if msg, ok := exception["string"].(string); ok {
			return errors.New(msg)
		}
	}

	return err
}
