package media

import "fmt"

type (
	ValidationFailure int
	ProcessingFailure int

	// ValidationError is raised by cheap checks over declared batch
	// metadata (or, for VideoTooLong, immediately after probing).
	// Validation failures never leave artifacts behind.
	ValidationError struct {
		Kind   ValidationFailure
		Detail string
	}

	// ProcessingError is raised while transforming file content. Any
	// processing failure triggers cleanup of everything the current
	// batch has written.
	ProcessingError struct {
		Kind  ProcessingFailure
		cause error
	}
)

const (
	TooManyFiles ValidationFailure = iota
	TooManyVideos
	UnsupportedType
	FileTooLarge
	VideoTooLong
)

const (
	ImageCodec ProcessingFailure = iota
	VideoCodec
	ThumbnailGeneration
	MetadataProbeFailure
)

func (f ValidationFailure) String() string {
	return []string{
		"TOO_MANY_FILES",
		"TOO_MANY_VIDEOS",
		"UNSUPPORTED_TYPE",
		"FILE_TOO_LARGE",
		"VIDEO_TOO_LONG",
	}[f]
}

func (f ProcessingFailure) String() string {
	return []string{
		"IMAGE_CODEC",
		"VIDEO_CODEC",
		"THUMBNAIL_GENERATION",
		"METADATA_PROBE_FAILURE",
	}[f]
}

func NewValidationError(kind ValidationFailure, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", err.Kind, err.Detail)
}

// Is allows errors.Is matching against a bare &ValidationError{Kind: ...}
// target without comparing the detail message.
func (err *ValidationError) Is(target error) bool {
	if t, ok := target.(*ValidationError); ok {
		return t.Kind == err.Kind
	}

	return false
}

func NewProcessingError(kind ProcessingFailure, cause error) *ProcessingError {
	return &ProcessingError{Kind: kind, cause: cause}
}

func (err *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", err.Kind, err.cause)
}

func (err *ProcessingError) Unwrap() error { return err.cause }

func (err *ProcessingError) Is(target error) bool {
	if t, ok := target.(*ProcessingError); ok {
		return t.Kind == err.Kind
	}

	return false
}
