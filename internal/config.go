package internal

import (
	"fmt"

	"github.com/casavista/mediapipe/internal/batch"
	"github.com/casavista/mediapipe/internal/policy"
	"github.com/casavista/mediapipe/internal/video"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// PipelineConfig is the explicit configuration handed to the pipeline
// at construction. There is no process-wide mutable state; everything
// the pipeline needs to know arrives through this struct.
type PipelineConfig struct {
	// StoreRoot is the directory the media store owns. Supports '~'.
	StoreRoot string `yaml:"store_root" env:"STORE_ROOT" env-default:"./uploads" validate:"required"`

	// URLPrefix is the externally addressable route the store root is
	// served under.
	URLPrefix string `yaml:"url_prefix" env:"URL_PREFIX" env-default:"/uploads" validate:"required"`

	Ffmpeg      video.ToolConfig  `yaml:"ffmpeg"`
	Policy      policy.Batch      `yaml:"policy"`
	Concurrency batch.Concurrency `yaml:"concurrency"`
}

// DefaultConfig returns a config populated purely from env-default
// tags and the standard batch policy.
func DefaultConfig() PipelineConfig {
	return PipelineConfig{
		StoreRoot: "./uploads",
		URLPrefix: "/uploads",
		Ffmpeg: video.ToolConfig{
			FfmpegBinPath:  "/usr/bin/ffmpeg",
			FfprobeBinPath: "/usr/bin/ffprobe",
		},
		Policy: policy.Default(),
	}
}

// LoadFromFile reads a YAML configuration file, applying environment
// variable overrides on top.
func (config *PipelineConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration for pipeline - %w", err)
	}

	return config.Validate()
}

// LoadFromEnv populates the config from environment variables and
// env-default tags only, for deployments without a config file.
func (config *PipelineConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration for pipeline - %w", err)
	}

	return config.Validate()
}

// Validate sanity-checks the loaded configuration before any component
// is constructed from it.
func (config *PipelineConfig) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}

	return nil
}
