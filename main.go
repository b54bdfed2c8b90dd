package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/casavista/mediapipe/internal"
	"github.com/casavista/mediapipe/internal/media"
	"github.com/casavista/mediapipe/pkg/logger"
)

var log = logger.Get("Main")

// main loads the pipeline configuration, treats the positional
// arguments as one batch of uploads, and prints the resulting media
// descriptors as JSON. The batch is atomic: any failing file aborts
// the whole run with nothing left on the store.
func main() {
	configPath := flag.String("config", "", "path to a YAML pipeline configuration file")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(logger.VERBOSE)
	}

	config := internal.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath); err != nil {
			log.Emit(logger.FATAL, "Failed to load configuration: %s\n", err.Error())
			os.Exit(1)
		}
	} else if err := config.LoadFromEnv(); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %s\n", err.Error())
		os.Exit(1)
	}

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [-config path] [-verbose] file...\n", os.Args[0])
		os.Exit(2)
	}

	pipeline, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise pipeline: %s\n", err.Error())
		os.Exit(1)
	}

	uploads, err := readUploads(flag.Args())
	if err != nil {
		log.Emit(logger.FATAL, "%s\n", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	descriptors, err := pipeline.Process(ctx, uploads)
	if err != nil {
		log.Emit(logger.ERROR, "Batch failed: %s\n", err.Error())
		os.Exit(1)
	}

	encoded, err := json.MarshalIndent(descriptors, "", "  ")
	if err != nil {
		log.Emit(logger.FATAL, "Failed to encode descriptors: %s\n", err.Error())
		os.Exit(1)
	}

	fmt.Println(string(encoded))
}

// readUploads loads each named file into a RawUpload, deriving the
// declared mime type from the file extension.
func readUploads(paths []string) ([]media.RawUpload, error) {
	uploads := make([]media.RawUpload, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload '%s': %w", path, err)
		}

		uploads = append(uploads, media.RawUpload{
			Filename: filepath.Base(path),
			MimeType: mime.TypeByExtension(filepath.Ext(path)),
			Size:     int64(len(content)),
			Content:  content,
		})
	}

	return uploads, nil
}
