// Package store owns the on-disk layout of processed media and the
// collision-free naming of every artifact. It deliberately contains no
// validation or transcoding logic; it is a naming/layout authority that
// the rest of the pipeline writes through.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/casavista/mediapipe/pkg/logger"
	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
)

var log = logger.Get("MediaStore")

type Class int

const (
	Images Class = iota
	Videos
	Thumbnails
	Avatars
)

func (c Class) dir() string {
	return []string{"images", "videos", "thumbnails", "avatars"}[c]
}

// Artifact is an allocated (not yet written) slot in the store.
type Artifact struct {
	ID   uuid.UUID
	Name string
	Path string
}

type Store struct {
	root      string
	urlPrefix string
}

// New expands and creates the store root along with its class
// subdirectories and a scratch dir for in-flight temporary files.
// An existing FILE at the root path is an error.
func New(root string, urlPrefix string) (*Store, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("media store root '%s' could not be expanded: %w", root, err)
	}

	if info, statErr := os.Stat(expanded); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("media store root '%s' is not a directory", expanded)
	}

	for _, dir := range []string{"images", "videos", "thumbnails", "avatars", "tmp"} {
		if err := os.MkdirAll(filepath.Join(expanded, dir), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create media store directory '%s': %w", dir, err)
		}
	}

	return &Store{root: expanded, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Allocate reserves a unique path for a new artifact of the given class.
// Names are random UUIDs; user-supplied filenames never reach the disk,
// which rules out both collisions and path injection. Nothing is written.
func (s *Store) Allocate(class Class, ext string) Artifact {
	id := uuid.New()
	name := id.String() + normalizeExt(ext)

	return Artifact{
		ID:   id,
		Name: name,
		Path: filepath.Join(s.root, class.dir(), name),
	}
}

// AllocateNamed reserves a path for a caller-controlled filename. Used
// by the avatar pipeline, whose names embed the owning identity so that
// stale files for the same owner can be found and purged.
func (s *Store) AllocateNamed(class Class, name string) Artifact {
	// Strip any directory components a hostile name may carry.
	name = filepath.Base(name)

	return Artifact{
		ID:   uuid.New(),
		Name: name,
		Path: filepath.Join(s.root, class.dir(), name),
	}
}

// Temp creates a private scratch file under the store root and returns
// its path. The caller owns deletion.
func (s *Store) Temp(pattern string) (string, error) {
	f, err := os.CreateTemp(filepath.Join(s.root, "tmp"), pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}

	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close scratch file '%s': %w", path, err)
	}

	return path, nil
}

// Delete removes an artifact. Deleting a path that is already gone is
// not an error; rollback may race with a cleanup that beat it there.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact '%s': %w", path, err)
	}

	return nil
}

// DeleteAll removes every given artifact, logging rather than failing on
// individual errors. Returns the first error encountered, if any.
func (s *Store) DeleteAll(paths []string) error {
	var firstErr error
	for _, path := range paths {
		if err := s.Delete(path); err != nil {
			log.Emit(logger.ERROR, "Rollback failed to remove '%s': %s\n", path, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Stat reports whether the artifact exists, and its byte size if so.
func (s *Store) Stat(path string) (bool, int64) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0
	}

	return true, info.Size()
}

// List returns the paths of all artifacts of the given class whose
// filename starts with the provided prefix.
func (s *Store) List(class Class, prefix string) ([]string, error) {
	dir := filepath.Join(s.root, class.dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list media store directory '%s': %w", dir, err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if prefix == "" || strings.HasPrefix(entry.Name(), prefix) {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}

	return matches, nil
}

// PublicURL maps a stored artifact path to its externally addressable
// route under the configured URL prefix.
func (s *Store) PublicURL(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Path is outside the store root; nothing sensible to serve.
		return ""
	}

	return s.urlPrefix + "/" + filepath.ToSlash(rel)
}

// Root exposes the store root directory, primarily for logging.
func (s *Store) Root() string { return s.root }

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}

	return ext
}
