package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/casavista/mediapipe/internal/store"
	"github.com/casavista/mediapipe/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.FATAL)
}

func newStore(t *testing.T) *store.Store {
	s, err := store.New(t.TempDir(), "/uploads")
	require.NoError(t, err)
	return s
}

func Test_New_CreatesClassDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := store.New(root, "/uploads")
	require.NoError(t, err)

	for _, dir := range []string{"images", "videos", "thumbnails", "avatars", "tmp"} {
		info, statErr := os.Stat(filepath.Join(root, dir))
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
}

func Test_New_RejectsFileAtRoot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := store.New(path, "/uploads")
	assert.Error(t, err)
}

func Test_Allocate_NamesNeverCollide(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		artifact := s.Allocate(store.Images, ".jpg")
		assert.False(t, seen[artifact.Name], "name '%s' was allocated twice", artifact.Name)
		seen[artifact.Name] = true
	}
}

func Test_Allocate_PlacesArtifactInClassDirectory(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	tests := []struct {
		Summary string
		Class   store.Class
		Ext     string
		Dir     string
	}{
		{Summary: "Image artifacts live under images", Class: store.Images, Ext: ".png", Dir: "images"},
		{Summary: "Video artifacts live under videos", Class: store.Videos, Ext: "mp4", Dir: "videos"},
		{Summary: "Thumbnail artifacts live under thumbnails", Class: store.Thumbnails, Ext: ".jpg", Dir: "thumbnails"},
		{Summary: "Avatar artifacts live under avatars", Class: store.Avatars, Ext: ".webp", Dir: "avatars"},
	}

	for _, test := range tests {
		t.Run(test.Summary, func(t *testing.T) {
			artifact := s.Allocate(test.Class, test.Ext)
			assert.Equal(t, filepath.Join(s.Root(), test.Dir), filepath.Dir(artifact.Path))
			assert.Equal(t, artifact.ID.String()+normalize(test.Ext), artifact.Name)
		})
	}
}

func normalize(ext string) string {
	if ext[0] != '.' {
		return "." + ext
	}
	return ext
}

func Test_AllocateNamed_StripsDirectoryComponents(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	artifact := s.AllocateNamed(store.Avatars, "../../etc/passwd")
	assert.Equal(t, filepath.Join(s.Root(), "avatars", "passwd"), artifact.Path)
}

func Test_PublicURL_MapsStorePathToRoute(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	artifact := s.Allocate(store.Thumbnails, ".jpg")
	assert.Equal(t, "/uploads/thumbnails/"+artifact.Name, s.PublicURL(artifact.Path))
}

func Test_PublicURL_OutsideRootIsEmpty(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	assert.Equal(t, "", s.PublicURL("/etc/passwd"))
}

func Test_Delete_MissingArtifactIsNotAnError(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	assert.NoError(t, s.Delete(filepath.Join(s.Root(), "images", "nothing-here.jpg")))
}

func Test_Stat_ReportsExistenceAndSize(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	artifact := s.Allocate(store.Images, ".jpg")

	exists, size := s.Stat(artifact.Path)
	assert.False(t, exists)
	assert.Zero(t, size)

	require.NoError(t, os.WriteFile(artifact.Path, []byte("four"), 0o644))

	exists, size = s.Stat(artifact.Path)
	assert.True(t, exists)
	assert.Equal(t, int64(4), size)
	assert.True(t, s.Exists(artifact.Path))
}

func Test_List_FiltersByPrefix(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	for _, name := range []string{"user1_100.jpg", "user1_200.jpg", "user2_100.jpg"} {
		artifact := s.AllocateNamed(store.Avatars, name)
		require.NoError(t, os.WriteFile(artifact.Path, []byte("x"), 0o644))
	}

	matches, err := s.List(store.Avatars, "user1_")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func Test_DeleteAll_RemovesEveryArtifact(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	paths := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		artifact := s.Allocate(store.Videos, ".mp4")
		require.NoError(t, os.WriteFile(artifact.Path, []byte("video"), 0o644))
		paths = append(paths, artifact.Path)
	}

	require.NoError(t, s.DeleteAll(paths))
	for _, path := range paths {
		assert.False(t, s.Exists(path))
	}
}

func Test_Temp_CreatesScratchFileUnderRoot(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	path, err := s.Temp("upload-*.mp4")
	require.NoError(t, err)

	assert.True(t, s.Exists(path))
	assert.Equal(t, filepath.Join(s.Root(), "tmp"), filepath.Dir(path))
}
