package batch

import (
	"sync"

	"github.com/casavista/mediapipe/internal/store"
)

// cleanupList collects every artifact path written during one batch so
// that a failure anywhere can purge the lot. Registration happens the
// moment a path MAY exist on disk, before the write that fills it.
type cleanupList struct {
	mutex sync.Mutex
	store *store.Store
	paths []string
}

func newCleanupList(mediaStore *store.Store) *cleanupList {
	return &cleanupList{store: mediaStore}
}

func (list *cleanupList) add(path string) {
	list.mutex.Lock()
	defer list.mutex.Unlock()

	list.paths = append(list.paths, path)
}

// purge removes every registered artifact. Paths that were registered
// but never written delete as no-ops.
func (list *cleanupList) purge() {
	list.mutex.Lock()
	defer list.mutex.Unlock()

	list.store.DeleteAll(list.paths)
	list.paths = nil
}
