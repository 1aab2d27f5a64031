package replication

import (
	"fmt"
	"sync"
)

// PreFullSyncFunc quiesces the host ahead of a destructive full-sync swap:
// it must mark the server as loading (rejecting client I/O that needs
// storage), take the write-exclusivity lock, and close the current
// storage handle.
type PreFullSyncFunc func() error

// PostFullSyncFunc reopens storage once full sync has fetched (or failed
// to fetch) a fresh backup. ok is false when file fetching failed
// partway, signaling the host to roll back to the previous backup instead
// of adopting the freshly (partially) downloaded directory.
type PostFullSyncFunc func(ok bool) error

// RestoreCoordinator guarantees pre/post full-sync callbacks run as a
// matched 1:1 pair around the destructive directory swap, even when file
// fetching fails partway through. Grounded on kvrocks's
// pre_fullsync_cb/post_fullsync_cb contract; the teacher has no direct
// equivalent (its only full sync is a JSON batch replay), so this is new
// code in the teacher's sentinel-error idiom.
type RestoreCoordinator struct {
	mu   sync.Mutex
	pre  PreFullSyncFunc
	post PostFullSyncFunc
}

func NewRestoreCoordinator(pre PreFullSyncFunc, post PostFullSyncFunc) *RestoreCoordinator {
	return &RestoreCoordinator{pre: pre, post: post}
}

// Run brackets fn (the file-download phase) with the pre/post callbacks,
// guaranteeing both run exactly once regardless of whether fn succeeds.
// No read or write may touch the storage engine between the two calls;
// the coordinator's own mutex only serializes concurrent Run calls against
// each other, the host's pre callback is responsible for the engine-wide
// exclusivity guarantee per spec's ownership model.
func (c *RestoreCoordinator) Run(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pre == nil {
		return ErrNoPreFullSyncCB
	}
	if c.post == nil {
		return ErrNoPostFullSyncCB
	}

	if err := c.pre(); err != nil {
		return fmt.Errorf("%w: pre-fullsync callback failed: %w", ErrFatal, err)
	}

	fnErr := fn()
	ok := fnErr == nil

	if err := c.post(ok); err != nil {
		if fnErr != nil {
			return fmt.Errorf("%w (post-fullsync callback also failed: %v)", fnErr, err)
		}
		return fmt.Errorf("%w: post-fullsync callback failed: %w", ErrFatal, err)
	}

	return fnErr
}
