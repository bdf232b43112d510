package maintenance

import (
	"fmt"
	"path/filepath"

	"github.com/ZanzyTHEbar/spatial-indexfs/sifs/storage"

	"github.com/google/uuid"
)

// stagingAllocator hands out staging-area paths under one parent directory.
// Names combine a call-scoped random salt with a monotonic counter, so every
// allocation within a call is unique by construction; each candidate is still
// verified against the gateway in case an unrelated process left a matching
// path behind. Retries are bounded rather than looping forever.
type stagingAllocator struct {
	gw      storage.Gateway
	parent  string
	salt    string
	next    int
	retries int
}

func newStagingAllocator(gw storage.Gateway, parent string, retries int) *stagingAllocator {
	if retries <= 0 {
		retries = 16
	}
	return &stagingAllocator{
		gw:      gw,
		parent:  parent,
		salt:    uuid.NewString()[:8],
		retries: retries,
	}
}

// Allocate returns a path under the parent directory that does not currently
// exist. The directory itself is not created; the index builder owns its
// creation so the path is either absent or fully formed.
func (a *stagingAllocator) Allocate() (string, error) {
	for attempt := 0; attempt < a.retries; attempt++ {
		candidate := filepath.Join(a.parent, fmt.Sprintf(".staging-%s-%04d", a.salt, a.next))
		a.next++
		exists, err := a.gw.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %d attempts under %s", ErrStagingExhausted, a.retries, a.parent)
}
