// Package preview hands out scoped display references for selected files.
//
// A Ref is acquired when an item is created and must be released when the
// item is superseded by a new selection or the batch is torn down. The
// registry counts live refs so leaks are observable.
package preview

import (
	"sync"

	"github.com/google/uuid"
)

// Ref is an opaque, locally resolvable handle to an item's content.
// The zero Ref is never issued.
type Ref string

// Registry tracks live preview refs.
type Registry struct {
	mu   sync.Mutex
	refs map[Ref]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{refs: make(map[Ref]string)}
}

// Acquire issues a new ref resolving to location (usually the file path).
func (r *Registry) Acquire(location string) Ref {
	ref := Ref("preview:" + uuid.NewString())

	r.mu.Lock()
	r.refs[ref] = location
	r.mu.Unlock()

	return ref
}

// Resolve returns the location behind ref while it is live.
func (r *Registry) Resolve(ref Ref) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.refs[ref]
	return loc, ok
}

// Release frees ref. Releasing an unknown or already released ref is a no-op
// and reports false.
func (r *Registry) Release(ref Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refs[ref]; !ok {
		return false
	}
	delete(r.refs, ref)
	return true
}

// Live returns the number of refs not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}
