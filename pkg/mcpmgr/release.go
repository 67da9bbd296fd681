package mcpmgr

import (
	"errors"
	"sync"
)

type releaseEntry struct {
	server   string
	resource string
	close    func() error
}

// releaseRegistry is the append-only list of closers shared by every
// connector in one fleet run.
type releaseRegistry struct {
	mu      sync.Mutex
	entries []releaseEntry
	sealed  bool
}

func newReleaseRegistry() *releaseRegistry {
	return &releaseRegistry{}
}

// Register appends a closer. Once the registry has been released, the
// closer runs immediately instead and its error is returned.
func (r *releaseRegistry) Register(server, resource string, closeFn func() error) error {
	if closeFn == nil {
		return nil
	}
	r.mu.Lock()
	if !r.sealed {
		r.entries = append(r.entries, releaseEntry{server: server, resource: resource, close: closeFn})
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	if err := closeFn(); err != nil {
		return &ReleaseError{Server: server, Resource: resource, Err: err}
	}
	return nil
}

func (r *releaseRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// drain seals the registry and hands back its entries.
func (r *releaseRegistry) drain() []releaseEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	entries := r.entries
	r.entries = nil
	return entries
}

// runReverse closes entries last-acquired first and collects every failure.
func runReverse(entries []releaseEntry) []error {
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := e.close(); err != nil {
			errs = append(errs, &ReleaseError{Server: e.server, Resource: e.resource, Err: err})
		}
	}
	return errs
}

// ReleaseHandle tears down every resource a fleet run acquired. The caller
// owns it once InitializeAll returns.
type ReleaseHandle struct {
	registry *releaseRegistry
	once     sync.Once
	errs     []error
}

func newReleaseHandle(r *releaseRegistry) *ReleaseHandle {
	return &ReleaseHandle{registry: r}
}

// Release closes resources in reverse acquisition order, continuing past
// failures. Only the first call does any work; later calls return nil.
func (h *ReleaseHandle) Release() []error {
	if h == nil {
		return nil
	}
	first := false
	h.once.Do(func() {
		first = true
		h.errs = runReverse(h.registry.drain())
	})
	if !first {
		return nil
	}
	return h.errs
}

// Close implements io.Closer by joining the errors from Release.
func (h *ReleaseHandle) Close() error {
	return errors.Join(h.Release()...)
}

// Pending reports how many resources are still awaiting release.
func (h *ReleaseHandle) Pending() int {
	if h == nil {
		return 0
	}
	return h.registry.Len()
}
