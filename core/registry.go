package core

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Registry maps names to actor addresses. It holds its own handle for each
// entry, so a registered actor stays alive until it is unregistered or the
// system stops.
type Registry struct {
	sys *System

	mu      sync.RWMutex
	entries map[string]*Address
}

func newRegistry(sys *System) *Registry {
	return &Registry{
		sys:     sys,
		entries: make(map[string]*Address),
	}
}

// Register binds name to a clone of addr. It fails with ErrNameTaken if the
// name is bound to an actor that is still connected.
func (r *Registry) Register(name string, addr *Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[name]; ok {
		if old.Connected() {
			return errors.Wrapf(ErrNameTaken, "actor %s", name)
		}
		old.Release()
	}
	r.entries[name] = addr.Clone()
	return nil
}

// Lookup returns a new handle for name. The caller owns the handle and
// should release it. Entries whose actor has stopped are dropped.
func (r *Registry) Lookup(name string) (*Address, bool) {
	r.mu.RLock()
	addr, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !addr.Connected() {
		r.mu.Lock()
		if r.entries[name] == addr {
			delete(r.entries, name)
			addr.Release()
		}
		r.mu.Unlock()
		return nil, false
	}
	return addr.Clone(), true
}

// Unregister removes name and releases the registry's handle.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	addr, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if ok {
		addr.Release()
	}
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service returns the actor registered under name, starting it first with
// factory on the main arbiter if there is none. Services are supervised.
func (r *Registry) Service(name string, factory Factory, opts ActorOptions) (*Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if addr, ok := r.entries[name]; ok {
		if addr.Connected() {
			return addr.Clone(), nil
		}
		addr.Release()
		delete(r.entries, name)
	}

	opts.Name = name
	addr, err := StartSupervised(r.sys.main, factory, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "service %s", name)
	}
	r.entries[name] = addr
	return addr.Clone(), nil
}

func (r *Registry) clear() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Address)
	r.mu.Unlock()

	for _, addr := range entries {
		addr.Release()
	}
}
