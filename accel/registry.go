// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package accel

import (
	"errors"
	"slices"

	pkgerrors "github.com/pkg/errors"

	"github.com/gviegas/rtframe/driver"
)

// ErrUnknownName means that no structure is registered
// with a given name.
var ErrUnknownName = errors.New("accel: unknown structure name")

// Registry names the structures built by a Builder.
//
// Rebuilding a named bottom level structure bumps its
// version and retires the previous structure without
// destroying it, since top level structures may still
// hold its handle. Top level structures remember the
// versions they were built against, so Stale reports
// which of them must be rebuilt. Nothing is rebuilt
// automatically.
type Registry struct {
	b       *Builder
	blas    map[string]*blasEntry
	tlas    map[string]*tlasEntry
	names   map[uint64]string
	retired []*Structure
}

type blasEntry struct {
	s       *Structure
	version int
}

type tlasEntry struct {
	s    *Structure
	deps map[string]int
}

// NewRegistry creates a new Registry that builds with b.
func NewRegistry(b *Builder) *Registry {
	return &Registry{
		b:     b,
		blas:  make(map[string]*blasEntry),
		tlas:  make(map[string]*tlasEntry),
		names: make(map[uint64]string),
	}
}

// BuildBottomLevel builds a bottom level structure and
// registers it as name, replacing the current one.
func (r *Registry) BuildBottomLevel(name string, prims []AABB) (*Structure, error) {
	s, err := r.b.BuildBottomLevel(prims)
	if err != nil {
		return nil, err
	}
	e := r.blas[name]
	if e == nil {
		e = &blasEntry{}
		r.blas[name] = e
	} else {
		r.retired = append(r.retired, e.s)
		logger.Infof("bottom level '%s' rebuilt (version %d)", name, e.version+1)
	}
	e.s = s
	e.version++
	r.names[s.Handle()] = name
	return s, nil
}

// BuildTopLevel builds a top level structure and
// registers it as name, replacing the current one.
// Instances may refer to any bottom level structure
// built by the registry's Builder.
func (r *Registry) BuildTopLevel(name string, insts []Instance) (*Structure, error) {
	s, err := r.b.BuildTopLevel(insts)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]int)
	for _, h := range s.Refs() {
		if n, ok := r.names[h]; ok && r.blas[n].s.Handle() == h {
			deps[n] = r.blas[n].version
		} else if ok {
			// A retired structure of n.
			deps[n] = 0
		}
	}
	if e := r.tlas[name]; e != nil {
		r.retired = append(r.retired, e.s)
	}
	r.tlas[name] = &tlasEntry{s: s, deps: deps}
	return s, nil
}

// Lookup returns the structure registered as name.
// Bottom level names are searched first.
func (r *Registry) Lookup(name string) (*Structure, bool) {
	if e, ok := r.blas[name]; ok {
		return e.s, true
	}
	if e, ok := r.tlas[name]; ok {
		return e.s, true
	}
	return nil, false
}

// Handle returns the handle of the bottom level structure
// registered as name.
func (r *Registry) Handle(name string) (uint64, error) {
	e, ok := r.blas[name]
	if !ok {
		return 0, pkgerrors.Wrapf(ErrUnknownName, "%q", name)
	}
	return e.s.Handle(), nil
}

// Version returns the version of the bottom level
// structure registered as name, or zero if there is no
// such structure.
func (r *Registry) Version(name string) int {
	if e, ok := r.blas[name]; ok {
		return e.version
	}
	return 0
}

// Stale returns whether the top level structure
// registered as name refers to a retired bottom level
// structure.
func (r *Registry) Stale(name string) (bool, error) {
	e, ok := r.tlas[name]
	if !ok {
		return false, pkgerrors.Wrapf(ErrUnknownName, "%q", name)
	}
	for n, v := range e.deps {
		if r.blas[n].version != v {
			return true, nil
		}
	}
	return false, nil
}

// StaleTopLevel returns the names of every stale top
// level structure, sorted.
func (r *Registry) StaleTopLevel() []string {
	var names []string
	for n := range r.tlas {
		if stale, _ := r.Stale(n); stale {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Prune destroys retired structures that no current top
// level structure refers to.
// The caller must ensure that the GPU is not using them.
// It returns the number of structures destroyed.
func (r *Registry) Prune() int {
	inUse := make(map[uint64]bool)
	for _, e := range r.tlas {
		for _, h := range e.s.Refs() {
			inUse[h] = true
		}
	}
	n := 0
	kept := r.retired[:0]
	for _, s := range r.retired {
		if s.Type() == driver.BottomLevel && inUse[s.Handle()] {
			kept = append(kept, s)
			continue
		}
		if s.Type() == driver.BottomLevel {
			delete(r.names, s.Handle())
		}
		s.Destroy()
		n++
	}
	clear(r.retired[len(kept):])
	r.retired = kept
	return n
}

// Destroy destroys every structure of the registry.
// The caller must ensure that the GPU is not using them.
func (r *Registry) Destroy() {
	for _, e := range r.tlas {
		e.s.Destroy()
	}
	for _, e := range r.blas {
		e.s.Destroy()
	}
	for _, s := range r.retired {
		s.Destroy()
	}
	*r = Registry{}
}
