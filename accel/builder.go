// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package accel builds acceleration structures.
//
// Bottom level structures hold AABB geometry. Top level
// structures hold instances that refer to bottom level
// structures by handle. A bottom level structure must
// outlive every top level structure built from it, and
// rebuilding it does not update dependents.
package accel

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/log"
)

// Caller errors.
var (
	ErrNoPrimitives = errors.New("accel: no primitives")
	ErrNoInstances  = errors.New("accel: no instances")
	ErrInvalidAABB  = errors.New("accel: invalid AABB")
	ErrBadReference = errors.New("accel: instance does not refer to a live bottom level structure")
)

var logger = log.New("accel")

// Structure is a built acceleration structure.
type Structure struct {
	b     *Builder
	as    driver.AccelStruct
	typ   driver.AccelType
	count int
	refs  []uint64
}

// Type returns the structure's type.
func (s *Structure) Type() driver.AccelType { return s.typ }

// Handle returns the handle that instance records use to
// refer to s, or zero if s was destroyed.
func (s *Structure) Handle() uint64 {
	if s.as == nil {
		return 0
	}
	return s.as.Handle()
}

// AccelStruct returns the driver.AccelStruct.
func (s *Structure) AccelStruct() driver.AccelStruct { return s.as }

// Count returns the number of primitives or instances.
func (s *Structure) Count() int { return s.count }

// Refs returns the handles of the bottom level structures
// referred to by a top level structure.
func (s *Structure) Refs() []uint64 { return s.refs }

// Destroy destroys the structure.
// The caller must ensure that the GPU is not using it.
func (s *Structure) Destroy() {
	if s.as == nil {
		return
	}
	if s.typ == driver.BottomLevel {
		delete(s.b.live, s.as.Handle())
	}
	s.as.Destroy()
	*s = Structure{}
}

// Builder builds acceleration structures.
// It tracks the bottom level structures it built so that
// instances can be checked before a top level build.
type Builder struct {
	c    *ctxt.Context
	live map[uint64]*Structure
}

// NewBuilder creates a new Builder.
func NewBuilder(c *ctxt.Context) *Builder {
	return &Builder{c: c, live: make(map[uint64]*Structure)}
}

// Lookup returns the live bottom level structure
// identified by handle.
func (b *Builder) Lookup(handle uint64) (*Structure, bool) {
	s, ok := b.live[handle]
	return s, ok
}

// BuildBottomLevel builds a bottom level structure
// holding prims.
// It blocks until the build completes.
func (b *Builder) BuildBottomLevel(prims []AABB) (*Structure, error) {
	if len(prims) == 0 {
		return nil, ErrNoPrimitives
	}
	for i, p := range prims {
		if !p.Valid() {
			return nil, pkgerrors.Wrapf(ErrInvalidAABB, "primitive %d", i)
		}
	}
	s, err := b.build(driver.BottomLevel, len(prims), driver.AABBSize, func(p []byte) error {
		for i, x := range prims {
			x.encode(p[i*driver.AABBSize:])
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "accel: bottom level")
	}
	b.live[s.Handle()] = s
	return s, nil
}

// BuildTopLevel builds a top level structure holding
// insts.
// Every instance must refer to a live bottom level
// structure built by b.
// It blocks until the build completes.
func (b *Builder) BuildTopLevel(insts []Instance) (*Structure, error) {
	if len(insts) == 0 {
		return nil, ErrNoInstances
	}
	refs := make([]uint64, 0, len(insts))
	for i := range insts {
		if _, ok := b.live[insts[i].BLAS]; !ok {
			return nil, pkgerrors.Wrapf(ErrBadReference, "instance %d: handle %#x", i, insts[i].BLAS)
		}
		if insts[i].CustomIndex > MaxField || insts[i].SBTOffset > MaxField {
			return nil, pkgerrors.Wrapf(ErrFieldRange, "instance %d", i)
		}
		refs = append(refs, insts[i].BLAS)
	}
	s, err := b.build(driver.TopLevel, len(insts), driver.InstanceSize, func(p []byte) error {
		for i := range insts {
			if err := insts[i].Encode(p[i*driver.InstanceSize:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "accel: top level")
	}
	s.refs = refs
	return s, nil
}

// build stages count input records of the given stride,
// written by fill, and builds a structure from them.
// Resources are released if any step fails.
func (b *Builder) build(typ driver.AccelType, count, stride int, fill func([]byte) error) (*Structure, error) {
	tr := b.c.Tracer()

	input, err := b.c.Alloc(int64(count*stride), driver.UAccelInput, ctxt.Visible)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "input")
	}
	defer input.Destroy()
	if err = b.c.Map(input, fill); err != nil {
		return nil, pkgerrors.Wrap(err, "input")
	}

	geom := driver.AccelGeometry{
		Type:   typ,
		Data:   input,
		Count:  count,
		Opaque: true,
	}
	sizes, err := tr.AccelSizes(&geom)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sizes")
	}
	as, err := tr.NewAccelStruct(typ, sizes.Storage)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage")
	}

	align := max(b.c.RTLimits().ScratchAlign, 1)
	scratch, err := b.c.Alloc(sizes.BuildScratch+align, driver.UAccelStorage, ctxt.Local)
	if err != nil {
		as.Destroy()
		return nil, pkgerrors.Wrap(err, "scratch")
	}
	defer scratch.Destroy()
	addr := int64(scratch.Address())
	off := (addr+align-1)/align*align - addr

	err = b.c.OneShot(func(cb driver.CmdBuffer) error {
		cb.BuildAccel(&driver.AccelBuild{
			Geometry:   geom,
			Dst:        as,
			Scratch:    scratch,
			ScratchOff: off,
		})
		cb.Barrier([]driver.Barrier{{
			SyncBefore:   driver.SAccelBuild,
			SyncAfter:    driver.SAccelBuild | driver.SRayTracing,
			AccessBefore: driver.AAccelWrite,
			AccessAfter:  driver.AAccelRead,
		}})
		return nil
	})
	if err != nil {
		as.Destroy()
		return nil, pkgerrors.Wrap(err, "build")
	}
	logger.Debugf("built %v structure: %d primitives, %d bytes storage, %d bytes scratch",
		typ, count, sizes.Storage, sizes.BuildScratch)
	return &Structure{b: b, as: as, typ: typ, count: count}, nil
}
