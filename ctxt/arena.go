// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ctxt

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/internal/bitvec"
)

// ErrArenaFull means that an Arena has no free range
// large enough for an allocation.
var ErrArenaFull = errors.New("ctxt: arena exhausted")

// Arena is a CPU-visible buffer divided in blocks of
// fixed size.
// Allocations are ranges of contiguous blocks, so every
// Span offset is a multiple of the block size. Spans live
// until the Arena is destroyed.
type Arena struct {
	buf   driver.Buffer
	block int64
	bv    bitvec.V
}

// Span is a range of an Arena.
type Span struct {
	Off  int64
	Size int64
}

// NewArena creates a new Arena with room for at least
// nblock blocks of block bytes each.
// block is rounded up to a multiple of
// Limits().MinConstantAlign.
func (c *Context) NewArena(nblock int, block int64, usg driver.Usage) (*Arena, error) {
	if nblock < 1 || block < 1 {
		panic("ctxt.NewArena: invalid size")
	}
	if n := c.lim.MinConstantAlign; n > 1 {
		block = (block + n - 1) / n * n
	}
	a := &Arena{block: block}
	a.bv.Grow(nblock)
	buf, err := c.Alloc(int64(a.bv.Len())*block, usg, Visible)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "ctxt: arena")
	}
	a.buf = buf
	return a, nil
}

// Alloc allocates a range with at least size bytes.
func (a *Arena) Alloc(size int64) (Span, error) {
	n := int((size + a.block - 1) / a.block)
	if n < 1 {
		n = 1
	}
	i, ok := a.bv.SearchRange(n)
	if !ok {
		return Span{}, ErrArenaFull
	}
	a.bv.SetRange(i, n)
	return Span{Off: int64(i) * a.block, Size: int64(n) * a.block}, nil
}

// Bytes returns the CPU-visible memory of s.
func (a *Arena) Bytes(s Span) []byte {
	return a.buf.Bytes()[s.Off : s.Off+s.Size]
}

// Buffer returns the underlying buffer.
func (a *Arena) Buffer() driver.Buffer { return a.buf }

// BlockSize returns the size of a block in bytes.
func (a *Arena) BlockSize() int64 { return a.block }

// Destroy destroys the arena.
func (a *Arena) Destroy() {
	if a.buf != nil {
		a.buf.Destroy()
	}
	*a = Arena{}
}
