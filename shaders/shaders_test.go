// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shaders

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func spirv(n int) []byte {
	p := make([]byte, 20+4*n)
	binary.LittleEndian.PutUint32(p, magic)
	return p
}

func TestCheck(t *testing.T) {
	if err := Check(spirv(1)); err != nil {
		t.Fatalf("Check:\nhave %v\nwant nil", err)
	}
	for _, p := range [][]byte{nil, spirv(0)[:19], make([]byte, 24), append(spirv(0), 0)} {
		if err := Check(p); !errors.Is(err, ErrSPIRV) {
			t.Fatalf("Check: len %d\nhave %v\nwant %v", len(p), err, ErrSPIRV)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	var paths [StageN]string
	for i := range paths {
		paths[i] = filepath.Join(dir, Stage(i).String()+".spv")
		if err := os.WriteFile(paths[i], spirv(i), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c, err := Load(paths)
	if err != nil {
		t.Fatalf("Load:\nhave %v\nwant nil", err)
	}
	for i := range c {
		if n := len(c[i]); n != 20+4*i {
			t.Fatalf("Load: %s size\nhave %d\nwant %d", Stage(i), n, 20+4*i)
		}
	}

	if err := os.WriteFile(paths[Miss], []byte("glsl"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(paths); !errors.Is(err, ErrSPIRV) {
		t.Fatalf("Load: bad miss\nhave %v\nwant %v", err, ErrSPIRV)
	}
	paths[RayGen] = filepath.Join(dir, "missing.spv")
	if _, err := Load(paths); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load: missing raygen\nhave %v\nwant %v", err, fs.ErrNotExist)
	}
}

func TestSources(t *testing.T) {
	for _, name := range []string{"raygen.rgen", "miss.rmiss", "closesthit.rchit", "sphere.rint"} {
		b, err := Sources.ReadFile(name)
		if err != nil {
			t.Fatalf("Sources.ReadFile(%q):\nhave %v\nwant nil", name, err)
		}
		if len(b) == 0 {
			t.Fatalf("Sources.ReadFile(%q): empty", name)
		}
	}
}
