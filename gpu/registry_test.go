// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"

	"github.com/tessera-gpu/tessera/driver"
)

func TestRegistryEntryCreatesAndReusesEntry(t *testing.T) {
	r := newRegistry()
	buf := &Buffer{size: 16}
	key := buf.key()

	r.Lock()
	e1 := r.entry(key)
	e1.layout = driver.LColorTarget
	r.Unlock()

	r.Lock()
	e2 := r.entry(key)
	r.Unlock()

	if e1 != e2 {
		t.Fatal("entry() returned different records for the same key")
	}
	if e2.layout != driver.LColorTarget {
		t.Errorf("layout = %v, want LColorTarget", e2.layout)
	}
}

func TestRegistryForgetBufferRemovesEntry(t *testing.T) {
	r := newRegistry()
	buf := &Buffer{size: 16}

	r.Lock()
	r.entry(buf.key())
	r.Unlock()

	r.forgetBuffer(buf)

	r.Lock()
	_, existedBefore := r.entries[buf.key()]
	r.Unlock()
	if existedBefore {
		t.Fatal("forgetBuffer did not remove the entry")
	}
}

func TestRegistryForgetTextureRemovesAllSubResources(t *testing.T) {
	r := newRegistry()
	tex := &Texture{layers: 2, levels: 2}

	r.Lock()
	for l := 0; l < 2; l++ {
		for m := 0; m < 2; m++ {
			r.entry(tex.key(l, m, aspectColor))
		}
	}
	r.Unlock()

	r.forgetTexture(tex)

	r.Lock()
	defer r.Unlock()
	for l := 0; l < 2; l++ {
		for m := 0; m < 2; m++ {
			if _, ok := r.entries[tex.key(l, m, aspectColor)]; ok {
				t.Fatalf("sub-resource (%d,%d) survived forgetTexture", l, m)
			}
		}
	}
}
