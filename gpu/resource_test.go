// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"

	"github.com/tessera-gpu/tessera/driver"
)

func TestRefCountRetainRelease(t *testing.T) {
	rc := newRefCount()
	if rc.load() != 1 {
		t.Fatalf("initial load = %d, want 1", rc.load())
	}
	rc.retain()
	if rc.load() != 2 {
		t.Fatalf("after retain, load = %d, want 2", rc.load())
	}
	rc.release()
	rc.release()
	if rc.load() != 0 {
		t.Fatalf("after two releases, load = %d, want 0", rc.load())
	}
}

func TestBufferFlushRangeRoundsToAtom(t *testing.T) {
	b := &Buffer{ctx: &Context{limits: driver.Limits{NonCoherentAtom: 64}}, size: 1024}
	off, size := b.FlushRange(10, 20)
	if off != 0 {
		t.Errorf("offset = %d, want 0", off)
	}
	if size != 64 {
		t.Errorf("size = %d, want 64", size)
	}
}

func TestBufferFlushRangeClampsToBufferSize(t *testing.T) {
	b := &Buffer{ctx: &Context{limits: driver.Limits{NonCoherentAtom: 64}}, size: 100}
	off, size := b.FlushRange(80, 40)
	if off+size != 100 {
		t.Errorf("flush range [%d,%d) exceeds buffer size 100", off, off+size)
	}
}

func TestBufferFlushRangeNoopWithoutAtom(t *testing.T) {
	b := &Buffer{ctx: &Context{limits: driver.Limits{}}, size: 100}
	off, size := b.FlushRange(10, 20)
	if off != 10 || size != 20 {
		t.Errorf("got (%d,%d), want (10,20) unchanged", off, size)
	}
}

func TestAlignUniformAndStorage(t *testing.T) {
	limits := driver.Limits{MinUniformOffset: 256, MinStorageOffset: 64}
	if got := alignUniform(limits, 1); got != 256 {
		t.Errorf("alignUniform(1) = %d, want 256", got)
	}
	if got := alignUniform(limits, 256); got != 256 {
		t.Errorf("alignUniform(256) = %d, want 256", got)
	}
	if got := alignStorage(limits, 65); got != 128 {
		t.Errorf("alignStorage(65) = %d, want 128", got)
	}
}

func TestDescriptorSetSetBufferAlignsOffset(t *testing.T) {
	ctx := &Context{limits: driver.Limits{MinUniformOffset: 256, MinStorageOffset: 64}, registry: newRegistry()}
	d := &DescriptorSet{ctx: ctx}
	buf := &Buffer{size: 1024}

	d.SetBuffer(0, driver.DConstant, buf, 10, 32)
	if d.buffers[0].offset != 256 {
		t.Errorf("DConstant offset = %d, want 256", d.buffers[0].offset)
	}

	d.SetBuffer(1, driver.DBuffer, buf, 10, 32)
	if d.buffers[1].offset != 64 {
		t.Errorf("DBuffer offset = %d, want 64", d.buffers[1].offset)
	}
}
