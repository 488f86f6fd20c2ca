// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"
	"time"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/internal/noop"
)

// TestResolveScopeFirstUseTransitionsFromTopOfPipe is a dedicated
// resolveScope unit test covering scenario 2: a sub-resource with no
// prior usage in the registry transitions from LUndefined with
// SyncBefore pinned to TOP_OF_PIPE/AccessBefore NONE, not a
// conservative stall on every stage.
func TestResolveScopeFirstUseTransitionsFromTopOfPipe(t *testing.T) {
	ctx := newTestContext(t)
	tex, err := ctx.NewTexture(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.URenderTarget)
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}

	sc := &scope{kind: scopeCopy}
	sc.use(tex.key(0, 0, aspectColor), subUsage{access: driver.AColorWrite, sync: driver.SColorOutput, layout: driver.LColorTarget})

	tracker := newSemaphoreTracker()
	ctx.registry.Lock()
	barriers, transitions, views, err := ctx.resolveScope(ctx.Main(), 1, sc, tracker)
	ctx.registry.Unlock()
	if err != nil {
		t.Fatalf("resolveScope: %v", err)
	}
	defer func() {
		for _, v := range views {
			v.Destroy()
		}
	}()

	if len(barriers) != 0 {
		t.Errorf("got %d plain barriers, want 0 (first use is a transition)", len(barriers))
	}
	if len(transitions) != 1 {
		t.Fatalf("got %d transitions, want 1", len(transitions))
	}
	tr := transitions[0]
	if tr.LayoutBefore != driver.LUndefined {
		t.Errorf("LayoutBefore = %v, want LUndefined", tr.LayoutBefore)
	}
	if tr.LayoutAfter != driver.LColorTarget {
		t.Errorf("LayoutAfter = %v, want LColorTarget", tr.LayoutAfter)
	}
	if tr.SyncBefore != driver.STopOfPipe {
		t.Errorf("SyncBefore = %v, want STopOfPipe", tr.SyncBefore)
	}
	if tr.AccessBefore != driver.ANone {
		t.Errorf("AccessBefore = %v, want ANone", tr.AccessBefore)
	}
	if tr.AccessAfter != driver.AColorWrite {
		t.Errorf("AccessAfter = %v, want AColorWrite", tr.AccessAfter)
	}
}

// TestResolveScopeReadAfterReadSameLayoutEmitsNoBarrier covers
// scenario 3 / the §8 invariant that read-after-read on an image
// sub-resource in the same layout emits no memory barrier at all.
func TestResolveScopeReadAfterReadSameLayoutEmitsNoBarrier(t *testing.T) {
	ctx := newTestContext(t)
	tex, err := ctx.NewTexture(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.UShaderSample)
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	key := tex.key(0, 0, aspectColor)
	use := subUsage{access: driver.AShaderRead, sync: driver.SFragmentShading, layout: driver.LShaderRead}

	sc1 := &scope{kind: scopeCopy}
	sc1.use(key, use)
	tracker := newSemaphoreTracker()
	ctx.registry.Lock()
	_, transitions1, views1, err := ctx.resolveScope(ctx.Main(), 1, sc1, tracker)
	ctx.registry.Unlock()
	if err != nil {
		t.Fatalf("resolveScope (1st): %v", err)
	}
	for _, v := range views1 {
		defer v.Destroy()
	}
	if len(transitions1) != 1 {
		t.Fatalf("first use: got %d transitions, want 1 (LUndefined -> LShaderRead)", len(transitions1))
	}

	sc2 := &scope{kind: scopeCopy}
	sc2.use(key, use)
	ctx.registry.Lock()
	barriers2, transitions2, views2, err := ctx.resolveScope(ctx.Main(), 2, sc2, tracker)
	ctx.registry.Unlock()
	if err != nil {
		t.Fatalf("resolveScope (2nd): %v", err)
	}
	for _, v := range views2 {
		defer v.Destroy()
	}
	if len(barriers2) != 0 {
		t.Errorf("read-after-read in the same layout emitted %d barriers, want 0", len(barriers2))
	}
	if len(transitions2) != 0 {
		t.Errorf("read-after-read in the same layout emitted %d transitions, want 0", len(transitions2))
	}
}

// TestSubmitDoesNotBlockOnPendingCrossQueueDependency exercises a
// live, still-in-flight cross-queue wait: job1 is committed to the
// driver but deliberately not completed, and Submit of a dependent
// job2 on a different queue must still return immediately rather than
// blocking until job1 retires (§5).
func TestSubmitDoesNotBlockOnPendingCrossQueueDependency(t *testing.T) {
	drv, ngpu := noop.New()
	ctx, err := Open(drv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()
	ngpu.SetAutoComplete(false)

	a, err := ctx.NewBuffer(64, true, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	b, err := ctx.NewBuffer(64, true, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	cb1 := NewCommandBuffer().CopyBufferToBuffer(a, 0, b, 0, 64)
	job1, err := ctx.Transfer().Submit("w1", cb1.Commands())
	if err != nil {
		t.Fatalf("Submit 1: %v", err)
	}

	cb2 := NewCommandBuffer().CopyBufferToBuffer(a, 0, b, 0, 64)
	done := make(chan struct{})
	var job2 Job
	var err2 error
	go func() {
		job2, err2 = ctx.Main().Submit("w2", cb2.Commands())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a cross-queue dependency's GPU completion")
	}
	if err2 != nil {
		t.Fatalf("Submit 2: %v", err2)
	}

	if status, _ := ctx.Main().PollStatus(job2); status != StatusRunning {
		t.Fatalf("job2 status = %v before its dependency retired, want StatusRunning", status)
	}

	if n := ngpu.CompletePending(1); n != 1 {
		t.Fatalf("CompletePending(job1): got %d, want 1", n)
	}
	if status, err := ctx.Transfer().WaitOn(job1, time.Second); err != nil || status != StatusComplete {
		t.Fatalf("WaitOn job1: status=%v err=%v", status, err)
	}

	deadline := time.Now().Add(time.Second)
	for ngpu.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := ngpu.CompletePending(1); n != 1 {
		t.Fatalf("CompletePending(job2): got %d, want 1", n)
	}
	if status, err := ctx.Main().WaitOn(job2, time.Second); err != nil || status != StatusComplete {
		t.Fatalf("WaitOn job2: status=%v err=%v", status, err)
	}
}

// TestDestroyDefersFreeUntilSubmissionRetires covers scenario 6: a
// buffer's native handle must not be destroyed until the submission
// that last touched it has retired, even though Destroy itself
// returns immediately.
func TestDestroyDefersFreeUntilSubmissionRetires(t *testing.T) {
	drv, ngpu := noop.New()
	ctx, err := Open(drv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()
	ngpu.SetAutoComplete(false)

	a, err := ctx.NewBuffer(64, true, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	b, err := ctx.NewBuffer(64, true, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	cb := NewCommandBuffer().CopyBufferToBuffer(a, 0, b, 0, 64)
	job, err := ctx.Transfer().Submit("copy", cb.Commands())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	a.Destroy()
	if a.Bytes() == nil {
		t.Fatal("buffer's native memory freed before its submission retired")
	}

	if n := ngpu.CompletePending(1); n != 1 {
		t.Fatalf("CompletePending: got %d, want 1", n)
	}
	if status, err := ctx.Transfer().WaitOn(job, time.Second); err != nil || status != StatusComplete {
		t.Fatalf("WaitOn: status=%v err=%v", status, err)
	}
	ctx.gc.Poke()

	deadline := time.Now().Add(time.Second)
	for a.Bytes() != nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		ctx.gc.Poke()
	}
	if a.Bytes() != nil {
		t.Fatal("buffer's native memory was not freed after its submission retired")
	}
}
