// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sync"

	"github.com/tessera-gpu/tessera/driver"
)

// stageRank orders Sync stages by their position in the logical
// pipeline, matching the 14-stage rank order given in §4.2: TOP_OF_PIPE,
// DRAW_INDIRECT, VERTEX_INPUT, VERTEX_SHADER, TESS_CONTROL, TESS_EVAL,
// GEOMETRY, FRAGMENT_SHADER, EARLY_FRAGMENT_TESTS, LATE_FRAGMENT_TESTS,
// COLOR_ATTACHMENT_OUTPUT, TRANSFER, COMPUTE_SHADER, BOTTOM_OF_PIPE.
// SResolve is this driver's own extension for multisample-resolve
// attachments and is ranked alongside SColorOutput, the stage it
// executes as part of. It lets the translator pick the earliest stage
// among several usages of a sub-resource within one scope, so a
// cross-queue wait (or an intra-queue barrier) stalls as little of the
// pipeline as the dependency actually requires.
var stageRank = map[driver.Sync]int{
	driver.STopOfPipe:          0,
	driver.SDrawIndirect:       1,
	driver.SVertexInput:        2,
	driver.SVertexShading:      3,
	driver.STessControl:        4,
	driver.STessEval:           5,
	driver.SGeometry:           6,
	driver.SFragmentShading:    7,
	driver.SEarlyFragmentTests: 8,
	driver.SLateFragmentTests:  9,
	driver.SColorOutput:        10,
	driver.SResolve:            10,
	driver.SCopy:               11,
	driver.SComputeShading:     12,
	driver.SBottomOfPipe:       13,
	driver.SAll:                14,
}

// earliestStage returns the single bit of s that ranks first in the
// pipeline. s==SNone means no prior usage exists for the sub-resource
// (the "no prior in-submission usage" case in §4.1), which the spec
// pins to TOP_OF_PIPE with NONE access, not a conservative stall on
// everything; SAll is returned only as a defensive fallback when s is
// nonzero but carries no bit this table recognizes.
func earliestStage(s driver.Sync) driver.Sync {
	if s == driver.SNone {
		return driver.STopOfPipe
	}
	best := driver.Sync(0)
	bestRank := -1
	for bit, rank := range stageRank {
		if s&bit == 0 {
			continue
		}
		if bestRank == -1 || rank < bestRank {
			bestRank, best = rank, bit
		}
	}
	if best == 0 {
		return driver.SAll
	}
	return best
}

// semaphoreTracker accumulates the cross-queue dependencies a single
// submission incurs as the orchestrator walks its scopes against the
// usage registry (§4.2). Since the underlying driver.GPU offers a
// single Commit(cb, ch) entry point rather than native timeline
// semaphores, a "wait" here means the destination queue's own
// dispatchLoop goroutine blocks until the dependency queue's software
// timeline has reached the required value before issuing Commit —
// never the goroutine that called Submit, which only records the
// dependency and returns; a "signal" is simply the value this
// submission's own Job will reach once its completion channel fires.
// The tracker's bookkeeping exists so a submission spanning several
// scopes only waits once per queue, for the highest value any of its
// scopes required.
type semaphoreTracker struct {
	mu    sync.Mutex
	waits map[*Queue]uint64
}

func newSemaphoreTracker() *semaphoreTracker {
	return &semaphoreTracker{waits: make(map[*Queue]uint64)}
}

// wait records that this submission must observe q reach value before
// it may proceed, keeping only the highest value requested per queue.
func (t *semaphoreTracker) wait(q *Queue, value uint64) {
	t.mu.Lock()
	if cur, ok := t.waits[q]; !ok || value > cur {
		t.waits[q] = value
	}
	t.mu.Unlock()
}

// dependencies returns a snapshot of the queues this submission must
// wait on and the timeline value required from each.
func (t *semaphoreTracker) dependencies() map[*Queue]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[*Queue]uint64, len(t.waits))
	for q, v := range t.waits {
		out[q] = v
	}
	return out
}
