// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"

	"github.com/tessera-gpu/tessera/driver"
)

func TestEarliestStagePicksLowestRank(t *testing.T) {
	s := driver.SColorOutput | driver.SVertexShading | driver.SResolve
	if got := earliestStage(s); got != driver.SVertexShading {
		t.Errorf("earliestStage(%v) = %v, want SVertexShading", s, got)
	}
}

func TestEarliestStageUnknownFallsBackToAll(t *testing.T) {
	if got := earliestStage(driver.Sync(1 << 30)); got != driver.SAll {
		t.Errorf("earliestStage(unknown) = %v, want SAll", got)
	}
}

func TestSemaphoreTrackerKeepsHighestValuePerQueue(t *testing.T) {
	q := &Queue{}
	tr := newSemaphoreTracker()
	tr.wait(q, 3)
	tr.wait(q, 7)
	tr.wait(q, 5)
	deps := tr.dependencies()
	if deps[q] != 7 {
		t.Errorf("dependencies()[q] = %d, want 7", deps[q])
	}
}

func TestSemaphoreTrackerTracksMultipleQueues(t *testing.T) {
	a, b := &Queue{}, &Queue{}
	tr := newSemaphoreTracker()
	tr.wait(a, 1)
	tr.wait(b, 2)
	deps := tr.dependencies()
	if len(deps) != 2 || deps[a] != 1 || deps[b] != 2 {
		t.Errorf("dependencies() = %+v", deps)
	}
}
