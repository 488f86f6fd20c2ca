// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"testing"

	"github.com/tessera-gpu/tessera/driver"
	"github.com/tessera-gpu/tessera/internal/noop"
)

func TestSamplerCacheInternsByConfig(t *testing.T) {
	_, g := noop.New()
	cache := newSamplerCache()

	a, err := cache.Get(g, driver.Sampling{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := cache.Get(g, driver.Sampling{})
	if err != nil {
		t.Fatalf("Get (2nd): %v", err)
	}
	if a != b {
		t.Error("expected the same cached sampler for an identical configuration")
	}
}

func TestSamplerCacheDistinguishesConfigs(t *testing.T) {
	_, g := noop.New()
	cache := newSamplerCache()

	a, err := cache.Get(g, driver.Sampling{Min: driver.FNearest})
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	b, err := cache.Get(g, driver.Sampling{Min: driver.FLinear})
	if err != nil {
		t.Fatalf("Get b: %v", err)
	}
	if a == b {
		t.Error("expected distinct sampler configurations to produce distinct samplers")
	}
}
