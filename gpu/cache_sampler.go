// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tessera-gpu/tessera/driver"
)

// samplerCache interns driver.Sampler objects by their driver.Sampling
// state, since driver.Sampling is itself a plain comparable struct and
// samplers are immutable once created (§4.6). Creation is
// single-flighted per key so concurrent Get calls for a sampler no
// other caller has built yet share one gpu.NewSampler call instead of
// racing a double-checked-lock and throwing away the loser, matching
// §5's "writes serialize per key" requirement for the cache maps.
type samplerCache struct {
	mu       sync.Mutex
	samplers map[driver.Sampling]driver.Sampler
	group    singleflight.Group
}

func newSamplerCache() *samplerCache {
	return &samplerCache{samplers: make(map[driver.Sampling]driver.Sampler)}
}

// Get returns the cached sampler for spln, creating it on first use.
func (c *samplerCache) Get(gpu driver.GPU, spln driver.Sampling) (driver.Sampler, error) {
	c.mu.Lock()
	if s, ok := c.samplers[spln]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(fmt.Sprintf("%+v", spln), func() (any, error) {
		c.mu.Lock()
		if s, ok := c.samplers[spln]; ok {
			c.mu.Unlock()
			return s, nil
		}
		c.mu.Unlock()

		s, err := gpu.NewSampler(&spln)
		if err != nil {
			return nil, newCreateFailed("sampler", err.Error(), err)
		}

		c.mu.Lock()
		c.samplers[spln] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(driver.Sampler), nil
}

func (c *samplerCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.samplers {
		s.Destroy()
	}
	c.samplers = nil
}
