package advisory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// cooldownThreshold is the consecutive failure count that benches a
	// provider; cooldownPeriod is how long it stays benched.
	cooldownThreshold = 3
	cooldownPeriod    = 5 * time.Minute
)

// failoverChain tries providers in order. A provider that keeps failing is
// benched for a cooldown so one dead backend does not add its timeout to
// every signal; it is retried once the cooldown lapses.
type failoverChain struct {
	mu        sync.Mutex
	providers []Provider
	failures  map[string]int
	benchedTo map[string]time.Time
	now       func() time.Time
}

func newFailoverChain(providers []Provider) *failoverChain {
	return &failoverChain{
		providers: providers,
		failures:  make(map[string]int),
		benchedTo: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (c *failoverChain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (c *failoverChain) Generate(ctx context.Context, contextText string) (string, error) {
	var lastErr error

	for _, p := range c.providers {
		if c.benched(p.Name()) {
			continue
		}

		text, err := p.Generate(ctx, contextText)
		if err != nil {
			lastErr = err
			c.recordFailure(p.Name())
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}

		c.recordSuccess(p.Name())
		return text, nil
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("all advisory providers are cooling down")
}

func (c *failoverChain) benched(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.benchedTo[name]
	if !ok {
		return false
	}
	if c.now().After(until) {
		delete(c.benchedTo, name)
		c.failures[name] = 0
		return false
	}
	return true
}

func (c *failoverChain) recordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[name]++
	if c.failures[name] >= cooldownThreshold {
		c.benchedTo[name] = c.now().Add(cooldownPeriod)
	}
}

func (c *failoverChain) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[name] = 0
	delete(c.benchedTo, name)
}
