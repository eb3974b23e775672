// Package cast is the registry of actor types a workload can name.
//
// A Cast is filled in at startup, frozen, and read-only afterwards.
package cast

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"ensemble/internal/workload"
)

var (
	ErrFrozen    = errors.New("cast is frozen")
	ErrDuplicate = errors.New("actor type already registered")
)

// Cast maps actor type names to producers.
type Cast struct {
	mu        sync.RWMutex
	producers map[string]workload.Producer
	frozen    bool
}

func New() *Cast {
	return &Cast{producers: make(map[string]workload.Producer)}
}

// Register adds a producer under name. It fails after Freeze and on a name
// that is already taken.
func (c *Cast) Register(name string, producer workload.Producer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return errors.Wrapf(ErrFrozen, "registering %q", name)
	}
	if name == "" || producer == nil {
		return fmt.Errorf("registering %q: name and producer are required", name)
	}
	if _, ok := c.producers[name]; ok {
		return errors.Wrapf(ErrDuplicate, "registering %q", name)
	}
	c.producers[name] = producer
	return nil
}

// Freeze ends registration.
func (c *Cast) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

func (c *Cast) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Producer implements workload.ProducerLookup.
func (c *Cast) Producer(name string) (workload.Producer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	producer, ok := c.producers[name]
	if !ok {
		return nil, fmt.Errorf("unknown actor type %q (registered: %s)", name, strings.Join(c.names(), ", "))
	}
	return producer, nil
}

// Names returns the registered type names in sorted order.
func (c *Cast) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.names()
}

func (c *Cast) names() []string {
	names := make([]string, 0, len(c.producers))
	for name := range c.producers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
