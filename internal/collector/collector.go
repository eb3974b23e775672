// Package collector aggregates actor events into a run summary and mirrors
// them into Prometheus collectors.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ensemble/internal/core"
)

const defaultBufferSize = 10000

// Option configures a Collector.
type Option func(*Collector)

// WithBufferSize sets how many events may be queued before Report starts
// dropping them.
func WithBufferSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// Collector aggregates events from actors and produces a summary.
type Collector struct {
	events     []core.Event
	ch         chan core.Event
	done       chan struct{}
	mu         sync.Mutex
	bufferSize int
	dropped    atomic.Int64
	failed     atomic.Int64
	closeOnce  sync.Once
	startTime  time.Time
	endTime    time.Time
	metrics    *promMetrics
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		events:     make([]core.Event, 0),
		done:       make(chan struct{}),
		bufferSize: defaultBufferSize,
		startTime:  time.Now(),
		metrics:    newPromMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ch = make(chan core.Event, c.bufferSize)
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for event := range c.ch {
		c.metrics.observe(event)
		if !event.Success {
			c.failed.Add(1)
		}
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report queues an event. It never blocks the actor: when the queue is
// full the event is counted as dropped. Safe for concurrent use.
func (c *Collector) Report(event core.Event) {
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting events and waits until every queued event has been
// aggregated. It must not race with Report.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.endTime = time.Now()
		c.mu.Unlock()
		close(c.ch)
		<-c.done
	})
}

// Events returns a copy of collected events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// Len returns the number of events aggregated so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Failures returns the number of aggregated events that were not successful.
func (c *Collector) Failures() int64 {
	return c.failed.Load()
}

// DroppedEvents returns how many events Report discarded.
func (c *Collector) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Duration returns the run duration: start to Close, or start to now while
// the collector is still open.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// Compute summarises the events collected so far.
func (c *Collector) Compute() *Metrics {
	return ComputeMetrics(c.Events(), c.Duration())
}

// Registry returns the Prometheus registry the events are mirrored into.
func (c *Collector) Registry() *prometheus.Registry {
	return c.metrics.registry
}
