// Package core defines the fundamental interfaces and types shared by the
// orchestrator, the phase machinery and the actors.
package core

import (
	"context"
	"time"
)

// Event represents a single measurement from one unit of actor work.
type Event struct {
	Actor      string
	ActorID    int
	Phase      uint32
	Timestamp  time.Time
	Operation  string
	Duration   time.Duration
	Success    bool
	Error      string
	StatusCode int   // Protocol-specific status (HTTP 200), 0 when not applicable
	BytesSent  int64 // Request size for throughput metrics
	BytesRecv  int64 // Response size for throughput metrics
}

// Actor is one logical unit of concurrent work. The coordinator runs each
// Actor on its own goroutine; Run returns once the actor has consumed every
// phase of the workload or an error made it give up.
type Actor interface {
	Name() string
	ID() int
	Run(ctx context.Context) error
}

// Reporter is the interface actors use to send events to the Collector.
type Reporter interface {
	Report(Event)
}

// NullReporter discards all events.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}
