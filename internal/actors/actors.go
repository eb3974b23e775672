// Package actors holds the built-in actor types.
package actors

import (
	"time"

	"ensemble/internal/cast"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/workload"
)

// RegisterAll adds every built-in actor type to c.
func RegisterAll(c *cast.Cast) error {
	for name, producer := range map[string]workload.Producer{
		HelloWorldType:  NewHelloWorld,
		HttpRequestType: NewHttpRequest,
		SleepType:       NewSleep,
	} {
		if err := c.Register(name, producer); err != nil {
			return err
		}
	}
	return nil
}

// event fills in the fields every actor reports.
func event(base workload.ActorBase, num orchestrator.PhaseNumber, op string, start time.Time) core.Event {
	return core.Event{
		Actor:     base.Name(),
		ActorID:   base.ID(),
		Phase:     uint32(num),
		Timestamp: start,
		Operation: op,
		Duration:  time.Since(start),
		Success:   true,
	}
}
