// Package phase drives a single actor through the phases of a workload.
//
// An actor owns one PhaseLoop. Each iteration of the loop waits on the shared
// Orchestrator for the next phase and hands back the ActorPhase the actor
// configured for it. The ActorPhase produces a Cursor that yields units of
// work until its ItersAndDuration policy is satisfied:
//
//	it := loop.Iterator()
//	for !it.Done() {
//		_, actorPhase, err := it.Current()
//		if err != nil {
//			return err
//		}
//		for c := actorPhase.Begin(); !c.Done(); c.Advance() {
//			doOperation(actorPhase.Value())
//		}
//		if err := it.Advance(); err != nil {
//			return err
//		}
//	}
//
// PhaseLoop.Run and ActorPhase.Run wrap the same protocol for callers that
// prefer a callback.
package phase

import (
	"fmt"
	"strings"
	"time"

	"ensemble/internal/core"
)

// ItersAndDuration decides when one visit to a phase has done enough work:
// at least MinIterations iterations and at least MinDuration elapsed. An
// absent bound is unconstrained. With neither bound the phase does not block
// the rest of the workload and runs until the phase changes.
//
// The zero value has no bounds.
type ItersAndDuration struct {
	minIterations int
	hasIterations bool
	minDuration   time.Duration
	hasDuration   bool
	clock         core.Clock
}

// NewItersAndDuration validates and builds a policy. A nil argument leaves
// that bound absent.
func NewItersAndDuration(minIterations *int, minDuration *time.Duration) (ItersAndDuration, error) {
	var p ItersAndDuration
	if minIterations != nil {
		if *minIterations < 0 {
			return ItersAndDuration{}, core.NewConfigurationError(
				"Need non-negative number of iterations. Gave %d", *minIterations)
		}
		p.minIterations, p.hasIterations = *minIterations, true
	}
	if minDuration != nil {
		if *minDuration < 0 {
			return ItersAndDuration{}, core.NewConfigurationError(
				"Need non-negative duration. Gave %v", *minDuration)
		}
		p.minDuration, p.hasDuration = *minDuration, true
	}
	return p, nil
}

// WithClock returns a copy of p that reads time from clock.
func (p ItersAndDuration) WithClock(clock core.Clock) ItersAndDuration {
	p.clock = clock
	return p
}

// MinIterations returns the iteration bound and whether it is set.
func (p ItersAndDuration) MinIterations() (int, bool) {
	return p.minIterations, p.hasIterations
}

// MinDuration returns the duration bound and whether it is set.
func (p ItersAndDuration) MinDuration() (time.Duration, bool) {
	return p.minDuration, p.hasDuration
}

// StartedAt captures the start of a phase visit. Without a duration bound
// the start time is irrelevant and the zero time is returned instead of
// reading the clock.
func (p ItersAndDuration) StartedAt() time.Time {
	if !p.hasDuration {
		return time.Time{}
	}
	return p.now()
}

// IsDone reports whether iterations and the time since startedAt satisfy
// both bounds.
func (p ItersAndDuration) IsDone(iterations uint64, startedAt time.Time) bool {
	// Duration last: it is the only check that reads the clock.
	return p.doneIterations(iterations) && p.doneDuration(startedAt)
}

// DoesBlock reports whether the rest of the workload must wait for this
// policy to be satisfied before the phase can end.
func (p ItersAndDuration) DoesBlock() bool {
	return p.hasIterations || p.hasDuration
}

// Equal compares bounds only.
func (p ItersAndDuration) Equal(other ItersAndDuration) bool {
	return p.hasIterations == other.hasIterations &&
		p.minIterations == other.minIterations &&
		p.hasDuration == other.hasDuration &&
		p.minDuration == other.minDuration
}

func (p ItersAndDuration) String() string {
	if !p.DoesBlock() {
		return "non-blocking"
	}
	var parts []string
	if p.hasIterations {
		parts = append(parts, fmt.Sprintf("Repeat=%d", p.minIterations))
	}
	if p.hasDuration {
		parts = append(parts, fmt.Sprintf("Duration=%v", p.minDuration))
	}
	return strings.Join(parts, " ")
}

func (p ItersAndDuration) doneIterations(iterations uint64) bool {
	return !p.hasIterations || iterations >= uint64(p.minIterations)
}

func (p ItersAndDuration) doneDuration(startedAt time.Time) bool {
	if !p.hasDuration {
		return true
	}
	if p.clock == nil {
		return time.Since(startedAt) >= p.minDuration
	}
	return p.clock.Since(startedAt) >= p.minDuration
}

func (p ItersAndDuration) now() time.Time {
	if p.clock == nil {
		return time.Now()
	}
	return p.clock.Now()
}
