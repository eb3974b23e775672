package phase

import (
	"context"
	"time"

	"ensemble/internal/orchestrator"
	"ensemble/internal/ratelimit"
)

// Unit is the element yielded by a Cursor: a signal to do one unit of work.
type Unit struct{}

// ActorPhase is one actor's configuration for one phase: how much work to
// do (the policy) and the phase-specific value the actor reads while doing
// it. It is built once and visited once per run of its phase.
type ActorPhase[T any] struct {
	orchestrator *orchestrator.Orchestrator
	number       orchestrator.PhaseNumber
	value        T
	policy       ItersAndDuration
	limiter      *ratelimit.RateLimiter
	inert        bool
}

// ActorPhaseOption configures an ActorPhase.
type ActorPhaseOption func(*actorPhaseOptions)

type actorPhaseOptions struct {
	limiter *ratelimit.RateLimiter
}

// WithRateLimiter throttles ActorPhase.Run. The limiter may be shared with
// other actors to enforce a global rate.
func WithRateLimiter(l *ratelimit.RateLimiter) ActorPhaseOption {
	return func(o *actorPhaseOptions) {
		o.limiter = l
	}
}

func NewActorPhase[T any](
	o *orchestrator.Orchestrator,
	number orchestrator.PhaseNumber,
	value T,
	policy ItersAndDuration,
	opts ...ActorPhaseOption,
) *ActorPhase[T] {
	var options actorPhaseOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &ActorPhase[T]{
		orchestrator: o,
		number:       number,
		value:        value,
		policy:       policy,
		limiter:      options.limiter,
	}
}

// inertPhase stands in for a phase the actor has no configuration for: no
// work, and the actor still blocks so that it leaves with everyone else.
func inertPhase[T any](o *orchestrator.Orchestrator, number orchestrator.PhaseNumber) *ActorPhase[T] {
	var zero T
	return &ActorPhase[T]{
		orchestrator: o,
		number:       number,
		value:        zero,
		policy:       ItersAndDuration{hasIterations: true},
		inert:        true,
	}
}

// Begin returns a fresh cursor positioned at the first unit of work.
func (a *ActorPhase[T]) Begin() *Cursor {
	return &Cursor{
		orchestrator: a.orchestrator,
		phase:        a.number,
		policy:       a.policy,
		startedAt:    a.policy.StartedAt(),
	}
}

// End returns a cursor past the last unit of work.
func (a *ActorPhase[T]) End() *Cursor {
	return &Cursor{end: true, orchestrator: a.orchestrator, phase: a.number}
}

// Value returns the phase-specific value supplied by the actor.
func (a *ActorPhase[T]) Value() T {
	return a.value
}

func (a *ActorPhase[T]) Number() orchestrator.PhaseNumber {
	return a.number
}

func (a *ActorPhase[T]) Policy() ItersAndDuration {
	return a.policy
}

// DoesBlock reports whether the workload waits for this phase's work.
func (a *ActorPhase[T]) DoesBlock() bool {
	return a.policy.DoesBlock()
}

// Inert reports whether the actor has no configuration for this phase.
func (a *ActorPhase[T]) Inert() bool {
	return a.inert
}

// Run calls fn once per unit of work until the cursor is exhausted, the
// context is done, the workload is aborted, or fn fails.
func (a *ActorPhase[T]) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	for c := a.Begin(); !c.Done(); c.Advance() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.limiter != nil {
			if err := a.wait(ctx); err != nil {
				return err
			}
			if c.Done() {
				break
			}
		}
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// wait takes one token from the limiter. For a non-blocking phase the wait
// ends early, without error, once the workload moves past the phase.
func (a *ActorPhase[T]) wait(ctx context.Context) error {
	if a.policy.DoesBlock() || a.orchestrator == nil {
		return a.limiter.Wait(ctx)
	}
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.orchestrator.PhaseChanged(a.number):
			cancel()
		case <-waitCtx.Done():
		}
	}()
	err := a.limiter.Wait(waitCtx)
	if err != nil && ctx.Err() == nil && waitCtx.Err() != nil {
		// The phase ended while waiting; the caller's Done check stops it.
		return nil
	}
	return err
}

// Cursor walks the units of work of one visit to a phase. It is single-pass
// and owned by one goroutine.
type Cursor struct {
	end          bool
	iteration    uint64
	startedAt    time.Time
	policy       ItersAndDuration
	orchestrator *orchestrator.Orchestrator
	phase        orchestrator.PhaseNumber
}

// Done reports whether the visit is over. A blocking cursor is done once its
// policy is satisfied; a non-blocking one once the workload has moved past
// its phase. Both stop as soon as the workload is aborted.
func (c *Cursor) Done() bool {
	if c.end {
		return true
	}
	if c.orchestrator != nil && c.orchestrator.Aborted() {
		return true
	}
	if c.policy.DoesBlock() {
		return c.policy.IsDone(c.iteration, c.startedAt)
	}
	if c.orchestrator == nil {
		return true
	}
	return c.orchestrator.CurrentPhase() != c.phase
}

// Advance moves to the next unit of work.
func (c *Cursor) Advance() {
	c.iteration++
}

// Current returns the current unit of work. It carries no data.
func (c *Cursor) Current() Unit {
	return Unit{}
}

// Iteration returns the number of completed units of work.
func (c *Cursor) Iteration() uint64 {
	return c.iteration
}

// Equal reports whether two cursors are at the same position. Any cursor
// that is done equals an end cursor, and all end cursors are equal.
func (c *Cursor) Equal(other *Cursor) bool {
	switch {
	case c == other:
		return true
	case c.end && other.end:
		return true
	case other.end:
		return c.Done()
	case c.end:
		return other.Done()
	default:
		return c.iteration == other.iteration &&
			c.startedAt.Equal(other.startedAt) &&
			c.policy.Equal(other.policy)
	}
}
