package phase

import (
	"context"
	"sort"

	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
)

// PhaseFunc does an actor's work for one phase.
type PhaseFunc[T any] func(ctx context.Context, phase orchestrator.PhaseNumber, actorPhase *ActorPhase[T]) error

// LoopOption configures a PhaseLoop.
type LoopOption func(*loopOptions)

type loopOptions struct {
	strict bool
}

// WithStrictPhases makes a phase without configuration a ConfigurationError
// that aborts the workload, instead of a phase the actor sits out.
func WithStrictPhases() LoopOption {
	return func(o *loopOptions) {
		o.strict = true
	}
}

// PhaseLoop owns one actor's phase configuration and drives the actor
// through every phase of the workload in order.
type PhaseLoop[T any] struct {
	orchestrator *orchestrator.Orchestrator
	phases       map[orchestrator.PhaseNumber]*ActorPhase[T]
	strict       bool
}

// NewPhaseLoop takes ownership of phases and makes sure the workload runs
// at least up to the highest phase in it.
func NewPhaseLoop[T any](
	o *orchestrator.Orchestrator,
	phases map[orchestrator.PhaseNumber]*ActorPhase[T],
	opts ...LoopOption,
) *PhaseLoop[T] {
	var options loopOptions
	for _, opt := range opts {
		opt(&options)
	}
	owned := make(map[orchestrator.PhaseNumber]*ActorPhase[T], len(phases))
	for num, actorPhase := range phases {
		owned[num] = actorPhase
		o.PhasesAtLeastTo(num)
	}
	return &PhaseLoop[T]{
		orchestrator: o,
		phases:       owned,
		strict:       options.strict,
	}
}

// Phase looks up the configuration for one phase.
func (l *PhaseLoop[T]) Phase(num orchestrator.PhaseNumber) (*ActorPhase[T], error) {
	actorPhase, ok := l.phases[num]
	if !ok {
		return nil, core.NewConfigurationError("No phase config found for PhaseNumber=[%d]", num)
	}
	return actorPhase, nil
}

// Phases returns the configured phase numbers in ascending order.
func (l *PhaseLoop[T]) Phases() []orchestrator.PhaseNumber {
	out := make([]orchestrator.PhaseNumber, 0, len(l.phases))
	for num := range l.phases {
		out = append(out, num)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Iterator returns a new iterator over the workload's phases. Only one
// iterator per actor may be in use.
func (l *PhaseLoop[T]) Iterator() *LoopIterator[T] {
	return &LoopIterator[T]{loop: l}
}

// Run calls fn for every phase of the workload. It returns the first error
// from fn or the orchestrator, or the abort error if the workload was
// aborted while the actor was running.
func (l *PhaseLoop[T]) Run(ctx context.Context, fn PhaseFunc[T]) error {
	it := l.Iterator()
	for !it.Done() {
		num, actorPhase, err := it.Current()
		if err != nil {
			return err
		}
		if err := fn(ctx, num, actorPhase); err != nil {
			return err
		}
		if err := it.Advance(); err != nil {
			return err
		}
	}
	return l.orchestrator.Err()
}

// LoopIterator enters and leaves phases on behalf of one actor. Callers must
// alternate Current and Advance, starting with Current.
type LoopIterator[T any] struct {
	loop            *PhaseLoop[T]
	current         orchestrator.PhaseNumber
	actorPhase      *ActorPhase[T]
	awaitingAdvance bool
}

// Done reports whether the workload has no more phases for this actor.
func (it *LoopIterator[T]) Done() bool {
	return !it.loop.orchestrator.MorePhases()
}

// Current waits for the next phase to start and returns its number and the
// actor's configuration for it. A phase the actor has no configuration for
// comes back as an inert ActorPhase with no work. Non-blocking phases are
// left immediately so the workload does not wait for this actor.
func (it *LoopIterator[T]) Current() (orchestrator.PhaseNumber, *ActorPhase[T], error) {
	if it.awaitingAdvance {
		return it.current, it.actorPhase, &ProtocolViolationError{
			Op:     "Current",
			Reason: "called again without Advance",
		}
	}

	o := it.loop.orchestrator
	num, err := o.EnterPhase()
	if err != nil {
		return num, nil, err
	}

	actorPhase, ok := it.loop.phases[num]
	if !ok {
		if it.loop.strict {
			cfgErr := core.NewConfigurationError("No phase config found for PhaseNumber=[%d]", num)
			o.Abort(cfgErr)
			return num, nil, cfgErr
		}
		actorPhase = inertPhase[T](o, num)
	}

	if !actorPhase.DoesBlock() {
		if err := o.LeavePhase(false); err != nil {
			return num, nil, err
		}
	}

	it.current, it.actorPhase, it.awaitingAdvance = num, actorPhase, true
	return num, actorPhase, nil
}

// Advance finishes the current phase. It returns once the workload has moved
// past the phase: a blocking actor is released by the last blocking peer to
// leave, a non-blocking one only waits without holding the phase open.
func (it *LoopIterator[T]) Advance() error {
	if !it.awaitingAdvance {
		return &ProtocolViolationError{
			Op:     "Advance",
			Reason: "called without Current",
		}
	}
	it.awaitingAdvance = false
	if it.actorPhase.DoesBlock() {
		return it.loop.orchestrator.LeavePhase(true)
	}
	return it.loop.orchestrator.AwaitPhaseEnd(it.current)
}
