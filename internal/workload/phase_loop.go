package workload

import (
	"fmt"

	"github.com/pkg/errors"

	"ensemble/internal/config"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/phase"
)

// NewPhaseLoop builds an actor's PhaseLoop from its block's phase
// configurations. build turns one phase entry into the actor's per-phase
// value; Nop phases skip it and do no work.
func NewPhaseLoop[T any](
	ac *ActorContext,
	build func(pc *config.PhaseConfig) (T, error),
	opts ...phase.LoopOption,
) (*phase.PhaseLoop[T], error) {
	o := ac.Orchestrator()
	phases := make(map[orchestrator.PhaseNumber]*phase.ActorPhase[T], len(ac.phases))

	for num, pc := range ac.phases {
		label := fmt.Sprintf("actor %s phase %d", ac.name, num)

		policy, err := phasePolicy(pc)
		if err != nil {
			return nil, errors.Wrap(err, label)
		}
		if pc.Nop {
			var value T
			phases[orchestrator.PhaseNumber(num)] = phase.NewActorPhase(o, orchestrator.PhaseNumber(num), value, policy)
			continue
		}

		value, err := build(pc)
		if err != nil {
			return nil, &core.ConfigurationError{Message: label, Cause: err}
		}
		limiter, err := ac.limiter(num, pc)
		if err != nil {
			return nil, err
		}
		var phaseOpts []phase.ActorPhaseOption
		if limiter != nil {
			phaseOpts = append(phaseOpts, phase.WithRateLimiter(limiter))
		}
		phases[orchestrator.PhaseNumber(num)] = phase.NewActorPhase(o, orchestrator.PhaseNumber(num), value, policy, phaseOpts...)
	}

	return phase.NewPhaseLoop(o, phases, opts...), nil
}

// phasePolicy returns the termination policy of a phase entry. Nop phases
// run zero iterations whatever else they declare.
func phasePolicy(pc *config.PhaseConfig) (phase.ItersAndDuration, error) {
	if pc.Nop {
		zero := 0
		return phase.NewItersAndDuration(&zero, nil)
	}
	return phase.NewItersAndDuration(pc.Repeat, pc.Duration)
}

// DecodePhase is a build function for NewPhaseLoop that decodes the phase
// entry into a fresh T.
func DecodePhase[T any](pc *config.PhaseConfig) (T, error) {
	var value T
	err := pc.Decode(&value)
	return value, err
}
