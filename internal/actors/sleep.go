package actors

import (
	"context"
	"time"

	"ensemble/internal/config"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/phase"
	"ensemble/internal/workload"
)

const SleepType = "Sleep"

type sleepPhase struct {
	SleepFor time.Duration `yaml:"SleepFor"`
}

// Sleep sleeps for its phase's SleepFor once per iteration.
type Sleep struct {
	workload.ActorBase
	loop     *phase.PhaseLoop[sleepPhase]
	reporter core.Reporter
}

func NewSleep(ac *workload.ActorContext, id int) (core.Actor, error) {
	loop, err := workload.NewPhaseLoop(ac, func(pc *config.PhaseConfig) (sleepPhase, error) {
		p, err := workload.DecodePhase[sleepPhase](pc)
		if err == nil && p.SleepFor < 0 {
			err = core.NewConfigurationError("SleepFor must be non-negative, got %v", p.SleepFor)
		}
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return &Sleep{
		ActorBase: ac.Base(id),
		loop:      loop,
		reporter:  ac.Reporter(),
	}, nil
}

func (s *Sleep) Run(ctx context.Context) error {
	return s.loop.Run(ctx, func(ctx context.Context, num orchestrator.PhaseNumber, ap *phase.ActorPhase[sleepPhase]) error {
		return ap.Run(ctx, func(ctx context.Context) error {
			start := time.Now()
			timer := time.NewTimer(ap.Value().SleepFor)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
			s.reporter.Report(event(s.ActorBase, num, "sleep", start))
			return nil
		})
	})
}
