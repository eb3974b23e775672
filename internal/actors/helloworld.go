package actors

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"ensemble/internal/config"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/phase"
	"ensemble/internal/workload"
)

const (
	HelloWorldType = "HelloWorld"

	defaultMessage = "Hello, World!"
)

type helloPhase struct {
	Message string `yaml:"Message"`
}

// HelloWorld logs its phase's Message once per iteration and counts
// greetings across every HelloWorld in the workload.
type HelloWorld struct {
	workload.ActorBase
	loop     *phase.PhaseLoop[helloPhase]
	reporter core.Reporter
	counter  *atomic.Int64
	log      *log.Entry
}

func NewHelloWorld(ac *workload.ActorContext, id int) (core.Actor, error) {
	loop, err := workload.NewPhaseLoop(ac, func(pc *config.PhaseConfig) (helloPhase, error) {
		var p helloPhase
		if err := pc.Decode(&p); err != nil {
			return p, err
		}
		if p.Message == "" {
			p.Message = defaultMessage
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return &HelloWorld{
		ActorBase: ac.Base(id),
		loop:      loop,
		reporter:  ac.Reporter(),
		counter:   ac.SharedState(HelloWorldType+".counter", func() any { return new(atomic.Int64) }).(*atomic.Int64),
		log:       ac.Logger(id),
	}, nil
}

func (h *HelloWorld) Run(ctx context.Context) error {
	return h.loop.Run(ctx, func(ctx context.Context, num orchestrator.PhaseNumber, ap *phase.ActorPhase[helloPhase]) error {
		logger := h.log.WithField("phase", num)
		return ap.Run(ctx, func(ctx context.Context) error {
			start := time.Now()
			n := h.counter.Add(1)
			logger.Info(ap.Value().Message)
			logger.Debugf("Counter: %d", n)
			h.reporter.Report(event(h.ActorBase, num, "output", start))
			return nil
		})
	})
}

// Greetings returns how many greetings every HelloWorld sharing this
// actor's counter has logged.
func (h *HelloWorld) Greetings() int64 {
	return h.counter.Load()
}
