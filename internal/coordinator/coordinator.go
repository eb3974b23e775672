// Package coordinator runs a constructed workload: one goroutine per actor,
// with failures turned into a workload abort.
package coordinator

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
)

type Coordinator struct {
	orchestrator *orchestrator.Orchestrator
	reporter     core.Reporter
	log          *log.Entry
}

func New(o *orchestrator.Orchestrator, reporter core.Reporter) *Coordinator {
	if reporter == nil {
		reporter = core.NullReporter
	}
	return &Coordinator{
		orchestrator: o,
		reporter:     reporter,
		log:          log.WithField("component", "coordinator"),
	}
}

// Run starts every actor and waits for all of them. An actor error or panic
// aborts the workload, and so does cancelling ctx. The returned error is the
// one that caused the abort, or nil when every phase completed.
func (c *Coordinator) Run(ctx context.Context, actors []core.Actor) error {
	if len(actors) == 0 {
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.orchestrator.Abort(ctx.Err())
		case <-stop:
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, actor := range actors {
		actor := actor
		g.Go(func() error {
			return c.runActor(gctx, actor)
		})
	}
	err := g.Wait()

	if abortErr := c.orchestrator.Err(); abortErr != nil {
		var ae *orchestrator.AbortError
		if errors.As(abortErr, &ae) && ae.Cause != nil {
			return ae.Cause
		}
		return abortErr
	}
	return err
}

func (c *Coordinator) runActor(ctx context.Context, actor core.Actor) (err error) {
	logger := c.log.WithFields(log.Fields{
		"actor": actor.Name(),
		"id":    actor.ID(),
	})
	defer func() {
		if r := recover(); r != nil {
			c.reporter.Report(core.Event{
				Actor:     actor.Name(),
				ActorID:   actor.ID(),
				Phase:     uint32(c.orchestrator.CurrentPhase()),
				Operation: "panic",
				Success:   false,
				Error:     fmt.Sprintf("panic: %v", r),
			})
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = errors.Wrapf(err, "actor %s (id %d)", actor.Name(), actor.ID())
			if !errors.Is(err, orchestrator.ErrAborted) {
				logger.WithError(err).Error("actor failed")
			}
			c.orchestrator.Abort(err)
		}
	}()

	logger.Debug("actor started")
	if err := actor.Run(ctx); err != nil {
		return err
	}
	logger.Debug("actor finished")
	return nil
}
