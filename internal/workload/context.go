// Package workload turns a parsed workload file into running actors: it
// looks up each actor block's producer, hands it an ActorContext and
// registers one orchestrator token per constructed actor.
package workload

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ensemble/internal/config"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/ratelimit"
)

// Producer builds one actor of an actor block. It is called once per
// thread with a workload-unique id.
type Producer func(ac *ActorContext, id int) (core.Actor, error)

// ProducerLookup resolves actor types to producers.
type ProducerLookup interface {
	Producer(name string) (Producer, error)
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger actors derive theirs from.
func WithLogger(entry *log.Entry) Option {
	return func(c *Context) {
		c.log = entry
	}
}

// Context is the constructed workload: every actor, ready to run.
type Context struct {
	workload     *config.Workload
	orchestrator *orchestrator.Orchestrator
	reporter     core.Reporter
	rng          *rand.Rand
	log          *log.Entry
	actors       []core.Actor

	sharedMu sync.Mutex
	shared   map[string]any
}

// NewContext constructs every actor of cfg. Construction is single-threaded
// and finishes before any actor enters a phase.
func NewContext(
	cfg *config.Workload,
	o *orchestrator.Orchestrator,
	lookup ProducerLookup,
	reporter core.Reporter,
	opts ...Option,
) (*Context, error) {
	if reporter == nil {
		reporter = core.NullReporter
	}
	c := &Context{
		workload:     cfg,
		orchestrator: o,
		reporter:     reporter,
		rng:          rand.New(rand.NewSource(cfg.Seed())),
		log:          log.NewEntry(log.StandardLogger()),
		shared:       make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}

	nextID := 0
	for i, actorCfg := range cfg.Actors {
		producer, err := lookup.Producer(actorCfg.Type)
		if err != nil {
			return nil, &core.ConfigurationError{
				Message: "actor " + actorLabel(actorCfg, i),
				Cause:   err,
			}
		}
		phases, err := actorCfg.NumberedPhases()
		if err != nil {
			return nil, err
		}
		ac := &ActorContext{
			workload: c,
			config:   actorCfg,
			name:     actorLabel(actorCfg, i),
			phases:   phases,
			limiters: make(map[uint32]*ratelimit.RateLimiter),
		}
		for t := 0; t < actorCfg.ThreadCount(); t++ {
			actor, err := producer(ac, nextID)
			if err != nil {
				return nil, errors.Wrapf(err, "constructing actor %s thread %d", ac.name, t)
			}
			nextID++
			c.actors = append(c.actors, actor)
		}
	}

	o.AddRequiredTokens(len(c.actors))
	c.log.WithFields(log.Fields{
		"actors": len(c.actors),
		"seed":   cfg.Seed(),
	}).Debug("workload constructed")
	return c, nil
}

func actorLabel(a *config.ActorConfig, index int) string {
	if a.Name != "" {
		return a.Name
	}
	if a.Type != "" {
		return a.Type
	}
	return "#" + strconv.Itoa(index)
}

// Actors returns the constructed actors in workload order.
func (c *Context) Actors() []core.Actor {
	return c.actors
}

func (c *Context) Orchestrator() *orchestrator.Orchestrator {
	return c.orchestrator
}

func (c *Context) Workload() *config.Workload {
	return c.workload
}

// ActorContext is what a Producer sees of the workload: its actor block's
// configuration and the shared services. It is shared by all threads of one
// block.
type ActorContext struct {
	workload *Context
	config   *config.ActorConfig
	name     string
	phases   map[uint32]*config.PhaseConfig
	limiters map[uint32]*ratelimit.RateLimiter
}

// Name is the actor block's Name, or its Type when unnamed.
func (ac *ActorContext) Name() string {
	return ac.name
}

func (ac *ActorContext) Config() *config.ActorConfig {
	return ac.config
}

// Phases returns the block's phase configurations keyed by phase number.
func (ac *ActorContext) Phases() map[uint32]*config.PhaseConfig {
	return ac.phases
}

func (ac *ActorContext) Orchestrator() *orchestrator.Orchestrator {
	return ac.workload.orchestrator
}

func (ac *ActorContext) Reporter() core.Reporter {
	return ac.workload.reporter
}

// Logger returns a logger tagged with the actor's name and id.
func (ac *ActorContext) Logger(id int) *log.Entry {
	return ac.workload.log.WithFields(log.Fields{
		"actor": ac.name,
		"id":    id,
	})
}

// NewRNG returns a generator seeded from the workload's RandomSeed. Calls
// happen in construction order, so a fixed seed gives every actor the same
// stream on every run.
func (ac *ActorContext) NewRNG() *rand.Rand {
	return rand.New(rand.NewSource(ac.workload.rng.Int63()))
}

// SharedState returns the workload-wide value stored under key, creating it
// with init on first use. Actors of the same type use it to share counters
// or clients across blocks and threads.
func (ac *ActorContext) SharedState(key string, init func() any) any {
	c := ac.workload
	c.sharedMu.Lock()
	defer c.sharedMu.Unlock()
	v, ok := c.shared[key]
	if !ok {
		v = init()
		c.shared[key] = v
	}
	return v
}

// limiter returns the rate limiter shared by every thread of the block for
// one phase, or nil when the phase has no Rate.
func (ac *ActorContext) limiter(num uint32, pc *config.PhaseConfig) (*ratelimit.RateLimiter, error) {
	if l, ok := ac.limiters[num]; ok {
		return l, nil
	}
	r, err := pc.ParsedRate()
	if err != nil {
		return nil, &core.ConfigurationError{Message: "actor " + ac.name, Cause: err}
	}
	if r == nil {
		return nil, nil
	}
	l := ratelimit.NewRateLimiter(*r)
	ac.limiters[num] = l
	return l, nil
}

// ActorBase carries the identity every actor reports with. Actors embed it.
type ActorBase struct {
	name string
	id   int
}

// Base returns the identity of the actor with the given id.
func (ac *ActorContext) Base(id int) ActorBase {
	return ActorBase{name: ac.name, id: id}
}

func (b ActorBase) Name() string {
	return b.name
}

func (b ActorBase) ID() int {
	return b.id
}
