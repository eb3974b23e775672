// Package orchestrator synchronises actors across the phases of a workload.
//
// Every actor goroutine holds one token. A phase starts once every token has
// entered it and ends once every token has left it, so all actors move from
// phase N to phase N+1 together no matter how long each spends inside a phase.
//
// A participant that stops calling into the Orchestrator without leaving its
// phase (for example a goroutine stuck forever in user code) hangs the
// workload. Callers that can fail are expected to call Abort instead.
package orchestrator

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// PhaseNumber identifies a synchronisation epoch shared by all actors.
type PhaseNumber uint32

var (
	// ErrAborted is matched by every error returned after Abort.
	ErrAborted = errors.New("workload aborted")
	// ErrNoParticipants is returned by EnterPhase when no tokens are registered.
	ErrNoParticipants = errors.New("no participants registered with orchestrator")
	// ErrPhaseNotStarted is returned by LeavePhase when no phase is running.
	ErrPhaseNotStarted = errors.New("leaving a phase that has not started")
)

// AbortError carries the condition that made the workload abort.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	if e.Cause == nil {
		return ErrAborted.Error()
	}
	return ErrAborted.Error() + ": " + e.Cause.Error()
}

func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

type state int

const (
	phaseEnded state = iota
	phaseStarted
)

func (s state) String() string {
	if s == phaseStarted {
		return "started"
	}
	return "ended"
}

// Orchestrator is the rendezvous point for all actors of a workload.
// All state is guarded by mu; every transition that can release a waiter
// broadcasts on cond. phase and aborted mirror current and abortErr for
// lock-free polling from actor work loops and are only written under mu.
type Orchestrator struct {
	mu   sync.Mutex
	cond *sync.Cond

	phase   atomic.Uint32
	aborted atomic.Bool

	current  PhaseNumber
	maxPhase PhaseNumber

	requiredTokens int
	currentTokens  int

	state    state
	abortErr *AbortError

	// changed is closed and replaced whenever current advances or the
	// workload aborts.
	changed chan struct{}

	log *log.Entry
}

// New creates an Orchestrator with no participants and a single phase.
func New() *Orchestrator {
	o := &Orchestrator{
		log:     log.WithField("component", "orchestrator"),
		changed: make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// AddRequiredTokens registers n more participants. It must be called before
// any participant enters the first phase.
func (o *Orchestrator) AddRequiredTokens(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requiredTokens += n
}

// RequiredTokens returns the number of registered participants.
func (o *Orchestrator) RequiredTokens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requiredTokens
}

// MaxPhase is the highest phase a workload can run. The phase counter must
// be able to move past it.
const MaxPhase = PhaseNumber(math.MaxUint32 - 1)

// PhasesAtLeastTo makes sure the workload runs at least up to and including
// phase p. Values above MaxPhase are clamped to it.
func (o *Orchestrator) PhasesAtLeastTo(p PhaseNumber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p > MaxPhase {
		p = MaxPhase
	}
	if p > o.maxPhase {
		o.maxPhase = p
	}
}

// CurrentPhase returns the phase being executed, or the next phase to be
// executed when called between phases.
func (o *Orchestrator) CurrentPhase() PhaseNumber {
	return PhaseNumber(o.phase.Load())
}

// Aborted reports whether Abort has been called.
func (o *Orchestrator) Aborted() bool {
	return o.aborted.Load()
}

// MorePhases reports whether phases remain and the workload has not been
// aborted. A workload without participants has no phases.
func (o *Orchestrator) MorePhases() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abortErr == nil && o.requiredTokens > 0 && o.current <= o.maxPhase
}

// EnterPhase declares the caller ready for the next phase and blocks until
// every participant has done the same. It returns the phase the caller is
// now executing.
func (o *Orchestrator) EnterPhase() (PhaseNumber, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.abortErr != nil {
		return o.current, o.abortErr
	}
	if o.requiredTokens == 0 {
		return o.current, ErrNoParticipants
	}

	// A participant that left without blocking may come back before its
	// peers are done; it joins the next phase.
	for o.state == phaseStarted && o.abortErr == nil {
		o.cond.Wait()
	}
	if o.abortErr != nil {
		return o.current, o.abortErr
	}

	phase := o.current
	o.currentTokens++
	if o.currentTokens >= o.requiredTokens {
		o.state = phaseStarted
		o.log.WithField("phase", phase).Debug("phase started")
		o.cond.Broadcast()
		return phase, nil
	}

	for o.state == phaseEnded && o.current == phase && o.abortErr == nil {
		o.cond.Wait()
	}
	if o.abortErr != nil {
		return phase, o.abortErr
	}
	return phase, nil
}

// LeavePhase declares the caller done with the current phase. A blocking
// caller waits until every other participant has left too; a non-blocking
// caller returns immediately and does not hold the phase open.
func (o *Orchestrator) LeavePhase(blocking bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.abortErr != nil {
		return o.abortErr
	}
	if o.state != phaseStarted {
		return ErrPhaseNotStarted
	}

	phase := o.current
	o.currentTokens--
	if o.currentTokens <= 0 {
		o.currentTokens = 0
		o.current++
		o.phase.Store(uint32(o.current))
		o.state = phaseEnded
		o.log.WithField("phase", phase).Debug("phase ended")
		o.signalChange()
		o.cond.Broadcast()
		return nil
	}
	if !blocking {
		return nil
	}

	for o.current == phase && o.abortErr == nil {
		o.cond.Wait()
	}
	if o.abortErr != nil {
		return o.abortErr
	}
	return nil
}

// PhaseChanged returns a channel that is closed once the workload has moved
// past phase p or has been aborted. It is already closed if that happened.
func (o *Orchestrator) PhaseChanged(p PhaseNumber) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != p || o.abortErr != nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return o.changed
}

// signalChange wakes every PhaseChanged waiter. Callers hold mu.
func (o *Orchestrator) signalChange() {
	close(o.changed)
	o.changed = make(chan struct{})
}

// AwaitPhaseEnd waits until the workload has moved past phase p without
// holding a token. Non-blocking participants call it after finishing their
// work so they do not race their peers into a phase that will never start.
func (o *Orchestrator) AwaitPhaseEnd(p PhaseNumber) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.current == p && o.abortErr == nil {
		o.cond.Wait()
	}
	if o.abortErr != nil {
		return o.abortErr
	}
	return nil
}

// Abort stops the workload. Every blocked participant wakes up and every
// later EnterPhase or LeavePhase fails with an *AbortError wrapping the first
// cause passed to Abort.
func (o *Orchestrator) Abort(cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.abortErr == nil {
		o.abortErr = &AbortError{Cause: cause}
		o.aborted.Store(true)
		o.log.WithFields(log.Fields{
			"phase": o.current,
			"state": o.state,
		}).WithError(cause).Warn("workload aborted")
		o.signalChange()
	}
	o.cond.Broadcast()
}

// Err returns the abort error, or nil if the workload has not been aborted.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.abortErr == nil {
		return nil
	}
	return o.abortErr
}
