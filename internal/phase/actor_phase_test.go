package phase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble/internal/orchestrator"
	"ensemble/internal/ratelimit"
)

func countIterations(actorPhase *ActorPhase[int]) int {
	i := 0
	for c := actorPhase.Begin(); !c.Done(); c.Advance() {
		_ = c.Current()
		i++
	}
	return i
}

func TestActorPhase_IterationCounts(t *testing.T) {
	o := orchestrator.New()
	for _, n := range []int{0, 1, 113} {
		actorPhase := NewActorPhase(o, 0, 1, mustPolicy(t, ptr(n), nil))
		assert.Equal(t, n, countIterations(actorPhase), "Repeat=%d", n)
	}
}

func TestActorPhase_CursorIsRebuiltPerVisit(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 1, mustPolicy(t, ptr(7), nil))

	assert.Equal(t, 7, countIterations(actorPhase))
	assert.Equal(t, 7, countIterations(actorPhase))
}

func TestActorPhase_ZeroDurationLoopsZeroTimes(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, nil, ptr(time.Duration(0))))

	assert.Equal(t, 0, countIterations(actorPhase))
}

func TestActorPhase_DurationBound(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, nil, ptr(10*time.Millisecond)))

	start := time.Now()
	countIterations(actorPhase)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestActorPhase_ZeroDurationButHundredIterations(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(100), ptr(time.Duration(0))))

	assert.Equal(t, 100, countIterations(actorPhase))
}

func TestActorPhase_DurationDominatesIterations(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(100), ptr(5*time.Millisecond)))

	start := time.Now()
	i := countIterations(actorPhase)
	elapsed := time.Since(start)

	assert.Greater(t, i, 100)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestActorPhase_WithoutBounds(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, ItersAndDuration{})

	assert.False(t, actorPhase.DoesBlock())
	assert.False(t, actorPhase.Inert())
}

func TestActorPhase_Value(t *testing.T) {
	type config struct{ Key int }
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 4, config{Key: 71}, mustPolicy(t, ptr(1), nil))

	assert.Equal(t, 71, actorPhase.Value().Key)
	assert.Equal(t, orchestrator.PhaseNumber(4), actorPhase.Number())
	assert.True(t, actorPhase.Policy().Equal(mustPolicy(t, ptr(1), nil)))
}

func TestCursor_DerefAndAdvance(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(1), nil))

	it := actorPhase.Begin()
	assert.False(t, it.Equal(actorPhase.End()))
	_ = it.Current()
	assert.False(t, it.Equal(actorPhase.End()))
	it.Advance()
	assert.True(t, it.Equal(actorPhase.End()))
	assert.True(t, actorPhase.End().Equal(it))

	end := actorPhase.End()
	_ = end.Current()
	end.Advance()
	assert.True(t, end.Equal(end))
	assert.True(t, end.Equal(actorPhase.End()))

	// Advancing past the end stays at the end.
	it.Advance()
	_ = it.Current()
	assert.True(t, it.Equal(actorPhase.End()))
	assert.Equal(t, uint64(2), it.Iteration())
}

func TestCursor_EqualityThroughAdvance(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(1), nil))

	it1 := actorPhase.Begin()
	it2 := actorPhase.Begin()
	assert.True(t, it1.Equal(it1))
	assert.True(t, it1.Equal(it2))
	assert.True(t, it2.Equal(it1))

	it1.Advance()
	assert.False(t, it1.Equal(it2))
	assert.False(t, it2.Equal(it1))

	it2.Advance()
	assert.True(t, it1.Equal(it2))
	assert.True(t, it2.Equal(it1))
}

func TestCursor_EquivalentPoliciesCompareEqual(t *testing.T) {
	o := orchestrator.New()
	a := NewActorPhase(o, 0, "a", mustPolicy(t, ptr(10), nil))
	b := NewActorPhase(o, 1, "b", mustPolicy(t, ptr(10), nil))

	assert.True(t, a.Begin().Equal(b.Begin()))
}

func TestCursor_EndCursorsAllEqual(t *testing.T) {
	o := orchestrator.New()
	a := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(1), nil))
	b := NewActorPhase(o, 1, 0, mustPolicy(t, nil, ptr(time.Hour)))

	assert.True(t, a.End().Equal(b.End()))
	assert.True(t, b.End().Equal(a.End()))
}

func TestCursor_NonBlockingEndsWhenPhaseChanges(t *testing.T) {
	o := orchestrator.New()
	o.AddRequiredTokens(1)
	o.PhasesAtLeastTo(1)

	num, err := o.EnterPhase()
	require.NoError(t, err)
	actorPhase := NewActorPhase(o, num, 0, ItersAndDuration{})

	c := actorPhase.Begin()
	for i := 0; i < 10; i++ {
		require.False(t, c.Done())
		c.Advance()
	}

	require.NoError(t, o.LeavePhase(false))
	assert.True(t, c.Done())
}

func TestCursor_AbortStopsBlockingCursor(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, nil, ptr(time.Hour)))

	go func() {
		time.Sleep(20 * time.Millisecond)
		o.Abort(errors.New("stop"))
	}()

	done := make(chan int)
	go func() { done <- countIterations(actorPhase) }()

	select {
	case n := <-done:
		assert.Greater(t, n, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("cursor did not stop after abort")
	}
}

func TestActorPhase_Run(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(25), nil))

	calls := 0
	err := actorPhase.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 25, calls)
}

func TestActorPhase_RunStopsOnError(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(25), nil))
	boom := errors.New("boom")

	calls := 0
	err := actorPhase.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestActorPhase_RunHonoursContext(t *testing.T) {
	o := orchestrator.New()
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, nil, ptr(time.Hour)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := actorPhase.Run(ctx, func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActorPhase_RunWithRateLimiter(t *testing.T) {
	o := orchestrator.New()
	limiter := ratelimit.NewRateLimiter(ratelimit.Rate{Ops: 1, Period: 20 * time.Millisecond})
	actorPhase := NewActorPhase(o, 0, 0, mustPolicy(t, ptr(6), nil), WithRateLimiter(limiter))

	start := time.Now()
	err := actorPhase.Run(context.Background(), func(ctx context.Context) error { return nil })

	require.NoError(t, err)
	// One token of burst, then five waits of 20ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
