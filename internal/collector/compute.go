package collector

import (
	"time"

	"ensemble/internal/core"
)

// ComputeMetrics computes metrics from events. Pure function, no side effects.
func ComputeMetrics(events []core.Event, testDuration time.Duration) *Metrics {
	m := &Metrics{
		Operations:   make(map[string]*OperationMetrics),
		Phases:       make(map[uint32]*PhaseMetrics),
		TestDuration: testDuration,
	}

	if len(events) == 0 {
		return m
	}

	allDurations := make([]time.Duration, 0, len(events))
	opDurations := make(map[string][]time.Duration)

	for _, e := range events {
		m.TotalOperations++
		if e.Success {
			m.SuccessCount++
		} else {
			m.FailureCount++
		}
		allDurations = append(allDurations, e.Duration)

		key := OperationKey(e.Actor, e.Operation)
		op, ok := m.Operations[key]
		if !ok {
			op = &OperationMetrics{}
			m.Operations[key] = op
		}
		op.Count++
		if e.Success {
			op.Success++
		} else {
			op.Failed++
		}
		opDurations[key] = append(opDurations[key], e.Duration)

		ph, ok := m.Phases[e.Phase]
		if !ok {
			ph = &PhaseMetrics{}
			m.Phases[e.Phase] = ph
		}
		ph.Count++
		if !e.Success {
			ph.Failed++
		}
	}

	m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalOperations) * 100
	if m.TestDuration > 0 {
		m.OperationsPerSec = float64(m.TotalOperations) / m.TestDuration.Seconds()
	}

	m.Duration = ComputeDurationMetrics(allDurations)
	for key, durations := range opDurations {
		m.Operations[key].Duration = ComputeDurationMetrics(durations)
	}

	return m
}
