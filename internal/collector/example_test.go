package collector_test

import (
	"fmt"
	"time"

	"ensemble/internal/collector"
	"ensemble/internal/core"
)

func ExampleNewCollector() {
	c := collector.NewCollector()

	c.Report(core.Event{Actor: "Greeter", Operation: "greet", Success: true, Duration: 50 * time.Millisecond})
	c.Report(core.Event{Actor: "Greeter", Operation: "greet", Phase: 1, Success: true, Duration: 100 * time.Millisecond})
	c.Close()

	m := c.Compute()
	fmt.Printf("Collected %d events over %d phases\n", m.TotalOperations, len(m.Phases))
	// Output: Collected 2 events over 2 phases
}

func ExampleComputeMetrics() {
	events := []core.Event{
		{Actor: "Insert", Operation: "insert", Success: true, Duration: 10 * time.Millisecond},
		{Actor: "Insert", Operation: "insert", Success: true, Duration: 20 * time.Millisecond},
		{Actor: "Insert", Operation: "insert", Success: true, Duration: 30 * time.Millisecond},
		{Actor: "Insert", Operation: "insert", Success: false, Duration: 5 * time.Millisecond},
	}

	metrics := collector.ComputeMetrics(events, time.Second)

	fmt.Printf("Total: %d, Success: %d, Rate: %.0f%%\n",
		metrics.TotalOperations, metrics.SuccessCount, metrics.SuccessRate)
	fmt.Println(metrics.Operations["Insert.insert"].Count)
	// Output:
	// Total: 4, Success: 3, Rate: 75%
	// 4
}
