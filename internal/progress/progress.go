// Package progress logs a periodic status line while a workload runs.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"ensemble/internal/collector"
	"ensemble/internal/orchestrator"
)

const defaultInterval = time.Second

type Progress struct {
	startTime    time.Time
	collector    *collector.Collector
	orchestrator *orchestrator.Orchestrator
	interval     time.Duration
	lastPhase    orchestrator.PhaseNumber
	stopCh       chan struct{}
	wg           sync.WaitGroup
	started      atomic.Bool
	stopped      atomic.Bool
	quiet        bool
	log          *log.Entry
}

func NewProgress(c *collector.Collector, o *orchestrator.Orchestrator, quiet bool) *Progress {
	return &Progress{
		collector:    c,
		orchestrator: o,
		interval:     defaultInterval,
		quiet:        quiet,
		log:          log.WithField("component", "progress"),
	}
}

// SetLogger replaces the logger status lines are written to. Call before Start.
func (p *Progress) SetLogger(entry *log.Entry) {
	p.log = entry
}

// SetInterval changes how often status is logged. Call before Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet || p.started.Swap(true) {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.run()
}

func (p *Progress) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	elapsed := time.Since(p.startTime)
	ops := p.collector.Len()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(ops) / elapsed.Seconds()
	}

	phase := p.orchestrator.CurrentPhase()
	if phase != p.lastPhase {
		p.log.WithFields(log.Fields{
			"from": p.lastPhase,
			"to":   phase,
		}).Info("phase advanced")
		p.lastPhase = phase
	}

	fields := log.Fields{
		"elapsed":     elapsed.Round(time.Second).String(),
		"phase":       phase,
		"operations":  ops,
		"ops_per_sec": int(rate),
		"errors":      p.collector.Failures(),
	}
	if dropped := p.collector.DroppedEvents(); dropped > 0 {
		fields["dropped"] = dropped
	}
	p.log.WithFields(fields).Info("progress")
}

// Stop ends periodic logging. It is safe to call more than once and
// without Start.
func (p *Progress) Stop() {
	if !p.started.Load() || p.stopped.Swap(true) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

// Printf logs a message unless quiet.
func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.log.Infof(format, args...)
}
