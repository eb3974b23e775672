// Package config handles workload YAML parsing and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ensemble/internal/core"
	"ensemble/internal/ratelimit"
)

const (
	// SchemaVersion is the only workload schema version understood.
	SchemaVersion = "2018-07-01"
	// DefaultRandomSeed seeds the workload RNG when RandomSeed is omitted.
	DefaultRandomSeed int64 = 269849313357703264
	// MaxPhase is the highest phase number a workload may declare.
	MaxPhase uint32 = 1<<20 - 1
)

// Workload is the root of a workload file.
type Workload struct {
	SchemaVersion string         `yaml:"SchemaVersion"`
	RandomSeed    *int64         `yaml:"RandomSeed,omitempty"`
	Actors        []*ActorConfig `yaml:"Actors"`
}

// Seed returns the configured random seed or DefaultRandomSeed.
func (w *Workload) Seed() int64 {
	if w.RandomSeed == nil {
		return DefaultRandomSeed
	}
	return *w.RandomSeed
}

// PhaseCount returns the number of phases the workload runs: one more than
// the highest phase number any actor configures.
func (w *Workload) PhaseCount() int {
	count := 0
	for _, a := range w.Actors {
		if a == nil {
			continue
		}
		for i, p := range a.Phases {
			num := i
			if p != nil && p.Phase != nil {
				num = int(*p.Phase)
			}
			if num+1 > count {
				count = num + 1
			}
		}
	}
	return count
}

// ActorConfig is one block under Actors. Keys other than the ones below are
// kept and can be read by the actor through Decode.
type ActorConfig struct {
	Name    string         `yaml:"Name"`
	Type    string         `yaml:"Type"`
	Threads int            `yaml:"Threads"`
	Phases  []*PhaseConfig `yaml:"Phases"`

	node yaml.Node
}

type plainActorConfig ActorConfig

func (a *ActorConfig) UnmarshalYAML(node *yaml.Node) error {
	var plain plainActorConfig
	if err := node.Decode(&plain); err != nil {
		return err
	}
	*a = ActorConfig(plain)
	a.node = *node
	return nil
}

// Decode decodes the whole actor block into v.
func (a *ActorConfig) Decode(v any) error {
	if a.node.Kind == 0 {
		return nil
	}
	return errors.Wrapf(a.node.Decode(v), "decoding actor %q", a.Name)
}

// ThreadCount is Threads with the default of 1 applied.
func (a *ActorConfig) ThreadCount() int {
	if a.Threads <= 0 {
		return 1
	}
	return a.Threads
}

// NumberedPhases keys the actor's phases by phase number. Phases without an
// explicit Phase key take their index in the list.
func (a *ActorConfig) NumberedPhases() (map[uint32]*PhaseConfig, error) {
	out := make(map[uint32]*PhaseConfig, len(a.Phases))
	for i, p := range a.Phases {
		if p == nil {
			return nil, core.NewConfigurationError("actor %q: empty phase %d", a.Name, i)
		}
		num := uint32(i)
		if p.Phase != nil {
			num = *p.Phase
		}
		if _, dup := out[num]; dup {
			return nil, core.NewConfigurationError("actor %q: duplicate phase %d", a.Name, num)
		}
		out[num] = p
	}
	return out, nil
}

// PhaseConfig is one entry of an actor's Phases list. Repeat and Duration
// become the phase's termination policy; every other key is payload for the
// actor and is read with Decode.
type PhaseConfig struct {
	Phase    *uint32        `yaml:"Phase,omitempty"`
	Repeat   *int           `yaml:"Repeat,omitempty"`
	Duration *time.Duration `yaml:"Duration,omitempty"`
	Rate     string         `yaml:"Rate,omitempty"`
	// Nop phases do no work and never consult the actor's payload.
	Nop bool `yaml:"Nop,omitempty"`

	node yaml.Node
}

type plainPhaseConfig PhaseConfig

func (p *PhaseConfig) UnmarshalYAML(node *yaml.Node) error {
	var plain plainPhaseConfig
	if err := node.Decode(&plain); err != nil {
		return err
	}
	*p = PhaseConfig(plain)
	p.node = *node
	return nil
}

// Decode decodes the phase entry into v. A phase built in code rather than
// parsed decodes to nothing and leaves v untouched.
func (p *PhaseConfig) Decode(v any) error {
	if p.node.Kind == 0 {
		return nil
	}
	return p.node.Decode(v)
}

// ParsedRate returns the phase's rate limit, or nil when Rate is unset.
func (p *PhaseConfig) ParsedRate() (*ratelimit.Rate, error) {
	if p.Rate == "" {
		return nil, nil
	}
	r, err := ratelimit.ParseRate(p.Rate)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadConfig reads, parses and validates a workload file.
func LoadConfig(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading workload file")
	}
	return Parse(data)
}

// Parse parses and validates a workload document.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, &core.ConfigurationError{Message: "parsing workload", Cause: err}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks the whole workload and reports every problem at once.
func (w *Workload) Validate() error {
	var result *multierror.Error

	if w.SchemaVersion != SchemaVersion {
		result = multierror.Append(result,
			fmt.Errorf("SchemaVersion must be %s, got %q", SchemaVersion, w.SchemaVersion))
	}
	if len(w.Actors) == 0 {
		result = multierror.Append(result, fmt.Errorf("no Actors"))
	}

	for i, a := range w.Actors {
		if a == nil {
			result = multierror.Append(result, fmt.Errorf("actor %d: empty", i))
			continue
		}
		label := a.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if a.Type == "" {
			result = multierror.Append(result, fmt.Errorf("actor %s: missing Type", label))
		}
		if a.Threads < 0 {
			result = multierror.Append(result, fmt.Errorf("actor %s: Threads must be non-negative, got %d", label, a.Threads))
		}
		seen := make(map[uint32]bool, len(a.Phases))
		for j, p := range a.Phases {
			if p == nil {
				result = multierror.Append(result, fmt.Errorf("actor %s phase %d: empty", label, j))
				continue
			}
			num := uint32(j)
			if p.Phase != nil {
				num = *p.Phase
			}
			if num > MaxPhase {
				result = multierror.Append(result, fmt.Errorf("actor %s phase %d: Phase must be at most %d, got %d", label, j, MaxPhase, num))
			}
			if seen[num] {
				result = multierror.Append(result, fmt.Errorf("actor %s: duplicate phase %d", label, num))
			}
			seen[num] = true
			if p.Repeat != nil && *p.Repeat < 0 {
				result = multierror.Append(result, fmt.Errorf("actor %s phase %d: Repeat must be non-negative, got %d", label, j, *p.Repeat))
			}
			if p.Duration != nil && *p.Duration < 0 {
				result = multierror.Append(result, fmt.Errorf("actor %s phase %d: Duration must be non-negative, got %v", label, j, *p.Duration))
			}
			if _, err := p.ParsedRate(); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "actor %s phase %d", label, j))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return &core.ConfigurationError{Message: "workload", Cause: err}
	}
	return nil
}
