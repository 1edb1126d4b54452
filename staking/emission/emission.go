// Package emission provides the per-period reward rates of validators from a
// YAML schedule file.
//
// Example:
//
//	default_rate: 100000000 # 10% per period
//	validators:
//	  tz1validator:
//	    - from_checkpoint: 1
//	      rate: 50000000
//	    - from_checkpoint: 100
//	      rate: 25000000
package emission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/screwyprof/stakeledger/staking"
)

var (
	ErrInvalidSchedule  = errors.New("invalid emission schedule")
	ErrUnknownValidator = errors.New("validator has no emission schedule")
)

// Step sets the rate from a checkpoint onwards
type Step struct {
	FromCheckpoint uint64       `yaml:"from_checkpoint"`
	Rate           staking.Rate `yaml:"rate"`
}

type file struct {
	DefaultRate *staking.Rate                  `yaml:"default_rate"`
	Validators  map[staking.ValidatorID][]Step `yaml:"validators"`
}

// Schedule is an immutable emission schedule
type Schedule struct {
	defaultRate *staking.Rate
	steps       map[staking.ValidatorID][]Step
}

// Load reads a schedule from a YAML file
func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read emission schedule: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML schedule. Steps of a validator may be listed in any order
// but must not repeat a checkpoint.
func Parse(data []byte) (*Schedule, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	steps := make(map[staking.ValidatorID][]Step, len(f.Validators))
	for id, list := range f.Validators {
		if id == "" {
			return nil, fmt.Errorf("%w: empty validator id", ErrInvalidSchedule)
		}

		sorted := append([]Step(nil), list...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].FromCheckpoint < sorted[j].FromCheckpoint })
		for i := 1; i < len(sorted); i++ {
			if sorted[i].FromCheckpoint == sorted[i-1].FromCheckpoint {
				return nil, fmt.Errorf("%w: %s repeats checkpoint %d", ErrInvalidSchedule, id, sorted[i].FromCheckpoint)
			}
		}
		steps[id] = sorted
	}

	return &Schedule{defaultRate: f.DefaultRate, steps: steps}, nil
}

// PerPeriodRate returns the rate of the latest step starting at or before the
// checkpoint, falling back to the default rate.
func (s *Schedule) PerPeriodRate(_ context.Context, validator staking.ValidatorID, checkpoint uint64) (staking.Rate, error) {
	list := s.steps[validator]
	// first step starting after checkpoint
	i := sort.Search(len(list), func(i int) bool { return list[i].FromCheckpoint > checkpoint })
	if i > 0 {
		return list[i-1].Rate, nil
	}

	if s.defaultRate == nil {
		return 0, fmt.Errorf("%w: %s at checkpoint %d", ErrUnknownValidator, validator, checkpoint)
	}
	return *s.defaultRate, nil
}
