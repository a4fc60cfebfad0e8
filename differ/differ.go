package differ

import (
	"errors"
	"fmt"

	"github.com/defistate/clamm-engine-go/engine"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/prometheus/client_golang/prometheus"
)

// StateDifferConfig holds the dependencies of a StateDiffer.
type StateDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer computes the diff between two published states.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &StateDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff returns the changes that turn old into new. new must come after old.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration)
	defer timer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("differ: states cannot be nil")
	}
	if new.Seq <= old.Seq {
		return nil, fmt.Errorf("differ: new state seq %d is not after %d", new.Seq, old.Seq)
	}

	pools := clamm.Differ(old.Pools, new.Pools)
	d.metrics.poolChanges.WithLabelValues("addition").Add(float64(len(pools.Additions)))
	d.metrics.poolChanges.WithLabelValues("update").Add(float64(len(pools.Updates)))
	d.metrics.poolChanges.WithLabelValues("deletion").Add(float64(len(pools.Deletions)))

	return &StateDiff{
		Timestamp: new.Timestamp,
		FromSeq:   old.Seq,
		ToSeq:     new.Seq,
		Pools:     pools,
	}, nil
}
