package narrative

import (
	"github.com/agenthands/storyline/internal/core/model"
)

const (
	GateMinActivities    = "min-activities"
	GateMinToolTypes     = "min-tool-types"
	GateMaxObserverRatio = "max-observer-ratio"
)

// Gates are the preconditions a cluster must meet before extraction.
type Gates struct {
	MinActivities    int     `toml:"min_activities" json:"min_activities"`
	MinToolTypes     int     `toml:"min_tool_types" json:"min_tool_types"`
	MaxObserverRatio float64 `toml:"max_observer_ratio" json:"max_observer_ratio"`
}

func DefaultGates() Gates {
	return Gates{MinActivities: 2, MinToolTypes: 2, MaxObserverRatio: 0.5}
}

// Check evaluates every gate. Score is the fraction of gates satisfied.
// Adding non-observer activities can only move a gate from failing to
// passing, never the reverse.
func (g Gates) Check(hc model.HydratedCluster, participation []model.ParticipationResult) model.ValidationResult {
	n := len(hc.Activities)
	tools := len(hc.ToolTypes())

	observers := 0
	for _, p := range participation {
		if p.Level == model.LevelObserver {
			observers++
		}
	}
	ratio := 1.0
	if n > 0 {
		ratio = float64(observers) / float64(n)
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{GateMinActivities, n >= g.MinActivities},
		{GateMinToolTypes, tools >= g.MinToolTypes},
		{GateMaxObserverRatio, n > 0 && ratio <= g.MaxObserverRatio},
	}

	res := model.ValidationResult{Passed: true}
	passed := 0
	for _, c := range checks {
		if c.ok {
			passed++
		} else {
			res.Passed = false
			res.FailedGates = append(res.FailedGates, c.name)
		}
	}
	res.Score = float64(passed) / float64(len(checks))
	return res
}
