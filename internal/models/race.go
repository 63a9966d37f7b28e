package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Race is a catalog entry: a named race with its total distance and the
// default lap length used to generate splits (both in metres).
type Race struct {
	DisplayName string  `json:"display_name" toml:"display_name"`
	Distance    float64 `json:"distance" toml:"distance"`
	LapLength   float64 `json:"lap_length" toml:"lap_length"`
}

// SplitPlan lists the distances, in metres and ascending, at which split
// times are reported.
type SplitPlan []float64

// Validate reports whether every required field of the race is set.
func (r Race) Validate() error {
	if strings.TrimSpace(r.DisplayName) == "" {
		return errors.New("race has no display name")
	}
	if !positive(r.Distance) {
		return fmt.Errorf("race %q: distance must be positive, got %v", r.DisplayName, r.Distance)
	}
	if !positive(r.LapLength) {
		return fmt.Errorf("race %q: lap length must be positive, got %v", r.DisplayName, r.LapLength)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Last returns the final boundary of the plan, if there is one.
func (p SplitPlan) Last() (float64, bool) {
	if len(p) == 0 {
		return 0, false
	}
	return p[len(p)-1], true
}
