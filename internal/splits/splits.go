// Package splits derives the standard split distances for a race.
package splits

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

// ErrInvalidArgument is returned when a race or interval cannot produce a
// plan.
var ErrInvalidArgument = errors.New("invalid argument")

// MaxSplits bounds the number of boundaries in a plan.
const MaxSplits = 10000

// snapTolerance is the fraction of an interval below which a boundary is
// treated as landing on the start or finish line.
const snapTolerance = 1e-9

// PlanCountdown plans splits counting back from the finish line.
func PlanCountdown(race models.Race, interval float64) (models.SplitPlan, error) {
	return Plan(race, interval, true)
}

// Plan returns the distances at which splits should be reported for race,
// one every interval metres.
//
// With startAtFinish the boundaries are measured back from the finish, so
// any short lap is run first; the plan always holds both 0 and the race
// distance. Otherwise boundaries are measured from the start and the plan
// ends with the race distance but does not include 0.
func Plan(race models.Race, interval float64, startAtFinish bool) (models.SplitPlan, error) {
	if err := race.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if interval <= 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return nil, fmt.Errorf("%w: split interval must be positive, got %v", ErrInvalidArgument, interval)
	}
	if race.Distance/interval > MaxSplits {
		return nil, fmt.Errorf("%w: interval %v gives more than %d splits over %vm",
			ErrInvalidArgument, interval, MaxSplits, race.Distance)
	}

	if startAtFinish {
		return countdown(race.Distance, interval), nil
	}
	return countUp(race.Distance, interval), nil
}

func countdown(distance, interval float64) models.SplitPlan {
	eps := interval * snapTolerance
	plan := make(models.SplitPlan, 0, int(distance/interval)+2)
	for k := 0; ; k++ {
		d := distance - float64(k)*interval
		if d <= eps {
			break
		}
		plan = append(plan, d)
	}
	// Every generated boundary is strictly positive, so the start line is
	// never present yet.
	plan = append(plan, 0)
	sort.Float64s(plan)
	return plan
}

func countUp(distance, interval float64) models.SplitPlan {
	plan := make(models.SplitPlan, 0, int(distance/interval)+1)
	for k := 1; ; k++ {
		d := float64(k) * interval
		if d > distance {
			break
		}
		plan = append(plan, d)
	}
	last, ok := plan.Last()
	switch {
	case ok && distance-last <= interval*snapTolerance:
		plan[len(plan)-1] = distance
	case !ok || last < distance:
		plan = append(plan, distance)
	}
	return plan
}
