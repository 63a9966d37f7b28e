package splits

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

func race(distance float64) models.Race {
	return models.Race{DisplayName: "test", Distance: distance, LapLength: 400}
}

func TestPlan(t *testing.T) {
	testCases := []struct {
		name          string
		distance      float64
		interval      float64
		startAtFinish bool
		want          models.SplitPlan
	}{
		{"countdown divisible", 4000, 1000, true, models.SplitPlan{0, 1000, 2000, 3000, 4000}},
		{"count up divisible", 4000, 1000, false, models.SplitPlan{1000, 2000, 3000, 4000}},
		{"countdown remainder", 1500, 1000, true, models.SplitPlan{0, 500, 1500}},
		{"count up remainder", 1500, 1000, false, models.SplitPlan{1000, 1500}},
		{"countdown interval longer than race", 400, 1000, true, models.SplitPlan{0, 400}},
		{"count up interval longer than race", 400, 1000, false, models.SplitPlan{400}},
		{"countdown 1500m on a 400m track", 1500, 400, true, models.SplitPlan{0, 300, 700, 1100, 1500}},
		{"count up 1500m on a 400m track", 1500, 400, false, models.SplitPlan{400, 800, 1200, 1500}},
		{"countdown interval equals race", 800, 800, true, models.SplitPlan{0, 800}},
		{"count up interval equals race", 800, 800, false, models.SplitPlan{800}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Plan(race(tc.distance), tc.interval, tc.startAtFinish)
			if err != nil {
				t.Fatalf("Plan(%v, %v, %v) returned error: %v", tc.distance, tc.interval, tc.startAtFinish, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Plan(%v, %v, %v) mismatch (-want +got):\n%s", tc.distance, tc.interval, tc.startAtFinish, diff)
			}
		})
	}
}

func TestPlanCountdownIsDefault(t *testing.T) {
	r := race(5000)
	a, err := PlanCountdown(r, 400)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Plan(r, 400, true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("PlanCountdown differs from Plan(..., true):\n%s", diff)
	}
}

func TestPlanProperties(t *testing.T) {
	distances := []float64{100, 200, 400, 800, 1000, 1500, 1609.34, 3000, 4828.02, 5000, 10000, 21097.5}
	intervals := []float64{50, 100, 200, 300, 400, 1000, 1609.34, 5000, 30000}

	for _, d := range distances {
		for _, i := range intervals {
			down, err := Plan(race(d), i, true)
			if err != nil {
				t.Fatalf("Plan(%v, %v, true): %v", d, i, err)
			}
			if !sort.Float64sAreSorted(down) {
				t.Errorf("Plan(%v, %v, true) = %v is not sorted", d, i, down)
			}
			if down[0] != 0 {
				t.Errorf("Plan(%v, %v, true) = %v does not start at 0", d, i, down)
			}
			if last, _ := down.Last(); last != d {
				t.Errorf("Plan(%v, %v, true) = %v does not end at %v", d, i, down, d)
			}
			for _, v := range down {
				if v < 0 || v > d {
					t.Errorf("Plan(%v, %v, true) has %v outside [0, %v]", d, i, v, d)
				}
			}
			checkGaps(t, down, i)

			up, err := Plan(race(d), i, false)
			if err != nil {
				t.Fatalf("Plan(%v, %v, false): %v", d, i, err)
			}
			if !sort.Float64sAreSorted(up) {
				t.Errorf("Plan(%v, %v, false) = %v is not sorted", d, i, up)
			}
			if last, _ := up.Last(); last != d {
				t.Errorf("Plan(%v, %v, false) = %v does not end at %v", d, i, up, d)
			}
			for _, v := range up {
				if v <= 0 || v > d {
					t.Errorf("Plan(%v, %v, false) has %v outside (0, %v]", d, i, v, d)
				}
			}
			checkGaps(t, up, i)
		}
	}
}

// checkGaps fails if two neighbouring boundaries are closer than rounding
// noise allows.
func checkGaps(t *testing.T, plan models.SplitPlan, interval float64) {
	t.Helper()
	for k := 1; k < len(plan); k++ {
		if plan[k]-plan[k-1] < interval*1e-6 {
			t.Errorf("plan %v has boundaries %v and %v closer than rounding noise", plan, plan[k-1], plan[k])
		}
	}
}

func TestPlanMultipleOfInexactInterval(t *testing.T) {
	const threeMiles, mile = 4828.02, 1609.34

	down, err := Plan(race(threeMiles), mile, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(down) != 4 || down[0] != 0 || down[3] != threeMiles {
		t.Errorf("countdown = %v, want 4 boundaries from 0 to %v", down, threeMiles)
	}
	if down[1] < 1 {
		t.Errorf("countdown = %v has a leftover boundary next to the start", down)
	}

	up, err := Plan(race(threeMiles), mile, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(up) != 3 || up[2] != threeMiles {
		t.Errorf("count up = %v, want 3 boundaries ending at %v", up, threeMiles)
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	r := race(10000)
	first, err := Plan(r, 400, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Plan(r, 400, true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated Plan calls differ:\n%s", diff)
	}
}

func TestPlanInvalidArgument(t *testing.T) {
	testCases := []struct {
		name     string
		race     models.Race
		interval float64
	}{
		{"zero interval", race(1500), 0},
		{"negative interval", race(1500), -400},
		{"NaN interval", race(1500), math.NaN()},
		{"infinite interval", race(1500), math.Inf(1)},
		{"zero distance", race(0), 400},
		{"negative distance", race(-1500), 400},
		{"missing name", models.Race{Distance: 1500, LapLength: 400}, 400},
		{"missing lap length", models.Race{DisplayName: "1500m", Distance: 1500}, 400},
		{"too many splits", race(42195), 0.001},
	}

	for _, tc := range testCases {
		for _, startAtFinish := range []bool{true, false} {
			got, err := Plan(tc.race, tc.interval, startAtFinish)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("%s (startAtFinish=%v): expected ErrInvalidArgument, got %v", tc.name, startAtFinish, err)
			}
			if got != nil {
				t.Errorf("%s (startAtFinish=%v): expected no plan, got %v", tc.name, startAtFinish, got)
			}
		}
	}
}
