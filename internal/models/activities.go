package models

import "time"

// Activity is a fitted activity as cached locally. Payload holds the JSON
// returned by the fitting service.
type Activity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	FetchedAt time.Time `json:"fetched_at"`
	Race      string    `json:"race"`
	Payload   string    `json:"payload"` // FitResult as JSON
}

// ActivitySummary is one entry of the athlete's activity list.
type ActivitySummary struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Date   float64 `json:"date"` // unix seconds
	IsRace bool    `json:"isRace"`
}

// Time returns the activity start as a time.Time.
func (a ActivitySummary) Time() time.Time {
	sec := int64(a.Date)
	nsec := int64((a.Date - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// StoredPlan is a split plan saved against an activity.
type StoredPlan struct {
	ID            string    `json:"id"`
	ActivityID    int64     `json:"activity_id"`
	Race          string    `json:"race"`
	Interval      float64   `json:"interval"`
	StartAtFinish bool      `json:"start_at_finish"`
	Distances     SplitPlan `json:"distances"`
	CreatedAt     time.Time `json:"created_at"`
}
