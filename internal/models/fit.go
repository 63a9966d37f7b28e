package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LatLng is a map coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Number is a numeric field the fitting service sends either as a JSON
// number or as a string (zero padded seconds, for instance). The text is
// kept as received.
type Number string

// UnmarshalJSON accepts a JSON number, string or null.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("invalid numeric field %s: %w", data, err)
	}
	*n = Number(num.String())
	return nil
}

// Float parses the value.
func (n Number) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
}

// Split is one row of the splits table computed by the fitting service.
type Split struct {
	Distance  float64 `json:"distance"`
	TotalMins Number  `json:"total_mins"`
	TotalSecs Number  `json:"total_secs"`
	SplitMins Number  `json:"split_mins"`
	SplitSecs Number  `json:"split_secs"`
}

// FitError summarises how well the GPS trace matched the track.
type FitError struct {
	Distance Number `json:"distance"`
	Time     Number `json:"time"`
	Speed    Number `json:"speed"`
	SpeedMPH Number `json:"speedMPH"`
}

// FitResult is the payload returned when an activity is fitted to a track.
type FitResult struct {
	ActivityID           *int64       `json:"activity_id"`
	ActivityName         string       `json:"activity_name"`
	Description          string       `json:"description"`
	Races                []Race       `json:"races"`
	Race                 Race         `json:"race"`
	ActivityCentre       *LatLng      `json:"activity_centre,omitempty"`
	ActivityLatLng       [][2]float64 `json:"activity_latlng"`
	FitLatLng            [][2]float64 `json:"fit_latlng"`
	AngleBinsFreqs       [][]float64  `json:"angle_bins_freqs"`
	AcceptedAnglesLimits [][]float64  `json:"accepted_angles_limits"`
	Splits               []Split      `json:"splits"`
	FitError             FitError     `json:"fitError"`
}

// SplitsRequest asks the fitting service to recompute splits for the
// current activity.
type SplitsRequest struct {
	LapLength float64 `json:"lap_length"`
	Race      string  `json:"race"`
	Splits    string  `json:"splits"` // comma separated distances
}

// SplitsResult is the recomputed splits table.
type SplitsResult struct {
	Splits   []Split  `json:"splits"`
	FitError FitError `json:"fitError"`
}
