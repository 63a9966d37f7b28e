package fitting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

const fitPayload = `{
	"activity_id": 123456,
	"activity_name": "Club 1500m",
	"description": null,
	"races": [{"display_name": "1500m", "distance": 1500, "lap_length": 400}],
	"race": {"display_name": "1500m", "distance": 1500, "lap_length": 400},
	"activity_centre": {"lat": 51.745909, "lng": -1.243},
	"activity_latlng": [[51.7459, -1.2430], [51.7461, -1.2428]],
	"fit_latlng": [[51.7459, -1.2431], [51.7460, -1.2428]],
	"angle_bins_freqs": [[-1.5, 2], [0, 40]],
	"accepted_angles_limits": [[-0.1, 0.1]],
	"splits": [
		{"distance": 300, "total_mins": 0, "total_secs": "52", "split_mins": 0, "split_secs": "52"},
		{"distance": 700, "total_mins": 2, "total_secs": "01", "split_mins": 1, "split_secs": "09"}
	],
	"fitError": {"distance": 2.1, "time": 0.4, "speed": 5.7, "speedMPH": 12.8}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestFitActivity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/activity" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["url"] != "123456" {
			t.Errorf("url = %q, want 123456", body["url"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, fitPayload)
	})

	res, err := c.FitActivity(context.Background(), "123456")
	if err != nil {
		t.Fatalf("FitActivity: %v", err)
	}
	if res.ActivityID == nil || *res.ActivityID != 123456 {
		t.Errorf("ActivityID = %v, want 123456", res.ActivityID)
	}
	if res.Race.DisplayName != "1500m" || len(res.Races) != 1 {
		t.Errorf("unexpected races: %+v / %+v", res.Race, res.Races)
	}
	wantSplits := []models.Split{
		{Distance: 300, TotalMins: "0", TotalSecs: "52", SplitMins: "0", SplitSecs: "52"},
		{Distance: 700, TotalMins: "2", TotalSecs: "01", SplitMins: "1", SplitSecs: "09"},
	}
	if diff := cmp.Diff(wantSplits, res.Splits); diff != "" {
		t.Errorf("splits mismatch (-want +got):\n%s", diff)
	}
	if res.FitError.SpeedMPH != "12.8" {
		t.Errorf("SpeedMPH = %q, want 12.8", res.FitError.SpeedMPH)
	}
}

func TestServiceErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": "Activity is not a run"}`)
	})

	_, err := c.FitActivity(context.Background(), "1")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServiceError, got %v", err)
	}
	if se.Message != "Activity is not a run" {
		t.Errorf("Message = %q", se.Message)
	}
}

func TestAuthorizationRequired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"authorize_url": "https://www.strava.com/oauth/authorize?client_id=1"}`)
	})

	_, err := c.FitActivity(context.Background(), "1")
	if !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("expected ErrAuthorizationRequired, got %v", err)
	}
	var ae *AuthorizationError
	if !errors.As(err, &ae) || ae.URL != "https://www.strava.com/oauth/authorize?client_id=1" {
		t.Errorf("unexpected authorization error %v", err)
	}
}

func TestHTTPStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.ListActivities(context.Background(), 100, 0)
	var se *ServiceError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 ServiceError, got %v", err)
	}
}

func TestComputeSplits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/splits" {
			t.Errorf("path = %s, want /splits", r.URL.Path)
		}
		var req models.SplitsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		want := models.SplitsRequest{LapLength: 400, Race: "1500m", Splits: "0,300,700,1100,1500"}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
		io.WriteString(w, `{"splits": [{"distance": 1500, "total_mins": 4, "total_secs": "05", "split_mins": 1, "split_secs": "01"}], "fitError": {"distance": "1.0"}}`)
	})

	res, err := c.ComputeSplits(context.Background(), models.SplitsRequest{LapLength: 400, Race: "1500m", Splits: "0,300,700,1100,1500"})
	if err != nil {
		t.Fatalf("ComputeSplits: %v", err)
	}
	if len(res.Splits) != 1 || res.Splits[0].TotalSecs != "05" || res.FitError.Distance != "1.0" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestListActivities(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/activities/1700000000/0" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"activities": [{"id": 2, "name": "Race", "date": 1699999000, "isRace": true}, {"id": 1, "name": "Easy", "date": 1699000000, "isRace": false}]}`)
	})

	got, err := c.ListActivities(context.Background(), 1700000000, 0)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	want := []models.ActivitySummary{
		{ID: 2, Name: "Race", Date: 1699999000, IsRace: true},
		{ID: 1, Name: "Easy", Date: 1699000000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("activities mismatch (-want +got):\n%s", diff)
	}
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "race.gpx" || string(data) != "<gpx/>" {
			t.Errorf("unexpected upload %q: %q", hdr.Filename, data)
		}
		io.WriteString(w, fitPayload)
	})

	res, err := c.Upload(context.Background(), "race.gpx", []byte("<gpx/>"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.ActivityName != "Club 1500m" {
		t.Errorf("ActivityName = %q", res.ActivityName)
	}
}

func TestUpdateDescription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Description string `json:"description"`
			ActivityID  int64  `json:"activity_id"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.ActivityID != 42 || body.Description != "splits" {
			t.Errorf("unexpected body %+v", body)
		}
		io.WriteString(w, `{}`)
	})

	if err := c.UpdateDescription(context.Background(), 42, "splits"); err != nil {
		t.Fatalf("UpdateDescription: %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:5000", "://bad"} {
		if _, err := New(u, time.Second); err == nil {
			t.Errorf("New(%q): expected an error", u)
		}
	}
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, fitPayload)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FitActivity(ctx, "1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
