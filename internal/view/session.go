// Package view owns the per-user state of the activity view: the loaded
// activity, the race catalog that came with it, the selected race and the
// editable split distances.
package view

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/geo"
	"github.com/jrgparkinson/tracksplits/internal/models"
	"github.com/jrgparkinson/tracksplits/internal/races"
	"github.com/jrgparkinson/tracksplits/internal/splits"
)

var (
	ErrNoActivity        = errors.New("no activity loaded")
	ErrNoRaceSelected    = errors.New("no race selected")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotStravaActivity = errors.New("activity is not linked to Strava")
)

// DefaultMapCentre is used until an activity with coordinates is loaded.
var DefaultMapCentre = models.LatLng{Lat: 51.745909, Lng: -1.243}

// Session is the view state of one user. All methods are safe for
// concurrent use.
type Session struct {
	ID uuid.UUID

	mu              sync.Mutex
	state           State
	lastErr         string
	autoUpdateRaces bool
	catalog         *races.Catalog
	activity        *models.FitResult
	selectedRace    string
	lapLength       float64
	raceDistance    float64
	splitText       string
	gpsPath         []models.LatLng
	fitPath         []models.LatLng
	gpsLength       float64
	fitLength       float64
	mapCentre       models.LatLng
	activities      []models.ActivitySummary
	lastSeen        time.Time
}

// Snapshot is a point-in-time copy of a session for rendering.
type Snapshot struct {
	ID              uuid.UUID                `json:"id"`
	State           State                    `json:"state"`
	Error           string                   `json:"error,omitempty"`
	AutoUpdateRaces bool                     `json:"auto_update_races"`
	Races           []models.Race            `json:"races"`
	SelectedRace    string                   `json:"selected_race"`
	LapLength       float64                  `json:"lap_length"`
	RaceDistance    float64                  `json:"race_distance"`
	SplitDistances  string                   `json:"split_distances"`
	Activity        *models.FitResult        `json:"activity,omitempty"`
	ActivityURL     string                   `json:"activity_url,omitempty"`
	GPSPath         []models.LatLng          `json:"gps_path"`
	FitPath         []models.LatLng          `json:"fit_path"`
	GPSLength       float64                  `json:"gps_length"`
	FitLength       float64                  `json:"fit_length"`
	MapCentre       models.LatLng            `json:"map_centre"`
	Activities      []models.ActivitySummary `json:"activities"`
}

func newSession(catalog *races.Catalog, autoUpdateRaces bool) *Session {
	return &Session{
		ID:              uuid.New(),
		autoUpdateRaces: autoUpdateRaces,
		catalog:         catalog,
		mapCentre:       DefaultMapCentre,
		lastSeen:        time.Now(),
	}
}

func (s *Session) logger() *log.Entry {
	return log.WithField("session", s.ID.String())
}

func (s *Session) touch() {
	s.lastSeen = time.Now()
}

func (s *Session) transition(to State) error {
	if err := s.state.next(to); err != nil {
		return err
	}
	s.logger().WithFields(log.Fields{"from": s.state, "to": to}).Debug("state change")
	s.state = to
	return nil
}

// Begin marks a request to the fitting service as in flight.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err := s.transition(Loading); err != nil {
		return err
	}
	s.lastErr = ""
	return nil
}

// Fail settles the in-flight request with err. The previously loaded
// activity, if any, is kept.
func (s *Session) Fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(Failed); err != nil {
		return err
	}
	if cause != nil {
		s.lastErr = cause.Error()
	}
	return nil
}

// Display loads a freshly fitted activity and settles the in-flight request.
func (s *Session) Display(res *models.FitResult) error {
	if res == nil {
		err := errors.New("fitting service returned no result")
		s.Fail(err)
		return err
	}

	catalog, err := catalogFor(res)
	if err != nil {
		s.Fail(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loading {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, Ready)
	}

	s.activity = res
	if catalog != nil {
		s.catalog = catalog
	}

	gps := geo.Polyline(res.ActivityLatLng)
	fit := geo.Polyline(res.FitLatLng)
	s.gpsPath = geo.MapPath(gps)
	s.fitPath = geo.MapPath(fit)
	s.gpsLength = geo.Length(gps)
	s.fitLength = geo.Length(fit)
	switch {
	case res.ActivityCentre != nil:
		s.mapCentre = *res.ActivityCentre
	default:
		if c, ok := geo.Centre(gps); ok {
			s.mapCentre = c
		} else {
			s.mapCentre = DefaultMapCentre
		}
	}

	if res.Race.DisplayName != "" {
		if err := s.selectRace(res.Race.DisplayName); err != nil {
			s.logger().WithError(err).Warn("could not select race from fit result")
		}
	}
	s.applySplits(res.Splits)

	s.logger().WithFields(log.Fields{
		"activity": res.ActivityName,
		"race":     s.selectedRace,
		"points":   len(res.ActivityLatLng),
	}).Info("activity displayed")
	return s.transition(Ready)
}

// catalogFor builds the race list sent with a fit result, adding the
// result's own race when the list omits it. A nil catalog means the
// result carried no races.
func catalogFor(res *models.FitResult) (*races.Catalog, error) {
	list := append([]models.Race(nil), res.Races...)
	if res.Race.DisplayName != "" {
		found := false
		for _, r := range list {
			if r.DisplayName == res.Race.DisplayName {
				found = true
				break
			}
		}
		if !found {
			list = append(list, res.Race)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	c, err := races.New(list)
	if err != nil {
		return nil, fmt.Errorf("fit result has an invalid race list: %w", err)
	}
	return c, nil
}

// UpdateSplits applies a recomputed splits table and settles the in-flight
// request.
func (s *Session) UpdateSplits(res *models.SplitsResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activity == nil {
		return ErrNoActivity
	}
	if s.state != Loading {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, Ready)
	}
	s.activity.Splits = res.Splits
	s.activity.FitError = res.FitError
	s.applySplits(res.Splits)
	return s.transition(Ready)
}

func (s *Session) applySplits(rows []models.Split) {
	if len(rows) == 0 {
		return
	}
	plan := make(models.SplitPlan, len(rows))
	for i, r := range rows {
		plan[i] = r.Distance
	}
	s.splitText = FormatDistances(plan)
}

// SelectRace changes the selected race. The lap length, race distance and
// split distances follow the race when auto updating is on or override is
// set; otherwise only the selection changes. It reports whether the split
// distances were regenerated.
func (s *Session) SelectRace(name string, override bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if _, err := s.catalog.Lookup(name); err != nil {
		return false, err
	}
	if !s.autoUpdateRaces && !override {
		s.selectedRace = name
		s.logger().WithField("race", name).Debug("not auto updating race distance and lap length")
		return false, nil
	}
	return true, s.selectRace(name)
}

func (s *Session) selectRace(name string) error {
	race, err := s.catalog.Lookup(name)
	if err != nil {
		return err
	}
	s.selectedRace = name
	s.lapLength = race.LapLength
	s.raceDistance = race.Distance
	_, err = s.updateSplitOptions(race.LapLength)
	return err
}

// UpdateSplitOptions regenerates the split distances of the selected race
// for a new lap interval, counting back from the finish.
func (s *Session) UpdateSplitOptions(interval float64) (models.SplitPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.updateSplitOptions(interval)
}

func (s *Session) updateSplitOptions(interval float64) (models.SplitPlan, error) {
	if s.selectedRace == "" {
		return nil, ErrNoRaceSelected
	}
	race, err := s.catalog.Lookup(s.selectedRace)
	if err != nil {
		return nil, err
	}
	plan, err := splits.PlanCountdown(race, interval)
	if err != nil {
		return nil, err
	}
	s.lapLength = interval
	s.splitText = FormatDistances(plan)
	return plan, nil
}

// SetAutoUpdateRaces toggles whether selecting a race resets the lap length
// and split distances.
func (s *Session) SetAutoUpdateRaces(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoUpdateRaces = on
}

// SplitsRequest builds the request that recomputes splits. Empty or zero
// arguments fall back to the session's current values. The split text is
// validated and normalised. The session is not changed.
func (s *Session) SplitsRequest(lapLength float64, race, splitText string) (models.SplitsRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.splitsRequest(lapLength, race, splitText)
}

// BeginSplits builds the splits request and marks it in flight. The lap
// length and split text are only kept once the request is accepted.
func (s *Session) BeginSplits(lapLength float64, race, splitText string) (models.SplitsRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	req, err := s.splitsRequest(lapLength, race, splitText)
	if err != nil {
		return models.SplitsRequest{}, err
	}
	if err := s.transition(Loading); err != nil {
		return models.SplitsRequest{}, err
	}
	s.lastErr = ""
	s.lapLength = req.LapLength
	if strings.TrimSpace(splitText) != "" {
		s.splitText = splitText
	}
	return req, nil
}

func (s *Session) splitsRequest(lapLength float64, race, splitText string) (models.SplitsRequest, error) {
	if s.activity == nil {
		return models.SplitsRequest{}, ErrNoActivity
	}
	if lapLength == 0 {
		lapLength = s.lapLength
	}
	if race == "" {
		race = s.selectedRace
	}
	if strings.TrimSpace(splitText) == "" {
		splitText = s.splitText
	}
	if race == "" {
		return models.SplitsRequest{}, ErrNoRaceSelected
	}
	if lapLength <= 0 || math.IsNaN(lapLength) || math.IsInf(lapLength, 0) {
		return models.SplitsRequest{}, fmt.Errorf("%w: lap length must be positive, got %v", splits.ErrInvalidArgument, lapLength)
	}
	if _, err := ParseDistances(splitText); err != nil {
		return models.SplitsRequest{}, fmt.Errorf("%w: %v", splits.ErrInvalidArgument, err)
	}
	return models.SplitsRequest{
		LapLength: lapLength,
		Race:      race,
		Splits:    NormalizeDistances(splitText),
	}, nil
}

// Description is the activity description with the split times appended,
// ready for the user to edit before saving it back.
func (s *Session) Description(siteURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activity == nil {
		return "", ErrNoActivity
	}
	if s.activity.ActivityID == nil {
		return "", ErrNotStravaActivity
	}

	var b strings.Builder
	b.WriteString(s.activity.Description)
	fmt.Fprintf(&b, "\n\nSplits from %s/#%d\n", strings.TrimRight(siteURL, "/"), *s.activity.ActivityID)
	times := make([]string, len(s.activity.Splits))
	for i, sp := range s.activity.Splits {
		times[i] = FormatSplitTime(sp)
	}
	b.WriteString(strings.Join(times, ", "))
	return b.String(), nil
}

// ActivityID returns the Strava id of the loaded activity.
func (s *Session) ActivityID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activity == nil {
		return 0, ErrNoActivity
	}
	if s.activity.ActivityID == nil {
		return 0, ErrNotStravaActivity
	}
	return *s.activity.ActivityID, nil
}

// SetDescription records a description that was saved to the activity.
func (s *Session) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activity != nil {
		s.activity.Description = description
	}
}

// RecordActivities remembers the last page of the activity list.
func (s *Session) RecordActivities(list []models.ActivitySummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.activities = append([]models.ActivitySummary(nil), list...)
}

// OldestActivity is the start time, in unix seconds, of the oldest listed
// activity; the next page is requested before it.
func (s *Session) OldestActivity() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.activities) == 0 {
		return 0, false
	}
	return s.activities[len(s.activities)-1].Date, true
}

// State reports the loading state of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the session for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:              s.ID,
		State:           s.state,
		Error:           s.lastErr,
		AutoUpdateRaces: s.autoUpdateRaces,
		Races:           s.catalog.Races(),
		SelectedRace:    s.selectedRace,
		LapLength:       s.lapLength,
		RaceDistance:    s.raceDistance,
		SplitDistances:  s.splitText,
		GPSPath:         append([]models.LatLng(nil), s.gpsPath...),
		FitPath:         append([]models.LatLng(nil), s.fitPath...),
		GPSLength:       s.gpsLength,
		FitLength:       s.fitLength,
		MapCentre:       s.mapCentre,
		Activities:      append([]models.ActivitySummary(nil), s.activities...),
	}
	if s.activity != nil {
		act := *s.activity
		act.Splits = append([]models.Split(nil), s.activity.Splits...)
		snap.Activity = &act
		if act.ActivityID != nil {
			snap.ActivityURL = ActivityURL(*act.ActivityID)
		}
	}
	return snap
}
