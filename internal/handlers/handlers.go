// Package handlers serves the tracksplits JSON API.
package handlers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/models"
	"github.com/jrgparkinson/tracksplits/internal/races"
	"github.com/jrgparkinson/tracksplits/internal/splits"
	"github.com/jrgparkinson/tracksplits/internal/utils"
	"github.com/jrgparkinson/tracksplits/internal/view"
)

// SessionCookie names the cookie that carries the session id.
const SessionCookie = "tracksplits_session"

// Fitter is the remote fitting service.
type Fitter interface {
	FitActivity(ctx context.Context, ref string) (*models.FitResult, error)
	Upload(ctx context.Context, filename string, data []byte) (*models.FitResult, error)
	ComputeSplits(ctx context.Context, req models.SplitsRequest) (*models.SplitsResult, error)
	ListActivities(ctx context.Context, before, after int64) ([]models.ActivitySummary, error)
	UpdateDescription(ctx context.Context, activityID int64, description string) error
}

// Cache stores fitted activities and the split plans used with them.
type Cache interface {
	InsertActivity(ctx context.Context, res *models.FitResult) error
	GetActivityByID(ctx context.Context, id int64) (*models.FitResult, error)
	SavePlan(ctx context.Context, p models.StoredPlan) (models.StoredPlan, error)
	LatestPlan(ctx context.Context, activityID int64) (*models.StoredPlan, error)
}

// Handler holds the dependencies of the API. Cache may be nil.
type Handler struct {
	Catalog  *races.Catalog
	Sessions *view.SessionStore
	Fitter   Fitter
	Cache    Cache
	SiteURL  string
	// Now is overridden in tests.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// RegisterRoutes adds the API routes to router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/races", h.listRaces).Methods(http.MethodGet)
	api.HandleFunc("/plan", h.plan).Methods(http.MethodGet)
	api.HandleFunc("/session", h.session).Methods(http.MethodGet)
	api.HandleFunc("/activity", h.loadActivity).Methods(http.MethodPost)
	api.HandleFunc("/activity/{id:[0-9]+}/plan", h.latestPlan).Methods(http.MethodGet)
	api.HandleFunc("/upload", h.upload).Methods(http.MethodPost)
	api.HandleFunc("/activities", h.listActivities).Methods(http.MethodGet)
	api.HandleFunc("/activities/older", h.olderActivities).Methods(http.MethodGet)
	api.HandleFunc("/activities/date/{date}", h.activitiesOnDate).Methods(http.MethodGet)
	api.HandleFunc("/race", h.selectRace).Methods(http.MethodPost)
	api.HandleFunc("/auto-update", h.autoUpdate).Methods(http.MethodPost)
	api.HandleFunc("/split-options", h.splitOptions).Methods(http.MethodPost)
	api.HandleFunc("/splits", h.computeSplits).Methods(http.MethodPost)
	api.HandleFunc("/description", h.description).Methods(http.MethodGet)
	api.HandleFunc("/description", h.saveDescription).Methods(http.MethodPost)
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFor returns the caller's session, starting a new one when the
// cookie is missing or stale.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) *view.Session {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			if s, err := h.Sessions.Get(id); err == nil {
				return s
			}
		}
	}
	s := h.Sessions.New()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	log.WithField("session", s.ID.String()).Debug("Started session")
	return s
}

func (h *Handler) listRaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.Race{"races": h.Catalog.Races()})
}

type planResponse struct {
	Race          models.Race      `json:"race"`
	Interval      float64          `json:"interval"`
	StartAtFinish bool             `json:"start_at_finish"`
	Distances     models.SplitPlan `json:"distances"`
	Text          string           `json:"text"`
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	race, err := h.Catalog.Lookup(q.Get("race"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	interval := race.LapLength
	if v := q.Get("interval"); v != "" {
		if interval, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "interval must be a number")
			return
		}
	}
	startAtFinish := true
	if v := q.Get("start_at_finish"); v != "" {
		if startAtFinish, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "start_at_finish must be a boolean")
			return
		}
	}

	plan, err := splits.Plan(race, interval, startAtFinish)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		Race:          race,
		Interval:      interval,
		StartAtFinish: startAtFinish,
		Distances:     plan,
		Text:          view.FormatDistances(plan),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionFor(w, r).Snapshot())
}

// settle finishes an in-flight fit: on success the result is displayed,
// otherwise the session records the failure.
func (h *Handler) settle(w http.ResponseWriter, r *http.Request, s *view.Session, res *models.FitResult, err error) {
	if err != nil {
		s.Fail(err)
		writeErr(w, r, err)
		return
	}
	if err := s.Display(res); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) loadActivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL     string `json:"url"`
		Refresh bool   `json:"refresh"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id, err := view.ParseActivityRef(body.URL)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	s := h.sessionFor(w, r)
	if err := s.Begin(); err != nil {
		writeErr(w, r, err)
		return
	}

	ctx := r.Context()
	if h.Cache != nil && !body.Refresh {
		cached, err := h.Cache.GetActivityByID(ctx, id)
		if err != nil {
			log.WithError(err).WithField("activity", id).Warn("Failed to read cached activity")
		} else if cached != nil {
			log.WithField("activity", id).Debug("Serving cached activity")
			h.settle(w, r, s, cached, nil)
			return
		}
	}

	res, err := h.Fitter.FitActivity(ctx, strconv.FormatInt(id, 10))
	if err == nil {
		h.cacheActivity(ctx, res)
	}
	h.settle(w, r, s, res, err)
}

func (h *Handler) cacheActivity(ctx context.Context, res *models.FitResult) {
	if h.Cache == nil || res == nil {
		return
	}
	if err := h.Cache.InsertActivity(ctx, res); err != nil {
		log.WithError(err).Warn("Failed to cache activity")
	}
}

func (h *Handler) latestPlan(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		writeError(w, http.StatusNotFound, "not_found", "no plans are stored")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid activity id")
		return
	}
	p, err := h.Cache.LatestPlan(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "no plan stored for this activity")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, utils.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(utils.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, utils.MaxUploadSize+1))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(data) > utils.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "file is too large")
		return
	}
	gpxData, name, err := utils.UploadToGPX(header.Filename, data)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	s := h.sessionFor(w, r)
	if err := s.Begin(); err != nil {
		writeErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"file": name, "bytes": len(gpxData)}).Info("Uploading track")
	res, err := h.Fitter.Upload(r.Context(), name, gpxData)
	h.settle(w, r, s, res, err)
}

func (h *Handler) fetchActivities(w http.ResponseWriter, r *http.Request, before, after int64) {
	s := h.sessionFor(w, r)
	list, err := h.Fitter.ListActivities(r.Context(), before, after)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []models.ActivitySummary{}
	}
	s.RecordActivities(list)
	writeJSON(w, http.StatusOK, map[string][]models.ActivitySummary{"activities": list})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	before := h.now().Unix()
	var after int64
	var err error
	if v := q.Get("before"); v != "" {
		if before, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "before must be unix seconds")
			return
		}
	}
	if v := q.Get("after"); v != "" {
		if after, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "after must be unix seconds")
			return
		}
	}
	h.fetchActivities(w, r, before, after)
}

func (h *Handler) olderActivities(w http.ResponseWriter, r *http.Request) {
	oldest, ok := h.sessionFor(w, r).OldestActivity()
	if !ok {
		writeError(w, http.StatusConflict, "no_activities", "no activities listed yet")
		return
	}
	h.fetchActivities(w, r, int64(oldest), 0)
}

func (h *Handler) activitiesOnDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
		return
	}
	before, after := view.DateWindow(date)
	h.fetchActivities(w, r, before, after)
}

func (h *Handler) selectRace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Race     string `json:"race"`
		Override bool   `json:"override"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s := h.sessionFor(w, r)
	if _, err := s.SelectRace(body.Race, body.Override); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) autoUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s := h.sessionFor(w, r)
	s.SetAutoUpdateRaces(body.Enabled)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) splitOptions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Interval models.Number `json:"interval"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	interval, err := body.Interval.Float()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "interval must be a number")
		return
	}
	s := h.sessionFor(w, r)
	if _, err := s.UpdateSplitOptions(interval); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) computeSplits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LapLength models.Number `json:"lap_length"`
		Race      string        `json:"race"`
		Splits    string        `json:"splits"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	var lapLength float64
	if body.LapLength != "" {
		var err error
		if lapLength, err = body.LapLength.Float(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "lap_length must be a number")
			return
		}
	}

	s := h.sessionFor(w, r)
	req, err := s.BeginSplits(lapLength, body.Race, body.Splits)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ctx := r.Context()
	res, err := h.Fitter.ComputeSplits(ctx, req)
	if err != nil {
		s.Fail(err)
		writeErr(w, r, err)
		return
	}
	if err := s.UpdateSplits(res); err != nil {
		writeErr(w, r, err)
		return
	}

	snap := s.Snapshot()
	h.cacheActivity(ctx, snap.Activity)
	h.savePlan(ctx, snap, req)
	writeJSON(w, http.StatusOK, snap)
}

// savePlan records the distances used for a Strava activity.
func (h *Handler) savePlan(ctx context.Context, snap view.Snapshot, req models.SplitsRequest) {
	if h.Cache == nil || snap.Activity == nil || snap.Activity.ActivityID == nil {
		return
	}
	distances, err := view.ParseDistances(req.Splits)
	if err != nil || len(distances) == 0 {
		return
	}
	p, err := h.Cache.SavePlan(ctx, models.StoredPlan{
		ActivityID:    *snap.Activity.ActivityID,
		Race:          req.Race,
		Interval:      req.LapLength,
		StartAtFinish: distances[0] == 0,
		Distances:     distances,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to save split plan")
		return
	}
	log.WithFields(log.Fields{"plan": p.ID, "activity": p.ActivityID}).Debug("Saved split plan")
}

func (h *Handler) description(w http.ResponseWriter, r *http.Request) {
	text, err := h.sessionFor(w, r).Description(h.SiteURL)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": text})
}

func (h *Handler) saveDescription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s := h.sessionFor(w, r)
	id, err := s.ActivityID()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.Fitter.UpdateDescription(r.Context(), id, body.Description); err != nil {
		writeErr(w, r, err)
		return
	}
	s.SetDescription(body.Description)
	log.WithField("activity", id).Info("Updated activity description")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StaticHandler serves the web client from dir, with index.html at the root.
func StaticHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/index.html" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}
