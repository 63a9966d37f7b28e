// Package fitting is a client for the external service that fits GPS
// activities to a track and computes split times.
package fitting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

// ErrAuthorizationRequired is matched by *AuthorizationError.
var ErrAuthorizationRequired = errors.New("authorization required")

// AuthorizationError is returned when the service needs the user to grant
// access to their activities first.
type AuthorizationError struct {
	URL string
}

func (e *AuthorizationError) Error() string {
	return "authorization required: " + e.URL
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorizationRequired
}

// ServiceError is a failure reported by the fitting service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("fitting service: %s (status %d)", e.Message, e.StatusCode)
	}
	return "fitting service: " + e.Message
}

const maxResponseSize = 64 << 20

// Client calls the fitting service. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New returns a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid fitting service URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid fitting service URL %q", baseURL)
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// FitActivity fetches the activity identified by ref (an activity id or
// URL) and fits it to a track.
func (c *Client) FitActivity(ctx context.Context, ref string) (*models.FitResult, error) {
	var result models.FitResult
	if err := c.postJSON(ctx, "/activity", map[string]string{"url": ref}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Upload sends a GPX file to be fitted.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (*models.FitResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result models.FitResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ComputeSplits asks for split times at the distances in req.
func (c *Client) ComputeSplits(ctx context.Context, req models.SplitsRequest) (*models.SplitsResult, error) {
	var result models.SplitsResult
	if err := c.postJSON(ctx, "/splits", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListActivities lists the athlete's activities started between after and
// before (unix seconds); after = 0 means no lower bound.
func (c *Client) ListActivities(ctx context.Context, before, after int64) ([]models.ActivitySummary, error) {
	path := "/activities/" + strconv.FormatInt(before, 10) + "/" + strconv.FormatInt(after, 10)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Activities []models.ActivitySummary `json:"activities"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Activities, nil
}

// UpdateDescription replaces the description of an activity.
func (c *Client) UpdateDescription(ctx context.Context, activityID int64, description string) error {
	body := struct {
		Description string `json:"description"`
		ActivityID  int64  `json:"activity_id"`
	}{description, activityID}
	return c.postJSON(ctx, "/update_description", body, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// envelope holds the fields any response may carry instead of a result.
type envelope struct {
	Error        string `json:"error"`
	AuthorizeURL string `json:"authorize_url"`
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fitting service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read fitting service response: %w", err)
	}
	log.WithFields(log.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("fitting service call")

	var env envelope
	// Bodies that are not JSON objects are handled below.
	_ = json.Unmarshal(body, &env)
	if env.AuthorizeURL != "" {
		return &AuthorizationError{URL: env.AuthorizeURL}
	}
	if env.Error != "" {
		return &ServiceError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse fitting service response: %w", err)
	}
	return nil
}
