// Package tpapi is the HTTP client for the training-platform REST API. All
// responses are loosely typed records because the provider's payload shape
// varies by account and endpoint version.
package tpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Record is one loosely typed provider object
type Record = map[string]interface{}

// maxRangeDays is the provider's hard cap on date-range queries
const maxRangeDays = 45

// requestTimeout bounds every provider call
const requestTimeout = 30 * time.Second

// TokenSource supplies a bearer token for an athlete, falling back to a
// coach-scoped token when the athlete has none of their own.
type TokenSource interface {
	AccessToken(ctx context.Context, athleteID int64) (token string, usingCoach bool, err error)
}

// StatusError is a non-2xx provider response
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client talks to the training-platform API on behalf of one athlete
type Client struct {
	baseURL   string
	athleteID int64
	tokens    TokenSource
	http      *http.Client
	log       *logrus.Entry
}

// NewClient creates a provider client bound to an athlete
func NewClient(baseURL string, athleteID int64, tokens TokenSource) *Client {
	return &Client{
		baseURL:   baseURL,
		athleteID: athleteID,
		tokens:    tokens,
		http:      &http.Client{Timeout: requestTimeout},
		log:       logrus.WithFields(logrus.Fields{"component": "tpapi", "athlete_id": athleteID}),
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	token, usingCoach, err := c.tokens.AccessToken(ctx, c.athleteID)
	if err != nil {
		return nil, 0, fmt.Errorf("get: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("get: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("get: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		c.log.WithFields(logrus.Fields{
			"url":         url,
			"status":      resp.StatusCode,
			"using_coach": usingCoach,
		}).Warn("provider request failed")
	}
	return body, resp.StatusCode, nil
}

// getRecords fetches a list endpoint. A 404 means "no data in range" and
// returns an empty slice when tolerate404 is set.
func (c *Client) getRecords(ctx context.Context, url string, tolerate404 bool) ([]Record, error) {
	body, status, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound && tolerate404 {
		return []Record{}, nil
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, URL: url, Body: truncate(string(body), 200)}
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("getRecords: %w", err)
	}
	return records, nil
}

// FetchWorkouts returns all workouts for the date range, splitting into
// provider-sized segments when the full range is rejected.
func (c *Client) FetchWorkouts(ctx context.Context, tpAthleteID *int64, start, end time.Time) ([]Record, error) {
	call := func(s, e time.Time) ([]Record, error) {
		var url string
		if tpAthleteID != nil {
			url = fmt.Sprintf("%s/v2/workouts/%d/%s/%s", c.baseURL, *tpAthleteID, s.Format("2006-01-02"), e.Format("2006-01-02"))
		} else {
			url = fmt.Sprintf("%s/v2/workouts/%s/%s", c.baseURL, s.Format("2006-01-02"), e.Format("2006-01-02"))
		}
		return c.getRecords(ctx, url, false)
	}
	return c.fetchSegmented(ctx, call, start, end)
}

// FetchDailyMetricsRange returns wellness metric records for the date range.
// A 404 from the metrics endpoint means no data and yields an empty slice.
func (c *Client) FetchDailyMetricsRange(ctx context.Context, tpAthleteID *int64, start, end time.Time) ([]Record, error) {
	call := func(s, e time.Time) ([]Record, error) {
		var url string
		if tpAthleteID != nil {
			url = fmt.Sprintf("%s/v2/metrics/%d/%s/%s", c.baseURL, *tpAthleteID, s.Format("2006-01-02"), e.Format("2006-01-02"))
		} else {
			url = fmt.Sprintf("%s/v2/metrics/%s/%s", c.baseURL, s.Format("2006-01-02"), e.Format("2006-01-02"))
		}
		return c.getRecords(ctx, url, true)
	}
	return c.fetchSegmented(ctx, call, start, end)
}

// fetchSegmented tries the full range first, then walks backwards in
// maxRangeDays segments when the provider rejects the range with 400 or 403.
func (c *Client) fetchSegmented(ctx context.Context, call func(s, e time.Time) ([]Record, error), start, end time.Time) ([]Record, error) {
	records, err := call(start, end)
	if err == nil {
		return records, nil
	}
	statusErr, ok := err.(*StatusError)
	if !ok || (statusErr.StatusCode != http.StatusBadRequest && statusErr.StatusCode != http.StatusForbidden) {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"status": statusErr.StatusCode,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}).Info("range rejected, retrying in segments")

	var out []Record
	curEnd := end
	for !curEnd.Before(start) {
		curStart := curEnd.AddDate(0, 0, -(maxRangeDays - 1))
		if curStart.Before(start) {
			curStart = start
		}
		seg, err := call(curStart, curEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, seg...)
		if curStart.Equal(start) {
			break
		}
		curEnd = curStart.AddDate(0, 0, -1)
	}
	return out, nil
}

// FetchWorkoutDetails returns the full payload for one workout, nil when the
// provider has no such workout.
func (c *Client) FetchWorkoutDetails(ctx context.Context, tpAthleteID *int64, workoutID string) (Record, error) {
	if workoutID == "" {
		return nil, nil
	}
	var url string
	if tpAthleteID != nil {
		url = fmt.Sprintf("%s/v2/workouts/%d/%s", c.baseURL, *tpAthleteID, workoutID)
	} else {
		url = fmt.Sprintf("%s/v2/workouts/%s", c.baseURL, workoutID)
	}

	body, status, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, URL: url, Body: truncate(string(body), 200)}
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		// Some detail endpoints return non-JSON bodies for gutted workouts
		return nil, nil
	}
	return record, nil
}

// FetchCoachAthletes returns the roster of athletes attached to the coach
// account. A 403 means the token lacks the coach scope, a 404 an empty roster.
func (c *Client) FetchCoachAthletes(ctx context.Context) ([]Record, error) {
	url := fmt.Sprintf("%s/v1/coach/athletes", c.baseURL)
	body, status, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return []Record{}, nil
	case http.StatusForbidden:
		return nil, fmt.Errorf("FetchCoachAthletes: roster forbidden, token is missing the coach:athletes scope")
	default:
		return nil, &StatusError{StatusCode: status, URL: url, Body: truncate(string(body), 200)}
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("FetchCoachAthletes: %w", err)
	}
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
