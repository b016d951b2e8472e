// Package auth manages OAuth tokens for the training platform. Tokens are
// stored per athlete; athletes synced from a coach roster fall back to the
// coach-scoped token.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	models "podium-coach/database/models_pkg"

	"github.com/sirupsen/logrus"
)

// expiryBuffer refreshes tokens slightly before the provider invalidates them
const expiryBuffer = time.Minute

// TokenPayload is the provider's OAuth token response
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// tokenStore is the persistence surface the manager needs
type tokenStore interface {
	GetToken(athleteID int64) (*models.OAuthToken, error)
	StoreToken(athleteID int64, access, refresh, scope string, expiresAt time.Time) (*models.OAuthToken, error)
	DeleteToken(athleteID int64) error
	FindCoachToken() (*models.OAuthToken, error)
}

// Manager resolves access tokens and refreshes them when close to expiry
type Manager struct {
	store        tokenStore
	authBase     string
	clientID     string
	clientSecret string
	http         *http.Client
	log          *logrus.Entry
}

// NewManager creates a token manager
func NewManager(store tokenStore, authBase, clientID, clientSecret string) *Manager {
	return &Manager{
		store:        store,
		authBase:     authBase,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          logrus.WithField("component", "auth"),
	}
}

// Save stores a freshly obtained token for an athlete, replacing any prior one
func (m *Manager) Save(athleteID int64, payload *TokenPayload) error {
	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	expiresAt := time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
	if _, err := m.store.StoreToken(athleteID, payload.AccessToken, payload.RefreshToken, payload.Scope, expiresAt); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// AccessToken returns a valid bearer token for the athlete. When the athlete
// has no token of their own a coach-scoped token is used instead; usingCoach
// reports which one was chosen. Expired tokens are refreshed in place, and a
// failed refresh purges the athlete's own token only, never the coach's.
func (m *Manager) AccessToken(ctx context.Context, athleteID int64) (string, bool, error) {
	row, err := m.store.GetToken(athleteID)
	if err != nil {
		return "", false, fmt.Errorf("AccessToken: %w", err)
	}

	usingCoach := false
	if row == nil {
		row, err = m.store.FindCoachToken()
		if err != nil {
			return "", false, fmt.Errorf("AccessToken: %w", err)
		}
		if row == nil {
			return "", false, fmt.Errorf("AccessToken: no token stored for athlete %d and no coach token available", athleteID)
		}
		usingCoach = true
	}

	if !row.ExpiresAt.IsZero() && row.ExpiresAt.Add(-expiryBuffer).Before(time.Now().UTC()) {
		refreshed, err := m.refresh(ctx, row.RefreshToken)
		if err != nil {
			if row.AthleteID == athleteID {
				if delErr := m.store.DeleteToken(athleteID); delErr != nil {
					m.log.WithError(delErr).Warn("failed to purge stale token")
				}
			}
			return "", usingCoach, fmt.Errorf("AccessToken: %w", err)
		}
		// Refreshed tokens stay associated with their original owner so a
		// coach token serving a roster athlete is not duplicated.
		if err := m.Save(row.AthleteID, refreshed); err != nil {
			return "", usingCoach, fmt.Errorf("AccessToken: %w", err)
		}
		row, err = m.store.GetToken(row.AthleteID)
		if err != nil || row == nil {
			return "", usingCoach, fmt.Errorf("AccessToken: refreshed token not found")
		}
	}

	if row.AccessToken == "" {
		return "", usingCoach, fmt.Errorf("AccessToken: stored token has no access_token, re-authorization required")
	}
	return row.AccessToken, usingCoach, nil
}

// refresh exchanges a refresh token at the provider's token endpoint. The
// provider only accepts form-encoded refresh requests.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*TokenPayload, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: no refresh token stored, re-authorization required")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authBase+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		m.log.WithField("status", resp.StatusCode).Warn("token refresh rejected")
		return nil, fmt.Errorf("refresh: provider returned %d", resp.StatusCode)
	}

	var payload TokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("refresh: provider response missing access_token")
	}
	return &payload, nil
}
