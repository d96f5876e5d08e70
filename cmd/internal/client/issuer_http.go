package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Credentials is one issued access/renewal pair as the coordinator sees it.
type Credentials struct {
	SessionID     string
	AccessToken   string
	AccessExp     time.Time
	RenewalSecret string
	RenewalExp    time.Time
}

// Issuer is the coordinator's view of the token issuer. Renew returns
// ErrUnauthorized / ErrSessionExpired for explicit issuer rejections and the
// raw transport error for network failures.
type Issuer interface {
	Renew(ctx context.Context, renewalSecret, sessionID string) (Credentials, error)
	Logout(ctx context.Context, accessToken string) error
}

// HTTPIssuer talks to the auth endpoints over HTTP.
type HTTPIssuer struct {
	base string
	http *http.Client
}

// NewHTTPIssuer constructs an HTTPIssuer for the given base URL. A nil
// client falls back to http.DefaultClient.
func NewHTTPIssuer(baseURL string, httpClient *http.Client) *HTTPIssuer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPIssuer{
		base: strings.TrimRight(baseURL, "/"),
		http: httpClient,
	}
}

type refreshWireRequest struct {
	RenewalSecret string `json:"renewal_secret"`
	SessionID     string `json:"session_id,omitempty"`
}

type sessionWireResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RenewalSecret    string    `json:"renewal_secret"`
	RenewalExpiresAt time.Time `json:"renewal_expires_at"`
}

type refreshWireResponse struct {
	Session sessionWireResponse `json:"session"`
}

// Renew posts to /auth/refresh-token and classifies the response.
func (i *HTTPIssuer) Renew(ctx context.Context, renewalSecret, sessionID string) (Credentials, error) {
	body, err := json.Marshal(refreshWireRequest{RenewalSecret: renewalSecret, SessionID: sessionID})
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.base+"/auth/refresh-token", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-Id", sessionID)
	}

	resp, err := i.http.Do(req)
	switch Classify(resp, err) {
	case OutcomeUnauthorized:
		_ = resp.Body.Close()
		return Credentials{}, ErrUnauthorized
	case OutcomeSessionExpired:
		_ = resp.Body.Close()
		return Credentials{}, ErrSessionExpired
	case OutcomeNetworkFailure:
		if err != nil {
			return Credentials{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		return Credentials{}, fmt.Errorf("renew: server error %d", resp.StatusCode)
	}
	defer func() { _ = resp.Body.Close() }()

	var out refreshWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, err
	}
	s := out.Session
	if s.AccessToken == "" || s.RenewalSecret == "" {
		return Credentials{}, fmt.Errorf("renew: incomplete issuer response")
	}
	return Credentials{
		SessionID:     s.SessionID,
		AccessToken:   s.AccessToken,
		AccessExp:     s.AccessExpiresAt,
		RenewalSecret: s.RenewalSecret,
		RenewalExp:    s.RenewalExpiresAt,
	}, nil
}

// Logout posts to /auth/logout with the access credential.
func (i *HTTPIssuer) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.base+"/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := i.http.Do(req)
	switch Classify(resp, err) {
	case OutcomeUnauthorized:
		_ = resp.Body.Close()
		return ErrUnauthorized
	case OutcomeSessionExpired:
		_ = resp.Body.Close()
		return ErrSessionExpired
	case OutcomeNetworkFailure:
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		return fmt.Errorf("logout: server error %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
	return nil
}
