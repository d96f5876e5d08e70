package authapi

import (
	"time"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/auth/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Platform string `json:"platform"`
}

type refreshRequest struct {
	RenewalSecret string `json:"renewal_secret"`
	SessionID     string `json:"session_id"`
	Platform      string `json:"platform"`
}

type logoutRequest struct {
	Scope string `json:"scope"`
}

type logoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RenewalSecret    string    `json:"renewal_secret"`
	RenewalExpiresAt time.Time `json:"renewal_expires_at"`
}

type loginResponse struct {
	UserID  string          `json:"user_id"`
	Roles   []string        `json:"roles,omitempty"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RenewalSecret:    issued.RenewalSecret,
		RenewalExpiresAt: issued.RenewalExp,
	}
}
