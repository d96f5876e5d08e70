package events

import (
	"errors"
	"strings"
	"time"
)

// Kind discriminates session events on the relay channel.
type Kind string

const (
	// KindRenewed announces a successful credential renewal; carries the new
	// access token so sibling tabs adopt it instead of renewing themselves.
	KindRenewed Kind = "renewed"
	// KindLogout announces the end of a session; receivers clear local state.
	KindLogout Kind = "logout"
)

// Event is the single broadcast payload delivered to every connected tab of
// a user except the originator. A non-empty SessionID scopes delivery to
// tabs of that session, so one session's logout never reaches a user's
// other live sessions.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Access    string    `json:"access,omitempty"`
	AccessExp time.Time `json:"access_exp,omitempty"`
	TS        time.Time `json:"ts"`
	Tab       string    `json:"tab,omitempty"`
}

// Validate rejects malformed inbound frames before they reach the hub.
func (e Event) Validate() error {
	switch e.Kind {
	case KindRenewed:
		if strings.TrimSpace(e.Access) == "" {
			return errors.New("renewed event requires access")
		}
	case KindLogout:
	default:
		return errors.New("unknown event kind")
	}
	if e.TS.IsZero() {
		return errors.New("event requires ts")
	}
	return nil
}
