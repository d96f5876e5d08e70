package client

import "net/http"

// Outcome is the coordinator's view of one transport exchange. All "is this
// a 401" branching lives here; the coordinator is a plain state machine over
// this enum.
type Outcome int

const (
	// OutcomeSuccess covers every response the host application should see
	// as-is, including business-level 4xx.
	OutcomeSuccess Outcome = iota
	// OutcomeUnauthorized is a bad, missing or revoked credential.
	OutcomeUnauthorized
	// OutcomeSessionExpired is a session past its absolute expiry.
	OutcomeSessionExpired
	// OutcomeNetworkFailure is a transient transport failure, retryable
	// under backoff.
	OutcomeNetworkFailure
)

// String implements fmt.Stringer for log fields.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeSessionExpired:
		return "session_expired"
	case OutcomeNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Classify maps a transport response to an Outcome. err takes precedence
// over resp; a nil resp with a nil err is a transport defect and classified
// as a network failure.
func Classify(resp *http.Response, err error) Outcome {
	if err != nil || resp == nil {
		return OutcomeNetworkFailure
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case resp.StatusCode == http.StatusGone:
		return OutcomeSessionExpired
	case resp.StatusCode >= 500:
		return OutcomeNetworkFailure
	default:
		return OutcomeSuccess
	}
}
