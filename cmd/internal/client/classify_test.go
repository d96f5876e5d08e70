package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	resp := func(status int) *http.Response { return &http.Response{StatusCode: status} }

	tests := []struct {
		name string
		resp *http.Response
		err  error
		want Outcome
	}{
		{"transport error", nil, errors.New("dial tcp: refused"), OutcomeNetworkFailure},
		{"nil response without error", nil, nil, OutcomeNetworkFailure},
		{"200", resp(http.StatusOK), nil, OutcomeSuccess},
		{"204", resp(http.StatusNoContent), nil, OutcomeSuccess},
		{"business 404", resp(http.StatusNotFound), nil, OutcomeSuccess},
		{"401", resp(http.StatusUnauthorized), nil, OutcomeUnauthorized},
		{"410", resp(http.StatusGone), nil, OutcomeSessionExpired},
		{"500", resp(http.StatusInternalServerError), nil, OutcomeNetworkFailure},
		{"503", resp(http.StatusServiceUnavailable), nil, OutcomeNetworkFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.resp, tc.err); got != tc.want {
				t.Fatalf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeSessionExpired.String() != "session_expired" {
		t.Fatalf("unexpected %q", OutcomeSessionExpired.String())
	}
	if Outcome(42).String() != "unknown" {
		t.Fatalf("unexpected %q", Outcome(42).String())
	}
}
