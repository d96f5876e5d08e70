package events

import "errors"

var (
	errOriginRequired  = errors.New("events: origin header required")
	errOriginForbidden = errors.New("events: origin not allowed")
)
