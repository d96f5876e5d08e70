package authapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errEmptyBody    = errors.New("empty request body")
	errTrailingData = errors.New("trailing data after request body")
)

// Every reply either carries credentials or explains why none were issued,
// so caching is disabled across the board.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorReply is the uniform error envelope: {"error":{"code":...,"message":...}}.
type errorReply struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var body errorReply
	body.Error.Code = code
	body.Error.Message = msg
	writeJSON(w, status, body)
}

// readJSON decodes exactly one JSON value from the request body into dst.
// Unknown fields and trailing content are rejected; the body is capped at
// limit bytes.
func readJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
