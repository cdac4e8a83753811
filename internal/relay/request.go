package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	errInvalidJSON     = errors.New("invalid json")
	errBodyTooLarge    = errors.New("body too large")
	errMissingContents = errors.New("missing contents")
)

// ChatRequest is the body accepted by POST /api/chat. Turns are not
// validated; the upstream API rejects malformed ones.
type ChatRequest struct {
	Contents json.RawMessage `json:"contents"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request, limit int64) (ChatRequest, error) {
	var req ChatRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, errBodyTooLarge
		}
		return req, errInvalidJSON
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, errMissingContents
	}
	if !json.Valid(body) {
		return req, errInvalidJSON
	}
	// Valid JSON that is not an object carries no conversation.
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errMissingContents
	}
	if isEmptyValue(req.Contents) {
		return req, errMissingContents
	}
	return req, nil
}

// isEmptyValue treats absent, null, false, zero, empty string and empty array
// as a missing conversation.
func isEmptyValue(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}
