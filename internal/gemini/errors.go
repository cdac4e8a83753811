package gemini

import "fmt"

// APIError is returned when the API answers with a non-success status and a
// decodable error body.
type APIError struct {
	StatusCode int
	// Message is the provider-supplied message; empty when the body had none.
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}
