package gemini

import "encoding/json"

// Part is one piece of content. Only text parts are produced by the relay.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is a role-less block of parts, used for the system instruction.
type Content struct {
	Parts []Part `json:"parts"`
}

// GenerateContentRequest is the body of a generateContent call. Contents is
// forwarded verbatim so turns of any shape reach the API unchanged.
type GenerateContentRequest struct {
	Contents          json.RawMessage `json:"contents"`
	SystemInstruction *Content        `json:"systemInstruction,omitempty"`
}

// NewRequest assembles a request from a client conversation and a system prompt.
func NewRequest(contents json.RawMessage, systemPrompt string) *GenerateContentRequest {
	req := &GenerateContentRequest{Contents: contents}
	if systemPrompt != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: systemPrompt}}}
	}
	return req
}

// Candidate is one generated reply option.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// GenerateContentResponse is the success envelope of generateContent.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback json.RawMessage `json:"promptFeedback,omitempty"`
}

// FirstText returns the text of the first part of the first candidate.
// It reports false when a candidate was blocked or came back without text.
func (r *GenerateContentResponse) FirstText() (string, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return "", false
	}
	c := r.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0].Text == "" {
		return "", false
	}
	return c.Parts[0].Text, true
}

// ErrorEnvelope is the body returned by the API on failure. Error is kept
// raw because proxies in front of the API do not always follow its shape.
type ErrorEnvelope struct {
	Error json.RawMessage `json:"error,omitempty"`
}

// ErrorMessage returns error.message from a failure body, or "" when the body
// has no string message there.
func ErrorMessage(body []byte) string {
	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return ""
	}
	var detail struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &detail); err != nil || len(detail.Message) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(detail.Message, &msg); err != nil {
		return ""
	}
	return msg
}
