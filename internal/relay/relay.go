// Package relay implements the chat proxy endpoint: it forwards a client
// conversation to the upstream model with the server's system prompt and
// credential, and reshapes the reply for the browser.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/chatrelay/internal/config"
	"github.com/gaspardpetit/chatrelay/internal/gemini"
	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
)

// Client-facing messages.
const (
	MsgMissingContents  = `Request body must contain "contents" array.`
	MsgInvalidJSON      = "Request body must be valid JSON."
	MsgBodyTooLarge     = "Request body too large."
	MsgUpstreamFallback = "An error occurred with the Gemini API."
	MsgInvalidResponse  = "Invalid response structure from Gemini API."
	MsgCommunication    = "Failed to communicate with the Gemini API."
)

// Generator performs one generateContent call.
type Generator interface {
	GenerateContent(ctx context.Context, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error)
}

// ChatResponse is the success body.
type ChatResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is the failure body for every error class.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
}

// Handler serves POST /api/chat.
type Handler struct {
	upstream     config.UpstreamConfig
	maxBodyBytes int64
	gen          Generator
}

// New returns a chat handler. gen is only called when upstream.APIKey is set.
func New(upstream config.UpstreamConfig, maxBodyBytes int64, gen Generator) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultMaxBodyBytes
	}
	return &Handler{upstream: upstream, maxBodyBytes: maxBodyBytes, gen: gen}
}

// NewFromConfig wires a handler to a Gemini client built from cfg.
func NewFromConfig(cfg config.ServerConfig) *Handler {
	up := cfg.Upstream
	return New(up, cfg.MaxBodyBytes, gemini.NewClient(up.BaseURL, up.Model, up.APIKey, up.Timeout))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := chiMiddleware.GetReqID(r.Context())

	if h.upstream.APIKey == "" {
		logx.Log.Error().Str("request_id", reqID).Msg(config.APIKeyEnv + " is not set")
		h.fail(w, metrics.OutcomeConfigError, http.StatusInternalServerError,
			fmt.Sprintf("%s is not configured on the server.", config.APIKeyEnv))
		return
	}

	req, err := decodeChatRequest(w, r, h.maxBodyBytes)
	switch {
	case errors.Is(err, errBodyTooLarge):
		logx.Log.Warn().Str("request_id", reqID).Int64("limit", h.maxBodyBytes).Msg("chat body too large")
		h.fail(w, metrics.OutcomeBadRequest, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
		return
	case errors.Is(err, errInvalidJSON):
		logx.Log.Warn().Str("request_id", reqID).Msg("chat body is not valid json")
		h.fail(w, metrics.OutcomeBadRequest, http.StatusBadRequest, MsgInvalidJSON)
		return
	case err != nil:
		logx.Log.Warn().Str("request_id", reqID).Msg("chat body without contents")
		h.fail(w, metrics.OutcomeBadRequest, http.StatusBadRequest, MsgMissingContents)
		return
	}

	resp, err := h.gen.GenerateContent(r.Context(), gemini.NewRequest(req.Contents, h.upstream.SystemPrompt))
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			logx.Log.Error().Str("request_id", reqID).Int("status", apiErr.StatusCode).RawJSON("body", apiErr.Body).Msg("Gemini API error")
			msg := apiErr.Message
			if msg == "" {
				msg = MsgUpstreamFallback
			}
			h.fail(w, metrics.OutcomeUpstreamError, apiErr.StatusCode, msg)
			return
		}
		logx.Log.Error().Str("request_id", reqID).Err(err).Msg("error calling Gemini API")
		h.fail(w, metrics.OutcomeTransportError, http.StatusInternalServerError, MsgCommunication)
		return
	}

	text, ok := resp.FirstText()
	if !ok {
		logx.Log.Error().Str("request_id", reqID).Int("candidates", len(resp.Candidates)).Msg("unexpected Gemini response structure")
		h.fail(w, metrics.OutcomeInvalidResponse, http.StatusInternalServerError, MsgInvalidResponse)
		return
	}
	metrics.RecordChat(metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, ChatResponse{Text: text})
}

func (h *Handler) fail(w http.ResponseWriter, outcome string, status int, msg string) {
	metrics.RecordChat(outcome)
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("write chat response")
	}
}
