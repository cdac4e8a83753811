// Package gemini is a minimal client for the generateContent endpoint of the
// Gemini generative-language API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
	"github.com/gaspardpetit/chatrelay/internal/secret"
)

// Client calls generateContent for a single model.
type Client struct {
	BaseURL string
	Model   string
	APIKey  string
	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client
}

// NewClient returns a client for model at baseURL. A zero timeout leaves the
// transport defaults in place.
func NewClient(baseURL, model, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		Model:      model,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) endpoint(key string) string {
	u := strings.TrimRight(c.BaseURL, "/") + "/models/" + url.PathEscape(c.Model) + ":generateContent"
	return u + "?" + url.Values{"key": {key}}.Encode()
}

// GenerateContent issues one generateContent call. A non-success status with
// any JSON body yields *APIError; every other failure is a wrapped error.
func (c *Client) GenerateContent(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.APIKey), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	callID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", callID)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	logx.Log.Debug().Str("call_id", callID).Str("url", c.endpoint(secret.Mask(c.APIKey))).Int("bytes", len(body)).Msg("upstream request")
	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		metrics.ObserveUpstream(0, time.Since(start))
		return nil, fmt.Errorf("gemini: send request: %w", scrubURL(err, c.endpoint(secret.Mask(c.APIKey))))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	metrics.ObserveUpstream(resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}
	logx.Log.Debug().Str("call_id", callID).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("upstream response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("gemini: error body is not json (status %d)", resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: ErrorMessage(raw), Body: raw}
	}

	var out GenerateContentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	return &out, nil
}

// scrubURL replaces the URL carried by transport errors, which includes the key.
func scrubURL(err error, masked string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = masked
	}
	return err
}
