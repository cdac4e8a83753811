package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gaspardpetit/chatrelay/internal/config"
	"github.com/gaspardpetit/chatrelay/internal/gemini"
)

const validBody = `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`

type fakeUpstream struct {
	*httptest.Server
	calls atomic.Int32
	last  atomic.Value
}

func newFakeUpstream(t *testing.T, status int, body string) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		f.last.Store(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.Close)
	return f
}

func newHandler(up *fakeUpstream, apiKey string) *Handler {
	cfg := config.UpstreamConfig{
		APIKey:       apiKey,
		BaseURL:      up.URL,
		Model:        "test-model",
		SystemPrompt: "system prompt",
	}
	return New(cfg, 1024, gemini.NewClient(cfg.BaseURL, cfg.Model, cfg.APIKey, 0))
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp.Error.Message
}

func TestChatSuccess(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`)
	rr := post(newHandler(up, "key"), validBody)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type %q", ct)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp["text"] != "hello" {
		t.Fatalf("body %v", resp)
	}

	var sent struct {
		Contents          json.RawMessage `json:"contents"`
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	if err := json.Unmarshal(up.last.Load().([]byte), &sent); err != nil {
		t.Fatalf("decode upstream body: %v", err)
	}
	if string(sent.Contents) != `[{"role":"user","parts":[{"text":"hi"}]}]` {
		t.Fatalf("contents %s", sent.Contents)
	}
	if len(sent.SystemInstruction.Parts) != 1 || sent.SystemInstruction.Parts[0].Text != "system prompt" {
		t.Fatalf("system instruction %+v", sent.SystemInstruction)
	}
}

func TestChatMissingAPIKey(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	for _, body := range []string{validBody, `{}`, `not json`} {
		rr := post(newHandler(up, ""), body)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status %d", rr.Code)
		}
		if msg := errorMessage(t, rr); msg != "GEMINI_API_KEY is not configured on the server." {
			t.Fatalf("message %q", msg)
		}
	}
	if n := up.calls.Load(); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestChatMissingContents(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	h := newHandler(up, "key")
	for _, body := range []string{`{}`, ``, `{"contents":null}`, `{"contents":[]}`, `{"contents":""}`, `{"contents":false}`, `{"other":1}`, `[1]`, `[{"contents":[1]}]`, `"contents"`, `null`} {
		rr := post(h, body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status %d", body, rr.Code)
		}
		if msg := errorMessage(t, rr); msg != MsgMissingContents {
			t.Fatalf("body %q: message %q", body, msg)
		}
	}
	if n := up.calls.Load(); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestChatMalformedBody(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	h := newHandler(up, "key")

	rr := post(h, `{"contents":`)
	if rr.Code != http.StatusBadRequest || errorMessage(t, rr) != MsgInvalidJSON {
		t.Fatalf("invalid json: %d %s", rr.Code, rr.Body.String())
	}

	rr = post(h, `{"contents":["`+strings.Repeat("x", 2048)+`"]}`)
	if rr.Code != http.StatusRequestEntityTooLarge || errorMessage(t, rr) != MsgBodyTooLarge {
		t.Fatalf("too large: %d %s", rr.Code, rr.Body.String())
	}
	if n := up.calls.Load(); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestChatIgnoresContentType(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "text/plain")
	newHandler(up, "key").ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestChatAcceptsAnyTurnShape(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	rr := post(newHandler(up, "key"), `{"contents":{"not":"an array"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if n := up.calls.Load(); n != 1 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestChatUpstreamError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, "rate limited"},
		{"bad key", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`, "API key not valid."},
		{"no message", http.StatusServiceUnavailable, `{"error":{}}`, MsgUpstreamFallback},
		{"string error", http.StatusServiceUnavailable, `{"error":"Service Unavailable"}`, MsgUpstreamFallback},
		{"array body", http.StatusTooManyRequests, `[{"error":{"code":429,"message":"quota"}}]`, MsgUpstreamFallback},
		{"string code", http.StatusBadRequest, `{"error":{"code":"400","message":"bad"}}`, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpstream(t, tt.status, tt.body)
			rr := post(newHandler(up, "key"), validBody)
			if rr.Code != tt.status {
				t.Fatalf("status %d", rr.Code)
			}
			if msg := errorMessage(t, rr); msg != tt.wantMsg {
				t.Fatalf("message %q", msg)
			}
		})
	}
}

func TestChatInvalidStructure(t *testing.T) {
	for _, body := range []string{
		`{"candidates":[]}`,
		`{"promptFeedback":{"blockReason":"SAFETY"}}`,
		`{"candidates":[{"finishReason":"SAFETY"}]}`,
		`{"candidates":[{"content":{"parts":[]}}]}`,
	} {
		up := newFakeUpstream(t, http.StatusOK, body)
		rr := post(newHandler(up, "key"), validBody)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("body %s: status %d", body, rr.Code)
		}
		if msg := errorMessage(t, rr); msg != MsgInvalidResponse {
			t.Fatalf("body %s: message %q", body, msg)
		}
	}
}

func TestChatCommunicationFailure(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		up := newFakeUpstream(t, http.StatusOK, `{}`)
		h := newHandler(up, "key")
		up.Close()
		rr := post(h, validBody)
		if rr.Code != http.StatusInternalServerError || errorMessage(t, rr) != MsgCommunication {
			t.Fatalf("got %d %s", rr.Code, rr.Body.String())
		}
	})
	t.Run("malformed success body", func(t *testing.T) {
		up := newFakeUpstream(t, http.StatusOK, `{"candidates":`)
		rr := post(newHandler(up, "key"), validBody)
		if rr.Code != http.StatusInternalServerError || errorMessage(t, rr) != MsgCommunication {
			t.Fatalf("got %d %s", rr.Code, rr.Body.String())
		}
	})
	t.Run("malformed error body", func(t *testing.T) {
		up := newFakeUpstream(t, http.StatusBadGateway, `<html>bad gateway</html>`)
		rr := post(newHandler(up, "key"), validBody)
		if rr.Code != http.StatusInternalServerError || errorMessage(t, rr) != MsgCommunication {
			t.Fatalf("got %d %s", rr.Code, rr.Body.String())
		}
	})
}

func TestChatNotMemoized(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`)
	h := newHandler(up, "key")
	for i := 0; i < 2; i++ {
		if rr := post(h, validBody); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rr.Code)
		}
	}
	if n := up.calls.Load(); n != 2 {
		t.Fatalf("upstream called %d times, want 2", n)
	}
}
