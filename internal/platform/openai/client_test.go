package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func newTestClient(t *testing.T, rt roundTripFunc) *client {
	t.Helper()
	temp := 0.1
	return &client{
		log:         newTestLogger(t),
		baseURL:     "http://openai.local",
		apiKey:      "test-key",
		model:       "gpt-4o-mini",
		embedModel:  "text-embedding-3-small",
		httpClient:  &http.Client{Transport: rt},
		maxRetries:  2,
		temperature: &temp,
		noTempSeen:  map[string]bool{},
	}
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func embeddingsPayload(pairs ...any) map[string]any {
	data := make([]map[string]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		data = append(data, map[string]any{
			"index":     pairs[i],
			"embedding": pairs[i+1],
		})
	}
	return map[string]any{"data": data}
}

func TestEmbedMapsVectorsByIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path=%q, want /v1/embeddings", r.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, embeddingsPayload(
			1, []float64{0.2, 0.2},
			0, []float64{0.1, 0.1},
		)), nil
	})

	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("len(vecs)=%d, want 2", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.2 {
		t.Fatalf("vectors out of order: %v", vecs)
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
		return nil, nil
	})

	vecs, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("len(vecs)=%d, want 0", len(vecs))
	}
}

func TestEmbedRetriesTransientStatus(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := jsonResponse(t, http.StatusServiceUnavailable, map[string]any{"error": "overloaded"})
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		return jsonResponse(t, http.StatusOK, embeddingsPayload(0, []float64{0.5})), nil
	})

	vecs, err := c.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("Embed after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d, want 2", calls)
	}
	if len(vecs) != 1 || vecs[0][0] != 0.5 {
		t.Fatalf("vecs=%v, want one vector [0.5]", vecs)
	}
}

func TestEmbedDoesNotRetryBadRequest(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, http.StatusBadRequest, map[string]any{"error": "bad input"}), nil
	})

	_, err := c.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatalf("Embed: want error on 400")
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1 (no retry on 400)", calls)
	}
}

func responsesPayload(text string) map[string]any {
	return map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "output_text", "text": text},
				},
			},
		},
	}
}

func TestGenerateTextExtractsOutput(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/responses" {
			t.Fatalf("path=%q, want /v1/responses", r.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, responsesPayload("The starting dose is 10 mg daily [1].")), nil
	})

	text, err := c.GenerateText(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "The starting dose is 10 mg daily [1]." {
		t.Fatalf("text=%q", text)
	}
}

func TestGenerateTextRetriesWithoutTemperature(t *testing.T) {
	var bodies []string
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		if len(bodies) == 1 {
			return jsonResponse(t, http.StatusBadRequest, map[string]any{
				"error": map[string]any{
					"message": "Unsupported parameter: 'temperature' is not supported with this model.",
					"type":    "invalid_request_error",
				},
			}), nil
		}
		return jsonResponse(t, http.StatusOK, responsesPayload("ok")), nil
	})

	text, err := c.GenerateText(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "ok" {
		t.Fatalf("text=%q, want %q", text, "ok")
	}
	if len(bodies) != 2 {
		t.Fatalf("requests=%d, want 2", len(bodies))
	}
	if !strings.Contains(bodies[0], "temperature") {
		t.Fatalf("first request missing temperature: %s", bodies[0])
	}
	if strings.Contains(bodies[1], "temperature") {
		t.Fatalf("second request still sends temperature: %s", bodies[1])
	}
	if !c.modelIsNoTemp("gpt-4o-mini") {
		t.Fatalf("model not remembered as no-temperature")
	}
}
