package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/pkg/httpx"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Embedder produces one fixed-length vector per input, in input order.
// The hash-based local provider implements this too, so everything that
// only embeds should depend on this interface rather than Client.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// TextGenerator produces a plain-text completion for a system/user prompt
// pair.
type TextGenerator interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// Client is the OpenAI API surface the pipeline uses: embeddings for
// indexing and retrieval, text generation for answer synthesis and for
// the evaluation judge.
type Client interface {
	Embedder
	TextGenerator
}

// WithModel returns a client that uses the provided model for text
// generation calls. If model is empty or base is nil, it returns the base
// client unchanged.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := c.clone()
		clone.model = model
		return clone
	}
	return base
}

// WithTemperature returns a client that pins the sampling temperature for
// text generation calls. The evaluation judge uses this to run at 0.
func WithTemperature(base Client, temperature float64) Client {
	if base == nil {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := c.clone()
		clone.temperature = f64ptr(temperature)
		clone.disableTemperature = false
		return clone
	}
	return base
}

// WithMaxOutputTokens returns a client that caps generated output length.
// Zero or negative means no cap.
func WithMaxOutputTokens(base Client, maxTokens int) Client {
	if base == nil {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := c.clone()
		if maxTokens > 0 {
			clone.maxOutputTokens = &maxTokens
		} else {
			clone.maxOutputTokens = nil
		}
		return clone
	}
	return base
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client

	maxRetries int

	temperature        *float64
	disableTemperature bool
	maxOutputTokens    *int

	// Models that reject the temperature parameter, learned at runtime so
	// we omit it on later calls instead of burning a retry.
	noTempMu   sync.RWMutex
	noTempSeen map[string]bool
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}

	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := 180
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 3
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	// Answer synthesis runs near-deterministic. "off" disables the
	// parameter entirely for endpoints that reject it.
	disableTemperature := false
	temp := 0.1
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		low := strings.ToLower(v)
		if low == "off" || low == "none" || low == "false" {
			disableTemperature = true
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			temp = f
		}
	}
	tempPtr := (*float64)(nil)
	if !disableTemperature {
		tempPtr = f64ptr(temp)
	}

	return &client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		embedModel:         embed,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		temperature:        tempPtr,
		disableTemperature: disableTemperature,
		noTempSeen:         map[string]bool{},
	}, nil
}

func (c *client) clone() *client {
	clone := &client{
		log:                c.log,
		baseURL:            c.baseURL,
		apiKey:             c.apiKey,
		model:              c.model,
		embedModel:         c.embedModel,
		httpClient:         c.httpClient,
		maxRetries:         c.maxRetries,
		temperature:        c.temperature,
		disableTemperature: c.disableTemperature,
		maxOutputTokens:    c.maxOutputTokens,
		noTempSeen:         map[string]bool{},
	}
	c.noTempMu.RLock()
	for k, v := range c.noTempSeen {
		clone.noTempSeen[k] = v
	}
	c.noTempMu.RUnlock()
	return clone
}

func f64ptr(v float64) *float64 { return &v }

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	c.noTempMu.RLock()
	seen := c.noTempSeen[m]
	c.noTempMu.RUnlock()
	return seen
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[m] = true
	c.noTempMu.Unlock()
}

func (c *client) applyTemperature(req *responsesRequest) {
	if req == nil {
		return
	}
	if c.disableTemperature || c.temperature == nil {
		return
	}
	if c.modelIsNoTemp(req.Model) {
		return
	}
	req.Temperature = c.temperature
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(strings.TrimSpace(s))
	if msg == "" {
		return false
	}
	if !strings.Contains(msg, "temperature") {
		return false
	}
	if strings.Contains(msg, "unsupported parameter") {
		return true
	}
	if strings.Contains(msg, "unknown parameter") {
		return true
	}
	if strings.Contains(msg, "unrecognized parameter") {
		return true
	}
	if strings.Contains(msg, "not supported") {
		return true
	}
	if strings.Contains(msg, "does not support") {
		return true
	}
	if strings.Contains(msg, "only the default") {
		return true
	}
	if strings.Contains(msg, "unsupported_value") || strings.Contains(msg, "invalid_request_error") {
		return true
	}
	return false
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	return isUnsupportedTemperatureMessage(err.Error())
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second
	start := time.Now()
	model := extractModelFromRequest(body)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if metrics := observability.Current(); metrics != nil {
				inputTokens, outputTokens := extractUsageFromRaw(raw)
				metrics.ObserveLLMRequest(model, path, statusFromResp(resp), time.Since(start), inputTokens, outputTokens)
			}
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			}
			return err
		}
		if attempt == c.maxRetries {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			}
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// doWithTempFallback retries exactly once without temperature if the model
// rejects it.
func (c *client) doWithTempFallback(ctx context.Context, method, path string, req *responsesRequest, out any) error {
	if req == nil {
		return c.do(ctx, method, path, nil, out)
	}
	err := c.do(ctx, method, path, req, out)
	if err == nil {
		return nil
	}
	if req.Temperature == nil {
		return err
	}
	if !isUnsupportedTemperatureParam(err) {
		return err
	}

	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, method, path, req, out)
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{
		Model: c.embedModel,
		Input: clean,
	}

	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := assembleEmbeddings(resp, len(clean))
	if !hasMissingEmbeddings(out) {
		return out, nil
	}

	c.log.Warn("Embeddings response missing indices; retrying once",
		"requested", len(clean),
		"returned", len(resp.Data),
		"model", c.embedModel,
	)

	var resp2 embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp2); err != nil {
		return nil, err
	}
	out2 := assembleEmbeddings(resp2, len(clean))
	if hasMissingEmbeddings(out2) {
		return nil, fmt.Errorf("openai embeddings missing indices after retry: requested=%d returned=%d model=%s", len(clean), len(resp2.Data), c.embedModel)
	}
	return out2, nil
}

// assembleEmbeddings places vectors by the index field, falling back to
// positional order when the response omits or repeats indices.
func assembleEmbeddings(resp embeddingsResponse, n int) [][]float32 {
	out := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < n {
			out[d.Index] = toFloat32(d.Embedding)
		}
	}
	if hasMissingEmbeddings(out) && len(resp.Data) == n {
		for i := 0; i < n; i++ {
			if out[i] != nil {
				continue
			}
			out[i] = toFloat32(resp.Data[i].Embedding)
		}
	}
	return out
}

func toFloat32(in []float64) []float32 {
	vec := make([]float32, len(in))
	for i, f := range in {
		vec[i] = float32(f)
	}
	return vec
}

func hasMissingEmbeddings(v [][]float32) bool {
	for i := range v {
		if len(v[i]) == 0 {
			return true
		}
	}
	return false
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		TotalTokens      int `json:"total_tokens"`
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	c.applyTemperature(&req)
	req.MaxOutputTokens = c.maxOutputTokens

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "POST", "/v1/responses", &req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

// -------------------- Telemetry helpers --------------------

func extractModelFromRequest(body any) string {
	switch v := body.(type) {
	case nil:
		return ""
	case responsesRequest:
		return strings.TrimSpace(v.Model)
	case *responsesRequest:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.Model)
	case embeddingsRequest:
		return strings.TrimSpace(v.Model)
	case *embeddingsRequest:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.Model)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(b, &payload); err != nil {
		return ""
	}
	if m, ok := payload["model"].(string); ok {
		return strings.TrimSpace(m)
	}
	return ""
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *openAIHTTPError
	if err != nil && errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func extractUsageFromRaw(raw []byte) (int, int) {
	if len(raw) == 0 {
		return 0, 0
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, 0
	}
	usageAny, ok := payload["usage"]
	if !ok || usageAny == nil {
		return 0, 0
	}
	usage, ok := usageAny.(map[string]any)
	if !ok {
		return 0, 0
	}

	inTokens := intFromAny(usage["input_tokens"])
	outTokens := intFromAny(usage["output_tokens"])
	if inTokens == 0 && outTokens == 0 {
		inTokens = intFromAny(usage["prompt_tokens"])
		outTokens = intFromAny(usage["completion_tokens"])
	}
	if inTokens == 0 && outTokens == 0 {
		if total := intFromAny(usage["total_tokens"]); total > 0 {
			inTokens = total
		}
	}
	return inTokens, outTokens
}

func intFromAny(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float32:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		if f, err := val.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}
