package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Metrics is the in-process counter set for the QA pipeline, exposed in
// Prometheus text format. Every method is nil-safe so call sites can run
// with metrics disabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqTotal *Counter
	apiReqError *Counter

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	queriesTotal    *CounterVec
	refusalsTotal   *CounterVec
	safetyDecisions *CounterVec
	phiDetected     *Counter
	toolCalls       *CounterVec

	documentsIngested *Counter
	chunksIndexed     *Counter
	ingestFailures    *Counter

	vectorOps     *CounterVec
	vectorLatency *HistogramVec

	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("cv_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"cv_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight: NewGauge("cv_api_inflight_requests", "In-flight API requests."),
			apiReqTotal: NewCounter("cv_api_requests_total_all", "Total API requests (all)."),
			apiReqError: NewCounter("cv_api_requests_error_total", "Total API requests with 5xx status."),
			llmRequests: NewCounterVec("cv_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
			llmLatency: NewHistogramVec(
				"cv_llm_request_duration_seconds",
				"LLM request latency in seconds by model/endpoint/status.",
				[]string{"model", "endpoint", "status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			),
			llmTokens:       NewCounterVec("cv_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
			queriesTotal:    NewCounterVec("cv_pipeline_queries_total", "Queries answered by intent.", []string{"intent"}),
			refusalsTotal:   NewCounterVec("cv_pipeline_refusals_total", "Refused queries by safety decision.", []string{"decision"}),
			safetyDecisions: NewCounterVec("cv_safety_decisions_total", "Safety validation outcomes.", []string{"decision"}),
			phiDetected:     NewCounter("cv_safety_phi_detected_total", "Answers where PHI was detected and redacted."),
			toolCalls:       NewCounterVec("cv_tool_calls_total", "Tool invocations by tool/status.", []string{"tool", "status"}),

			documentsIngested: NewCounter("cv_ingest_documents_total", "Documents ingested and indexed."),
			chunksIndexed:     NewCounter("cv_ingest_chunks_total", "Chunks embedded and indexed."),
			ingestFailures:    NewCounter("cv_ingest_failures_total", "Document ingestions that failed."),

			vectorOps: NewCounterVec("cv_vector_store_operations_total", "Vector store operations by provider/operation/status.", []string{"provider", "operation", "status"}),
			vectorLatency: NewHistogramVec(
				"cv_vector_store_operation_duration_seconds",
				"Vector store operation latency in seconds.",
				[]string{"provider", "operation", "status"},
				[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			),

			redisUp:   NewGauge("cv_redis_up", "Redis reachability (1 up, 0 down)."),
			redisPing: NewGauge("cv_redis_ping_seconds", "Latency of the last Redis ping."),
		}
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

// =====================================================================
// Exposition
// =====================================================================

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	if err := m.apiRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiInflight.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.llmTokens.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.queriesTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.refusalsTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.safetyDecisions.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.phiDetected.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.toolCalls.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.documentsIngested.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.chunksIndexed.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.ingestFailures.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.vectorOps.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.vectorLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisUp.WritePrometheus(w); err != nil {
		return err
	}
	return m.redisPing.WritePrometheus(w)
}

// =====================================================================
// Recorders
// =====================================================================

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.Inc()
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

// ObserveQuery records the outcome of one pipeline run.
func (m *Metrics) ObserveQuery(intent, decision string, refused, phiDetected bool) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "unknown"
	}
	m.queriesTotal.Inc(intent)
	if decision != "" {
		m.safetyDecisions.Inc(decision)
	}
	if refused {
		if decision == "" {
			decision = "unknown"
		}
		m.refusalsTotal.Inc(decision)
	}
	if phiDetected {
		m.phiDetected.Inc()
	}
}

func (m *Metrics) IncToolCall(tool, status string) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.toolCalls.Inc(tool, status)
}

func (m *Metrics) ObserveIngest(chunks int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.ingestFailures.Inc()
		return
	}
	m.documentsIngested.Inc()
	if chunks > 0 {
		m.chunksIndexed.Add(float64(chunks))
	}
}

func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.vectorOps.Inc(provider, operation, status)
	m.vectorLatency.Observe(dur.Seconds(), provider, operation, status)
}

// =====================================================================
// Collectors
// =====================================================================

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// StartRedisCollector pings Redis on the scrape interval and publishes
// reachability gauges. No-op when addr is empty.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// =====================================================================
// Metric primitives (Prometheus text exposition)
// =====================================================================

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val++
	g.mu.Unlock()
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val--
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.val
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	return status[0] == '5'
}
