package qa

import "time"

// Intents the classifier can route a query to. Document questions always
// retrieve; tool-flavored queries additionally invoke tools.
const (
	IntentRetrieve = "retrieve"
	IntentToolCall = "tool_call"
	IntentBoth     = "both"
)

// Safety decisions, in increasing severity.
const (
	DecisionApproved = "approved"
	DecisionWarning  = "warning"
	DecisionRejected = "rejected"
)

// Citation points an answer back at an indexed chunk.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Similarity float64 `json:"similarity_score"`
	Snippet    string  `json:"snippet"`
	Page       int     `json:"page_number"`
}

// SafetyValidation is the full scoring record for one answer.
type SafetyValidation struct {
	Decision        string   `json:"decision"`
	ConfidenceScore float64  `json:"confidence_score"`
	GroundingScore  float64  `json:"grounding_score"`
	InjectionScore  float64  `json:"injection_score"`
	Flags           []string `json:"flags"`
	Message         string   `json:"message,omitempty"`
}

// ToolCall records one tool invocation made on behalf of a query.
type ToolCall struct {
	Tool       string         `json:"tool_name"`
	Args       map[string]any `json:"arguments"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
}

// QueryResult is what one trip through the pipeline hands back.
// Every request produces one, refused or not.
type QueryResult struct {
	RequestID     string            `json:"request_id"`
	SessionID     string            `json:"session_id"`
	Query         string            `json:"query"`
	Intent        string            `json:"intent"`
	Answer        string            `json:"answer"`
	Refused       bool              `json:"refused"`
	RefusalReason string            `json:"refusal_reason,omitempty"`
	Citations     []Citation        `json:"citations"`
	Safety        *SafetyValidation `json:"safety,omitempty"`
	ToolCalls     []ToolCall        `json:"tool_calls"`
	LatencyMS     int64             `json:"latency_ms"`
}
