package agent

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	types "github.com/clinvault/clinvault-backend/internal/domain"
)

const defaultTopK = 5

// State is the per-request working memory threaded through the pipeline.
// Exactly one State exists per request; stages mutate it in fixed order and
// nothing touches it after the end stage.
type State struct {
	RequestID string
	SessionID string
	Query     string
	TopK      int

	Intent string

	Citations        []types.Citation
	RetrievedContext string

	ToolCalls   []types.ToolCall
	ToolResults map[string]any

	Answer string

	Safety         *types.SafetyValidation
	ShouldRefuse   bool
	RefusalMessage string

	Stage       string
	AuditEvents []types.AuditEvent

	StartedAt time.Time
	EndedAt   time.Time
}

func NewState(requestID, sessionID, query string, topK int) *State {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &State{
		RequestID:   requestID,
		SessionID:   sessionID,
		Query:       query,
		TopK:        topK,
		ToolResults: map[string]any{},
		Stage:       types.StageStart,
		StartedAt:   time.Now().UTC(),
	}
}

// AddEvent appends one execution record to the trail. Seq is assigned here
// so events stay ordered even when a stage emits more than one.
func (s *State) AddEvent(stage, eventType string, data map[string]any, duration time.Duration) {
	raw, _ := json.Marshal(data)
	s.AuditEvents = append(s.AuditEvents, types.AuditEvent{
		RequestID:  s.RequestID,
		SessionID:  s.SessionID,
		Seq:        len(s.AuditEvents) + 1,
		Stage:      stage,
		EventType:  eventType,
		Data:       datatypes.JSON(raw),
		DurationMS: float64(duration) / float64(time.Millisecond),
		CreatedAt:  time.Now().UTC(),
	})
}

// TotalDuration is the wall time of the run so far, final once EndedAt is
// set.
func (s *State) TotalDuration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

func (s *State) DurationMS() float64 {
	return float64(s.TotalDuration()) / float64(time.Millisecond)
}

// Result flattens the final state into the shape handed back to callers.
func (s *State) Result() types.QueryResult {
	citations := s.Citations
	if citations == nil {
		citations = []types.Citation{}
	}
	toolCalls := s.ToolCalls
	if toolCalls == nil {
		toolCalls = []types.ToolCall{}
	}
	return types.QueryResult{
		RequestID:     s.RequestID,
		SessionID:     s.SessionID,
		Query:         s.Query,
		Intent:        s.Intent,
		Answer:        s.Answer,
		Refused:       s.ShouldRefuse,
		RefusalReason: s.RefusalMessage,
		Citations:     citations,
		Safety:        s.Safety,
		ToolCalls:     toolCalls,
		LatencyMS:     s.TotalDuration().Milliseconds(),
	}
}
