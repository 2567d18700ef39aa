package safety

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Thresholds applied when the caller leaves Config fields zero.
const (
	DefaultGroundingThreshold  = 0.7
	DefaultConfidenceThreshold = 0.6
	DefaultMaxInjectionScore   = 0.8
)

var specialCharRE = regexp.MustCompile(`[<>|{}\[\]]`)

// Config carries the screening thresholds. Zero values fall back to the
// package defaults.
type Config struct {
	GroundingThreshold  float64
	ConfidenceThreshold float64
	MaxInjectionScore   float64
}

// Validator screens queries before retrieval and answers before they leave
// the pipeline. Validate never errors; a query it cannot clear comes back
// rejected with the reason in the flags.
type Validator interface {
	Validate(query, answer string, citations []types.Citation) types.SafetyValidation
	DetectPromptInjection(text string) float64
	CheckGrounding(citations []types.Citation) float64
	AssessConfidence(answer string, citations []types.Citation) float64
	ApplyRefusalPolicy(validation types.SafetyValidation) (bool, string)
}

type validator struct {
	groundingThreshold  float64
	confidenceThreshold float64
	maxInjectionScore   float64
	rules               *Rules
	log                 *logger.Logger
}

func NewValidator(cfg Config, log *logger.Logger) Validator {
	if cfg.GroundingThreshold <= 0 {
		cfg.GroundingThreshold = DefaultGroundingThreshold
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxInjectionScore <= 0 {
		cfg.MaxInjectionScore = DefaultMaxInjectionScore
	}
	return &validator{
		groundingThreshold:  cfg.GroundingThreshold,
		confidenceThreshold: cfg.ConfidenceThreshold,
		maxInjectionScore:   cfg.MaxInjectionScore,
		rules:               currentRules(log),
		log:                 log.With("service", "SafetyValidator"),
	}
}

// Validate runs the full screen: injection on the query, then grounding,
// confidence and PHI on the answer. Injection and grounding failures reject
// outright; the rest downgrade the decision to a warning.
func (v *validator) Validate(query, answer string, citations []types.Citation) types.SafetyValidation {
	flags := []string{}

	injection := v.DetectPromptInjection(query)
	if injection > v.maxInjectionScore {
		flags = append(flags, fmt.Sprintf("prompt_injection_detected:%.2f", injection))
		v.log.Warn("Query rejected by injection screen", "injection_score", injection)
		return types.SafetyValidation{
			Decision:       types.DecisionRejected,
			InjectionScore: injection,
			Flags:          flags,
			Message:        "Query rejected due to potential prompt injection",
		}
	}

	grounding := v.CheckGrounding(citations)
	if grounding < v.groundingThreshold {
		flags = append(flags, fmt.Sprintf("low_grounding:%.2f", grounding))
		v.log.Warn("Answer rejected for weak grounding", "grounding_score", grounding, "citations", len(citations))
		return types.SafetyValidation{
			Decision:       types.DecisionRejected,
			GroundingScore: grounding,
			InjectionScore: injection,
			Flags:          flags,
			Message:        "Insufficient evidence to answer this question",
		}
	}

	confidence := v.AssessConfidence(answer, citations)
	if confidence < v.confidenceThreshold {
		flags = append(flags, fmt.Sprintf("low_confidence:%.2f", confidence))
	}
	if ContainsPHI(answer) {
		flags = append(flags, "phi_detected")
	}

	out := types.SafetyValidation{
		Decision:        types.DecisionApproved,
		ConfidenceScore: confidence,
		GroundingScore:  grounding,
		InjectionScore:  injection,
		Flags:           flags,
	}
	if len(flags) > 0 {
		out.Decision = types.DecisionWarning
		out.Message = "Review safety flags"
	}
	v.log.Debug("Safety validation complete", "decision", out.Decision, "flags", len(flags))
	return out
}

// DetectPromptInjection scores how much text reads like an attempt to
// steer the model, between 0 and 1. Each pattern hit adds 0.3; special
// character density and stacked instruction verbs add smaller bumps.
func (v *validator) DetectPromptInjection(text string) float64 {
	score := 0.0
	lower := strings.ToLower(text)

	for _, p := range v.rules.InjectionPatterns {
		if p.MatchString(lower) {
			score += 0.3
		}
	}

	length := utf8.RuneCountInString(text)
	if length < 1 {
		length = 1
	}
	specials := len(specialCharRE.FindAllStringIndex(text, -1))
	score += math.Min(float64(specials)/float64(length)*2, 0.3)

	hits := 0
	for _, kw := range v.rules.InstructionKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits >= 3 {
		score += 0.2
	}

	return math.Min(score, 1.0)
}

// CheckGrounding takes the best citation similarity as the grounding score.
func (v *validator) CheckGrounding(citations []types.Citation) float64 {
	if len(citations) == 0 {
		return 0.0
	}
	max := citations[0].Similarity
	for _, c := range citations[1:] {
		if c.Similarity > max {
			max = c.Similarity
		}
	}
	return max
}

// AssessConfidence combines grounding with answer shape: very short answers
// and hedged language pull the score down.
func (v *validator) AssessConfidence(answer string, citations []types.Citation) float64 {
	grounding := v.CheckGrounding(citations)
	lengthFactor := math.Min(float64(utf8.RuneCountInString(answer))/50, 1.0)

	lower := strings.ToLower(answer)
	hedges := 0
	for _, term := range v.rules.HedgeTerms {
		if strings.Contains(lower, term) {
			hedges++
		}
	}
	penalty := math.Min(float64(hedges)*0.1, 0.3)

	confidence := grounding * lengthFactor * (1 - penalty)
	return math.Min(math.Max(confidence, 0.0), 1.0)
}

// ApplyRefusalPolicy maps a validation onto the refuse/serve decision and
// the message shown in place of the answer when refusing.
func (v *validator) ApplyRefusalPolicy(validation types.SafetyValidation) (bool, string) {
	if validation.Decision == types.DecisionRejected {
		if validation.Message != "" {
			return true, validation.Message
		}
		return true, "Unable to provide a safe response"
	}
	if validation.GroundingScore < v.groundingThreshold {
		return true, "I don't have sufficient information in the documents to answer this question accurately."
	}
	if validation.ConfidenceScore < v.confidenceThreshold {
		return true, "I'm not confident enough in my answer to provide a response. Please rephrase your question or consult original documents."
	}
	return false, ""
}
