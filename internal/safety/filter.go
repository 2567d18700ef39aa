package safety

import (
	"strings"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

const medicalDisclaimer = "\n\n**Medical Disclaimer**: This information is for educational purposes only " +
	"and is not a substitute for professional medical advice, diagnosis, or treatment. " +
	"Always seek the advice of your physician or other qualified health provider " +
	"with any questions you may have regarding a medical condition."

// ContentFilter decorates clinical answers and screens text for direct
// medical advice the system must not give.
type ContentFilter struct {
	rules *Rules
	log   *logger.Logger
}

func NewContentFilter(log *logger.Logger) *ContentFilter {
	return &ContentFilter{
		rules: currentRules(log),
		log:   log.With("component", "content_filter"),
	}
}

// AddMedicalDisclaimer appends the standard disclaimer when the answer
// reads as clinical. Non-clinical answers pass through unchanged.
func (f *ContentFilter) AddMedicalDisclaimer(answer string) string {
	lower := strings.ToLower(answer)
	for _, kw := range f.rules.MedicalKeywords {
		if strings.Contains(lower, kw) {
			return answer + medicalDisclaimer
		}
	}
	return answer
}

// IsSafe reports whether text is free of direct-advice phrasing.
func (f *ContentFilter) IsSafe(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range f.rules.UnsafePhrases {
		if strings.Contains(lower, phrase) {
			f.log.Warn("Unsafe content detected", "phrase", phrase)
			return false
		}
	}
	return true
}
