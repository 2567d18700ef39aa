package safety

import "regexp"

// Finding describes one PHI type present in a piece of text.
type Finding struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

type phiPattern struct {
	phiType string
	re      *regexp.Regexp
	token   string
}

// Masking runs the table top to bottom and each pattern sees the text the
// previous one rewrote. A bare ten-digit MRN is claimed by the phone
// pattern before the MRN pattern ever sees it.
var phiPatterns = []phiPattern{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{"phone", regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE_REDACTED]"},
	{"phone", regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`), "[PHONE_REDACTED]"},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{"mrn", regexp.MustCompile(`(?i)\bMRN[:\s]*\d{6,10}\b`), "[MRN_REDACTED]"},
	{"dob", regexp.MustCompile(`(?i)\b(?:DOB|Date of Birth)[:\s]*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), "[DOB_REDACTED]"},
}

var phiTypeDetails = map[string]Finding{
	"email": {Type: "email", Confidence: 0.95, Description: "Email address detected"},
	"phone": {Type: "phone", Confidence: 0.90, Description: "Phone number detected"},
	"ssn":   {Type: "ssn", Confidence: 0.98, Description: "Social Security Number detected"},
	"mrn":   {Type: "mrn", Confidence: 0.92, Description: "Medical Record Number detected"},
	"dob":   {Type: "dob", Confidence: 0.85, Description: "Date of Birth detected"},
}

// MaskPHI replaces PHI occurrences with fixed redaction tokens and reports
// which types were found, deduplicated in detection order.
func MaskPHI(text string) (string, []string) {
	masked := text
	found := []string{}
	seen := map[string]bool{}
	for _, p := range phiPatterns {
		if !p.re.MatchString(masked) {
			continue
		}
		if !seen[p.phiType] {
			seen[p.phiType] = true
			found = append(found, p.phiType)
		}
		masked = p.re.ReplaceAllString(masked, p.token)
	}
	return masked, found
}

// ContainsPHI reports whether masking would change the text.
func ContainsPHI(text string) bool {
	_, found := MaskPHI(text)
	return len(found) > 0
}

// DetectPHI scans text without rewriting it and returns one finding per
// PHI type present.
func DetectPHI(text string) []Finding {
	findings := []Finding{}
	seen := map[string]bool{}
	for _, p := range phiPatterns {
		if seen[p.phiType] || !p.re.MatchString(text) {
			continue
		}
		seen[p.phiType] = true
		findings = append(findings, phiTypeDetails[p.phiType])
	}
	return findings
}
