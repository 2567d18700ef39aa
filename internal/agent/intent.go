package agent

import (
	"strings"

	types "github.com/clinvault/clinvault-backend/internal/domain"
)

// Keyword routing per tool. Substring matching on the lowered query keeps
// classification deterministic and model-free.
var intentToolKeywords = map[string][]string{
	"calculator":   {"calculate", "compute", "add", "subtract", "multiply", "divide", "sum"},
	"phi_detector": {"phi", "pii", "personal information", "protected health", "privacy"},
}

// ClassifyIntent maps a query to a pipeline route. Document questions always
// retrieve, so the tool_call-only route exists in the type but is never
// produced here; tool keywords upgrade the route to both.
func ClassifyIntent(query string) string {
	lower := strings.ToLower(query)

	needsTool := false
	for _, keywords := range intentToolKeywords {
		if containsAny(lower, keywords) {
			needsTool = true
			break
		}
	}

	if needsTool {
		return types.IntentBoth
	}
	return types.IntentRetrieve
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
