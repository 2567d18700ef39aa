package tools

import (
	"context"
	"errors"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/safety"
)

// Detection is the PHI scan result returned to tool callers.
type Detection struct {
	HasPHI        bool             `json:"has_phi"`
	DetectedTypes []safety.Finding `json:"detected_types"`
	Count         int              `json:"count"`
}

// PHIDetector scans text for protected health information using the same
// pattern families the masking screen applies.
type PHIDetector struct {
	log *logger.Logger
}

func NewPHIDetector(log *logger.Logger) *PHIDetector {
	return &PHIDetector{log: log.With("component", "phi_detector_tool")}
}

func (d *PHIDetector) Name() string { return "phi_detector" }

func (d *PHIDetector) Description() string {
	return "Detect Protected Health Information (PHI) and Personally Identifiable Information (PII) in text"
}

func (d *PHIDetector) Execute(ctx context.Context, args map[string]any) (any, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, errors.New("missing argument: text")
	}

	d.log.Info("PHI detector called", "text_length", len(text))

	findings := safety.DetectPHI(text)
	return Detection{
		HasPHI:        len(findings) > 0,
		DetectedTypes: findings,
		Count:         len(findings),
	}, nil
}
