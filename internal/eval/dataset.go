package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Sample is one golden question. Scoring is keyword based: a sample
// passes when the answer contains every expected keyword, or when an
// expected refusal actually refused. ExpectedAnswer additionally enables
// the LLM correctness judge when one is configured.
type Sample struct {
	Question         string   `json:"question"`
	ExpectedKeywords []string `json:"expected_keywords,omitempty"`
	ExpectRefusal    bool     `json:"expect_refusal,omitempty"`
	ExpectedAnswer   string   `json:"expected_answer,omitempty"`
	SourceChunkID    string   `json:"source_chunk_id,omitempty"`
}

type Metadata struct {
	GeneratedAt  string `json:"generated_at,omitempty"`
	Description  string `json:"description,omitempty"`
	NumSamples   int    `json:"num_samples,omitempty"`
	NumDocuments int    `json:"num_documents,omitempty"`
}

type Dataset struct {
	Metadata Metadata `json:"metadata"`
	Samples  []Sample `json:"samples"`
}

// LoadDataset reads and validates a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(ds.Samples) == 0 {
		return nil, fmt.Errorf("dataset %s has no samples", path)
	}
	for i, s := range ds.Samples {
		if strings.TrimSpace(s.Question) == "" {
			return nil, fmt.Errorf("dataset %s: sample %d has a blank question", path, i)
		}
	}
	return &ds, nil
}
