package eval

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
)

// Prediction records one sample's trip through the pipeline, scored.
type Prediction struct {
	Question        string   `json:"question"`
	Answer          string   `json:"predicted_answer"`
	Refused         bool     `json:"was_refused"`
	ExpectRefusal   bool     `json:"expect_refusal"`
	Correct         bool     `json:"correct"`
	KeywordsHit     int      `json:"keywords_hit"`
	KeywordsWanted  int      `json:"keywords_wanted"`
	MissingKeywords []string `json:"missing_keywords,omitempty"`
	NumCitations    int      `json:"num_citations"`
	GroundingScore  float64  `json:"grounding_score"`
	ConfidenceScore float64  `json:"confidence_score"`
	LLMCorrectness  *float64 `json:"llm_correctness,omitempty"`
	LatencyMS       float64  `json:"latency_ms"`
}

// Metrics aggregates one evaluation run. Means of grounding, confidence
// and judged correctness cover answered samples only, since refusals
// carry zero scores that would drag the means.
type Metrics struct {
	TotalSamples     int     `json:"total_samples"`
	Correct          int     `json:"correct"`
	Accuracy         float64 `json:"accuracy"`
	KeywordHitRate   float64 `json:"keyword_hit_rate"`
	Refused          int     `json:"refused"`
	ExpectedRefusals int     `json:"expected_refusals"`
	RefusalPrecision float64 `json:"refusal_precision"`
	RefusalRecall    float64 `json:"refusal_recall"`
	MeanGrounding    float64 `json:"mean_grounding"`
	MeanConfidence   float64 `json:"mean_confidence"`
	MeanCorrectness  float64 `json:"llm_correctness_avg,omitempty"`
	LatencyP50MS     float64 `json:"latency_p50_ms"`
	LatencyP95MS     float64 `json:"latency_p95_ms"`
	LatencyP99MS     float64 `json:"latency_p99_ms"`
}

// Report is the full outcome of one run: the rollup plus every
// per-sample prediction.
type Report struct {
	Dataset     string       `json:"dataset"`
	Metrics     Metrics      `json:"metrics"`
	Predictions []Prediction `json:"predictions"`
}

// Summarize rolls predictions up into run metrics.
func Summarize(preds []Prediction) Metrics {
	m := Metrics{TotalSamples: len(preds)}
	if len(preds) == 0 {
		return m
	}

	var (
		keywordsHit    int
		keywordsWanted int
		truePositives  int

		groundingSum  float64
		confidenceSum float64
		answered      int

		judgeSum float64
		judged   int

		latencies = make([]float64, 0, len(preds))
	)

	for _, p := range preds {
		if p.Correct {
			m.Correct++
		}
		if p.Refused {
			m.Refused++
		}
		if p.ExpectRefusal {
			m.ExpectedRefusals++
		}
		if p.Refused && p.ExpectRefusal {
			truePositives++
		}
		keywordsHit += p.KeywordsHit
		keywordsWanted += p.KeywordsWanted
		if !p.Refused {
			groundingSum += p.GroundingScore
			confidenceSum += p.ConfidenceScore
			answered++
		}
		if p.LLMCorrectness != nil {
			judgeSum += *p.LLMCorrectness
			judged++
		}
		latencies = append(latencies, p.LatencyMS)
	}

	m.Accuracy = float64(m.Correct) / float64(m.TotalSamples)
	if keywordsWanted > 0 {
		m.KeywordHitRate = float64(keywordsHit) / float64(keywordsWanted)
	}
	if m.Refused > 0 {
		m.RefusalPrecision = float64(truePositives) / float64(m.Refused)
	} else {
		m.RefusalPrecision = 1.0
	}
	if m.ExpectedRefusals > 0 {
		m.RefusalRecall = float64(truePositives) / float64(m.ExpectedRefusals)
	} else {
		m.RefusalRecall = 1.0
	}
	if answered > 0 {
		m.MeanGrounding = groundingSum / float64(answered)
		m.MeanConfidence = confidenceSum / float64(answered)
	}
	if judged > 0 {
		m.MeanCorrectness = judgeSum / float64(judged)
	}

	sort.Float64s(latencies)
	m.LatencyP50MS = percentile(latencies, 50)
	m.LatencyP95MS = percentile(latencies, 95)
	m.LatencyP99MS = percentile(latencies, 99)
	return m
}

// percentile interpolates linearly between ranks over a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// WriteSummary renders the run as an aligned console table.
func (r *Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "dataset\t%s\n", r.Dataset)
	fmt.Fprintf(tw, "samples\t%d\n", r.Metrics.TotalSamples)
	fmt.Fprintf(tw, "correct\t%d (%.1f%%)\n", r.Metrics.Correct, r.Metrics.Accuracy*100)
	fmt.Fprintf(tw, "keyword hit rate\t%.3f\n", r.Metrics.KeywordHitRate)
	fmt.Fprintf(tw, "refused\t%d (expected %d)\n", r.Metrics.Refused, r.Metrics.ExpectedRefusals)
	fmt.Fprintf(tw, "refusal precision\t%.3f\n", r.Metrics.RefusalPrecision)
	fmt.Fprintf(tw, "refusal recall\t%.3f\n", r.Metrics.RefusalRecall)
	fmt.Fprintf(tw, "mean grounding\t%.3f\n", r.Metrics.MeanGrounding)
	fmt.Fprintf(tw, "mean confidence\t%.3f\n", r.Metrics.MeanConfidence)
	if r.Metrics.MeanCorrectness > 0 {
		fmt.Fprintf(tw, "llm correctness\t%.3f\n", r.Metrics.MeanCorrectness)
	}
	fmt.Fprintf(tw, "latency p50/p95/p99\t%.0fms / %.0fms / %.0fms\n",
		r.Metrics.LatencyP50MS, r.Metrics.LatencyP95MS, r.Metrics.LatencyP99MS)
	return tw.Flush()
}
