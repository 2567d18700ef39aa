package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/clinvault/clinvault-backend/internal/agent"
	"github.com/clinvault/clinvault-backend/internal/data/repos"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

const judgeSystemPrompt = "You are an impartial grader for a question answering system. Output only a number between 0.0 and 1.0."

// Evaluator replays a dataset through the pipeline and scores the
// results. The judge and run store are optional: without a judge only
// keyword scoring runs, and without a store the report is not persisted.
type Evaluator struct {
	log          *logger.Logger
	orchestrator agent.Orchestrator
	judge        openai.TextGenerator
	runs         repos.EvalRunRepo
}

func NewEvaluator(baseLog *logger.Logger, orchestrator agent.Orchestrator, judge openai.TextGenerator, runs repos.EvalRunRepo) *Evaluator {
	return &Evaluator{
		log:          baseLog.With("component", "Evaluator"),
		orchestrator: orchestrator,
		judge:        judge,
		runs:         runs,
	}
}

// Run pushes every sample through the pipeline one at a time, the way
// live traffic arrives, and rolls the scored predictions into a report.
func (e *Evaluator) Run(ctx context.Context, datasetName string, ds *Dataset) (*Report, error) {
	if ds == nil || len(ds.Samples) == 0 {
		return nil, fmt.Errorf("dataset %q has no samples", datasetName)
	}

	e.log.Info("Starting evaluation", "dataset", datasetName, "samples", len(ds.Samples))

	preds := make([]Prediction, 0, len(ds.Samples))
	for i, sample := range ds.Samples {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation aborted at sample %d: %w", i, err)
		}

		started := time.Now()
		state := agent.NewState(utils.NewRequestID(), utils.NewSessionID(), sample.Question, 0)
		final := e.orchestrator.Execute(ctx, state)
		result := final.Result()

		pred := scoreSample(sample, result)
		pred.LatencyMS = float64(time.Since(started)) / float64(time.Millisecond)
		if e.judge != nil && sample.ExpectedAnswer != "" && !result.Refused {
			score := e.judgeCorrectness(ctx, sample.ExpectedAnswer, result.Answer)
			pred.LLMCorrectness = &score
		}
		preds = append(preds, pred)

		e.log.Debug("Sample evaluated", "index", i, "refused", pred.Refused, "correct", pred.Correct)
	}

	report := &Report{
		Dataset:     datasetName,
		Metrics:     Summarize(preds),
		Predictions: preds,
	}
	e.persist(ctx, report)

	e.log.Info("Evaluation finished",
		"dataset", datasetName,
		"accuracy", report.Metrics.Accuracy,
		"refused", report.Metrics.Refused,
		"keyword_hit_rate", report.Metrics.KeywordHitRate)
	return report, nil
}

// scoreSample applies the keyword rubric to one result. A sample that
// expects a refusal is correct when the pipeline refused; any other
// sample is correct when it was answered and every expected keyword
// appears in the answer. Samples with no keywords count as correct when
// answered at all.
func scoreSample(sample Sample, result types.QueryResult) Prediction {
	pred := Prediction{
		Question:       sample.Question,
		Answer:         result.Answer,
		Refused:        result.Refused,
		ExpectRefusal:  sample.ExpectRefusal,
		KeywordsWanted: len(sample.ExpectedKeywords),
		NumCitations:   len(result.Citations),
	}
	if result.Safety != nil {
		pred.GroundingScore = result.Safety.GroundingScore
		pred.ConfidenceScore = result.Safety.ConfidenceScore
	}

	answer := strings.ToLower(result.Answer)
	for _, kw := range sample.ExpectedKeywords {
		if strings.Contains(answer, strings.ToLower(kw)) {
			pred.KeywordsHit++
		} else {
			pred.MissingKeywords = append(pred.MissingKeywords, kw)
		}
	}

	switch {
	case sample.ExpectRefusal:
		pred.Correct = result.Refused
	case result.Refused:
		pred.Correct = false
	default:
		pred.Correct = pred.KeywordsHit == pred.KeywordsWanted
	}
	return pred
}

// judgeCorrectness asks the judge model how close the predicted answer
// is to the reference. Failures fall back to a neutral 0.5 so one flaky
// call cannot sink a run.
func (e *Evaluator) judgeCorrectness(ctx context.Context, expected, predicted string) float64 {
	user := fmt.Sprintf("Compare the predicted answer with the expected answer and rate their semantic similarity on a scale of 0.0 to 1.0.\n"+
		"1.0 means they convey the same meaning, 0.0 means completely different.\n\n"+
		"Expected Answer: %s\n\nPredicted Answer: %s\n\nOutput only a number between 0.0 and 1.0:", expected, predicted)

	raw, err := e.judge.GenerateText(ctx, judgeSystemPrompt, user)
	if err != nil {
		e.log.Warn("Correctness judgment failed", "error", err)
		return 0.5
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		e.log.Warn("Judge returned a non-numeric score", "raw", raw)
		return 0.5
	}
	return math.Max(0, math.Min(1, score))
}

// persist writes the run to the database when a store is wired. A failed
// write is logged and swallowed; the report still goes back to the
// caller.
func (e *Evaluator) persist(ctx context.Context, report *Report) {
	if e.runs == nil {
		return
	}
	metricsJSON, err := json.Marshal(report.Metrics)
	if err != nil {
		e.log.Error("Failed to marshal eval metrics", "error", err)
		return
	}
	run := &types.EvalRun{
		Dataset:          report.Dataset,
		Total:            report.Metrics.TotalSamples,
		Correct:          report.Metrics.Correct,
		Refused:          report.Metrics.Refused,
		ExpectedRefusals: report.Metrics.ExpectedRefusals,
		Metrics:          datatypes.JSON(metricsJSON),
	}
	saved, err := e.runs.Create(ctx, nil, run)
	if err != nil {
		e.log.Error("Failed to persist eval run", "error", err)
		return
	}
	e.log.Info("Eval run persisted", "id", saved.ID, "dataset", saved.Dataset)
}
