package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clinvault/clinvault-backend/internal/app"
	"github.com/clinvault/clinvault-backend/internal/eval"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
)

func main() {
	var datasetPath string
	var datasetName string
	flag.StringVar(&datasetPath, "dataset", "", "path to the evaluation dataset JSON")
	flag.StringVar(&datasetName, "name", "", "dataset name recorded with the run (defaults to the file name)")
	flag.Parse()

	if strings.TrimSpace(datasetPath) == "" {
		fmt.Println("usage: evalrun -dataset <path> [-name <dataset name>]")
		os.Exit(2)
	}
	if strings.TrimSpace(datasetName) == "" {
		base := filepath.Base(datasetPath)
		datasetName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	log := application.Log

	ds, err := eval.LoadDataset(datasetPath)
	if err != nil {
		fmt.Printf("load dataset: %v\n", err)
		os.Exit(1)
	}

	// The judge runs at temperature zero with a tiny output cap; without
	// an API key scoring falls back to keyword overlap.
	var judge openai.TextGenerator
	if client, jerr := openai.NewClient(log); jerr == nil {
		judge = openai.WithMaxOutputTokens(openai.WithTemperature(client, 0), 10)
	} else {
		log.Warn("LLM judge disabled; scoring by keyword overlap only", "error", jerr)
	}

	evaluator := eval.NewEvaluator(log, application.Services.Orchestrator, judge, application.Repos.EvalRun)

	report, err := evaluator.Run(context.Background(), datasetName, ds)
	if err != nil {
		fmt.Printf("run evaluation: %v\n", err)
		os.Exit(1)
	}

	if err := report.WriteSummary(os.Stdout); err != nil {
		fmt.Printf("write summary: %v\n", err)
		os.Exit(1)
	}
}
