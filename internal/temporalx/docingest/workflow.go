package docingest

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow drives one staged upload through the ingest activity. All IO
// lives on the activity side; the workflow only relays the staging key
// and the result, so replay stays deterministic. Retries are safe
// because document ids derive from the filename and ingest upserts.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	var out Result
	if strings.TrimSpace(in.StorageKey) == "" {
		return out, fmt.Errorf("docingest: missing storage_key")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	if err := workflow.ExecuteActivity(ctx, ActivityIngest, in).Get(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}
