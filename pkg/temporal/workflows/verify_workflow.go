package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/page-verifier/pkg/models"
)

const (
	// TaskQueue is served by cmd/worker
	TaskQueue = "page-verification"
	// VerifyPagesActivityName is the registered name of the verification activity
	VerifyPagesActivityName = "VerifyPagesActivity"
	// ProgressQuery returns the latest RunResult of a running workflow
	ProgressQuery = "getProgress"

	defaultTimeoutSeconds = 300
)

// WorkflowID returns the Temporal workflow id used for a run
func WorkflowID(runID string) string {
	return "page-verification-" + runID
}

// VerifyPagesWorkflow runs one verification plan and always completes with
// a RunResult. Activity failures are reported in the result, not returned.
func VerifyPagesWorkflow(ctx workflow.Context, input models.VerifyInput) (models.RunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting page verification workflow", "runID", input.RunID, "plan", input.Plan.Name)

	result := models.RunResult{
		RunID:       input.RunID,
		PlanName:    input.Plan.Name,
		Status:      models.StatusRunning,
		StepResults: []models.StepResult{},
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.RunResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	timeout := input.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}

	// Verification runs are never retried
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(timeout) * time.Second,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	startTime := workflow.Now(ctx)

	var activityResult models.RunResult
	err = workflow.ExecuteActivity(ctx, VerifyPagesActivityName, input).Get(ctx, &activityResult)
	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = "Verification activity failed: " + err.Error()
		result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()
		logger.Warn("Verification activity failed", "error", err)
		return result, nil
	}

	result = activityResult
	logger.Info("Workflow completed", "status", result.Status, "screenshots", len(result.Screenshots))
	return result, nil
}
