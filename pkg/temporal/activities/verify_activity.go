package activities

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verifier"
)

// Activities holds activity implementations
type Activities struct {
	DB            *database.DB
	Opener        verifier.Opener
	ScreenshotDir string
}

// NewActivities creates new activities. db may be nil.
func NewActivities(db *database.DB, opener verifier.Opener, screenshotDir string) *Activities {
	return &Activities{
		DB:            db,
		Opener:        opener,
		ScreenshotDir: screenshotDir,
	}
}

// VerifyPagesActivity runs a verification plan in a fresh browser session
func (a *Activities) VerifyPagesActivity(ctx context.Context, input models.VerifyInput) (models.RunResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running page verification", "runID", input.RunID, "plan", input.Plan.Name, "steps", len(input.Plan.Steps))

	plan := input.Plan
	if plan.OutputDir == "" {
		plan.OutputDir = a.ScreenshotDir
	}

	if a.DB != nil {
		if err := a.DB.UpdateRunStatus(ctx, input.RunID, models.StatusRunning, ""); err != nil {
			logger.Warn("Failed to mark run as running", "runID", input.RunID, "error", err)
		}
	}

	var out lineLog
	v := verifier.New(a.Opener, &out, verifier.WithReporter(func(sr models.StepResult) {
		// Heartbeat for long-running plans
		activity.RecordHeartbeat(ctx, fmt.Sprintf("Completed step %d", sr.SequenceID))

		if a.DB == nil {
			return
		}
		sr.ID = uuid.New().String()
		if err := a.DB.SaveStepResult(ctx, &sr); err != nil {
			logger.Warn("Failed to save step result", "runID", sr.RunID, "sequence", sr.SequenceID, "error", err)
		}
	}))

	result := v.Run(ctx, input.RunID, plan)

	for _, line := range out.Lines() {
		logger.Info(line, "runID", input.RunID)
	}

	if a.DB != nil {
		if err := a.DB.CompleteRun(ctx, result); err != nil {
			logger.Warn("Failed to complete run", "runID", input.RunID, "error", err)
		}
	}

	logger.Info("Page verification finished", "runID", input.RunID, "status", result.Status)
	return result, nil
}

// lineLog collects verifier progress lines
type lineLog struct {
	mu  sync.Mutex
	buf strings.Builder
}

var _ io.Writer = (*lineLog)(nil)

func (l *lineLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lineLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := strings.TrimRight(l.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
