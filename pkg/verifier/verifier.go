// Package verifier drives a headless browser through a verification plan
// and stores full-page screenshots for later inspection.
//
// A run is best effort. Failures are printed as "Error: ..." and recorded in
// the returned RunResult; they are never returned to the caller.
package verifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dev/bravebird/page-verifier/pkg/models"
)

// Reporter receives each step result as soon as the step finishes
type Reporter func(models.StepResult)

// Verifier runs plans against a browser session
type Verifier struct {
	open     Opener
	out      io.Writer
	reporter Reporter
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Verifier
type Option func(*Verifier)

// WithReporter sets the step result callback
func WithReporter(r Reporter) Option {
	return func(v *Verifier) {
		v.reporter = r
	}
}

// New creates a verifier printing progress lines to out
func New(open Opener, out io.Writer, opts ...Option) *Verifier {
	v := &Verifier{
		open:  open,
		out:   out,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.out == nil {
		v.out = io.Discard
	}
	return v
}

// Run executes plan inside a scoped browser session.
// The session is closed on every exit path.
func (v *Verifier) Run(ctx context.Context, runID string, plan models.Plan) models.RunResult {
	startTime := time.Now()

	result := models.RunResult{
		RunID:       runID,
		PlanName:    plan.Name,
		Status:      models.StatusRunning,
		StepResults: make([]models.StepResult, 0, len(plan.Steps)),
		Screenshots: []string{},
	}

	err := WithSession(ctx, v.open, func(s Session) error {
		page, err := s.NewPage(ctx)
		if err != nil {
			return err
		}

		r := &runner{
			Verifier: v,
			page:     page,
			plan:     plan,
			result:   &result,
		}
		return r.execute(ctx, plan.Steps)
	})

	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = err.Error()
		fmt.Fprintf(v.out, "Error: %v\n", err)
	} else {
		result.Status = models.StatusSuccess
	}

	result.TotalDuration = time.Since(startTime).Milliseconds()
	return result
}

// runner holds the state of one plan execution
type runner struct {
	*Verifier
	page   Page
	plan   models.Plan
	result *models.RunResult
	seq    int
}

func (r *runner) execute(ctx context.Context, steps []models.Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) step(ctx context.Context, step models.Step) error {
	r.seq++
	now := time.Now()
	sr := models.StepResult{
		RunID:      r.result.RunID,
		SequenceID: r.seq,
		StepType:   step.Type,
		Status:     models.StatusRunning,
		ExecutedAt: &now,
	}

	found, err := r.do(ctx, step, &sr)
	sr.Duration = time.Since(now).Milliseconds()

	if err != nil {
		sr.Status = models.StatusFailed
		sr.ErrorMessage = err.Error()
		r.record(sr)
		return fmt.Errorf("%s step %d: %w", step.Type, sr.SequenceID, err)
	}

	sr.Status = models.StatusSuccess
	if sr.Message != "" {
		fmt.Fprintln(r.out, sr.Message)
	}
	r.record(sr)

	if step.Type != models.StepProbe {
		return nil
	}
	if found {
		return r.execute(ctx, step.OnFound)
	}
	r.skip(step.OnFound)
	return nil
}

// do performs the browser work of a step. found is only meaningful for probes.
func (r *runner) do(ctx context.Context, step models.Step, sr *models.StepResult) (found bool, err error) {
	switch step.Type {
	case models.StepNavigate:
		sr.Message = step.Message
		return false, r.page.Navigate(ctx, ResolveURL(r.plan.BaseURL, step.URL))

	case models.StepScreenshot:
		path, err := r.screenshot(ctx, step.Path)
		if err != nil {
			return false, err
		}
		sr.ScreenshotPath = path
		sr.Message = step.Message
		return false, nil

	case models.StepProbe:
		found, err := r.page.Has(ctx, Selector(step.Target))
		if err != nil {
			return false, err
		}
		if found {
			sr.Message = step.FoundMessage
		} else {
			sr.Message = step.MissingMessage
		}
		return found, nil

	case models.StepClick:
		sr.Message = step.Message
		return false, r.page.Click(ctx, Selector(step.Target))

	case models.StepWait:
		return false, r.sleep(ctx, step.Delay())

	default:
		return false, fmt.Errorf("unsupported step type: %s", step.Type)
	}
}

func (r *runner) screenshot(ctx context.Context, name string) (string, error) {
	data, err := r.page.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	dir := r.plan.OutputDir
	if dir == "" {
		dir = "."
	}
	// Created lazily so a run failing before its first capture leaves no trace
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}

	r.result.Screenshots = append(r.result.Screenshots, path)
	return path, nil
}

// skip records steps of a probe whose element was absent
func (r *runner) skip(steps []models.Step) {
	for _, step := range steps {
		r.seq++
		r.record(models.StepResult{
			RunID:      r.result.RunID,
			SequenceID: r.seq,
			StepType:   step.Type,
			Status:     models.StatusSkipped,
		})
		r.skip(step.OnFound)
	}
}

func (r *runner) record(sr models.StepResult) {
	r.result.StepResults = append(r.result.StepResults, sr)
	if r.reporter != nil {
		r.reporter(sr)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
