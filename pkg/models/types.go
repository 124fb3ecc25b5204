package models

import (
	"time"
)

// ==================== Plan Types ====================

// Plan is an ordered verification script run against one site
type Plan struct {
	Name      string `json:"name" yaml:"name"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	Steps     []Step `json:"steps" yaml:"steps"`
}

// StepType represents the kind of verification step
type StepType string

const (
	StepNavigate   StepType = "navigate"   // Navigate and wait for network idle
	StepScreenshot StepType = "screenshot" // Full-page PNG capture
	StepProbe      StepType = "probe"      // Element presence check
	StepClick      StepType = "click"      // Left click
	StepWait       StepType = "wait"       // Fixed delay
)

// Step is a single instruction of a plan
type Step struct {
	Type    StepType `json:"type" yaml:"type"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
	Path    string   `json:"path,omitempty" yaml:"path,omitempty"`
	Target  *Target  `json:"target,omitempty" yaml:"target,omitempty"`
	DelayMS int      `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`

	// Probe only
	FoundMessage   string `json:"found_message,omitempty" yaml:"found_message,omitempty"`
	MissingMessage string `json:"missing_message,omitempty" yaml:"missing_message,omitempty"`
	OnFound        []Step `json:"on_found,omitempty" yaml:"on_found,omitempty"`
}

// Delay returns the wait duration of a wait step
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayMS) * time.Millisecond
}

// Target describes the element a probe or click acts on
type Target struct {
	Tag        string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Selector   string            `json:"selector,omitempty" yaml:"selector,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ==================== Run Types ====================

// RunStatus represents the status of a verification run or step
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusSkipped  RunStatus = "skipped"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further updates will follow
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// StepResult is the outcome of executing one step
type StepResult struct {
	ID             string     `json:"id" db:"id"`
	RunID          string     `json:"run_id" db:"run_id"`
	SequenceID     int        `json:"sequence_id" db:"sequence_id"`
	StepType       StepType   `json:"step_type" db:"step_type"`
	Status         RunStatus  `json:"status" db:"status"`
	ScreenshotPath string     `json:"screenshot_path,omitempty" db:"screenshot_path"`
	Message        string     `json:"message,omitempty" db:"message"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	ExecutedAt     *time.Time `json:"executed_at" db:"executed_at"`
	Duration       int64      `json:"duration_ms,omitempty" db:"duration_ms"`
}

// RunResult is the outcome of executing a plan
type RunResult struct {
	RunID         string       `json:"run_id"`
	PlanName      string       `json:"plan_name"`
	Status        RunStatus    `json:"status"`
	StepResults   []StepResult `json:"step_results"`
	Screenshots   []string     `json:"screenshots"`
	TotalDuration int64        `json:"total_duration_ms"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// VerificationRun is a stored run in the ledger
type VerificationRun struct {
	ID                 string     `json:"id" db:"id"`
	PlanName           string     `json:"plan_name" db:"plan_name"`
	BaseURL            string     `json:"base_url" db:"base_url"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	Status             RunStatus  `json:"status" db:"status"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`

	// Computed fields
	StepResults []StepResult `json:"step_results,omitempty"`
}

// ==================== API Request/Response Types ====================

// VerifyInput is the input of a verification workflow
type VerifyInput struct {
	RunID          string `json:"run_id"`
	Plan           Plan   `json:"plan"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StartRunRequest represents a request to start a verification run
type StartRunRequest struct {
	BaseURL string `json:"base_url"`
	Plan    *Plan  `json:"plan,omitempty"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
