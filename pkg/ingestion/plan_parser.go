package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dev/bravebird/page-verifier/pkg/models"
)

// ErrInvalidPlan is wrapped by every validation failure
var ErrInvalidPlan = errors.New("invalid plan")

// PlanParser reads verification plans from YAML or JSON files
type PlanParser struct {
	plan models.Plan
}

// NewPlanParser creates a new parser instance
func NewPlanParser() *PlanParser {
	return &PlanParser{}
}

// ParseFile reads and parses a plan file. Files ending in .json are
// decoded as JSON, everything else as YAML.
func (p *PlanParser) ParseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return p.ParseJSON(data)
	}
	return p.ParseYAML(data)
}

// ParseJSON parses and validates a JSON plan
func (p *PlanParser) ParseJSON(data []byte) error {
	var plan models.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("failed to parse JSON plan: %w", err)
	}
	return p.set(plan)
}

// ParseYAML parses and validates a YAML plan
func (p *PlanParser) ParseYAML(data []byte) error {
	var plan models.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("failed to parse YAML plan: %w", err)
	}
	return p.set(plan)
}

func (p *PlanParser) set(plan models.Plan) error {
	if err := Validate(plan); err != nil {
		return err
	}
	p.plan = plan
	return nil
}

// GetPlan returns the last successfully parsed plan
func (p *PlanParser) GetPlan() models.Plan {
	return p.plan
}

// Validate checks that every step carries the fields its type needs
func Validate(plan models.Plan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}
	return validateSteps(plan.Steps, "")
}

func validateSteps(steps []models.Step, prefix string) error {
	for i, step := range steps {
		idx := fmt.Sprintf("%s%d", prefix, i+1)
		if err := validateStep(step); err != nil {
			return fmt.Errorf("%w: step %s (%s): %v", ErrInvalidPlan, idx, step.Type, err)
		}
		if len(step.OnFound) > 0 {
			if step.Type != models.StepProbe {
				return fmt.Errorf("%w: step %s (%s): on_found is only allowed on probe steps", ErrInvalidPlan, idx, step.Type)
			}
			if err := validateSteps(step.OnFound, idx+"."); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStep(step models.Step) error {
	switch step.Type {
	case models.StepNavigate:
		if step.URL == "" {
			return errors.New("url is required")
		}

	case models.StepScreenshot:
		if step.Path == "" {
			return errors.New("path is required")
		}
		if filepath.IsAbs(step.Path) || !filepath.IsLocal(step.Path) {
			return fmt.Errorf("path %q must stay inside the output directory", step.Path)
		}

	case models.StepProbe, models.StepClick:
		if step.Target == nil || (step.Target.Selector == "" && step.Target.Tag == "" && len(step.Target.Attributes) == 0) {
			return errors.New("target is required")
		}

	case models.StepWait:
		if step.DelayMS <= 0 {
			return errors.New("delay_ms must be positive")
		}

	case "":
		return errors.New("type is required")

	default:
		return errors.New("unsupported step type")
	}
	return nil
}
