package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dev/bravebird/page-verifier/pkg/models"
)

const yamlPlan = `
name: staging-pages
base_url: http://staging:3000
output_dir: shots
steps:
  - type: navigate
    url: /new/home
  - type: screenshot
    path: home.png
    message: Home page screenshot taken.
  - type: probe
    target:
      tag: button
      attributes:
        aria-label: Menu
    found_message: Floating menu button found.
    missing_message: Floating menu button NOT found.
    on_found:
      - type: click
        target:
          tag: button
          attributes:
            aria-label: Menu
      - type: wait
        delay_ms: 500
      - type: screenshot
        path: menu.png
`

const jsonPlan = `{
  "name": "json-pages",
  "steps": [
    {"type": "navigate", "url": "/new/queues"},
    {"type": "screenshot", "path": "queues.png", "message": "Queues page screenshot taken."}
  ]
}`

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		file      string
		content   string
		wantName  string
		wantSteps int
	}{
		{"yaml", "plan.yaml", yamlPlan, "staging-pages", 3},
		{"yml extension", "plan.yml", yamlPlan, "staging-pages", 3},
		{"json", "plan.json", jsonPlan, "json-pages", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			p := NewPlanParser()
			if err := p.ParseFile(path); err != nil {
				t.Fatalf("ParseFile() error = %v", err)
			}

			plan := p.GetPlan()
			if plan.Name != tt.wantName {
				t.Errorf("name = %q, want %q", plan.Name, tt.wantName)
			}
			if len(plan.Steps) != tt.wantSteps {
				t.Errorf("steps = %d, want %d", len(plan.Steps), tt.wantSteps)
			}
		})
	}
}

func TestParseYAMLNestedSteps(t *testing.T) {
	p := NewPlanParser()
	if err := p.ParseYAML([]byte(yamlPlan)); err != nil {
		t.Fatal(err)
	}

	probe := p.GetPlan().Steps[2]
	if probe.Target.Attributes["aria-label"] != "Menu" {
		t.Errorf("target = %+v", probe.Target)
	}
	if len(probe.OnFound) != 3 || probe.OnFound[1].DelayMS != 500 {
		t.Errorf("on_found = %+v", probe.OnFound)
	}
}

func TestParseFileMissing(t *testing.T) {
	err := NewPlanParser().ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read file") {
		t.Errorf("ParseFile() error = %v", err)
	}
}

func TestParseJSONMalformed(t *testing.T) {
	err := NewPlanParser().ParseJSON([]byte(`{"steps": [`))
	if err == nil || errors.Is(err, ErrInvalidPlan) {
		t.Errorf("ParseJSON() error = %v, want a decode error", err)
	}
}

func TestValidate(t *testing.T) {
	menu := &models.Target{Tag: "button", Attributes: map[string]string{"aria-label": "Menu"}}

	tests := []struct {
		name    string
		steps   []models.Step
		wantErr string
	}{
		{"valid", []models.Step{{Type: models.StepNavigate, URL: "/"}, {Type: models.StepScreenshot, Path: "a.png"}}, ""},
		{"no steps", nil, "no steps"},
		{"navigate without url", []models.Step{{Type: models.StepNavigate}}, "step 1 (navigate): url is required"},
		{"screenshot without path", []models.Step{{Type: models.StepScreenshot}}, "path is required"},
		{"screenshot escapes dir", []models.Step{{Type: models.StepScreenshot, Path: "../a.png"}}, "must stay inside"},
		{"screenshot absolute", []models.Step{{Type: models.StepScreenshot, Path: "/tmp/a.png"}}, "must stay inside"},
		{"click without target", []models.Step{{Type: models.StepClick}}, "target is required"},
		{"empty target", []models.Step{{Type: models.StepProbe, Target: &models.Target{}}}, "target is required"},
		{"zero wait", []models.Step{{Type: models.StepWait}}, "delay_ms must be positive"},
		{"missing type", []models.Step{{URL: "/"}}, "type is required"},
		{"unknown type", []models.Step{{Type: "hover"}}, "unsupported step type"},
		{"on_found outside probe", []models.Step{{Type: models.StepNavigate, URL: "/", OnFound: []models.Step{{Type: models.StepWait, DelayMS: 1}}}}, "only allowed on probe"},
		{"nested invalid", []models.Step{{Type: models.StepProbe, Target: menu, OnFound: []models.Step{{Type: models.StepClick, Target: menu}, {Type: models.StepWait}}}}, "step 1.2 (wait)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(models.Plan{Steps: tt.steps})
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidPlan) {
				t.Fatalf("Validate() error = %v, want ErrInvalidPlan", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
