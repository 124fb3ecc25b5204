package verifier

import (
	"net/url"
	"strings"

	"dev/bravebird/page-verifier/pkg/models"
)

const (
	DefaultBaseURL   = "http://localhost:3000"
	DefaultOutputDir = "verification"
	DefaultPlanName  = "new-pages"
)

// Screenshot file names written by the default plan
const (
	HomeScreenshot     = "new_home_page.png"
	MenuOpenScreenshot = "new_home_page_menu_open.png"
	QueuesScreenshot   = "new_queues_page.png"
)

// DefaultPlan returns the new home and queues page check.
// Empty arguments fall back to DefaultBaseURL and DefaultOutputDir.
func DefaultPlan(baseURL, outputDir string) models.Plan {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}

	menu := &models.Target{
		Tag:        "button",
		Attributes: map[string]string{"aria-label": "Menu"},
	}

	return models.Plan{
		Name:      DefaultPlanName,
		BaseURL:   baseURL,
		OutputDir: outputDir,
		Steps: []models.Step{
			{Type: models.StepNavigate, URL: "/new/home"},
			{Type: models.StepScreenshot, Path: HomeScreenshot, Message: "Home page screenshot taken."},
			{
				Type:           models.StepProbe,
				Target:         menu,
				FoundMessage:   "Floating menu button found.",
				MissingMessage: "Floating menu button NOT found.",
				OnFound: []models.Step{
					{Type: models.StepClick, Target: menu},
					{Type: models.StepWait, DelayMS: 500}, // menu animation
					{Type: models.StepScreenshot, Path: MenuOpenScreenshot, Message: "Home page menu open screenshot taken."},
				},
			},
			{Type: models.StepNavigate, URL: "/new/queues"},
			{Type: models.StepScreenshot, Path: QueuesScreenshot, Message: "Queues page screenshot taken."},
		},
	}
}

// ResolveURL joins a step URL onto the plan base URL.
// Absolute step URLs are returned unchanged.
func ResolveURL(baseURL, ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	if baseURL == "" {
		return ref
	}
	if ref == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}
