package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/ingestion"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verifier"
)

// Checks the new home and queues pages of a locally running site and
// stores screenshots for manual review. Failures are printed, never fatal:
// the process always exits 0.
func main() {
	baseURL := getEnvOrDefault("VERIFY_BASE_URL", verifier.DefaultBaseURL)
	outputDir := getEnvOrDefault("SCREENSHOT_DIR", verifier.DefaultOutputDir)

	plan := verifier.DefaultPlan(baseURL, outputDir)
	if planFile := os.Getenv("PLAN_FILE"); planFile != "" {
		parser := ingestion.NewPlanParser()
		if err := parser.ParseFile(planFile); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		plan = parser.GetPlan()
		if plan.BaseURL == "" {
			plan.BaseURL = baseURL
		}
		if plan.OutputDir == "" {
			plan.OutputDir = outputDir
		}
	}

	opts := verifier.DefaultBrowserOptions()
	opts.Bin = os.Getenv("CHROME_BIN")
	opts.ControlURL = os.Getenv("BROWSER_URL")

	ctx := context.Background()
	runID := uuid.New().String()

	// Optional run ledger
	var db *database.DB
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		var err error
		db, err = database.New(dsn)
		if err != nil {
			log.Printf("Warning: Failed to connect to database: %v", err)
			log.Println("Running without database persistence")
			db = nil
		} else {
			defer db.Close()
			startLedger(ctx, db, runID, plan)
		}
	}

	var vopts []verifier.Option
	if db != nil {
		vopts = append(vopts, verifier.WithReporter(func(sr models.StepResult) {
			sr.ID = uuid.New().String()
			if err := db.SaveStepResult(ctx, &sr); err != nil {
				log.Printf("Warning: Failed to save step result: %v", err)
			}
		}))
	}

	result := verifier.New(verifier.RodOpener(opts), os.Stdout, vopts...).Run(ctx, runID, plan)

	if db != nil {
		if err := db.CompleteRun(ctx, result); err != nil {
			log.Printf("Warning: Failed to complete run: %v", err)
		}
	}
}

func startLedger(ctx context.Context, db *database.DB, runID string, plan models.Plan) {
	if err := db.Migrate(ctx); err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	now := time.Now()
	err := db.CreateRun(ctx, &models.VerificationRun{
		ID:        runID,
		PlanName:  plan.Name,
		BaseURL:   plan.BaseURL,
		Status:    models.StatusRunning,
		StartedAt: &now,
	})
	if err != nil {
		log.Printf("Warning: %v", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
