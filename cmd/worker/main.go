package main

import (
	"context"
	"log"
	"os"
	"strings"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/temporal/activities"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verifier"
)

func main() {
	// Get Temporal host from environment
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: temporalHost,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Optional run ledger
	var db *database.DB
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err = database.New(dsn)
		if err != nil {
			log.Printf("Warning: Failed to connect to database: %v", err)
			log.Println("Running without database persistence")
			db = nil
		} else {
			defer db.Close()
			if err := db.Migrate(context.Background()); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
	}

	// Browser configuration
	opts := verifier.DefaultBrowserOptions()
	opts.Bin = os.Getenv("CHROME_BIN")
	opts.ControlURL = os.Getenv("BROWSER_URL")
	opts.Stealth = strings.EqualFold(os.Getenv("BROWSER_STEALTH"), "true")

	screenshotDir := getEnvOrDefault("SCREENSHOT_DIR", "/tmp/screenshots")

	// Create activities
	acts := activities.NewActivities(db, verifier.RodOpener(opts), screenshotDir)

	// One browser at a time
	w := worker.New(c, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.VerifyPagesWorkflow)
	w.RegisterActivityWithOptions(acts.VerifyPagesActivity, activity.RegisterOptions{
		Name: workflows.VerifyPagesActivityName,
	})

	log.Printf("Starting Temporal worker on task queue: %s", workflows.TaskQueue)
	log.Printf("Temporal host: %s", temporalHost)
	log.Printf("Screenshot directory: %s", screenshotDir)

	// Start worker
	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
