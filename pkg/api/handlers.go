package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.temporal.io/sdk/client"

	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/ingestion"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verifier"
)

// Handlers contains API handlers
type Handlers struct {
	db             *database.DB
	temporalClient client.Client
	baseURL        string
	screenshotDir  string
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. db and temporalClient may be nil;
// routes that need them answer 503.
func NewHandlers(db *database.DB, temporalClient client.Client, baseURL, screenshotDir string) *Handlers {
	return &Handlers{
		db:             db,
		temporalClient: temporalClient,
		baseURL:        baseURL,
		screenshotDir:  screenshotDir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// Router returns the API routes wrapped in CORS handling
func (h *Handlers) Router() http.Handler {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()

	// Runs
	apiRouter.HandleFunc("/runs", h.StartRun).Methods("POST")
	apiRouter.HandleFunc("/runs", h.ListRuns).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")

	// WebSocket for real-time updates
	apiRouter.HandleFunc("/runs/{id}/stream", h.StreamRunUpdates).Methods("GET")

	// Screenshots
	apiRouter.HandleFunc("/screenshots/{filename}", h.ServeScreenshot).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(router)
}

// ==================== Run Handlers ====================

// StartRun starts a verification workflow for the default or a posted plan
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = h.baseURL
	}

	var plan models.Plan
	if req.Plan != nil {
		plan = *req.Plan
		if plan.BaseURL == "" {
			plan.BaseURL = baseURL
		}
		if plan.Name == "" {
			plan.Name = "custom"
		}
	} else {
		plan = verifier.DefaultPlan(baseURL, "")
	}
	// The worker writes into its own screenshot directory
	plan.OutputDir = ""

	if err := ingestion.Validate(plan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.temporalClient == nil {
		http.Error(w, "Temporal not available", http.StatusServiceUnavailable)
		return
	}

	runID := uuid.New().String()
	now := time.Now()
	run := &models.VerificationRun{
		ID:        runID,
		PlanName:  plan.Name,
		BaseURL:   plan.BaseURL,
		Status:    models.StatusPending,
		StartedAt: &now,
	}

	if h.db != nil {
		if err := h.db.CreateRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(runID),
		TaskQueue: workflows.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.VerifyPagesWorkflow, models.VerifyInput{
		RunID: runID,
		Plan:  plan,
	})
	if err != nil {
		if h.db != nil {
			if uerr := h.db.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error()); uerr != nil {
				log.Printf("Warning: Failed to mark run %s failed: %v", runID, uerr)
			}
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Update run with Temporal IDs
	run.TemporalWorkflowID = we.GetID()
	run.TemporalRunID = we.GetRunID()
	run.Status = models.StatusRunning
	if h.db != nil {
		if err := h.db.CreateRun(ctx, run); err != nil {
			log.Printf("Warning: Failed to store Temporal ids for run %s: %v", runID, err)
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListRuns lists recent verification runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	runs, err := h.db.ListRuns(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetRun returns a run with its step results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetRun(ctx, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	results, err := h.db.GetStepResults(ctx, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	run.StepResults = results

	respondJSON(w, http.StatusOK, run)
}

// StreamRunUpdates pushes run progress over a WebSocket until the run ends
// or the client goes away
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The hijacked connection no longer cancels the request context
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	lastStatus := models.RunStatus("")
	lastStepCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, stepResults, ok := h.runProgress(ctx, runID)
			if !ok {
				continue
			}

			if status != lastStatus || len(stepResults) != lastStepCount {
				msg := models.WSMessage{
					Type: "run_update",
					Payload: map[string]interface{}{
						"run_id":       runID,
						"status":       status,
						"step_results": stepResults,
					},
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}

				lastStatus = status
				lastStepCount = len(stepResults)

				if status.Terminal() {
					return
				}
			}
		}
	}
}

// runProgress reads the run status from the workflow query, falling back to
// the ledger. Step results come from the ledger when there is one, since it
// is written as each step finishes.
func (h *Handlers) runProgress(ctx context.Context, runID string) (models.RunStatus, []models.StepResult, bool) {
	var status models.RunStatus
	var stepResults []models.StepResult

	if h.temporalClient != nil {
		queryResp, err := h.temporalClient.QueryWorkflow(ctx, workflows.WorkflowID(runID), "", workflows.ProgressQuery)
		if err == nil {
			var result models.RunResult
			if queryResp.Get(&result) == nil {
				status = result.Status
				stepResults = result.StepResults
			}
		}
	}

	if h.db != nil {
		if status == "" {
			run, err := h.db.GetRun(ctx, runID)
			if err != nil || run == nil {
				return "", nil, false
			}
			status = run.Status
		}
		results, err := h.db.GetStepResults(ctx, runID)
		if err != nil {
			return "", nil, false
		}
		stepResults = results
	}

	return status, stepResults, status != ""
}

// ServeScreenshot serves a PNG from the screenshot directory
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	// Only files directly inside the screenshot directory
	filePath := filepath.Join(h.screenshotDir, filepath.Base(filename))

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
