package gateway

import (
	"net/http"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/CosmoTheDev/repomaint-agent/internal/miner"
	"github.com/CosmoTheDev/repomaint-agent/internal/pipeline"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/internal/prmanager"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildHandler wires all REST and SSE routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", gw.handleRoot)
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/status", gw.handleStatus)
	mux.HandleFunc("GET /events", gw.handleEvents)

	// Pipeline stages
	mux.HandleFunc("POST /api/index", gw.handleIndex)
	mux.HandleFunc("POST /api/mine", gw.handleMine)
	mux.HandleFunc("GET /api/repositories/{id}/opportunities", gw.handleListOpportunities)
	mux.HandleFunc("POST /api/plan", gw.handlePlan)
	mux.HandleFunc("POST /api/implement", gw.handleImplement)
	mux.HandleFunc("POST /api/pr", gw.handleCreatePR)
	mux.HandleFunc("PATCH /api/pr/{id}/status", gw.handlePRStatus)
	mux.HandleFunc("POST /api/review", gw.handleReview)
	mux.HandleFunc("POST /api/maintain", gw.handleMaintain)

	// Tasks
	mux.HandleFunc("GET /api/tasks", gw.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", gw.handleGetTask)

	// Schedules
	mux.HandleFunc("GET /api/schedules", gw.handleListSchedules)
	mux.HandleFunc("POST /api/schedules/{name}/trigger", gw.handleTriggerSchedule)

	return mux
}

// --- Handlers ---

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "repomaint gateway",
		"status": "running",
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"GET /api/status",
			"POST /api/index",
			"POST /api/mine",
			"GET /api/repositories/{id}/opportunities",
			"POST /api/plan",
			"POST /api/implement",
			"POST /api/pr",
			"PATCH /api/pr/{id}/status",
			"POST /api/review",
			"POST /api/maintain",
			"GET /api/tasks",
			"GET /api/tasks/{id}",
			"GET /api/schedules",
			"POST /api/schedules/{name}/trigger",
			"GET /events",
		},
	})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.currentStatus())
}

func (gw *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	var body indexRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	provider, err := parseProvider(body.Provider)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	id, err := gw.pipeline.StartIndexing(r.Context(), indexer.Request{
		URL:          body.URL,
		Provider:     provider,
		Branch:       body.Branch,
		ForceReindex: body.ForceReindex,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id, Status: string(models.StatusPending)})
}

func (gw *Gateway) handleMine(w http.ResponseWriter, r *http.Request) {
	var body mineRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := requireField("repository_id", body.RepositoryID); err != nil {
		writeAppError(w, r, err)
		return
	}
	types, err := parseTypes(body.Types)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	langs := make([]models.Language, 0, len(body.Languages))
	for _, l := range body.Languages {
		langs = append(langs, models.Language(l))
	}
	opps, err := gw.pipeline.MineOpportunities(r.Context(), miner.Request{
		RepositoryID: body.RepositoryID,
		Types:        types,
		Languages:    langs,
		Max:          body.Max,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
}

func (gw *Gateway) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := gw.pipeline.GetOpportunities(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
}

func (gw *Gateway) handlePlan(w http.ResponseWriter, r *http.Request) {
	var body planRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := requireField("opportunity_id", body.OpportunityID); err != nil {
		writeAppError(w, r, err)
		return
	}
	plan, err := gw.pipeline.GeneratePlan(r.Context(), body.OpportunityID, planner.Preferences(body.Preferences))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (gw *Gateway) handleImplement(w http.ResponseWriter, r *http.Request) {
	var body implementRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := requireField("plan_id", body.PlanID); err != nil {
		writeAppError(w, r, err)
		return
	}
	id, err := gw.pipeline.StartImplementation(r.Context(), body.PlanID, boolOr(body.DryRun, true))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id, Status: string(models.StatusPending)})
}

func (gw *Gateway) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	var body pullRequestRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := requireField("implementation_id", body.ImplementationID); err != nil {
		writeAppError(w, r, err)
		return
	}
	provider, err := parseProvider(body.Provider)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	pr, err := gw.pipeline.CreatePullRequest(r.Context(), prmanager.Request{
		ImplementationID: body.ImplementationID,
		Title:            body.Title,
		Description:      body.Description,
		Draft:            body.Draft,
		Provider:         provider,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

func (gw *Gateway) handlePRStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	status, err := models.ParsePRStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	pr, err := gw.pipeline.UpdatePullRequestStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (gw *Gateway) handleReview(w http.ResponseWriter, r *http.Request) {
	var body reviewRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := requireField("pull_request_id", body.PullRequestID); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := gw.pipeline.ReviewPullRequest(r.Context(), body.PullRequestID, body.Reviewers)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"review":     out.Review,
		"posted":     out.Posted,
		"post_error": out.PostError,
	})
}

func (gw *Gateway) handleMaintain(w http.ResponseWriter, r *http.Request) {
	var body maintainRequest
	if err := decodeBody(r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	provider, err := parseProvider(body.Provider)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	types, err := parseTypes(body.Types)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	id, err := gw.pipeline.StartMaintenance(r.Context(), body.URL, pipeline.MaintainOptions{
		Provider:     provider,
		Branch:       body.Branch,
		ForceReindex: body.ForceReindex,
		Types:        types,
		Max:          body.Max,
		DryRun:       boolOr(body.DryRun, true),
		CreatePRs:    body.CreatePRs,
		Draft:        body.Draft,
		Review:       body.Review,
		Reviewers:    body.Reviewers,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id, Status: string(models.StatusPending)})
}

func (gw *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	all := gw.pipeline.ListTasks()
	kind := r.URL.Query().Get("kind")
	status := r.URL.Query().Get("status")
	items := make([]models.Task, 0, len(all))
	for _, task := range all {
		if kind != "" && task.Kind != kind {
			continue
		}
		if status != "" && string(task.Status) != status {
			continue
		}
		items = append(items, task)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": items, "count": len(items)})
}

func (gw *Gateway) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := gw.pipeline.GetTaskStatus(r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (gw *Gateway) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": gw.scheduler.List()})
}

func (gw *Gateway) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := gw.scheduler.Run(r.Context(), r.PathValue("name"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id, Status: string(models.StatusPending)})
}

// --- SSE event stream ---

// handleEvents streams SSE to the client. Each line is a JSON SSEEvent.
// Clients receive a "connected" event immediately, then live updates.
func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	sub := gw.broadcaster.subscribe(strings.Split(r.URL.Query().Get("topics"), ",")...)
	defer gw.broadcaster.unsubscribe(sub)

	if connected, err := encodeFrame(SSEEvent{Type: EventConnected, Payload: gw.currentStatus()}); err == nil {
		_, _ = w.Write(connected)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame := <-sub.frames:
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
