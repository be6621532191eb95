package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vietddude/webtape/internal/core/domain"
	redisclient "github.com/vietddude/webtape/internal/infra/redis"
	"github.com/vietddude/webtape/internal/session"
)

// apiHandler builds the control-plane REST surface consumed by the browser
// extension and the CLI.
func (r *Recorder) apiHandler() http.Handler {
	mux := chi.NewRouter()

	mux.Route("/api", func(api chi.Router) {
		api.Route("/sessions", func(s chi.Router) {
			s.Post("/start", r.handleSessionStart)
			s.Post("/stop", r.handleSessionStop)
			s.Post("/pause", r.handleSessionPause)
			s.Post("/resume", r.handleSessionResume)
			s.Get("/current", r.handleSessionCurrent)
		})
		api.Route("/steps", func(s chi.Router) {
			s.Post("/", r.handleStepCapture)
			s.Get("/", r.handleStepList)
			s.Delete("/last", r.handleStepDeleteLast)
			s.Delete("/{index}", r.handleStepDeleteAt)
		})
		api.Route("/contexts/{id}", func(c chi.Router) {
			c.Post("/navigated", r.handleContextNavigated)
			c.Post("/closed", r.handleContextClosed)
		})
		api.Route("/errors", func(e chi.Router) {
			e.Get("/stats", r.handleErrorStats)
			e.Get("/summary", r.handleErrorSummary)
		})
		api.Route("/telemetry", func(t chi.Router) {
			t.Get("/summary", r.handleTelemetrySummary)
			t.Get("/export.json", r.handleTelemetryExportJSON)
			t.Get("/export.csv", r.handleTelemetryExportCSV)
		})
		api.Post("/replays", r.handleReplayEnqueue)
		api.Post("/replays/pause", r.handleReplayPause)
		api.Post("/replays/resume", r.handleReplayResume)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor maps session-protocol errors onto HTTP codes: misuse is a
// conflict, everything else a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (r *Recorder) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ProjectID string `json:"project_id"`
		ContextID string `json:"context_id"`
		StartURL  string `json:"start_url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := r.orchestrator.Start(req.Context(), body.ProjectID, body.ContextID, body.StartURL)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (r *Recorder) handleSessionStop(w http.ResponseWriter, req *http.Request) {
	result, err := r.orchestrator.Stop(req.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Recorder) handleSessionPause(w http.ResponseWriter, req *http.Request) {
	if err := r.orchestrator.Pause(req.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(r.orchestrator.State())})
}

func (r *Recorder) handleSessionResume(w http.ResponseWriter, req *http.Request) {
	if err := r.orchestrator.Resume(req.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(r.orchestrator.State())})
}

func (r *Recorder) handleSessionCurrent(w http.ResponseWriter, req *http.Request) {
	sess := r.orchestrator.Session()
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": string(r.orchestrator.State()), "session": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": string(r.orchestrator.State()), "session": sess})
}

func (r *Recorder) handleStepCapture(w http.ResponseWriter, req *http.Request) {
	var data domain.CaptureData
	if err := json.NewDecoder(req.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	step := r.orchestrator.HandleStepCaptured(data)
	if step == nil {
		// Not recording or ceiling reached; capture is lossy, not an error.
		writeJSON(w, http.StatusAccepted, map[string]any{"step": nil})
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

func (r *Recorder) handleStepList(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"steps": r.orchestrator.Steps(),
		"count": r.orchestrator.StepCount(),
	})
}

func (r *Recorder) handleStepDeleteLast(w http.ResponseWriter, req *http.Request) {
	step := r.orchestrator.DeleteLastStep()
	if step == nil {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": step})
}

func (r *Recorder) handleStepDeleteAt(w http.ResponseWriter, req *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(req, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	step := r.orchestrator.DeleteStepAt(index)
	if step == nil {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": step})
}

func (r *Recorder) handleContextNavigated(w http.ResponseWriter, req *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	r.orchestrator.HandleContextNavigated(chi.URLParam(req, "id"), body.URL)
	w.WriteHeader(http.StatusNoContent)
}

func (r *Recorder) handleContextClosed(w http.ResponseWriter, req *http.Request) {
	r.orchestrator.HandleContextClosed(chi.URLParam(req, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (r *Recorder) handleErrorStats(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.errEngine.Stats())
}

func (r *Recorder) handleErrorSummary(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"summary": r.errEngine.SummaryText()})
}

func (r *Recorder) handleTelemetrySummary(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.telemetry.Summary())
}

func (r *Recorder) handleTelemetryExportJSON(w http.ResponseWriter, req *http.Request) {
	data, err := r.telemetry.ExportJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (r *Recorder) handleTelemetryExportCSV(w http.ResponseWriter, req *http.Request) {
	data, err := r.telemetry.ExportStepTimingsCSV()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write(data)
}

func (r *Recorder) handleReplayEnqueue(w http.ResponseWriter, req *http.Request) {
	if r.queue == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("replay queue not configured"))
		return
	}

	var body struct {
		ProjectID string              `json:"project_id"`
		ContextID string              `json:"context_id"`
		Rows      []map[string]string `json:"rows"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job := &redisclient.ReplayJob{
		ID:        uuid.New().String(),
		ProjectID: body.ProjectID,
		ContextID: body.ContextID,
		Rows:      body.Rows,
	}
	if err := r.queue.Enqueue(req.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (r *Recorder) handleReplayPause(w http.ResponseWriter, req *http.Request) {
	r.runner.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (r *Recorder) handleReplayResume(w http.ResponseWriter, req *http.Request) {
	r.runner.Resume()
	w.WriteHeader(http.StatusNoContent)
}
