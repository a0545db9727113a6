package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vidforge/vidforge/internal/catalog"
	"github.com/vidforge/vidforge/internal/task"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *task.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *task.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateTask handles POST /tasks requests.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	var referenceImage []byte
	if req.ReferenceImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ReferenceImageBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid reference image encoding", "VALIDATION_ERROR")
			return
		}
		referenceImage = decoded
	}

	created, err := h.service.Submit(r.Context(), task.SubmitParams{
		OwnerID:         req.OwnerID,
		ChatID:          req.ChatID,
		Prompt:          req.Prompt,
		Model:           req.Model,
		DurationSeconds: req.DurationSeconds,
		NumClips:        req.NumClips,
		Resolution:      req.Resolution,
		ReferenceImage:  referenceImage,
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateTaskResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetTask handles GET /tasks/{id} requests.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	found, err := h.service.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get task", "TASK_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(found))
}

// ListTasks handles GET /tasks requests. The store keeps every task as
// an audit record, so this is the operator's view of the whole history.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list tasks",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list tasks", "TASK_LIST_FAILED")
		return
	}

	resp := ListTasksResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelTask handles POST /tasks/{id}/cancel requests. Only tasks
// still waiting in the queue can be cancelled.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	err := h.service.Cancel(r.Context(), taskID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, task.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
	case errors.Is(err, task.ErrNotCancellable):
		writeError(w, http.StatusConflict, "task is no longer cancellable", "NOT_CANCELLABLE")
	default:
		h.logger.Error("failed to cancel task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel task", "TASK_CANCEL_FAILED")
	}
}

// RemixTask handles POST /tasks/{id}/remix requests, deriving a new
// task from a completed one.
func (h *Handlers) RemixTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	var req RemixTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.service.SubmitRemixOf(r.Context(), taskID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		case errors.Is(err, task.ErrSourceNotRemixable):
			writeError(w, http.StatusConflict, err.Error(), "NOT_REMIXABLE")
		default:
			h.writeSubmitError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, CreateTaskResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// writeSubmitError maps submission errors to HTTP responses.
func (h *Handlers) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrPromptRequired),
		errors.Is(err, catalog.ErrUnknownModel),
		errors.Is(err, catalog.ErrUnknownResolution):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	default:
		h.logger.Error("failed to submit task",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit task", "TASK_SUBMIT_FAILED")
	}
}

func toTaskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		Kind:            string(t.Kind),
		Status:          string(t.Status),
		Progress:        t.Progress,
		Model:           t.Model,
		DurationSeconds: t.DurationSeconds,
		NumClips:        t.NumClips,
		Resolution:      t.Resolution,
		ResultRef:       t.ResultRef,
		Error:           t.ErrorMessage,
		DeliveryError:   t.DeliveryError,
		CreatedAt:       t.CreatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
