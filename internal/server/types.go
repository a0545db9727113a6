// Package server provides the HTTP control surface for the task
// pipeline. It includes handlers, middleware, routes, and DTOs
// separated from domain types.
package server

import "time"

// CreateTaskRequest is the HTTP request body for submitting a task.
type CreateTaskRequest struct {
	// OwnerID references the requesting user.
	OwnerID int64 `json:"owner_id" validate:"required"`
	// ChatID is the delivery destination for the result.
	ChatID int64 `json:"chat_id" validate:"required"`
	// Prompt is the generation prompt.
	Prompt string `json:"prompt" validate:"required,max=4000"`
	// Model is the generation model; empty selects the default.
	Model string `json:"model"`
	// DurationSeconds is the requested clip duration; it is snapped
	// down to the model's allowed set.
	DurationSeconds int `json:"duration_seconds" validate:"omitempty,min=1,max=120"`
	// NumClips requests a composite video of several clips.
	NumClips int `json:"num_clips" validate:"omitempty,min=1,max=10"`
	// Resolution is the output resolution as "WxH"; empty selects the default.
	Resolution string `json:"resolution"`
	// ReferenceImageBase64 is an optional base64-encoded seed image.
	ReferenceImageBase64 string `json:"reference_image_base64" validate:"omitempty,base64"`
}

// RemixTaskRequest is the HTTP request body for remixing a completed task.
type RemixTaskRequest struct {
	// Prompt describes the changes to apply to the source video.
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

// CreateTaskResponse is the HTTP response after submitting a task.
type CreateTaskResponse struct {
	// ID is the unique identifier for the created task.
	ID string `json:"id"`
	// Status is the initial task status.
	Status string `json:"status"`
}

// TaskResponse is the HTTP response for task details.
type TaskResponse struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`
	// Kind is the request shape: single, long_video, or remix.
	Kind string `json:"kind"`
	// Status is the current task status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Model is the generation model.
	Model string `json:"model"`
	// DurationSeconds is the per-clip duration after snapping.
	DurationSeconds int `json:"duration_seconds"`
	// NumClips is the number of clips in the composite.
	NumClips int `json:"num_clips"`
	// Resolution is the output resolution.
	Resolution string `json:"resolution"`
	// ResultRef is the stored artifact reference (completed only).
	ResultRef string `json:"result_ref,omitempty"`
	// Error contains the failure cause if the task failed.
	Error string `json:"error,omitempty"`
	// DeliveryError flags a completed task whose delivery failed and
	// needs an operator resend.
	DeliveryError string `json:"delivery_error,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
}

// ListTasksResponse is the HTTP response for the task listing.
type ListTasksResponse struct {
	// Tasks holds every known task, newest first.
	Tasks []TaskResponse `json:"tasks"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
