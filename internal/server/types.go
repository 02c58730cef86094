// Package server provides the operational HTTP surface of the clip service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateProjectRequest is the HTTP request body for registering an uploaded source.
type CreateProjectRequest struct {
	// OwnerID references the external identity that uploaded the source.
	OwnerID string `json:"owner_id" validate:"required,max=128"`
	// SourceKey is the key returned by GET /upload-url.
	SourceKey string `json:"source_key" validate:"required,max=1024"`
	// Title is an optional display name.
	Title string `json:"title" validate:"max=255"`
	// DurationPreference is one of auto, 30s or 60s.
	DurationPreference string `json:"duration_preference" validate:"omitempty,oneof=auto 30s 60s"`
	// CaptionStyle is the default caption style for produced clips.
	CaptionStyle string `json:"caption_style" validate:"omitempty,max=64"`
}

// UploadURLRequest holds the query parameters of GET /upload-url.
type UploadURLRequest struct {
	Filename    string `validate:"required,max=255"`
	ContentType string `validate:"required,startswith=video/"`
}

// UploadURLResponse is the HTTP response carrying a signed upload URL.
type UploadURLResponse struct {
	// UploadURL accepts a single PUT with the declared content type.
	UploadURL string `json:"upload_url"`
	// Key is the blob key to pass as source_key when creating the project.
	Key string `json:"key"`
	// ExpiresIn is the URL lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// BurnClipRequest is the HTTP request body for re-burning a clip.
type BurnClipRequest struct {
	StartTime *float64 `json:"start_time" validate:"omitempty,gte=0"`
	EndTime   *float64 `json:"end_time" validate:"omitempty,gte=0"`
	StyleName string   `json:"style_name" validate:"omitempty,max=64"`
}

// AcceptedResponse is returned when a task was enqueued.
type AcceptedResponse struct {
	// ID is the project or clip the task refers to.
	ID string `json:"id"`
	// Status is always "queued".
	Status string `json:"status"`
}

// ProjectResponse is the HTTP response for getting project details.
type ProjectResponse struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"owner_id"`
	Title              string         `json:"title,omitempty"`
	Status             string         `json:"status"`
	Error              string         `json:"error,omitempty"`
	DurationPreference string         `json:"duration_preference"`
	CaptionStyle       string         `json:"caption_style,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Clips              []ClipResponse `json:"clips"`
}

// ClipResponse describes one produced clip.
type ClipResponse struct {
	ID string `json:"id"`
	// URL is a time-limited link for inline playback.
	URL string `json:"url,omitempty"`
	// DownloadURL is a time-limited link served as an attachment.
	DownloadURL   string    `json:"download_url,omitempty"`
	ViralityScore *int      `json:"virality_score,omitempty"`
	Rationale     *string   `json:"rationale,omitempty"`
	Transcript    *string   `json:"transcript,omitempty"`
	StartTime     *float64  `json:"start_time,omitempty"`
	EndTime       *float64  `json:"end_time,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
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
