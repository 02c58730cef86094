package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/viralclips/internal/dispatch"
	"github.com/maauso/viralclips/internal/media"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/project/id"
	"github.com/maauso/viralclips/internal/storage"
)

const defaultSignedURLTTL = time.Hour

// ProjectDeleter removes a project, its clips and their objects.
type ProjectDeleter interface {
	DeleteProject(ctx context.Context, projectID string) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	repo      project.Repository
	blobs     storage.BlobStore
	enqueuer  dispatch.Enqueuer
	deleter   ProjectDeleter
	validator *validator.Validate
	logger    *slog.Logger
	urlTTL    time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithSignedURLTTL sets the lifetime of issued upload and download URLs.
func WithSignedURLTTL(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.urlTTL = d
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	repo project.Repository,
	blobs storage.BlobStore,
	enqueuer dispatch.Enqueuer,
	deleter ProjectDeleter,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		repo:      repo,
		blobs:     blobs,
		enqueuer:  enqueuer,
		deleter:   deleter,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		urlTTL:    defaultSignedURLTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// UploadURL handles GET /upload-url requests.
func (h *Handlers) UploadURL(w http.ResponseWriter, r *http.Request) {
	req := UploadURLRequest{
		Filename:    strings.TrimSpace(r.URL.Query().Get("filename")),
		ContentType: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("content_type"))),
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("upload url validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "filename and a video/* content_type are required", "VALIDATION_ERROR")
		return
	}

	key := storage.UploadKey(req.Filename)
	url, err := h.blobs.SignedPutURL(r.Context(), key, req.ContentType, h.urlTTL)
	if err != nil {
		h.logger.Error("failed to sign upload url",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create upload url", "SIGNING_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, UploadURLResponse{
		UploadURL: url,
		Key:       key,
		ExpiresIn: int(h.urlTTL.Seconds()),
	})
}

// CreateProject handles POST /projects requests.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
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

	style, ok := canonicalStyle(req.CaptionStyle)
	if !ok {
		writeError(w, http.StatusBadRequest, unknownStyleMessage(req.CaptionStyle), "VALIDATION_ERROR")
		return
	}

	p := project.New(req.OwnerID, req.SourceKey)
	p.Title = req.Title
	p.DurationPreference = project.ParseDurationPreference(req.DurationPreference)
	p.CaptionStyle = style

	if err := h.repo.CreateProject(r.Context(), p); err != nil {
		h.logger.Error("failed to create project",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create project", "PROJECT_CREATION_FAILED")
		return
	}

	if err := h.enqueuer.EnqueueVideo(r.Context(), p.ID); err != nil {
		h.logger.Error("failed to enqueue pipeline run",
			slog.String("project_id", p.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "project created but the run could not be queued", "ENQUEUE_FAILED")
		return
	}

	h.logger.Info("project created",
		slog.String("project_id", p.ID),
		slog.String("duration_preference", string(p.DurationPreference)),
	)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ID: p.ID, Status: "queued"})
}

// GetProject handles GET /projects/{id} requests.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.repo.GetProject(r.Context(), projectID)
	if err != nil {
		h.writeLookupError(w, "project_id", projectID, err)
		return
	}
	clips, err := h.repo.ListClips(r.Context(), projectID)
	if err != nil {
		h.logger.Error("failed to list clips",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get project", "PROJECT_FETCH_FAILED")
		return
	}

	resp := ProjectResponse{
		ID:                 p.ID,
		OwnerID:            p.OwnerID,
		Title:              p.Title,
		Status:             string(p.Status),
		Error:              p.ErrorMessage,
		DurationPreference: string(p.DurationPreference),
		CaptionStyle:       p.CaptionStyle,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		Clips:              make([]ClipResponse, 0, len(clips)),
	}
	for _, c := range clips {
		resp.Clips = append(resp.Clips, h.clipResponse(r.Context(), c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// clipResponse signs the clip's media key. Legacy rows holding an absolute
// URL are passed through unchanged.
func (h *Handlers) clipResponse(ctx context.Context, c *project.Clip) ClipResponse {
	resp := ClipResponse{
		ID:            c.ID,
		ViralityScore: c.ViralityScore,
		Rationale:     c.Rationale,
		Transcript:    c.Transcript,
		StartTime:     c.StartTime,
		EndTime:       c.EndTime,
		CreatedAt:     c.CreatedAt,
	}
	if !storage.IsBlobKey(c.MediaKey) {
		resp.URL = c.MediaKey
		resp.DownloadURL = c.MediaKey
		return resp
	}

	var err error
	if resp.URL, err = h.blobs.SignedGetURL(ctx, c.MediaKey, h.urlTTL, false); err != nil {
		h.logger.Warn("failed to sign clip url",
			slog.String("clip_id", c.ID),
			slog.String("error", err.Error()),
		)
		return resp
	}
	if resp.DownloadURL, err = h.blobs.SignedGetURL(ctx, c.MediaKey, h.urlTTL, true); err != nil {
		h.logger.Warn("failed to sign clip download url",
			slog.String("clip_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	return resp
}

// RunProject handles POST /projects/{id}/run requests.
func (h *Handlers) RunProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.repo.GetProject(r.Context(), projectID); err != nil {
		h.writeLookupError(w, "project_id", projectID, err)
		return
	}

	if err := h.enqueuer.EnqueueVideo(r.Context(), projectID); err != nil {
		h.logger.Error("failed to enqueue pipeline run",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "failed to queue run", "ENQUEUE_FAILED")
		return
	}

	h.logger.Info("pipeline run queued", slog.String("project_id", projectID))
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ID: projectID, Status: "queued"})
}

// DeleteProject handles DELETE /projects/{id} requests.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.deleter.DeleteProject(r.Context(), projectID); err != nil {
		h.writeLookupError(w, "project_id", projectID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BurnClip handles POST /clips/{id}/burn requests.
func (h *Handlers) BurnClip(w http.ResponseWriter, r *http.Request) {
	clipID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req BurnClipRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("failed to decode request body",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if req.StartTime != nil && req.EndTime != nil && *req.EndTime <= *req.StartTime {
		writeError(w, http.StatusBadRequest, "end_time must be after start_time", "VALIDATION_ERROR")
		return
	}
	style, ok := canonicalStyle(req.StyleName)
	if !ok {
		writeError(w, http.StatusBadRequest, unknownStyleMessage(req.StyleName), "VALIDATION_ERROR")
		return
	}

	if _, err := h.repo.GetClip(r.Context(), clipID); err != nil {
		h.writeLookupError(w, "clip_id", clipID, err)
		return
	}

	task := dispatch.BurnTask{
		ClipID:    clipID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		StyleName: style,
	}
	if err := h.enqueuer.EnqueueBurn(r.Context(), task); err != nil {
		h.logger.Error("failed to enqueue burn",
			slog.String("clip_id", clipID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "failed to queue burn", "ENQUEUE_FAILED")
		return
	}

	h.logger.Info("burn queued", slog.String("clip_id", clipID))
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ID: clipID, Status: "queued"})
}

// pathID returns the {id} path value, writing a 400 when it is not a valid identifier.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	v := r.PathValue("id")
	if err := id.Validate(v); err != nil {
		writeError(w, http.StatusBadRequest, "id must be a UUID", "INVALID_ID")
		return "", false
	}
	return v, true
}

// canonicalStyle maps a caption style name to its canonical spelling.
// An empty name is valid and means the default.
func canonicalStyle(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", true
	}
	for _, known := range media.StyleNames() {
		if strings.EqualFold(known, name) {
			return known, true
		}
	}
	return "", false
}

func unknownStyleMessage(name string) string {
	return "unknown caption style " + strconv.Quote(name) + "; expected one of " + strings.Join(media.StyleNames(), ", ")
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, attr, id string, err error) {
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "project not found", "PROJECT_NOT_FOUND")
	case errors.Is(err, project.ErrClipNotFound):
		writeError(w, http.StatusNotFound, "clip not found", "CLIP_NOT_FOUND")
	default:
		h.logger.Error("repository lookup failed",
			slog.String(attr, id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
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
