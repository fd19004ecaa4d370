package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/httpkit"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/middleware"
)

type CreateJobRequest struct {
	Kind           string               `json:"kind"`
	SourceAssetRef string               `json:"source_asset_ref"`
	Parameters     models.JobParameters `json:"parameters"`
}

func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req CreateJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.Validation("invalid json body")
	}

	svc, ok := h.jobs(strings.TrimSpace(req.Kind))
	if !ok {
		return errors.ValidationField("kind", "unsupported kind: "+req.Kind)
	}

	handle, err := svc.Submit(ctx, middleware.OwnerID(ctx), req.SourceAssetRef, req.Parameters)
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": handle})
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	filter := models.JobFilter{
		Status: models.JobStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return errors.ValidationField("limit", "limit must be a positive integer")
		}
		filter.Limit = v
	}

	svc, _ := h.jobs("")
	jobs, err := svc.ListJobs(ctx, middleware.OwnerID(ctx), filter)
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobId")

	svc, _ := h.jobs("")
	view, err := svc.GetStatus(ctx, jobID, middleware.OwnerID(ctx))
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": view})
	return nil
}
