package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/httpkit"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/ids"
	"clipforge/internal/pkg/middleware"
	"clipforge/internal/ports"
)

// PostAsset uploads a source video into the owner's catalog.
// Form fields: file (required), label, duration_seconds.
func (h *Handler) PostAsset(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return errors.Validation("invalid multipart form")
	}

	label := strings.TrimSpace(r.FormValue("label"))
	duration := 0
	if raw := strings.TrimSpace(r.FormValue("duration_seconds")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return errors.ValidationField("duration_seconds", "duration_seconds must be a non-negative integer")
		}
		duration = v
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return errors.ValidationField("file", "file is required")
	}
	defer file.Close()

	assetID := ids.NewID("ast")
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = guessExt(header.Header.Get("Content-Type"))
		if ext == "" {
			ext = ".bin"
		}
	}
	objectKey := fmt.Sprintf("sources/%s/%s%s", ownerID, assetID, ext)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	out, err := h.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: contentType,
		Reader:      file,
		Size:        header.Size,
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, "assets.upload", "storage put failed")
	}

	asset := &models.Asset{
		ID:              assetID,
		OwnerID:         ownerID,
		Provider:        h.sp.Provider(),
		ObjectKey:       out.ObjectKey,
		Mime:            contentType,
		SizeBytes:       out.Size,
		DurationSeconds: duration,
		Label:           label,
	}
	if err := h.assets.Create(ctx, asset); err != nil {
		if derr := h.sp.DeleteObject(ctx, out.ObjectKey); derr != nil {
			h.log.FromContext(ctx).Warn("failed to remove orphaned upload", "object_key", out.ObjectKey, "error", derr.Error())
		}
		return err
	}

	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"asset": asset})
	return nil
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	asset, err := h.assets.Get(ctx, middleware.OwnerID(ctx), chi.URLParam(r, "assetId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"asset": asset})
	return nil
}

// GetAssetURL issues a signed read URL for one of the owner's assets.
func (h *Handler) GetAssetURL(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	asset, err := h.assets.Get(ctx, middleware.OwnerID(ctx), chi.URLParam(r, "assetId"))
	if err != nil {
		return err
	}
	signed, err := h.sp.GetSignedURL(ctx, asset.ObjectKey, h.assetURLTTL)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, "assets.url", "failed to sign asset url")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"asset_id":   asset.ID,
		"url":        signed.URL,
		"expires_at": signed.ExpiresAt,
	})
	return nil
}

func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)
	asset, err := h.assets.Get(ctx, ownerID, chi.URLParam(r, "assetId"))
	if err != nil {
		return err
	}

	if err := h.sp.DeleteObject(ctx, asset.ObjectKey); err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, "assets.delete", "storage delete failed").
			WithField("object_key", asset.ObjectKey)
	}
	if err := h.assets.Delete(ctx, ownerID, asset.ID); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// StreamContent serves the object behind a signed URL. The signature is the
// only credential; no owner header is required.
func (h *Handler) StreamContent(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	q := r.URL.Query()
	ref := q.Get("key")
	if err := h.verifier.Verify(ref, q.Get("exp"), q.Get("sig")); err != nil {
		return err
	}

	rc, ct, size, err := h.sp.GetObject(ctx, ref)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeNotFound, "assets.content", "object not found").
			WithField("object_key", ref)
	}
	defer rc.Close()

	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, filepath.Base(ref), time.Time{}, rs)
		return nil
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
	return nil
}

func guessExt(contentType string) string {
	if contentType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
