package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"clipforge/internal/httpkit"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/middleware"
)

// GetCredits reports the owner's balance. Owners without an account have zero.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	bal, err := h.credits.Balance(ctx, ownerID)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"balance":  bal,
	})
	return nil
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 200 {
			return errors.ValidationField("limit", "limit must be between 1 and 200")
		}
		limit = v
	}

	alerts, err := h.alerts.ListByOwner(ctx, middleware.OwnerID(ctx), limit)
	if err != nil {
		return err
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
	return nil
}
