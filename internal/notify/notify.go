// Package notify persists user-visible job alerts.
package notify

import (
	"context"

	"clipforge/internal/models"
	"clipforge/internal/pkg/ids"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

// AlertNotifier writes alerts to an AlertStore. Delivery is best effort:
// failures are logged and never returned.
type AlertNotifier struct {
	store ports.AlertStore
	log   *logger.Logger
}

var _ ports.Notifier = (*AlertNotifier)(nil)

func New(store ports.AlertStore, log *logger.Logger) *AlertNotifier {
	if log == nil {
		log = logger.NewDefault()
	}
	return &AlertNotifier{store: store, log: log.WithComponent("notify")}
}

func (n *AlertNotifier) Notify(ctx context.Context, ownerID string, kind models.AlertKind, message string, metadata map[string]any) {
	a := &models.Alert{
		ID:       ids.NewID("alr"),
		OwnerID:  ownerID,
		Kind:     kind,
		Message:  message,
		Metadata: metadata,
	}
	if err := n.store.Insert(ctx, a); err != nil {
		n.log.FromContext(ctx).Warn("failed to store alert",
			"owner_id", ownerID,
			"alert_kind", string(kind),
			"error", err.Error(),
		)
		return
	}
	n.log.FromContext(ctx).Debug("alert stored", "alert_id", a.ID, "alert_kind", string(kind))
}
