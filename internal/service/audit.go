package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type auditEntry struct {
	Actor      string
	Action     string
	Resource   string
	ResourceID string
	Old        interface{}
	New        interface{}
}

// emitAudit persists an audit row after the audited change committed. A
// failure is logged and does not undo the change.
func emitAudit(ctx context.Context, w auditWriter, logger *zap.Logger, entry auditEntry) {
	if w == nil {
		return
	}
	log := &models.AuditLog{
		Action:    entry.Action,
		Resource:  entry.Resource,
		IPAddress: "system",
		UserAgent: "enrollment-core",
	}
	if entry.Actor != "" {
		actor := entry.Actor
		log.UserID = &actor
	}
	if entry.ResourceID != "" {
		id := entry.ResourceID
		log.ResourceID = &id
	}
	log.OldValues = marshalAudit(entry.Old)
	log.NewValues = marshalAudit(entry.New)
	if err := w.Create(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
