package models

import (
	"context"

	"github.com/google/uuid"
	"github.com/oakerp/bolsync/utils"
)

// CorrelationIdFromContextOrNew returns the request's correlation id or mints
// one for work started outside an HTTP request (scheduler, pubsub).
func CorrelationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
