package utils

import (
	"context"

	"github.com/oakerp/bolsync/appctx"
)

var (
	ContextKeyInstanceId    = appctx.ContextKeyInstanceId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetInstanceIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyInstanceId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetInstanceIdInContext(ctx context.Context, instanceId int) context.Context {
	return appctx.Set(ctx, ContextKeyInstanceId, instanceId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
