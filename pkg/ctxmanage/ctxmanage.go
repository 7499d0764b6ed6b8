package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
)

type key string

const traceIDKey key = "traceId"

// WithTraceID stores the per-request trace id in the context. Set once by the
// logging middleware before any handler runs.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceIDOfRequest(c *gin.Context) string {
	traceID, ok := c.Request.Context().Value(traceIDKey).(string)
	if !ok {
		return "unknown"
	}
	return traceID
}
