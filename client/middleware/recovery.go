package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Recover must be deferred directly. It logs a panic with the trace ID from
// ctx and stores it in errp when errp is non-nil.
func Recover(ctx context.Context, logger *zap.Logger, errp *error) {
	if rec := recover(); rec != nil {
		logger.Error("Panic recovered",
			zap.String("trace_id", GetTraceID(ctx)),
			zap.Any("error", rec),
			zap.Stack("stack"),
		)
		if errp != nil {
			*errp = fmt.Errorf("panic: %v", rec)
		}
	}
}
