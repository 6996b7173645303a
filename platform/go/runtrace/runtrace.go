package runtrace

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const ctxRunInfo contextKey = "HOTSPOT_RUN_TRACE"

// Trigger describes what started a reconciliation pass.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// RunInfo captures pass-scoped metadata used for log correlation and report archiving.
// RequestID is only set when the pass was started through the ops HTTP API.
type RunInfo struct {
	RunID     uuid.UUID
	Trigger   Trigger
	RequestID string
}

// New builds a RunInfo with a fresh run id.
func New(trigger Trigger, requestID string) RunInfo {
	return RunInfo{RunID: uuid.New(), Trigger: trigger, RequestID: requestID}
}

// IntoContext stores the RunInfo in the provided context.
func IntoContext(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, ctxRunInfo, info)
}

// FromContext extracts the RunInfo from context, returning false when not present.
func FromContext(ctx context.Context) (RunInfo, bool) {
	if ctx == nil {
		return RunInfo{}, false
	}
	info, ok := ctx.Value(ctxRunInfo).(RunInfo)
	return info, ok
}

// Fields renders the RunInfo as zap fields.
func (i RunInfo) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", i.RunID.String()),
		zap.String("trigger", string(i.Trigger)),
	}
	if i.RequestID != "" {
		fields = append(fields, zap.String("request_id", i.RequestID))
	}
	return fields
}
