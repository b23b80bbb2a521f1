package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/emse-students/Le-Cercle/pkg/cercle"
)

const operationLogMessage = "ledger operation"

// Logger emits cercle operation logs through zap.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing to the given zap logger.
func New(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogOperation implements cercle.OperationLogger.
func (adapter *Logger) LogOperation(_ context.Context, entry cercle.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", int64(entry.UserID)))
	}
	if entry.ActorID != 0 {
		fields = append(fields, zap.Int64("actor_id", int64(entry.ActorID)))
	}
	if entry.SessionID != nil {
		fields = append(fields, zap.Int64("session_id", int64(*entry.SessionID)))
	}
	if entry.Kind != "" {
		fields = append(fields, zap.String("kind", string(entry.Kind)))
	}
	if entry.AmountCents != 0 {
		fields = append(fields, zap.Int64("amount_cents", int64(entry.AmountCents)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn(operationLogMessage, fields...)
		return
	}
	adapter.logger.Info(operationLogMessage, fields...)
}
