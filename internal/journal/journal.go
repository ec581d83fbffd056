// Package journal records notable workflow events in the system_logs table
// and mirrors them to the process logger.
package journal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/logging"
)

const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

type Writer interface {
	InsertLog(ctx context.Context, l *domain.SystemLog) error
}

// Entry is one event. Zero fields are omitted from the stored row.
type Entry struct {
	Level     string
	Event     string
	Message   string
	UserID    string
	AccountID int64
	Duration  time.Duration
	Metadata  map[string]any
	Err       error
}

type Journal struct {
	w      Writer
	logger *zap.Logger
}

// New returns a Journal. A nil Writer only logs.
func New(w Writer, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{w: w, logger: logger}
}

// Record writes e. Storage failures are logged and otherwise ignored so
// that journaling never fails the workflow being journaled.
func (j *Journal) Record(ctx context.Context, e Entry) {
	if j == nil {
		return
	}
	if e.Level == "" {
		e.Level = LevelInfo
		if e.Err != nil {
			e.Level = LevelError
		}
	}

	fields := []zap.Field{zap.String("event", e.Event)}
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	if e.AccountID != 0 {
		fields = append(fields, zap.Int64("account_id", e.AccountID))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	logger := logging.FromContext(ctx, j.logger)
	switch e.Level {
	case LevelError:
		logger.Error(e.Message, fields...)
	case LevelWarning:
		logger.Warn(e.Message, fields...)
	default:
		logger.Info(e.Message, fields...)
	}

	if j.w == nil {
		return
	}
	row := &domain.SystemLog{
		Level:           e.Level,
		EventType:       e.Event,
		Message:         e.Message,
		UserID:          e.UserID,
		SessionID:       logging.RequestID(ctx),
		ExecutionTimeMS: float64(e.Duration.Microseconds()) / 1000,
		Metadata:        e.Metadata,
	}
	if e.AccountID != 0 {
		id := e.AccountID
		row.AccountID = &id
	}
	if e.Err != nil {
		if row.Metadata == nil {
			row.Metadata = map[string]any{}
		}
		row.Metadata["error"] = e.Err.Error()
	}
	if err := j.w.InsertLog(ctx, row); err != nil {
		j.logger.Warn("failed to write system log", zap.String("event", e.Event), zap.Error(err))
	}
}
