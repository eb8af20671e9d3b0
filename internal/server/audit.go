package server

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type AuditLogEntry struct {
	Timestamp  time.Time
	Handler    string
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	Actor      string
	UnitID     string
	ProductID  string
	SyncMode   string
	Error      string
}

func (e AuditLogEntry) fields() []zapcore.Field {
	fields := []zapcore.Field{
		zap.Time("timestamp", e.Timestamp),
		zap.String("handler", e.Handler),
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status_code", e.StatusCode),
		zap.Duration("duration", e.Duration),
	}
	for _, f := range []struct{ key, value string }{
		{"actor", e.Actor},
		{"unit_id", e.UnitID},
		{"product_id", e.ProductID},
		{"sync_mode", e.SyncMode},
		{"error", e.Error},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	return fields
}
