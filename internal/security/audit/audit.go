package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/portal/internal/infrastructure/logger"
)

// Outcomes recorded with each event
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{logger: log.With(slog.String("component", "audit"))}
}

// LogAction records a security-relevant event. Subject is the account the
// event concerns, typically an email. Never pass secrets in details.
func (al *Logger) LogAction(ctx context.Context, subject, action, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("subject", subject),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", logger.RequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogLogin(ctx context.Context, subject, status, details string) {
	al.LogAction(ctx, subject, "login", status, details)
}

func (al *Logger) LogRegistration(ctx context.Context, subject, status, details string) {
	al.LogAction(ctx, subject, "register", status, details)
}

func (al *Logger) LogPasswordChange(ctx context.Context, subject, status, details string) {
	al.LogAction(ctx, subject, "change_password", status, details)
}

func (al *Logger) LogDenied(ctx context.Context, subject, reason string) {
	al.LogAction(ctx, subject, "access_denied", StatusDenied, reason)
}
