package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess    AuditEvent = "login_success"
	AuditLoginFailure    AuditEvent = "login_failure"
	AuditLogout          AuditEvent = "logout"
	AuditPinSetup        AuditEvent = "pin_setup"
	AuditPinSetupSkipped AuditEvent = "pin_setup_skipped"
	AuditPinUnlock       AuditEvent = "pin_unlock"
	AuditPinIncorrect    AuditEvent = "pin_incorrect"
	AuditPinLockedOut    AuditEvent = "pin_locked_out"
	AuditPinVerifyFailed AuditEvent = "pin_verify_failed"
	AuditPinForgotten    AuditEvent = "pin_forgotten"
	AuditSessionExpired  AuditEvent = "session_expired"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Entries never carry PINs, digests or tokens.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logFailure logs a rejected attempt with a short reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
